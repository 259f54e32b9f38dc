package service_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cropdesk/cropdesk/internal/service"
	"github.com/cropdesk/cropdesk/internal/workspace"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("artifact service", func() {
	var (
		e         *env
		artifacts *service.ArtifactService
		jobID     string
	)

	BeforeEach(func() {
		e = newEnv(2 * time.Second)
		artifacts = service.NewArtifactService(e.registry, e.manager)
		e.writeTool(`echo "labels" > "$out/labels.pdf"`)

		result, err := e.jobs.Submit(context.TODO(), service.JobRequest{
			Tool:     "flipkart",
			Settings: ptr(`{"mode":"fast"}`),
			Files:    e.pdfs("orders.pdf"),
		})
		Expect(err).To(BeNil())
		jobID = result.JobID
	})

	Context("locate", func() {
		It("resolves a download url to the produced file", func() {
			artifact, err := artifacts.Locate(context.TODO(), "flipkart", jobID, "labels.pdf")
			Expect(err).To(BeNil())
			Expect(artifact.Path).To(Equal(filepath.Join(e.outputDir(jobID), "labels.pdf")))
			Expect(artifact.Size).To(Equal(int64(len("labels\n"))))

			data, err := os.ReadFile(artifact.Path)
			Expect(err).To(BeNil())
			Expect(string(data)).To(Equal("labels\n"))
		})

		It("serves any file of the job output", func() {
			_, err := artifacts.Locate(context.TODO(), "flipkart", jobID, workspace.JobConfigFile)
			Expect(err).To(BeNil())
		})

		It("fails on an unknown tool", func() {
			_, err := artifacts.Locate(context.TODO(), "amazon", jobID, "labels.pdf")
			var uerr *service.ErrUnknownTool
			Expect(err).To(BeAssignableToTypeOf(uerr))
		})

		DescribeTable("fails on a missing artifact",
			func(job func() string, name string) {
				_, err := artifacts.Locate(context.TODO(), "flipkart", job(), name)
				var nerr *service.ErrArtifactNotFound
				Expect(err).To(BeAssignableToTypeOf(nerr))
			},
			Entry("unknown file", func() string { return jobID }, "other.pdf"),
			Entry("traversal in the name", func() string { return jobID }, "../../config.json"),
			Entry("bad job id", func() string { return "../input" }, "labels.pdf"),
			Entry("unknown job", func() string { return "20240101T000000.000000000Z-000001-deadbeef" }, "labels.pdf"),
		)
	})

	Context("list", func() {
		It("lists every artifact without job configs", func() {
			list, err := artifacts.List(context.TODO())
			Expect(err).To(BeNil())
			Expect(list).To(HaveLen(1))
			Expect(list[0].Tool).To(Equal("flipkart"))
			Expect(list[0].JobID).To(Equal(jobID))
			Expect(list[0].Name).To(Equal("labels.pdf"))
			Expect(list[0].Sheets).To(BeNil())
		})

		It("reports the sheets of workbooks", func() {
			book := excelize.NewFile()
			_, err := book.NewSheet("Summary")
			Expect(err).To(BeNil())
			Expect(book.SaveAs(filepath.Join(e.outputDir(jobID), "report.xlsx"))).To(Succeed())
			Expect(book.Close()).To(Succeed())

			list, err := artifacts.List(context.TODO())
			Expect(err).To(BeNil())
			Expect(list).To(HaveLen(2))
			Expect(list[1].Name).To(Equal("report.xlsx"))
			Expect(list[1].Sheets).To(ConsistOf("Sheet1", "Summary"))
		})

		It("orders newest jobs first", func() {
			second, err := e.jobs.Submit(context.TODO(), service.JobRequest{Tool: "flipkart", Files: e.pdfs("orders.pdf")})
			Expect(err).To(BeNil())

			list, err := artifacts.List(context.TODO())
			Expect(err).To(BeNil())
			Expect(list).To(HaveLen(2))
			Expect(list[0].JobID).To(Equal(second.JobID))
			Expect(list[1].JobID).To(Equal(jobID))
		})

		It("is empty without any job", func() {
			fresh := newEnv(time.Second)
			list, err := service.NewArtifactService(fresh.registry, fresh.manager).List(context.TODO())
			Expect(err).To(BeNil())
			Expect(list).To(BeEmpty())
		})
	})

	Context("delete", func() {
		It("removes the file and keeps the non empty dir", func() {
			Expect(artifacts.Delete(context.TODO(), "flipkart", jobID, "labels.pdf")).To(Succeed())
			Expect(filepath.Join(e.outputDir(jobID), "labels.pdf")).NotTo(BeAnExistingFile())
			// the job config is still there
			Expect(e.outputDir(jobID)).To(BeADirectory())
		})

		It("removes the job dir once it is empty", func() {
			Expect(artifacts.Delete(context.TODO(), "flipkart", jobID, workspace.JobConfigFile)).To(Succeed())
			Expect(artifacts.Delete(context.TODO(), "flipkart", jobID, "labels.pdf")).To(Succeed())
			Expect(e.outputDir(jobID)).NotTo(BeADirectory())
		})

		It("fails on a missing artifact", func() {
			err := artifacts.Delete(context.TODO(), "flipkart", jobID, "other.pdf")
			var nerr *service.ErrArtifactNotFound
			Expect(err).To(BeAssignableToTypeOf(nerr))
		})
	})
})
