package workspace_test

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cropdesk/cropdesk/internal/tools"
	"github.com/cropdesk/cropdesk/internal/workspace"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("workspace manager", func() {
	var (
		dataDir string
		manager *workspace.Manager
		tool    tools.Tool
	)

	BeforeEach(func() {
		dataDir = GinkgoT().TempDir()
		manager = workspace.NewManager(dataDir, filepath.Join(dataDir, ".staging"))
		tool = tools.Tool{Key: "flipkart", Folder: "FlipkartCropper"}
	})

	Context("allocate", func() {
		It("creates the input and output dirs under the tool folder", func() {
			ws, err := manager.Allocate(tool)
			Expect(err).To(BeNil())

			Expect(ws.ToolsRoot).To(Equal(filepath.Join(dataDir, "FlipkartCropper")))
			Expect(ws.InputDir).To(Equal(filepath.Join(dataDir, "FlipkartCropper", "input", ws.JobID)))
			Expect(ws.OutputDir).To(Equal(filepath.Join(dataDir, "FlipkartCropper", "output", ws.JobID)))
			Expect(ws.ConfigPath()).To(Equal(filepath.Join(ws.OutputDir, "config.json")))
			Expect(ws.InputDir).To(BeADirectory())
			Expect(ws.OutputDir).To(BeADirectory())
			Expect(workspace.ValidJobID(ws.JobID)).To(BeTrue())
		})

		It("produces ids sorted by creation order", func() {
			ids := []string{}
			for i := 0; i < 20; i++ {
				ws, err := manager.Allocate(tool)
				Expect(err).To(BeNil())
				ids = append(ids, ws.JobID)
			}
			Expect(sort.StringsAreSorted(ids)).To(BeTrue())
		})

		It("produces unique ids under concurrency", func() {
			const n = 64
			var (
				wg  sync.WaitGroup
				mu  sync.Mutex
				ids = map[string]bool{}
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					ws, err := manager.Allocate(tool)
					Expect(err).To(BeNil())
					mu.Lock()
					ids[ws.JobID] = true
					mu.Unlock()
				}()
			}
			wg.Wait()
			Expect(ids).To(HaveLen(n))
		})

		It("fails when the data dir cannot be written", func() {
			blocker := filepath.Join(dataDir, "file")
			Expect(os.WriteFile(blocker, []byte("x"), 0644)).To(Succeed())

			m := workspace.NewManager(blocker, blocker)
			_, err := m.Allocate(tool)
			Expect(err).ToNot(BeNil())
		})
	})

	Context("release", func() {
		It("removes the input dir and keeps the output dir", func() {
			ws, err := manager.Allocate(tool)
			Expect(err).To(BeNil())
			Expect(os.WriteFile(filepath.Join(ws.InputDir, "a.pdf"), []byte("%PDF-1.4"), 0644)).To(Succeed())

			manager.Release(ws)

			Expect(ws.InputDir).ToNot(BeAnExistingFile())
			Expect(ws.OutputDir).To(BeADirectory())
		})

		It("tolerates an input dir that is already gone", func() {
			ws, err := manager.Allocate(tool)
			Expect(err).To(BeNil())
			Expect(os.RemoveAll(ws.InputDir)).To(Succeed())

			manager.Release(ws)
			manager.Release(nil)
			Expect(ws.InputDir).ToNot(BeAnExistingFile())
		})
	})

	Context("staging", func() {
		It("stages, moves and sanitizes uploads", func() {
			ws, err := manager.Allocate(tool)
			Expect(err).To(BeNil())

			staged, n, err := manager.Stage(strings.NewReader("%PDF-1.4 body"), 1024)
			Expect(err).To(BeNil())
			Expect(n).To(Equal(int64(13)))

			dest, err := manager.MoveInto(ws, staged, "../../etc/passwd")
			Expect(err).To(BeNil())
			Expect(dest).To(Equal(filepath.Join(ws.InputDir, "passwd")))
			Expect(staged).ToNot(BeAnExistingFile())

			staged, _, err = manager.Stage(strings.NewReader("%PDF-1.4"), 1024)
			Expect(err).To(BeNil())
			dest, err = manager.MoveInto(ws, staged, `C:\labels\passwd`)
			Expect(err).To(BeNil())
			Expect(dest).To(Equal(filepath.Join(ws.InputDir, "passwd_1")))
		})

		It("reads one byte past the limit", func() {
			staged, n, err := manager.Stage(strings.NewReader("0123456789"), 4)
			Expect(err).To(BeNil())
			Expect(n).To(Equal(int64(5)))

			manager.Discard(staged)
			Expect(staged).ToNot(BeAnExistingFile())
		})
	})
})

var _ = Describe("job id", func() {
	It("starts with the utc timestamp", func() {
		now := time.Date(2024, 3, 9, 10, 4, 5, 123, time.FixedZone("x", 3600))
		id := workspace.NewJobID(now, 7)
		Expect(id).To(HavePrefix("20240309T090405.000000123Z-000007-"))
		Expect(workspace.ValidJobID(id)).To(BeTrue())
	})

	It("rejects path like ids", func() {
		Expect(workspace.ValidJobID("../x")).To(BeFalse())
		Expect(workspace.ValidJobID("")).To(BeFalse())
	})
})

var _ = Describe("sanitize filename", func() {
	DescribeTable("reduces names to one path element",
		func(in, out string) {
			Expect(workspace.SanitizeFilename(in)).To(Equal(out))
		},
		Entry("plain", "labels.pdf", "labels.pdf"),
		Entry("unix path", "a/b/labels.pdf", "labels.pdf"),
		Entry("windows path", `a\b\labels.pdf`, "labels.pdf"),
		Entry("dot dot", "..", "upload.pdf"),
		Entry("hidden", ".labels.pdf", "labels.pdf"),
		Entry("reserved chars", "a:b?.pdf", "a_b_.pdf"),
		Entry("empty", "", "upload.pdf"),
		Entry("long name keeps extension", strings.Repeat("x", 300)+".pdf", strings.Repeat("x", 196)+".pdf"),
	)

	It("does not split multi byte characters when shortening", func() {
		name := workspace.SanitizeFilename(strings.Repeat("é", 150) + ".pdf")
		Expect(len(name)).To(BeNumerically("<=", 200))
		Expect(utf8.ValidString(name)).To(BeTrue())
		Expect(name).To(HaveSuffix("é.pdf"))
	})
})
