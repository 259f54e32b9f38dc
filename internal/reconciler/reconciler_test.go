package reconciler_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cropdesk/cropdesk/internal/reconciler"
	"github.com/cropdesk/cropdesk/internal/tools"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("output reconciler", func() {
	var (
		dir  string
		tool tools.Tool
		r    *reconciler.Reconciler
	)

	touch := func(name string) {
		Expect(os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644)).To(Succeed())
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		tool = tools.Tool{
			Key:              "flipkart",
			OutputExtensions: tools.DefaultOutputExtensions,
			Sentinel:         tools.DefaultSentinel,
		}
		r = reconciler.New(20 * time.Millisecond)
	})

	It("returns every recognized file already present", func() {
		touch("b.pdf")
		touch("a.pdf")
		touch("summary.XLSX")
		touch("config.json")
		touch("notes.txt")
		Expect(os.Mkdir(filepath.Join(dir, "nested.pdf"), 0755)).To(Succeed())

		res, err := r.WaitForOutputs(context.TODO(), dir, tool, time.Now().Add(time.Second))
		Expect(err).To(BeNil())
		Expect(res.Outcome).To(Equal(reconciler.OutcomeArtifacts))
		Expect(res.Names).To(Equal([]string{"a.pdf", "b.pdf", "summary.XLSX"}))
	})

	It("waits for an artifact written later", func() {
		go func() {
			time.Sleep(100 * time.Millisecond)
			touch("late.pdf")
		}()

		start := time.Now()
		res, err := r.WaitForOutputs(context.TODO(), dir, tool, time.Now().Add(5*time.Second))
		Expect(err).To(BeNil())
		Expect(res.Names).To(Equal([]string{"late.pdf"}))
		Expect(time.Since(start)).To(BeNumerically("<", 3*time.Second))
	})

	It("falls back to the sentinel on deadline", func() {
		touch("error.log")

		res, err := r.WaitForOutputs(context.TODO(), dir, tool, time.Now().Add(100*time.Millisecond))
		Expect(err).To(BeNil())
		Expect(res.Outcome).To(Equal(reconciler.OutcomeSentinel))
		Expect(res.Names).To(Equal([]string{"error.log"}))
	})

	It("prefers artifacts over the sentinel", func() {
		touch("error.log")
		touch("error_pages.pdf")

		res, err := r.WaitForOutputs(context.TODO(), dir, tool, time.Now().Add(100*time.Millisecond))
		Expect(err).To(BeNil())
		Expect(res.Names).To(Equal([]string{"error_pages.pdf"}))
	})

	It("times out when nothing appears", func() {
		touch("notes.txt")

		_, err := r.WaitForOutputs(context.TODO(), dir, tool, time.Now().Add(100*time.Millisecond))
		Expect(err).To(MatchError(reconciler.ErrTimeout))
	})

	It("inspects once when the deadline already passed", func() {
		touch("a.pdf")

		res, err := r.WaitForOutputs(context.TODO(), dir, tool, time.Now().Add(-time.Second))
		Expect(err).To(BeNil())
		Expect(res.Names).To(Equal([]string{"a.pdf"}))
	})

	It("treats a missing dir as empty", func() {
		_, err := r.WaitForOutputs(context.TODO(), filepath.Join(dir, "missing"), tool, time.Now())
		Expect(err).To(MatchError(reconciler.ErrTimeout))
	})

	It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.TODO())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		_, err := r.WaitForOutputs(ctx, dir, tool, time.Now().Add(10*time.Second))
		Expect(err).To(MatchError(context.Canceled))
	})
})
