package runner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cropdesk/cropdesk/internal/runner"
	"github.com/cropdesk/cropdesk/internal/tools"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const parseArgs = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    --input) in="$2"; shift 2 ;;
    --output) out="$2"; shift 2 ;;
    --config) cfg="$2"; shift 2 ;;
    *) shift ;;
  esac
done
`

func writeTool(root, name, body string) {
	Expect(os.MkdirAll(root, 0755)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(root, name), []byte(parseArgs+body), 0755)).To(Succeed())
}

var _ = Describe("runner", func() {
	var (
		root string
		req  runner.Request
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		req = runner.Request{
			JobID:     "job-1",
			Tool:      tools.Tool{Key: "test", Folder: "Test", Executable: "run.sh"},
			ToolsRoot: root,
			InputDir:  filepath.Join(root, "input", "job-1"),
			OutputDir: filepath.Join(root, "output", "job-1"),
		}
		Expect(os.MkdirAll(req.InputDir, 0755)).To(Succeed())
		Expect(os.MkdirAll(req.OutputDir, 0755)).To(Succeed())
	})

	Context("command", func() {
		It("runs python entry points through the interpreter", func() {
			req.Tool.Executable = "main.py"
			req.ConfigPath = "/cfg.json"
			name, args := runner.New("python3").Command(req)
			Expect(name).To(Equal("python3"))
			Expect(args).To(Equal([]string{
				filepath.Join(root, "main.py"),
				"--input", req.InputDir,
				"--output", req.OutputDir,
				"--config", "/cfg.json",
			}))
		})

		It("omits the config argument when there is none", func() {
			name, args := runner.New("python3").Command(req)
			Expect(name).To(Equal(filepath.Join(root, "run.sh")))
			Expect(args).To(Equal([]string{"--input", req.InputDir, "--output", req.OutputDir}))
		})
	})

	Context("run", func() {
		It("classifies a zero exit as success and runs in the tools root", func() {
			writeTool(root, "run.sh", `pwd > "$out/cwd.txt"
echo "cfg=$cfg" > "$out/cfg.txt"
ls "$in" > "$out/inputs.txt"
echo done
`)
			Expect(os.WriteFile(filepath.Join(req.InputDir, "a.pdf"), []byte("%PDF"), 0644)).To(Succeed())
			req.ConfigPath = filepath.Join(req.OutputDir, "config.json")

			res, err := runner.New("python3").Run(context.TODO(), req)
			Expect(err).To(BeNil())
			Expect(res.Class).To(Equal(runner.ClassSuccess))
			Expect(res.ExitCode).To(Equal(0))
			Expect(res.Stdout).To(Equal("done"))

			cwd, err := os.ReadFile(filepath.Join(req.OutputDir, "cwd.txt"))
			Expect(err).To(BeNil())
			resolved, _ := filepath.EvalSymlinks(root)
			Expect(strings.TrimSpace(string(cwd))).To(BeElementOf(root, resolved))

			cfg, _ := os.ReadFile(filepath.Join(req.OutputDir, "cfg.txt"))
			Expect(strings.TrimSpace(string(cfg))).To(Equal("cfg=" + req.ConfigPath))
			inputs, _ := os.ReadFile(filepath.Join(req.OutputDir, "inputs.txt"))
			Expect(strings.TrimSpace(string(inputs))).To(Equal("a.pdf"))
		})

		It("runs python entry points with the interpreter", func() {
			writeTool(root, "main.py", `echo ok > "$out/ok.pdf"`)
			req.Tool.Executable = "main.py"

			res, err := runner.New("/bin/sh").Run(context.TODO(), req)
			Expect(err).To(BeNil())
			Expect(res.Class).To(Equal(runner.ClassSuccess))
			Expect(filepath.Join(req.OutputDir, "ok.pdf")).To(BeAnExistingFile())
		})

		It("classifies a non zero exit as a soft failure", func() {
			writeTool(root, "run.sh", `echo "boom" >&2
exit 3
`)
			res, err := runner.New("python3").Run(context.TODO(), req)
			Expect(err).To(BeNil())
			Expect(res.Class).To(Equal(runner.ClassSoftFailure))
			Expect(res.ExitCode).To(Equal(3))
			Expect(res.Stderr).To(Equal("boom"))
			Expect(res.Killed).To(BeFalse())
		})

		It("returns a spawn error when the executable is missing", func() {
			_, err := runner.New("python3").Run(context.TODO(), req)
			Expect(err).ToNot(BeNil())
			var spawnErr *runner.SpawnError
			Expect(errors.As(err, &spawnErr)).To(BeTrue())
		})

		It("returns a spawn error when the interpreter is missing", func() {
			writeTool(root, "main.py", `exit 0`)
			req.Tool.Executable = "main.py"
			_, err := runner.New("/nonexistent/python").Run(context.TODO(), req)
			var spawnErr *runner.SpawnError
			Expect(errors.As(err, &spawnErr)).To(BeTrue())
		})

		It("kills the tool when the context is done", func() {
			writeTool(root, "run.sh", `exec sleep 30`)
			ctx, cancel := context.WithTimeout(context.TODO(), 200*time.Millisecond)
			defer cancel()

			start := time.Now()
			res, err := runner.New("python3").Run(ctx, req)
			Expect(err).To(BeNil())
			Expect(time.Since(start)).To(BeNumerically("<", 10*time.Second))
			Expect(res.Killed).To(BeTrue())
			Expect(res.Class).To(Equal(runner.ClassSoftFailure))
		})

		It("classifies a zero exit as success while a child still holds the output open", func() {
			writeTool(root, "run.sh", `sleep 30 &
echo ok > "$out/a.pdf"
exit 0
`)
			start := time.Now()
			res, err := runner.New("python3").Run(context.TODO(), req)
			Expect(err).To(BeNil())
			Expect(time.Since(start)).To(BeNumerically("<", 20*time.Second))
			Expect(res.ExitCode).To(Equal(0))
			Expect(res.Class).To(Equal(runner.ClassSuccess))
			Expect(res.Killed).To(BeFalse())
		})

		It("kills the workers started by the tool when the context is done", func() {
			writeTool(root, "run.sh", `(sleep 1; echo late > "$out/late.pdf") &
wait
`)
			ctx, cancel := context.WithTimeout(context.TODO(), 300*time.Millisecond)
			defer cancel()

			res, err := runner.New("python3").Run(ctx, req)
			Expect(err).To(BeNil())
			Expect(res.Killed).To(BeTrue())

			Consistently(filepath.Join(req.OutputDir, "late.pdf")).
				WithTimeout(2 * time.Second).
				ShouldNot(BeAnExistingFile())
		})

		It("consumes large output without blocking", func() {
			writeTool(root, "run.sh", `i=0
while [ $i -lt 5000 ]; do
  echo "line $i with some padding to make the stream larger than a pipe buffer"
  i=$((i+1))
done
`)
			res, err := runner.New("python3").Run(context.TODO(), req)
			Expect(err).To(BeNil())
			Expect(res.Class).To(Equal(runner.ClassSuccess))
			lines := strings.Split(res.Stdout, "\n")
			Expect(lines).To(HaveLen(200))
			Expect(lines[len(lines)-1]).To(HavePrefix("line 4999 "))
		})
	})
})
