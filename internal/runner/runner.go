// Package runner executes an external transformation tool against a job
// workspace and classifies how it exited.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cropdesk/cropdesk/internal/tools"
	"go.uber.org/zap"
)

const (
	defaultTailLines = 200
	// waitDelay bounds how long Wait keeps reading output after the process
	// exited or was killed, when children still hold the pipes open.
	waitDelay = 5 * time.Second
)

type Class string

const (
	ClassSuccess     Class = "success"
	ClassSoftFailure Class = "soft_failure"
	ClassHardFailure Class = "hard_failure"
)

// SpawnError is returned when the tool could not be started at all.
type SpawnError struct {
	error
}

func (e *SpawnError) Unwrap() error { return e.error }

type Request struct {
	JobID      string
	Tool       tools.Tool
	ToolsRoot  string
	InputDir   string
	OutputDir  string
	ConfigPath string
}

type Result struct {
	ExitCode int
	Class    Class
	// Killed is set when the process was terminated because ctx was done.
	Killed   bool
	Stdout   string
	Stderr   string
	Duration time.Duration
}

type Runner struct {
	interpreter string
	tailLines   int
}

func New(interpreter string) *Runner {
	return &Runner{interpreter: interpreter, tailLines: defaultTailLines}
}

// Command returns the program and arguments used for req. Python entry points
// run through the configured interpreter, anything else is executed directly.
func (r *Runner) Command(req Request) (string, []string) {
	executable := filepath.Join(req.ToolsRoot, req.Tool.Executable)
	args := []string{"--input", req.InputDir, "--output", req.OutputDir}
	if req.ConfigPath != "" {
		args = append(args, "--config", req.ConfigPath)
	}
	if strings.EqualFold(filepath.Ext(executable), ".py") {
		return r.interpreter, append([]string{executable}, args...)
	}
	return executable, args
}

// Run starts the tool and waits for it to exit. The tool and every process it
// started are killed when ctx is done. Only a failure to start is returned as an error; a non zero
// exit is reported through Result.Class.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	logger := zap.S().Named("runner").With("job_id", req.JobID, "tool", req.Tool.Key)

	executable := filepath.Join(req.ToolsRoot, req.Tool.Executable)
	if _, err := os.Stat(executable); err != nil {
		return nil, &SpawnError{fmt.Errorf("tool executable %s: %w", executable, err)}
	}

	name, args := r.Command(req)
	stdout := newLineWriter(logger, "stdout", r.tailLines)
	stderr := newLineWriter(logger, "stderr", r.tailLines)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = req.ToolsRoot
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{fmt.Errorf("starting %s: %w", name, err)}
	}
	logger.Infow("tool started", "pid", cmd.Process.Pid, "command", name, "args", args)

	waitErr := cmd.Wait()
	stdout.Flush()
	stderr.Flush()

	result := &Result{
		ExitCode: exitCode(cmd, waitErr),
		Killed:   ctx.Err() != nil,
		Stdout:   stdout.Tail(),
		Stderr:   stderr.Tail(),
		Duration: time.Since(start),
	}

	// Children of the tool may keep the output pipes open after it exited.
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		logger.Warnw("tool output still open after exit, stopping leftover processes", "pid", cmd.Process.Pid)
		killProcessGroup(cmd)
	}

	if cmd.ProcessState != nil && cmd.ProcessState.Success() {
		result.Class = ClassSuccess
		logger.Infow("tool finished", "duration", result.Duration)
		return result, nil
	}

	result.Class = ClassSoftFailure
	logger.Warnw("tool exited with failure", "exit_code", result.ExitCode, "killed", result.Killed, "duration", result.Duration, "error", waitErr)
	return result, nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
