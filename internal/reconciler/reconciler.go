// Package reconciler waits for a transformation to leave recognized artifacts
// in a job output directory.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cropdesk/cropdesk/internal/tools"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

// ErrTimeout is returned when neither a recognized artifact nor the sentinel
// appeared before the deadline.
var ErrTimeout = errors.New("no recognized output before deadline")

type Outcome string

const (
	OutcomeArtifacts Outcome = "artifacts"
	OutcomeSentinel  Outcome = "sentinel"
)

type Result struct {
	Names   []string
	Outcome Outcome
}

type Reconciler struct {
	interval time.Duration
	stdev    time.Duration
}

func New(interval time.Duration) *Reconciler {
	return &Reconciler{interval: interval, stdev: interval / 10}
}

// WaitForOutputs polls outputDir until at least one file recognized by tool
// appears and returns every recognized file present at that moment. The
// directory is always inspected at least once, even when the deadline has
// already passed. If ctx is cancelled first its error is returned after a
// last inspection.
func (r *Reconciler) WaitForOutputs(ctx context.Context, outputDir string, tool tools.Tool, deadline time.Time) (*Result, error) {
	logger := zap.S().Named("reconciler").With("tool", tool.Key, "dir", outputDir)

	names, err := scan(outputDir, tool)
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		return &Result{Names: names, Outcome: OutcomeArtifacts}, nil
	}

	if remaining := time.Until(deadline); remaining > 0 {
		ticker := jitterbug.New(r.interval, &jitterbug.Norm{Stdev: r.stdev, Mean: 0})
		timer := time.NewTimer(remaining)
		defer ticker.Stop()
		defer timer.Stop()

	poll:
		for {
			select {
			case <-ctx.Done():
				if names, _ := scan(outputDir, tool); len(names) > 0 {
					return &Result{Names: names, Outcome: OutcomeArtifacts}, nil
				}
				return nil, ctx.Err()
			case <-timer.C:
				break poll
			case <-ticker.C:
				names, err := scan(outputDir, tool)
				if err != nil {
					return nil, err
				}
				if len(names) > 0 {
					return &Result{Names: names, Outcome: OutcomeArtifacts}, nil
				}
			}
		}

		names, err := scan(outputDir, tool)
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			return &Result{Names: names, Outcome: OutcomeArtifacts}, nil
		}
	}

	if tool.Sentinel != "" {
		if fi, err := os.Stat(filepath.Join(outputDir, tool.Sentinel)); err == nil && fi.Mode().IsRegular() {
			logger.Warnw("tool reported a handled error", "sentinel", tool.Sentinel)
			return &Result{Names: []string{tool.Sentinel}, Outcome: OutcomeSentinel}, nil
		}
	}

	logger.Warnw("no output before deadline", "deadline", deadline)
	return nil, ErrTimeout
}

// scan lists the recognized regular files of dir sorted by name. A missing
// dir has no artifacts.
func scan(dir string, tool tools.Tool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading output dir %s: %w", dir, err)
	}

	names := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() || !tool.Recognizes(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
