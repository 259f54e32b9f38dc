package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	api "github.com/cropdesk/cropdesk/api/v1alpha1"
	"github.com/cropdesk/cropdesk/internal/mirror"
	"github.com/cropdesk/cropdesk/internal/pdfinfo"
	"github.com/cropdesk/cropdesk/internal/reconciler"
	"github.com/cropdesk/cropdesk/internal/runner"
	"github.com/cropdesk/cropdesk/internal/settings"
	"github.com/cropdesk/cropdesk/internal/store/model"
	"github.com/cropdesk/cropdesk/internal/tools"
	"github.com/cropdesk/cropdesk/internal/workspace"
	"github.com/cropdesk/cropdesk/pkg/log"
	"github.com/cropdesk/cropdesk/pkg/metrics"
	"golang.org/x/sync/semaphore"
)

const pdfContentType = "application/pdf"

type JobState string

const (
	JobStateValidating         JobState = "validating"
	JobStateWorkspaceAllocated JobState = "workspace_allocated"
	JobStateConfigResolved     JobState = "config_resolved"
	JobStateInputStaged        JobState = "input_staged"
	JobStateRunning            JobState = "running"
	JobStateReconciling        JobState = "reconciling"
	JobStateCompleted          JobState = "completed"
	JobStateFailed             JobState = "failed"
	JobStateTimedOut           JobState = "timed_out"
)

// Artifact is a recognized output of a completed job.
type Artifact struct {
	Name string
	URL  string
}

// UploadedFile is an upload waiting in the staging area.
type UploadedFile struct {
	OriginalName string
	ContentType  string
	// Size is the number of bytes received, capped at the limit plus one.
	Size       int64
	StagedPath string
}

type JobRequest struct {
	Tool     string
	UserID   *string
	Settings *string
	Files    []UploadedFile
}

type JobResult struct {
	Tool     string
	JobID    string
	State    JobState
	Outputs  []Artifact
	History  model.HistoryList
	ExitCode int
	// Sentinel is set when the only output is the tool error file.
	Sentinel bool
	Pages    int
}

type Limits struct {
	MaxFiles    int
	MaxFileSize int64
}

type JobService struct {
	registry   *tools.Registry
	workspaces *workspace.Manager
	runner     *runner.Runner
	reconciler *reconciler.Reconciler
	history    *HistoryService
	mirror     mirror.Mirror
	limits     Limits
	sem        *semaphore.Weighted
	logger     *log.StructuredLogger
}

func NewJobService(
	registry *tools.Registry,
	workspaces *workspace.Manager,
	r *runner.Runner,
	rec *reconciler.Reconciler,
	history *HistoryService,
	m mirror.Mirror,
	limits Limits,
) *JobService {
	return &JobService{
		registry:   registry,
		workspaces: workspaces,
		runner:     r,
		reconciler: rec,
		history:    history,
		mirror:     m,
		limits:     limits,
		logger:     log.NewDebugLogger("job_service"),
	}
}

// WithMaxConcurrentJobs bounds the number of tool processes running at once.
// Zero or less keeps it unbounded.
func (s *JobService) WithMaxConcurrentJobs(n int64) *JobService {
	if n > 0 {
		s.sem = semaphore.NewWeighted(n)
	} else {
		s.sem = nil
	}
	return s
}

func (s *JobService) Limits() Limits {
	return s.limits
}

// StageUpload copies one uploaded file into the staging area. The caller owns
// the returned file until it is handed to Submit or Discard.
func (s *JobService) StageUpload(r io.Reader, originalName, contentType string) (*UploadedFile, error) {
	path, n, err := s.workspaces.Stage(r, s.limits.MaxFileSize)
	if err != nil {
		return nil, NewErrWorkspace(err)
	}
	return &UploadedFile{
		OriginalName: originalName,
		ContentType:  contentType,
		Size:         n,
		StagedPath:   path,
	}, nil
}

// Discard removes staged files that were not submitted.
func (s *JobService) Discard(files []UploadedFile) {
	for _, f := range files {
		s.workspaces.Discard(f.StagedPath)
	}
}

// Submit runs one job to a terminal state. Staged files are always consumed
// and the job input directory is removed before Submit returns.
func (s *JobService) Submit(ctx context.Context, req JobRequest) (*JobResult, error) {
	start := time.Now()
	defer s.Discard(req.Files)

	tracer := s.logger.WithContext(ctx).Operation("submit_job").
		WithString("tool", req.Tool).
		WithStringPtr("user_id", req.UserID).
		WithInt("files", len(req.Files)).
		Build()

	tracer.Step(string(JobStateValidating)).Log()
	tool, err := s.validate(req)
	if err != nil {
		tracer.Error(err).Log()
		label := tool.Key
		if label == "" {
			label = "unknown"
		}
		metrics.IncreaseJobsTotalMetric(label, "rejected")
		return nil, err
	}

	pages := s.countPages(tool, req.Files)

	ws, err := s.workspaces.Allocate(tool)
	if err != nil {
		tracer.Error(err).Log()
		s.observe(tool, JobStateFailed, start)
		return nil, NewErrWorkspace(err)
	}
	defer s.workspaces.Release(ws)

	job := &jobRun{
		tracer: s.logger.WithContext(ctx).Operation("run_job").
			WithString("tool", tool.Key).
			WithString("job_id", ws.JobID).
			WithStringPtr("user_id", req.UserID).
			Build(),
	}
	job.transition(JobStateWorkspaceAllocated)

	result, err := s.run(ctx, job, tool, ws, req)
	if err != nil {
		job.tracer.Error(err).WithString("state", string(job.state)).Log()
		s.observe(tool, job.state, start)
		return nil, err
	}
	result.Pages = pages

	if req.UserID != nil && *req.UserID != "" {
		s.recordHistory(ctx, job, *req.UserID, ws, result)
	}

	s.mirrorArtifacts(ctx, job, ws, result.Outputs)

	job.tracer.Success().
		WithInt("outputs", len(result.Outputs)).
		WithInt("exit_code", result.ExitCode).
		WithBool("sentinel", result.Sentinel).
		Log()
	s.observe(tool, JobStateCompleted, start)
	return result, nil
}

func (s *JobService) run(ctx context.Context, job *jobRun, tool tools.Tool, ws *workspace.Workspace, req JobRequest) (*JobResult, error) {
	resolved := settings.Resolve(req.Settings, filepath.Join(ws.ToolsRoot, tools.DefaultConfigFile), ws.ConfigPath())
	job.transition(JobStateConfigResolved)
	job.tracer.Step("config").WithString("source", string(resolved.Source)).Log()

	for _, f := range req.Files {
		if _, err := s.workspaces.MoveInto(ws, f.StagedPath, f.OriginalName); err != nil {
			job.state = JobStateFailed
			return nil, NewErrWorkspace(err)
		}
	}
	job.transition(JobStateInputStaged)

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			job.state = JobStateFailed
			return nil, fmt.Errorf("waiting for a free slot: %w", err)
		}
		defer s.sem.Release(1)
	}

	deadline := time.Now().Add(tool.Deadline)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	job.transition(JobStateRunning)
	done := metrics.TrackRunning(tool.Key)
	res, err := s.runner.Run(runCtx, runner.Request{
		JobID:      ws.JobID,
		Tool:       tool,
		ToolsRoot:  ws.ToolsRoot,
		InputDir:   ws.InputDir,
		OutputDir:  ws.OutputDir,
		ConfigPath: resolved.Path,
	})
	done()
	if err != nil {
		metrics.IncreaseToolExitMetric(tool.Key, string(runner.ClassHardFailure))
		job.state = JobStateFailed
		return nil, NewErrSpawn(tool.Key, err)
	}
	metrics.IncreaseToolExitMetric(tool.Key, string(res.Class))
	if res.Class != runner.ClassSuccess {
		job.tracer.Warn(fmt.Errorf("tool exited with code %d", res.ExitCode)).
			WithBool("killed", res.Killed).
			WithString("stderr", res.Stderr).
			Log()
	}

	job.transition(JobStateReconciling)
	out, err := s.reconciler.WaitForOutputs(ctx, ws.OutputDir, tool, deadline)
	if err != nil {
		if errors.Is(err, reconciler.ErrTimeout) {
			job.state = JobStateTimedOut
			return nil, NewErrTimeout(tool.Key, ws.JobID)
		}
		job.state = JobStateFailed
		return nil, err
	}
	job.transition(JobStateCompleted)

	outputs := make([]Artifact, 0, len(out.Names))
	for _, name := range out.Names {
		outputs = append(outputs, Artifact{Name: name, URL: api.DownloadUrl(tool.Key, ws.JobID, name)})
	}

	return &JobResult{
		Tool:     tool.Key,
		JobID:    ws.JobID,
		State:    JobStateCompleted,
		Outputs:  outputs,
		History:  model.HistoryList{},
		ExitCode: res.ExitCode,
		Sentinel: out.Outcome == reconciler.OutcomeSentinel,
	}, nil
}

func (s *JobService) validate(req JobRequest) (tools.Tool, error) {
	if req.Tool == "" {
		return tools.Tool{}, NewErrValidation("tool is required")
	}
	tool, found := s.registry.Lookup(req.Tool)
	if !found {
		return tools.Tool{}, NewErrUnknownTool(req.Tool)
	}

	if len(req.Files) == 0 {
		return tool, NewErrValidation("at least one PDF file is required")
	}
	if len(req.Files) > s.limits.MaxFiles {
		return tool, NewErrValidation("too many files: at most %d are accepted", s.limits.MaxFiles)
	}

	for _, f := range req.Files {
		name := workspace.SanitizeFilename(f.OriginalName)
		mediaType, _, err := mime.ParseMediaType(f.ContentType)
		if err != nil || mediaType != pdfContentType {
			return tool, NewErrValidation("%s: only PDF files are accepted", name)
		}
		if f.Size <= 0 {
			return tool, NewErrValidation("%s is empty", name)
		}
		if f.Size > s.limits.MaxFileSize {
			return tool, NewErrValidation("%s exceeds the maximum size of %d bytes", name, s.limits.MaxFileSize)
		}
		if err := pdfinfo.CheckFile(f.StagedPath); err != nil {
			if errors.Is(err, pdfinfo.ErrNotPDF) {
				return tool, NewErrValidation("%s is not a PDF document", name)
			}
			return tool, NewErrWorkspace(err)
		}
	}
	return tool, nil
}

func (s *JobService) countPages(tool tools.Tool, files []UploadedFile) int {
	total := 0
	for _, f := range files {
		n, err := pdfinfo.PageCount(f.StagedPath)
		if err != nil {
			s.logger.Operation("count_pages").WithString("tool", tool.Key).Build().
				Warn(err).WithString("file", workspace.SanitizeFilename(f.OriginalName)).Log()
			continue
		}
		total += n
	}
	metrics.AddInputPagesMetric(tool.Key, total)
	return total
}

func (s *JobService) recordHistory(ctx context.Context, job *jobRun, userID string, ws *workspace.Workspace, result *JobResult) {
	if _, err := s.history.Record(ctx, userID, ws.Tool, ws.JobID, result.Outputs); err != nil {
		job.tracer.Warn(err).WithString("step", "record_history").Log()
	}
	metrics.UniqueUsersPerWeek.Observe(userID)

	recent, err := s.history.Recent(ctx, userID)
	if err != nil {
		job.tracer.Warn(err).WithString("step", "recent_history").Log()
		return
	}
	result.History = recent
}

func (s *JobService) mirrorArtifacts(ctx context.Context, job *jobRun, ws *workspace.Workspace, outputs []Artifact) {
	if s.mirror == nil || !s.mirror.Enabled() {
		return
	}
	names := make([]string, 0, len(outputs))
	for _, a := range outputs {
		names = append(names, a.Name)
	}
	if err := s.mirror.Upload(ctx, ws.Tool, ws.JobID, ws.OutputDir, names); err != nil {
		job.tracer.Warn(err).WithString("step", "mirror").Log()
	}
}

func (s *JobService) observe(tool tools.Tool, state JobState, start time.Time) {
	metrics.IncreaseJobsTotalMetric(tool.Key, string(state))
	metrics.ObserveJobDuration(tool.Key, string(state), time.Since(start).Seconds())
}

type jobRun struct {
	state  JobState
	tracer *log.OperationTracer
}

func (j *jobRun) transition(state JobState) {
	j.state = state
	j.tracer.Step(string(state)).Log()
}
