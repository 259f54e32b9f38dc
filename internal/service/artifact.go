package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	api "github.com/cropdesk/cropdesk/api/v1alpha1"
	"github.com/cropdesk/cropdesk/internal/tools"
	"github.com/cropdesk/cropdesk/internal/workspace"
	"github.com/cropdesk/cropdesk/pkg/log"
	"github.com/xuri/excelize/v2"
)

// StoredArtifact is a file found in a job output directory.
type StoredArtifact struct {
	Tool       string
	JobID      string
	Name       string
	Path       string
	Size       int64
	ModifiedAt time.Time
	URL        string
	// Sheets lists the worksheet names of spreadsheet artifacts.
	Sheets []string
}

type ArtifactService struct {
	registry   *tools.Registry
	workspaces *workspace.Manager
	logger     *log.StructuredLogger
}

func NewArtifactService(registry *tools.Registry, workspaces *workspace.Manager) *ArtifactService {
	return &ArtifactService{
		registry:   registry,
		workspaces: workspaces,
		logger:     log.NewDebugLogger("artifact_service"),
	}
}

// Locate resolves an artifact of a job to its file on disk.
func (a *ArtifactService) Locate(ctx context.Context, toolKey, jobID, name string) (*StoredArtifact, error) {
	tool, found := a.registry.Lookup(toolKey)
	if !found {
		return nil, NewErrUnknownTool(toolKey)
	}
	if !workspace.ValidJobID(jobID) || !workspace.ValidPathElement(name) {
		return nil, NewErrArtifactNotFound(tool.Key, jobID, name)
	}

	ws := a.workspaces.Locate(tool, jobID)
	path := filepath.Join(ws.OutputDir, name)
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return nil, NewErrArtifactNotFound(tool.Key, jobID, name)
	}

	return &StoredArtifact{
		Tool:       tool.Key,
		JobID:      jobID,
		Name:       name,
		Path:       path,
		Size:       fi.Size(),
		ModifiedAt: fi.ModTime(),
		URL:        api.DownloadUrl(tool.Key, jobID, name),
	}, nil
}

// List walks the output of every registered tool. The per job configuration
// files are not artifacts and are skipped.
func (a *ArtifactService) List(ctx context.Context) ([]StoredArtifact, error) {
	tracer := a.logger.WithContext(ctx).Operation("list_artifacts").Build()

	artifacts := []StoredArtifact{}
	for _, tool := range a.registry.List() {
		root := a.workspaces.OutputRoot(tool)
		jobs, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			tracer.Error(err).Log()
			return nil, err
		}

		for _, job := range jobs {
			if !job.IsDir() {
				continue
			}
			files, err := os.ReadDir(filepath.Join(root, job.Name()))
			if err != nil {
				tracer.Warn(err).WithString("job_id", job.Name()).Log()
				continue
			}
			for _, f := range files {
				if !f.Type().IsRegular() || f.Name() == workspace.JobConfigFile {
					continue
				}
				info, err := f.Info()
				if err != nil {
					continue
				}
				artifact := StoredArtifact{
					Tool:       tool.Key,
					JobID:      job.Name(),
					Name:       f.Name(),
					Path:       filepath.Join(root, job.Name(), f.Name()),
					Size:       info.Size(),
					ModifiedAt: info.ModTime(),
					URL:        api.DownloadUrl(tool.Key, job.Name(), f.Name()),
				}
				if strings.EqualFold(filepath.Ext(f.Name()), ".xlsx") {
					artifact.Sheets = sheetNames(artifact.Path)
				}
				artifacts = append(artifacts, artifact)
			}
		}
	}

	sort.Slice(artifacts, func(i, j int) bool {
		if artifacts[i].Tool != artifacts[j].Tool {
			return artifacts[i].Tool < artifacts[j].Tool
		}
		if artifacts[i].JobID != artifacts[j].JobID {
			return artifacts[i].JobID > artifacts[j].JobID
		}
		return artifacts[i].Name < artifacts[j].Name
	})

	tracer.Success().WithInt("count", len(artifacts)).Log()
	return artifacts, nil
}

// Delete removes one artifact, then the job output dir once it is empty.
func (a *ArtifactService) Delete(ctx context.Context, toolKey, jobID, name string) error {
	tracer := a.logger.WithContext(ctx).Operation("delete_artifact").
		WithString("tool", toolKey).
		WithString("job_id", jobID).
		WithString("name", name).
		Build()

	artifact, err := a.Locate(ctx, toolKey, jobID, name)
	if err != nil {
		return err
	}

	if err := os.Remove(artifact.Path); err != nil {
		if os.IsNotExist(err) {
			return NewErrArtifactNotFound(artifact.Tool, jobID, name)
		}
		tracer.Error(err).Log()
		return err
	}

	dir := filepath.Dir(artifact.Path)
	if err := os.Remove(dir); err != nil && !isNotEmpty(err) && !os.IsNotExist(err) {
		tracer.Warn(err).WithString("dir", dir).Log()
	}

	tracer.Success().Log()
	return nil
}

func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}

// sheetNames returns nil when the file cannot be read as a workbook.
func sheetNames(path string) []string {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	return f.GetSheetList()
}
