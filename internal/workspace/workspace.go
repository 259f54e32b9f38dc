// Package workspace allocates the isolated input/output directory pair of a
// job and owns the transient staging area uploads pass through.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/cropdesk/cropdesk/internal/tools"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	inputFolder  = "input"
	outputFolder = "output"
	// JobConfigFile is the per job effective configuration, kept in the output dir.
	JobConfigFile = "config.json"

	jobIDTimeLayout = "20060102T150405.000000000Z"
	allocateRetries = 3

	// maxNameBytes leaves room for a clash suffix under the 255 byte limit
	// of common filesystems.
	maxNameBytes = 200
	maxExtBytes  = 16
)

var jobIDRegex = regexp.MustCompile(`^\d{8}T\d{6}\.\d{9}Z-\d{6}-[0-9a-f]{8}$`)

type Workspace struct {
	JobID     string
	Tool      string
	InputDir  string
	OutputDir string
	// ToolsRoot is the tool folder, used as working directory of the transformation.
	ToolsRoot string
}

// ConfigPath is where the resolved per job configuration is written.
func (w *Workspace) ConfigPath() string {
	return filepath.Join(w.OutputDir, JobConfigFile)
}

type Manager struct {
	dataDir    string
	stagingDir string
	seq        atomic.Uint64
	now        func() time.Time
}

func NewManager(dataDir, stagingDir string) *Manager {
	return &Manager{
		dataDir:    dataDir,
		stagingDir: stagingDir,
		now:        time.Now,
	}
}

// NewJobID builds an identifier that sorts by creation time and is safe as a
// single path element. The sequence and random suffix keep ids unique when
// two jobs are created within the timer resolution.
func NewJobID(now time.Time, seq uint64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%06d-%s", now.UTC().Format(jobIDTimeLayout), seq%1000000, suffix)
}

func ValidJobID(id string) bool {
	return jobIDRegex.MatchString(id)
}

// Allocate creates the input and output directories of a new job.
func (m *Manager) Allocate(tool tools.Tool) (*Workspace, error) {
	root := tool.Root(m.dataDir)
	for _, dir := range []string{filepath.Join(root, inputFolder), filepath.Join(root, outputFolder)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "creating %s", dir)
		}
	}

	for attempt := 0; attempt < allocateRetries; attempt++ {
		ws := m.Locate(tool, NewJobID(m.now(), m.seq.Add(1)))

		if err := os.Mkdir(ws.InputDir, 0755); err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "creating input dir %s", ws.InputDir)
		}
		if err := os.Mkdir(ws.OutputDir, 0755); err != nil {
			_ = os.RemoveAll(ws.InputDir)
			if os.IsExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "creating output dir %s", ws.OutputDir)
		}
		return ws, nil
	}

	return nil, errors.Errorf("failed to allocate a unique workspace for tool %s", tool.Key)
}

// Locate maps a job id to its workspace without touching the filesystem.
func (m *Manager) Locate(tool tools.Tool, jobID string) *Workspace {
	root := tool.Root(m.dataDir)
	return &Workspace{
		JobID:     jobID,
		Tool:      tool.Key,
		InputDir:  filepath.Join(root, inputFolder, jobID),
		OutputDir: filepath.Join(root, outputFolder, jobID),
		ToolsRoot: root,
	}
}

// OutputRoot is the directory holding all job output dirs of a tool.
func (m *Manager) OutputRoot(tool tools.Tool) string {
	return filepath.Join(tool.Root(m.dataDir), outputFolder)
}

// Release removes the input directory. It never fails the caller: a missing
// directory is success and other errors are only logged.
func (m *Manager) Release(ws *Workspace) {
	if ws == nil {
		return
	}
	if err := os.RemoveAll(ws.InputDir); err != nil && !os.IsNotExist(err) {
		zap.S().Named("workspace").Warnw("failed to remove job input", "job_id", ws.JobID, "tool", ws.Tool, "path", ws.InputDir, "error", err)
		return
	}
	zap.S().Named("workspace").Debugw("job input removed", "job_id", ws.JobID, "tool", ws.Tool)
}

// Stage copies at most limit bytes of r into a new staging file. The returned
// size is the number of bytes read, which is limit+1 when the source is larger
// than limit; the caller decides whether that is acceptable.
func (m *Manager) Stage(r io.Reader, limit int64) (string, int64, error) {
	if err := os.MkdirAll(m.stagingDir, 0755); err != nil {
		return "", 0, errors.Wrapf(err, "creating staging dir %s", m.stagingDir)
	}

	f, err := os.CreateTemp(m.stagingDir, "upload-*")
	if err != nil {
		return "", 0, errors.Wrap(err, "creating staging file")
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, errors.Wrap(err, "writing staging file")
	}
	return f.Name(), n, nil
}

// Discard removes a staged file that was not moved into a job.
func (m *Manager) Discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		zap.S().Named("workspace").Warnw("failed to remove staged upload", "path", path, "error", err)
	}
}

// MoveInto relocates a staged file into the job input dir under the sanitized
// original name and returns the destination. Name clashes get a numeric suffix.
func (m *Manager) MoveInto(ws *Workspace, stagedPath, originalName string) (string, error) {
	name := SanitizeFilename(originalName)
	dest := filepath.Join(ws.InputDir, name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; fileExists(dest); i++ {
		dest = filepath.Join(ws.InputDir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}

	if err := os.Rename(stagedPath, dest); err != nil {
		// staging on another filesystem
		if cerr := copyFile(stagedPath, dest); cerr != nil {
			return "", errors.Wrapf(cerr, "moving %s into job %s", originalName, ws.JobID)
		}
		_ = os.Remove(stagedPath)
	}
	return dest, nil
}

// SanitizeFilename reduces a client supplied name to a single safe path element.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return '_'
		}
		return r
	}, name)
	name = strings.TrimLeft(strings.TrimSpace(name), ".")
	if name == "" || name == "/" {
		return "upload.pdf"
	}
	return truncateName(name, maxNameBytes)
}

// truncateName shortens the base of name to fit max bytes, keeping a short
// extension and never splitting a UTF-8 sequence.
func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > maxExtBytes {
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)
	limit := max - len(ext)
	for limit > 0 && !utf8.RuneStart(base[limit]) {
		limit--
	}
	return base[:limit] + ext
}

// ValidPathElement reports whether s can be joined to a directory without
// leaving it.
func ValidPathElement(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, 0)
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
