package v1alpha1

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"os"

	api "github.com/cropdesk/cropdesk/api/v1alpha1"
	"github.com/cropdesk/cropdesk/internal/handlers/v1alpha1/mappers"
	"github.com/cropdesk/cropdesk/internal/service"
	"github.com/cropdesk/cropdesk/pkg/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

const fileNotFound = "File not found"

// (GET /api/v1/download/{tool}/{jobId}/{filename})
func (h *ServiceHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	path := artifactPath(r)
	logger := log.NewDebugLogger("artifact_handler").WithContext(r.Context()).Operation("download_artifact").
		WithString("tool", path.Tool).
		WithString("job_id", path.JobId).
		WithString("filename", path.Filename).
		Build()

	if _, err := h.toolSrv.Get(path.Tool); err != nil {
		logger.Warn(err).Log()
		renderError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err := h.artifactValidator.Struct(path); err != nil {
		logger.Warn(err).Log()
		renderError(w, r, http.StatusNotFound, fileNotFound)
		return
	}

	artifact, err := h.artifactSrv.Locate(r.Context(), path.Tool, path.JobId, path.Filename)
	if err != nil {
		status, message := artifactErrorStatus(err)
		logger.Warn(err).Log()
		renderError(w, r, status, message)
		return
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		logger.Error(err).Log()
		if errors.Is(err, os.ErrNotExist) {
			renderError(w, r, http.StatusNotFound, fileNotFound)
			return
		}
		renderError(w, r, http.StatusInternalServerError, "failed to read artifact")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Name}))
	logger.Success().WithInt("size", int(artifact.Size)).Log()
	http.ServeContent(w, r, artifact.Name, artifact.ModifiedAt, f)
}

// (GET /api/v1/admin/artifacts)
func (h *ServiceHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	list, err := h.artifactSrv.List(r.Context())
	if err != nil {
		renderError(w, r, http.StatusInternalServerError, "failed to list artifacts")
		return
	}
	render.JSON(w, r, mappers.StoredArtifactListToApi(list))
}

// (DELETE /api/v1/admin/artifacts/{tool}/{jobId}/{filename})
func (h *ServiceHandler) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	path := artifactPath(r)
	logger := log.NewDebugLogger("artifact_handler").WithContext(r.Context()).Operation("delete_artifact").
		WithString("tool", path.Tool).
		WithString("job_id", path.JobId).
		WithString("filename", path.Filename).
		Build()

	if _, err := h.toolSrv.Get(path.Tool); err != nil {
		logger.Warn(err).Log()
		renderError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err := h.artifactValidator.Struct(path); err != nil {
		logger.Warn(err).Log()
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.artifactSrv.Delete(r.Context(), path.Tool, path.JobId, path.Filename); err != nil {
		status, message := artifactErrorStatus(err)
		logger.Error(err).Log()
		renderError(w, r, status, message)
		return
	}

	logger.Success().Log()
	render.JSON(w, r, api.Status{Status: "deleted"})
}

// artifactPath reads the path parameters. chi matches on the raw path when the
// request carries escaped separators, so the file name is unescaped here.
func artifactPath(r *http.Request) api.ArtifactPath {
	filename := chi.URLParam(r, "filename")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(filename); err == nil {
			filename = unescaped
		}
	}
	return api.ArtifactPath{
		Tool:     chi.URLParam(r, "tool"),
		JobId:    chi.URLParam(r, "jobId"),
		Filename: filename,
	}
}

func artifactErrorStatus(err error) (int, string) {
	switch err.(type) {
	case *service.ErrUnknownTool:
		return http.StatusNotFound, err.Error()
	case *service.ErrArtifactNotFound:
		return http.StatusNotFound, fileNotFound
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
