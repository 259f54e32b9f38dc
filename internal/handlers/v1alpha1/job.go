package v1alpha1

import (
	"errors"
	"io"
	"net/http"
	"strings"

	api "github.com/cropdesk/cropdesk/api/v1alpha1"
	"github.com/cropdesk/cropdesk/internal/handlers/v1alpha1/mappers"
	"github.com/cropdesk/cropdesk/internal/service"
	"github.com/cropdesk/cropdesk/pkg/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// form fields are read up to one byte past this size; oversized settings are
// then ignored by the resolver and an oversized user id fails validation
const maxFieldSize = 64 << 10

// (POST /api/v1/tools/{tool}/jobs)
func (h *ServiceHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	toolKey := chi.URLParam(r, "tool")
	logger := log.NewDebugLogger("job_handler").WithContext(r.Context()).Operation("create_job").WithString("tool", toolKey).Build()

	if _, err := h.toolSrv.Get(toolKey); err != nil {
		logger.Warn(err).Log()
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		logger.Warn(err).Log()
		renderError(w, r, http.StatusBadRequest, "expected a multipart/form-data body")
		return
	}

	form := api.UploadForm{Tool: toolKey}
	files := []service.UploadedFile{}
	defer func() { h.jobSrv.Discard(files) }()

	maxFiles := h.jobSrv.Limits().MaxFiles
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn(err).Log()
			renderError(w, r, http.StatusBadRequest, "failed to read multipart form")
			return
		}

		switch part.FormName() {
		case api.UploadField:
			// one file past the limit is enough for the job service to reject the request
			if len(files) > maxFiles {
				break
			}
			f, err := h.jobSrv.StageUpload(part, part.FileName(), part.Header.Get("Content-Type"))
			if err != nil {
				_ = part.Close()
				logger.Error(err).Log()
				renderError(w, r, http.StatusInternalServerError, "failed to receive upload")
				return
			}
			files = append(files, *f)
		case api.UserIdField:
			form.UserId, err = readField(part)
		case api.SettingsField:
			form.Settings, err = readField(part)
		}
		_ = part.Close()

		if err != nil {
			logger.Warn(err).Log()
			renderError(w, r, http.StatusBadRequest, "failed to read multipart form")
			return
		}
	}

	if err := h.uploadValidator.Struct(form); err != nil {
		logger.Warn(err).Log()
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.jobSrv.Submit(r.Context(), service.JobRequest{
		Tool:     form.Tool,
		UserID:   form.UserId,
		Settings: form.Settings,
		Files:    files,
	})
	if err != nil {
		status, message := jobErrorStatus(err)
		logger.Error(err).WithInt("status", status).Log()
		renderError(w, r, status, message)
		return
	}

	logger.Success().WithString("job_id", result.JobID).WithInt("outputs", len(result.Outputs)).Log()
	render.JSON(w, r, mappers.JobResultToApi(result))
}

// readField returns nil for an empty field.
func readField(part io.Reader) (*string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldSize+1))
	if err != nil {
		return nil, err
	}
	val := string(data)
	if strings.TrimSpace(val) == "" {
		return nil, nil
	}
	return &val, nil
}

func jobErrorStatus(err error) (int, string) {
	switch err.(type) {
	case *service.ErrValidation, *service.ErrUnknownTool:
		return http.StatusBadRequest, err.Error()
	case *service.ErrTimeout:
		return http.StatusGatewayTimeout, "transformation timed out"
	case *service.ErrSpawn:
		return http.StatusInternalServerError, "failed to start tool"
	case *service.ErrWorkspace:
		return http.StatusInternalServerError, "failed to prepare job workspace"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
