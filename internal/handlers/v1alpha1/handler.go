package v1alpha1

import (
	"net/http"

	api "github.com/cropdesk/cropdesk/api/v1alpha1"
	"github.com/cropdesk/cropdesk/internal/handlers/validator"
	"github.com/cropdesk/cropdesk/internal/service"
	"github.com/cropdesk/cropdesk/pkg/requestid"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type ServiceHandler struct {
	jobSrv      *service.JobService
	artifactSrv *service.ArtifactService
	historySrv  *service.HistoryService
	toolSrv     *service.ToolService

	uploadValidator   *validator.Validator
	artifactValidator *validator.Validator
}

func NewServiceHandler(
	jobService *service.JobService,
	artifactService *service.ArtifactService,
	historyService *service.HistoryService,
	toolService *service.ToolService,
) *ServiceHandler {
	uploadValidator := validator.NewValidator()
	uploadValidator.Register(validator.NewUploadValidationRules(toolService.Registry())...)

	artifactValidator := validator.NewValidator()
	artifactValidator.Register(validator.NewArtifactValidationRules(toolService.Registry())...)

	return &ServiceHandler{
		jobSrv:            jobService,
		artifactSrv:       artifactService,
		historySrv:        historyService,
		toolSrv:           toolService,
		uploadValidator:   uploadValidator,
		artifactValidator: artifactValidator,
	}
}

// HandlerFromMux mounts the API routes on r.
func HandlerFromMux(h *ServiceHandler, r chi.Router) http.Handler {
	r.Get("/health", h.Health)

	r.Route(api.APIPrefix, func(r chi.Router) {
		r.Get("/tools", h.ListTools)
		r.Post("/tools/{tool}/jobs", h.CreateJob)
		r.Get("/download/{tool}/{jobId}/{filename}", h.DownloadArtifact)
		r.Get("/history/{userId}", h.GetHistory)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/artifacts", h.ListArtifacts)
			r.Delete("/artifacts/{tool}/{jobId}/{filename}", h.DeleteArtifact)
		})
	})

	return r
}

// (GET /health)
func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, api.Status{Status: "ok"})
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, api.Error{Error: message, RequestId: requestid.FromContextPtr(r.Context())})
}
