package v1alpha1

import (
	"net/http"

	"github.com/cropdesk/cropdesk/internal/handlers/v1alpha1/mappers"
	"github.com/go-chi/render"
)

// (GET /api/v1/tools)
func (h *ServiceHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, mappers.ToolListToApi(h.toolSrv.List()))
}
