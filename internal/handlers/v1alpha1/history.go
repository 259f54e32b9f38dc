package v1alpha1

import (
	"net/http"

	api "github.com/cropdesk/cropdesk/api/v1alpha1"
	"github.com/cropdesk/cropdesk/internal/handlers/v1alpha1/mappers"
	"github.com/cropdesk/cropdesk/pkg/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// (GET /api/v1/history/{userId})
func (h *ServiceHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	logger := log.NewDebugLogger("history_handler").WithContext(r.Context()).Operation("get_history").WithString("user_id", userID).Build()

	records, err := h.historySrv.Recent(r.Context(), userID)
	if err != nil {
		logger.Error(err).Log()
		renderError(w, r, http.StatusInternalServerError, "failed to read history")
		return
	}

	logger.Success().WithInt("count", len(records)).Log()
	render.JSON(w, r, api.HistoryResponse{Success: true, History: mappers.HistoryListToApi(records)})
}
