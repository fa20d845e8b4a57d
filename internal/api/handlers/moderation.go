// moderation.go — обработчики очередей модерации и переходов заявок.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/dronophaeton/blooddon/admin-module/internal/api/errors"
	"github.com/dronophaeton/blooddon/admin-module/internal/api/middleware"
	"github.com/dronophaeton/blooddon/admin-module/internal/domain/model"
)

// requestListResponse — DTO очереди заявок.
type requestListResponse struct {
	Data  []model.Request `json:"data"`
	Count int             `json:"count"`
}

// transitionResponse — DTO успешного перехода.
type transitionResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

// ListModerationRequests — GET /api/v1/moderation/requests?status=.
// Загружает свежий набор заявок из Blood Service и возвращает
// проекцию по статусу (по умолчанию Pending).
func (h *APIHandler) ListModerationRequests(w http.ResponseWriter, r *http.Request) {
	status := model.StatusPending
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := model.ParseRequestStatus(raw)
		if !ok {
			apierrors.ValidationError(w, "Неизвестный статус: "+raw)
			return
		}
		status = parsed
	}

	if err := h.moderation.LoadRequests(r.Context()); err != nil {
		respondServiceError(w, err)
		return
	}

	queue := h.moderation.QueueFor(status)
	writeJSON(w, http.StatusOK, requestListResponse{Data: queue, Count: len(queue)})
}

// AcceptRequest — POST /api/v1/moderation/requests/{id}/accept.
func (h *APIHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusAccepted)
}

// RejectRequest — POST /api/v1/moderation/requests/{id}/reject.
func (h *APIHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusRejected)
}

// transition — общий путь перехода заявки.
func (h *APIHandler) transition(w http.ResponseWriter, r *http.Request, target model.RequestStatus) {
	requestID := chi.URLParam(r, "id")
	if requestID == "" {
		apierrors.ValidationError(w, "Пустой идентификатор заявки")
		return
	}

	actor := middleware.IdentityFromContext(r.Context())
	if err := h.moderation.Transition(r.Context(), requestID, target, actor); err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transitionResponse{
		RequestID: requestID,
		Status:    string(target),
	})
}
