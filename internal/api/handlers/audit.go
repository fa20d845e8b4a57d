// audit.go — обработчик журнала аудита модерации.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/dronophaeton/blooddon/admin-module/internal/api/errors"
)

// auditEntryResponse — DTO записи журнала аудита.
type auditEntryResponse struct {
	ID            string    `json:"id"`
	ActorID       string    `json:"actorId"`
	ActorUsername string    `json:"actorUsername,omitempty"`
	Action        string    `json:"action"`
	SubjectID     string    `json:"subjectId"`
	OwnerUserID   string    `json:"ownerUserId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// auditListResponse — DTO страницы журнала.
type auditListResponse struct {
	Data   []auditEntryResponse `json:"data"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// ListAudit — GET /api/v1/audit?action=&limit=&offset=.
func (h *APIHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		apierrors.NotFound(w, "Журнал аудита не настроен")
		return
	}

	action := r.URL.Query().Get("action")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	entries, total, err := h.audit.List(r.Context(), action, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := auditListResponse{
		Data:   make([]auditEntryResponse, 0, len(entries)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, e := range entries {
		resp.Data = append(resp.Data, auditEntryResponse{
			ID:            e.ID,
			ActorID:       e.ActorID,
			ActorUsername: e.ActorUsername,
			Action:        e.Action,
			SubjectID:     e.SubjectID,
			OwnerUserID:   e.OwnerUserID,
			CreatedAt:     e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
