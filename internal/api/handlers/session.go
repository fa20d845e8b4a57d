// session.go — обработчики сессии: текущая идентичность и выход.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/dronophaeton/blooddon/admin-module/internal/api/errors"
	"github.com/dronophaeton/blooddon/admin-module/internal/api/middleware"
)

// sessionResponse — DTO текущей сессии.
type sessionResponse struct {
	SubjectID string               `json:"subjectId"`
	Username  string               `json:"username"`
	Email     openapi_types.Email  `json:"email"`
	Role      string               `json:"role"`
	IssuedAt  *time.Time           `json:"issuedAt,omitempty"`
	ExpiresAt *time.Time           `json:"expiresAt,omitempty"`
}

// SessionMe — GET /api/v1/session/me.
// Возвращает разрешённую идентичность или 401 для анонимного запроса.
func (h *APIHandler) SessionMe(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())
	if id == nil {
		apierrors.Unauthenticated(w, "Сессия не установлена или токен невалиден")
		return
	}

	resp := sessionResponse{
		SubjectID: id.SubjectID,
		Username:  id.Username,
		Email:     openapi_types.Email(id.Email),
		Role:      string(id.Role),
	}
	if !id.IssuedAt.IsZero() {
		resp.IssuedAt = &id.IssuedAt
	}
	if !id.ExpiresAt.IsZero() {
		resp.ExpiresAt = &id.ExpiresAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// SessionLogout — POST /api/v1/session/logout.
// Проксирует выход в Blood Service и гасит cookie сессии.
// Cookie гасятся даже при отказе backend: локальная сессия
// в любом случае должна закончиться.
func (h *APIHandler) SessionLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.cookieName); err == nil && c.Value != "" {
		if err := h.blood.Logout(r.Context(), h.cookieName, c.Value); err != nil {
			h.logger.Warn("Blood Service не подтвердил выход",
				slog.String("error", err.Error()),
			)
		}
	}

	expireCookie(w, h.cookieName)
	expireCookie(w, "IsAuthenticated")

	w.WriteHeader(http.StatusNoContent)
}

// expireCookie гасит cookie у клиента.
func expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}
