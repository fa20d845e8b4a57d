// users.go — обработчики каталога пользователей и повышения ролей.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/dronophaeton/blooddon/admin-module/internal/api/errors"
	"github.com/dronophaeton/blooddon/admin-module/internal/api/middleware"
	"github.com/dronophaeton/blooddon/admin-module/internal/domain/rbac"
)

// userResponse — DTO пользователя платформы.
type userResponse struct {
	ID        string              `json:"id"`
	Email     openapi_types.Email `json:"email"`
	Username  string              `json:"username"`
	CreatedAt string              `json:"createdAt,omitempty"`
	Role      string              `json:"role"`
}

// userListResponse — DTO каталога пользователей.
type userListResponse struct {
	Data  []userResponse `json:"data"`
	Count int            `json:"count"`
}

// elevationResponse — DTO успешного повышения роли.
type elevationResponse struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// ListUsers — GET /api/v1/users.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor := middleware.IdentityFromContext(r.Context())

	users, err := h.users.ListUsers(r.Context(), actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := userListResponse{Data: make([]userResponse, 0, len(users)), Count: len(users)}
	for _, u := range users {
		resp.Data = append(resp.Data, userResponse{
			ID:        u.ID,
			Email:     openapi_types.Email(u.Email),
			Username:  u.Username,
			CreatedAt: u.CreatedAt,
			Role:      u.Role,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// ElevateUser — POST /api/v1/users/{id}/elevate.
// Идемпотентное повышение User → Admin.
func (h *APIHandler) ElevateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		apierrors.ValidationError(w, "Пустой идентификатор пользователя")
		return
	}

	actor := middleware.IdentityFromContext(r.Context())
	if err := h.users.ElevateToAdmin(r.Context(), userID, actor); err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, elevationResponse{
		UserID: userID,
		Role:   string(rbac.RoleAdmin),
	})
}
