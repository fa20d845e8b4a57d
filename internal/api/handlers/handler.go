// handler.go — основной обработчик API Admin Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/dronophaeton/blooddon/admin-module/internal/api/errors"
	"github.com/dronophaeton/blooddon/admin-module/internal/bloodclient"
	"github.com/dronophaeton/blooddon/admin-module/internal/service"
)

// APIHandler — основной обработчик API Admin Module.
type APIHandler struct {
	health     *HealthHandler
	moderation *service.ModerationService
	users      *service.UserService
	audit      *service.AuditService
	blood      *bloodclient.Client
	cookieName string
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// audit может быть nil — endpoint журнала тогда возвращает 404.
func NewAPIHandler(
	health *HealthHandler,
	moderation *service.ModerationService,
	users *service.UserService,
	audit *service.AuditService,
	blood *bloodclient.Client,
	cookieName string,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		moderation: moderation,
		users:      users,
		audit:      audit,
		blood:      blood,
		cookieName: cookieName,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondServiceError маппит ошибки сервисного слоя на HTTP-ответы.
func respondServiceError(w http.ResponseWriter, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		apierrors.Unauthenticated(w, msg)
	case errors.Is(err, service.ErrInsufficientRole):
		apierrors.InsufficientRole(w, msg)
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, msg)
	case errors.Is(err, service.ErrTransitionInFlight):
		apierrors.TransitionInFlight(w, msg)
	case errors.Is(err, service.ErrInvalidTransition):
		apierrors.InvalidTransition(w, msg)
	case errors.Is(err, service.ErrTransitionFailed):
		apierrors.TransitionFailed(w, msg)
	case errors.Is(err, service.ErrElevationFailed):
		apierrors.ElevationFailed(w, msg)
	case errors.Is(err, service.ErrFetchFailed):
		apierrors.FetchFailed(w, msg)
	case errors.Is(err, service.ErrDecodeFailed):
		apierrors.BackendUnavailable(w, msg)
	default:
		apierrors.InternalError(w, msg)
	}
}

// queryInt разбирает целочисленный query-параметр.
// Отсутствие или мусор дают значение по умолчанию.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
