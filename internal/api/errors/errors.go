// Пакет errors — конструкторы стандартных ошибок API Admin Module.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeInsufficientRole   = "INSUFFICIENT_ROLE"
	CodeFetchFailed        = "FETCH_FAILED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeTransitionInFlight = "TRANSITION_IN_FLIGHT"
	CodeTransitionFailed   = "TRANSITION_FAILED"
	CodeElevationFailed    = "ELEVATION_FAILED"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthenticated — 401 требуется аутентификация.
func Unauthenticated(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthenticated, message)
}

// InsufficientRole — 403 роль субъекта недостаточна.
func InsufficientRole(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeInsufficientRole, message)
}

// FetchFailed — 502 не удалось получить данные от Blood Service.
func FetchFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeFetchFailed, message)
}

// InvalidTransition — 409 переход статуса заявки не разрешён.
func InvalidTransition(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeInvalidTransition, message)
}

// TransitionInFlight — 409 по заявке уже выполняется операция.
func TransitionInFlight(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeTransitionInFlight, message)
}

// TransitionFailed — 502 Blood Service отклонил переход.
func TransitionFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeTransitionFailed, message)
}

// ElevationFailed — 502 Blood Service отклонил смену роли.
func ElevationFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeElevationFailed, message)
}

// BackendUnavailable — 502 Blood Service недоступен.
func BackendUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeBackendUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
