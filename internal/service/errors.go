// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"

	"github.com/dronophaeton/blooddon/admin-module/internal/domain/rbac"
)

var (
	// ErrUnauthenticated — субъект не аутентифицирован.
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrInsufficientRole — роль субъекта недостаточна для действия.
	ErrInsufficientRole = errors.New("недостаточно прав: требуется роль Admin")
	// ErrFetchFailed — не удалось получить данные от Blood Service.
	ErrFetchFailed = errors.New("не удалось получить данные от blood service")
	// ErrInvalidTransition — переход статуса заявки не разрешён.
	ErrInvalidTransition = errors.New("переход статуса заявки не разрешён")
	// ErrTransitionInFlight — по этой заявке уже выполняется переход.
	ErrTransitionInFlight = errors.New("по заявке уже выполняется операция")
	// ErrTransitionFailed — Blood Service отклонил переход.
	ErrTransitionFailed = errors.New("не удалось изменить статус заявки")
	// ErrElevationFailed — Blood Service отклонил смену роли.
	ErrElevationFailed = errors.New("не удалось повысить роль пользователя")
	// ErrDecodeFailed — ответ Blood Service не разбирается.
	ErrDecodeFailed = errors.New("ответ blood service не разбирается")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)

// DecisionError преобразует отказ авторизации в ошибку сервисного слоя.
// Для разрешённого решения возвращает nil.
func DecisionError(d rbac.Decision) error {
	if d.Allowed {
		return nil
	}
	if d.Reason == rbac.DenyUnauthenticated {
		return ErrUnauthenticated
	}
	return ErrInsufficientRole
}
