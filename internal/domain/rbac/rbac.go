// Пакет rbac — авторизация административных действий.
// Роли образуют закрытое множество: неизвестная строка из токена
// превращается в RoleUnknown и не проходит ни одну проверку.
// Решение принимается до любого сетевого вызова.
package rbac

// Role — роль пользователя платформы.
type Role string

// Роли в порядке возрастания привилегий.
const (
	RoleUnknown Role = ""
	RoleUser    Role = "User"
	RoleAdmin   Role = "Admin"
)

// Action — административное действие, требующее авторизации.
type Action string

// Действия, доступные только администраторам.
const (
	ActionViewModerationDashboard Action = "view_moderation_dashboard"
	ActionTransitionRequest       Action = "transition_request"
	ActionElevateRole             Action = "elevate_role"
)

// DenyReason — причина отказа в авторизации.
type DenyReason string

// Причины отказа.
const (
	// DenyUnauthenticated — субъект не аутентифицирован.
	DenyUnauthenticated DenyReason = "unauthenticated"
	// DenyInsufficientRole — роль субъекта недостаточна для действия.
	DenyInsufficientRole DenyReason = "insufficient_role"
)

// Decision — результат авторизации.
type Decision struct {
	// Allowed — действие разрешено
	Allowed bool
	// Reason — причина отказа (пустая, если Allowed)
	Reason DenyReason
}

// Subject — аутентифицированный субъект для проверки прав.
// nil означает отсутствие аутентификации.
type Subject struct {
	// ID — идентификатор субъекта (claim _id)
	ID string
	// Role — роль субъекта
	Role Role
}

// ParseRole преобразует строку в Role.
// Любая строка вне закрытого множества даёт RoleUnknown —
// опечатка в claim не должна открывать доступ.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s)
	}
	return RoleUnknown
}

// Authorize проверяет, разрешено ли субъекту действие.
// subj == nil трактуется как неаутентифицированный запрос.
// Все три действия требуют роли Admin.
func Authorize(subj *Subject, action Action) Decision {
	if subj == nil {
		return Decision{Reason: DenyUnauthenticated}
	}
	switch action {
	case ActionViewModerationDashboard, ActionTransitionRequest, ActionElevateRole:
		if subj.Role == RoleAdmin {
			return Decision{Allowed: true}
		}
		return Decision{Reason: DenyInsufficientRole}
	}
	// Неизвестное действие запрещено всем.
	return Decision{Reason: DenyInsufficientRole}
}
