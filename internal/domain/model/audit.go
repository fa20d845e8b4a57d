package model

import "time"

// Действия, фиксируемые в журнале аудита.
const (
	AuditActionAcceptRequest = "accept_request"
	AuditActionRejectRequest = "reject_request"
	AuditActionElevateRole   = "elevate_role"
)

// AuditEntry — запись журнала аудита модерации.
// Хранится в таблице moderation_audit. Записывается только после
// подтверждённого успеха операции на стороне Blood Service.
type AuditEntry struct {
	// ID — UUID записи
	ID string
	// ActorID — идентификатор администратора, выполнившего действие (sub)
	ActorID string
	// ActorUsername — кэшированное имя администратора
	ActorUsername string
	// Action — действие (accept_request, reject_request, elevate_role)
	Action string
	// SubjectID — идентификатор заявки или пользователя, над которым выполнено действие
	SubjectID string
	// OwnerUserID — владелец заявки (для действий над заявками)
	OwnerUserID string
	// CreatedAt — время записи
	CreatedAt time.Time
}
