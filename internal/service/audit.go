// audit.go — чтение журнала аудита модерации.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dronophaeton/blooddon/admin-module/internal/domain/model"
	"github.com/dronophaeton/blooddon/admin-module/internal/repository"
)

// Границы пагинации журнала аудита.
const (
	auditDefaultLimit = 50
	auditMaxLimit     = 500
)

// AuditService — выборка записей журнала аудита.
type AuditService struct {
	repo   repository.AuditRepository
	logger *slog.Logger
}

// NewAuditService создаёт сервис журнала аудита.
func NewAuditService(repo repository.AuditRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger.With(slog.String("component", "audit_service")),
	}
}

// List возвращает страницу журнала и общее число записей.
// action == "" — без фильтра; неизвестное действие — ошибка валидации.
func (s *AuditService) List(ctx context.Context, action string, limit, offset int) ([]*model.AuditEntry, int, error) {
	switch action {
	case "", model.AuditActionAcceptRequest, model.AuditActionRejectRequest, model.AuditActionElevateRole:
	default:
		return nil, 0, fmt.Errorf("%w: неизвестное действие %q", ErrValidation, action)
	}

	if limit <= 0 {
		limit = auditDefaultLimit
	}
	if limit > auditMaxLimit {
		limit = auditMaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.repo.List(ctx, action, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("выборка журнала аудита: %w", err)
	}
	total, err := s.repo.Count(ctx, action)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт журнала аудита: %w", err)
	}
	return entries, total, nil
}
