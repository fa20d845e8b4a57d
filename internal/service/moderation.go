// Пакет service — бизнес-логика Admin Module.
// ModerationService — жизненный цикл заявок на кровь: загрузка полного
// набора, проекции-очереди по статусу, переходы Pending → Accepted/Rejected.
// Локальное состояние меняется только после подтверждённого успеха
// Blood Service; по одной заявке в полёте не больше одной операции.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dronophaeton/blooddon/admin-module/internal/bloodclient"
	"github.com/dronophaeton/blooddon/admin-module/internal/domain/model"
	"github.com/dronophaeton/blooddon/admin-module/internal/repository"
	"github.com/dronophaeton/blooddon/admin-module/internal/session"
)

// Prometheus-метрики модерации.
var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "am_moderation_transitions_total",
		Help: "Количество переходов статуса заявок по целевому статусу и исходу.",
	}, []string{"target", "outcome"})
	transitionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "am_moderation_transition_conflicts_total",
		Help: "Количество отклонённых повторных переходов по заявке в полёте.",
	})
)

// ModerationBackend — операции Blood Service, нужные модерации.
// Реализуется bloodclient.Client.
type ModerationBackend interface {
	GetAllRequests(ctx context.Context) ([]model.Request, error)
	AcceptRequest(ctx context.Context, requestID, ownerUserID string, isAccepted bool) error
}

// ModerationService — хранилище жизненного цикла заявок.
type ModerationService struct {
	backend ModerationBackend
	audit   repository.AuditRepository
	logger  *slog.Logger

	// mu защищает requests и inFlight. Не удерживается на время
	// сетевых вызовов: операции по разным заявкам идут параллельно.
	mu       sync.Mutex
	requests map[string]model.Request
	inFlight map[string]struct{}
}

// NewModerationService создаёт сервис модерации заявок.
// audit может быть nil — журнал аудита тогда не ведётся.
func NewModerationService(backend ModerationBackend, audit repository.AuditRepository, logger *slog.Logger) *ModerationService {
	return &ModerationService{
		backend:  backend,
		audit:    audit,
		logger:   logger.With(slog.String("component", "moderation_service")),
		requests: make(map[string]model.Request),
		inFlight: make(map[string]struct{}),
	}
}

// LoadRequests загружает полный набор заявок из Blood Service
// и замещает им локальную коллекцию.
func (s *ModerationService) LoadRequests(ctx context.Context) error {
	requests, err := s.backend.GetAllRequests(ctx)
	if err != nil {
		if errors.Is(err, bloodclient.ErrDecode) {
			return fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
		return fmt.Errorf("%w: %s", ErrFetchFailed, backendMessage(err))
	}

	fresh := make(map[string]model.Request, len(requests))
	for _, r := range requests {
		fresh[r.ID] = r
	}

	s.mu.Lock()
	s.requests = fresh
	s.mu.Unlock()

	s.logger.Info("Заявки загружены", slog.Int("count", len(fresh)))
	return nil
}

// QueueFor возвращает проекцию заявок с указанным статусом.
// Чисто локальная операция, сетевых вызовов нет.
// Порядок стабильный: по дате заявки, затем по идентификатору.
func (s *ModerationService) QueueFor(status model.RequestStatus) []model.Request {
	s.mu.Lock()
	queue := make([]model.Request, 0, len(s.requests))
	for _, r := range s.requests {
		if r.Status == status {
			queue = append(queue, r)
		}
	}
	s.mu.Unlock()

	sort.Slice(queue, func(i, j int) bool {
		if queue[i].RequestDate != queue[j].RequestDate {
			return queue[i].RequestDate < queue[j].RequestDate
		}
		return queue[i].ID < queue[j].ID
	})
	return queue
}

// Transition выполняет переход заявки в target.
// Допустимые переходы: Pending → Accepted|Rejected и Rejected → Accepted
// (повторное принятие отклонённой заявки).
// Двухфазно: сначала подтверждение Blood Service, затем локальная мутация.
// После успеха заявка убирается из коллекции — до следующей загрузки
// она не появится ни в одной очереди.
func (s *ModerationService) Transition(ctx context.Context, requestID string, target model.RequestStatus, actor *session.Identity) error {
	if target != model.StatusAccepted && target != model.StatusRejected {
		return fmt.Errorf("%w: целевой статус %q", ErrInvalidTransition, target)
	}

	s.mu.Lock()
	req, ok := s.requests[requestID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: заявка %s не найдена", ErrInvalidTransition, requestID)
	}
	if !transitionAllowed(req.Status, target) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, req.Status, target)
	}
	if _, busy := s.inFlight[requestID]; busy {
		s.mu.Unlock()
		transitionConflictsTotal.Inc()
		return fmt.Errorf("%w: %s", ErrTransitionInFlight, requestID)
	}
	s.inFlight[requestID] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, requestID)
		s.mu.Unlock()
	}()

	isAccepted := target == model.StatusAccepted
	if err := s.backend.AcceptRequest(ctx, requestID, req.OwnerUserID, isAccepted); err != nil {
		transitionsTotal.WithLabelValues(string(target), "failure").Inc()
		s.logger.Warn("Blood Service отклонил переход заявки",
			slog.String("request_id", requestID),
			slog.String("target", string(target)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %s", ErrTransitionFailed, backendMessage(err))
	}

	s.mu.Lock()
	delete(s.requests, requestID)
	s.mu.Unlock()

	transitionsTotal.WithLabelValues(string(target), "success").Inc()
	s.logger.Info("Статус заявки изменён",
		slog.String("request_id", requestID),
		slog.String("from", string(req.Status)),
		slog.String("to", string(target)),
	)

	s.writeAudit(ctx, actor, target, requestID, req.OwnerUserID)
	return nil
}

// transitionAllowed — предусловия перехода.
func transitionAllowed(current, target model.RequestStatus) bool {
	switch {
	case current == model.StatusPending:
		return true
	case current == model.StatusRejected && target == model.StatusAccepted:
		// Отклонённую заявку можно принять повторно.
		return true
	}
	return false
}

// writeAudit пишет запись журнала аудита.
// Ошибка записи логируется и не влияет на исход операции.
func (s *ModerationService) writeAudit(ctx context.Context, actor *session.Identity, target model.RequestStatus, requestID, ownerUserID string) {
	if s.audit == nil {
		return
	}

	action := model.AuditActionAcceptRequest
	if target == model.StatusRejected {
		action = model.AuditActionRejectRequest
	}

	entry := &model.AuditEntry{
		Action:      action,
		SubjectID:   requestID,
		OwnerUserID: ownerUserID,
	}
	if actor != nil {
		entry.ActorID = actor.SubjectID
		entry.ActorUsername = actor.Username
	}

	if err := s.audit.Insert(ctx, entry); err != nil {
		s.logger.Error("Не удалось записать аудит модерации",
			slog.String("request_id", requestID),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}

// backendMessage извлекает сообщение Blood Service из ошибки клиента.
func backendMessage(err error) string {
	var be *bloodclient.BackendError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
