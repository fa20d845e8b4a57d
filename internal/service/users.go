// users.go — каталог пользователей и повышение ролей.
// Каталог кэшируется per-актор в LRU с TTL (hashicorp/golang-lru):
// Blood Service отдаёт его по Bearer с идентификатором администратора.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dronophaeton/blooddon/admin-module/internal/bloodclient"
	"github.com/dronophaeton/blooddon/admin-module/internal/domain/model"
	"github.com/dronophaeton/blooddon/admin-module/internal/domain/rbac"
	"github.com/dronophaeton/blooddon/admin-module/internal/repository"
	"github.com/dronophaeton/blooddon/admin-module/internal/session"
)

// Prometheus-метрики кэша каталога пользователей.
var (
	userCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "am_user_directory_cache_hits_total",
		Help: "Количество попаданий в LRU-кэш каталога пользователей.",
	})
	userCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "am_user_directory_cache_misses_total",
		Help: "Количество промахов LRU-кэша каталога пользователей.",
	})
	elevationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "am_role_elevations_total",
		Help: "Количество повышений роли по исходу.",
	}, []string{"outcome"})
)

// UserBackend — операции Blood Service для каталога пользователей.
// Реализуется bloodclient.Client.
type UserBackend interface {
	GetAllUsers(ctx context.Context, subjectID string) ([]model.User, error)
	ChangeRole(ctx context.Context, userID, role string) error
}

// UserService — каталог пользователей и повышение User → Admin.
type UserService struct {
	backend UserBackend
	audit   repository.AuditRepository
	logger  *slog.Logger

	// cache: ключ — идентификатор администратора, значение — каталог.
	cache *expirable.LRU[string, []model.User]
}

// NewUserService создаёт сервис каталога пользователей.
// cacheSize — максимальное число записей кэша, cacheTTL — время жизни.
// audit может быть nil.
func NewUserService(backend UserBackend, audit repository.AuditRepository, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *UserService {
	return &UserService{
		backend: backend,
		audit:   audit,
		logger:  logger.With(slog.String("component", "user_service")),
		cache:   expirable.NewLRU[string, []model.User](cacheSize, nil, cacheTTL),
	}
}

// ListUsers возвращает каталог пользователей платформы.
// Результат кэшируется per-актор на время TTL.
func (s *UserService) ListUsers(ctx context.Context, actor *session.Identity) ([]model.User, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}

	if users, ok := s.cache.Get(actor.SubjectID); ok {
		userCacheHitsTotal.Inc()
		return users, nil
	}
	userCacheMissesTotal.Inc()

	users, err := s.backend.GetAllUsers(ctx, actor.SubjectID)
	if err != nil {
		if errors.Is(err, bloodclient.ErrDecode) {
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, backendMessage(err))
	}

	s.cache.Add(actor.SubjectID, users)
	return users, nil
}

// ElevateToAdmin повышает роль пользователя до Admin.
// Идемпотентна: если пользователь уже Admin — успех без вызова backend.
// Локальная проекция меняется только после подтверждённого успеха:
// у пользователя обновляется поле роли, остальное не трогается.
func (s *UserService) ElevateToAdmin(ctx context.Context, targetUserID string, actor *session.Identity) error {
	if targetUserID == "" {
		return fmt.Errorf("%w: пустой идентификатор пользователя", ErrValidation)
	}

	// Идемпотентность проверяем по кэшированной проекции актора.
	if actor != nil {
		if users, ok := s.cache.Get(actor.SubjectID); ok {
			for _, u := range users {
				if u.ID == targetUserID && u.Role == string(rbac.RoleAdmin) {
					s.logger.Info("Пользователь уже Admin, повышение не требуется",
						slog.String("user_id", targetUserID),
					)
					return nil
				}
			}
		}
	}

	if err := s.backend.ChangeRole(ctx, targetUserID, string(rbac.RoleAdmin)); err != nil {
		elevationsTotal.WithLabelValues("failure").Inc()
		s.logger.Warn("Blood Service отклонил смену роли",
			slog.String("user_id", targetUserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %s", ErrElevationFailed, backendMessage(err))
	}

	s.applyElevation(targetUserID)
	elevationsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Роль пользователя повышена до Admin",
		slog.String("user_id", targetUserID),
	)

	s.writeElevationAudit(ctx, actor, targetUserID)
	return nil
}

// applyElevation обновляет поле роли в кэшированных проекциях каталога.
func (s *UserService) applyElevation(targetUserID string) {
	for _, key := range s.cache.Keys() {
		users, ok := s.cache.Get(key)
		if !ok {
			continue
		}
		updated := make([]model.User, len(users))
		copy(updated, users)
		for i := range updated {
			if updated[i].ID == targetUserID {
				updated[i].Role = string(rbac.RoleAdmin)
			}
		}
		s.cache.Add(key, updated)
	}
}

// writeElevationAudit пишет запись журнала аудита о повышении роли.
// Ошибка записи логируется и не влияет на исход операции.
func (s *UserService) writeElevationAudit(ctx context.Context, actor *session.Identity, targetUserID string) {
	if s.audit == nil {
		return
	}

	entry := &model.AuditEntry{
		Action:    model.AuditActionElevateRole,
		SubjectID: targetUserID,
	}
	if actor != nil {
		entry.ActorID = actor.SubjectID
		entry.ActorUsername = actor.Username
	}

	if err := s.audit.Insert(ctx, entry); err != nil {
		s.logger.Error("Не удалось записать аудит повышения роли",
			slog.String("user_id", targetUserID),
			slog.String("error", err.Error()),
		)
	}
}
