package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dronophaeton/blooddon/admin-module/internal/domain/model"
)

// AuditRepository — интерфейс таблицы moderation_audit.
// Записи append-only: модерация не редактируется задним числом.
type AuditRepository interface {
	// Insert добавляет запись аудита. ID генерируется, если пуст.
	Insert(ctx context.Context, e *model.AuditEntry) error
	// GetByID возвращает запись по идентификатору.
	GetByID(ctx context.Context, id string) (*model.AuditEntry, error)
	// List возвращает записи (новые первыми) с фильтром по действию.
	// action == "" — без фильтра.
	List(ctx context.Context, action string, limit, offset int) ([]*model.AuditEntry, error)
	// Count возвращает количество записей с фильтром по действию.
	Count(ctx context.Context, action string) (int, error)
}

// auditRepo — реализация AuditRepository.
type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала аудита.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

const auditColumns = `id, actor_id, actor_username, action, subject_id, owner_user_id, created_at`

func (r *auditRepo) Insert(ctx context.Context, e *model.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	query := `
		INSERT INTO moderation_audit (id, actor_id, actor_username, action, subject_id, owner_user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		e.ID, e.ActorID, e.ActorUsername, e.Action, e.SubjectID, e.OwnerUserID,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка вставки записи аудита: %w", err)
	}
	return nil
}

func (r *auditRepo) GetByID(ctx context.Context, id string) (*model.AuditEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM moderation_audit WHERE id = $1`, auditColumns)

	e := &model.AuditEntry{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.ActorID, &e.ActorUsername, &e.Action, &e.SubjectID, &e.OwnerUserID, &e.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи аудита: %w", err)
	}
	return e, nil
}

func (r *auditRepo) List(ctx context.Context, action string, limit, offset int) ([]*model.AuditEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM moderation_audit
		WHERE ($1 = '' OR action = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, auditColumns)

	rows, err := r.db.Query(ctx, query, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала аудита: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditEntry
	for rows.Next() {
		e := &model.AuditEntry{}
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.ActorUsername, &e.Action, &e.SubjectID, &e.OwnerUserID, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи аудита: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *auditRepo) Count(ctx context.Context, action string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM moderation_audit WHERE ($1 = '' OR action = $1)`, action,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей аудита: %w", err)
	}
	return count, nil
}
