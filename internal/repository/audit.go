package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/arturkryukov/claims-admin/internal/domain/claims"
	"github.com/arturkryukov/claims-admin/internal/domain/model"
)

// AuditRepository — интерфейс append-only журнала привилегированных действий.
// Записи никогда не обновляются и не удаляются.
type AuditRepository interface {
	// Append добавляет запись; ID и CreatedAt заполняются при вставке.
	Append(ctx context.Context, rec *model.AuditRecord) error
	// List возвращает записи (новые первыми), опционально фильтруя по action.
	List(ctx context.Context, action string, limit, offset int) ([]*model.AuditRecord, error)
	// CountByAction возвращает количество записей с указанным action.
	CountByAction(ctx context.Context, action string) (int, error)
}

// auditRepo — реализация AuditRepository.
type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала аудита.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

const auditColumns = `id, action, target_uid, performed_by, claims, created_at`

func (r *auditRepo) Append(ctx context.Context, rec *model.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	var claimsJSON []byte
	if rec.Claims != nil {
		var err error
		claimsJSON, err = json.Marshal(rec.Claims)
		if err != nil {
			return fmt.Errorf("ошибка сериализации claims для аудита: %w", err)
		}
	}

	query := `
		INSERT INTO audit_log (id, action, target_uid, performed_by, claims)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.Action, rec.TargetUID, rec.PerformedBy, claimsJSON,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка добавления записи аудита: %w", err)
	}
	return nil
}

func (r *auditRepo) List(ctx context.Context, action string, limit, offset int) ([]*model.AuditRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_log
		WHERE ($1 = '' OR action = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, auditColumns)

	rows, err := r.db.Query(ctx, query, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записей аудита: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditRecord
	for rows.Next() {
		rec := &model.AuditRecord{}
		var claimsJSON []byte
		if err := rows.Scan(
			&rec.ID, &rec.Action, &rec.TargetUID, &rec.PerformedBy,
			&claimsJSON, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи аудита: %w", err)
		}
		if len(claimsJSON) > 0 {
			var cl claims.Set
			if err := json.Unmarshal(claimsJSON, &cl); err != nil {
				return nil, fmt.Errorf("ошибка десериализации claims аудита: %w", err)
			}
			rec.Claims = cl
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *auditRepo) CountByAction(ctx context.Context, action string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log WHERE action = $1`, action).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей аудита: %w", err)
	}
	return count, nil
}
