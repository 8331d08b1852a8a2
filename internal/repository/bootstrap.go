package repository

import (
	"context"
	"fmt"
)

// Имя singleton-записи bootstrap-маркера в system_state.
const bootstrapStateName = "super_admin_bootstrap"

// BootstrapRepository — durable-маркер одноразовой инициализации
// супер-админа.
//
// Маркер — singleton-строка в таблице system_state с PRIMARY KEY по name.
// Переход Uninitialized → Initialized выполняется ОДНОЙ атомарной
// условной вставкой (INSERT ... ON CONFLICT DO NOTHING): из двух
// конкурентных bootstrap-вызовов выиграть может ровно один.
type BootstrapRepository interface {
	// IsInitialized возвращает true, если маркер уже существует.
	IsInitialized(ctx context.Context) (bool, error)
	// TryAcquire атомарно создаёт маркер. Возвращает true, если маркер
	// создан этим вызовом, false — если он уже существовал.
	TryAcquire(ctx context.Context, targetUID, targetEmail string) (bool, error)
	// Release удаляет маркер. Используется ТОЛЬКО для отката, когда
	// запись claims после захвата маркера не удалась.
	Release(ctx context.Context) error
}

// bootstrapRepo — реализация BootstrapRepository.
type bootstrapRepo struct {
	db DBTX
}

// NewBootstrapRepository создаёт репозиторий bootstrap-маркера.
func NewBootstrapRepository(db DBTX) BootstrapRepository {
	return &bootstrapRepo{db: db}
}

func (r *bootstrapRepo) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM system_state WHERE name = $1)`,
		bootstrapStateName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки bootstrap-маркера: %w", err)
	}
	return exists, nil
}

func (r *bootstrapRepo) TryAcquire(ctx context.Context, targetUID, targetEmail string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO system_state (name, target_uid, target_email)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING`,
		bootstrapStateName, targetUID, targetEmail,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка захвата bootstrap-маркера: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *bootstrapRepo) Release(ctx context.Context) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM system_state WHERE name = $1`, bootstrapStateName,
	)
	if err != nil {
		return fmt.Errorf("ошибка освобождения bootstrap-маркера: %w", err)
	}
	return nil
}
