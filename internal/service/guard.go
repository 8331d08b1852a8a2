// guard.go — авторизационный guard поверх текущих claims из IdP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arturkryukov/claims-admin/internal/domain/claims"
	"github.com/arturkryukov/claims-admin/internal/idp"
)

// IdentityStore — операции Identity Provider, используемые сервисным слоем.
// Реализуется *idp.Client; в тестах подменяется fake-сервером или stub'ом.
type IdentityStore interface {
	GetUser(ctx context.Context, uid string) (*idp.User, error)
	GetUserByEmail(ctx context.Context, email string) (*idp.User, error)
	SetClaims(ctx context.Context, uid string, cl map[string]any) error
	ListUsers(ctx context.Context, pageSize int, pageToken string) (*idp.UserPage, error)
}

// Guard принимает авторизационные решения по ТЕКУЩИМ claims вызывающего.
//
// Claims ВСЕГДА перечитываются из IdP на каждый вызов: claims, зашитые в
// токен вызывающего, могли устареть между выдачей токена и этим запросом,
// поэтому они никогда не служат основанием привилегированного решения.
// Побочных эффектов нет.
type Guard struct {
	store  IdentityStore
	logger *slog.Logger
}

// NewGuard создаёт авторизационный guard.
func NewGuard(store IdentityStore, logger *slog.Logger) *Guard {
	return &Guard{
		store:  store,
		logger: logger.With(slog.String("component", "guard")),
	}
}

// Authorize проверяет, что вызывающий callerUID удовлетворяет требуемому
// уровню. Возвращает текущие claims вызывающего при успехе.
//
// Ошибки: ErrUnauthenticated — нет идентичности вызывающего;
// ErrPermissionDenied — уровень недостаточен (или uid не существует в IdP);
// ErrIDPUnavailable — IdP не ответил.
func (g *Guard) Authorize(ctx context.Context, callerUID string, level claims.AccessLevel) (claims.Set, error) {
	if callerUID == "" {
		return nil, ErrUnauthenticated
	}

	user, err := g.store.GetUser(ctx, callerUID)
	if err != nil {
		if errors.Is(err, idp.ErrUserNotFound) {
			// Идентичность из токена не существует в IdP — отказываем,
			// как и при недостаточных правах.
			g.logger.Warn("Вызывающий не найден в IdP",
				slog.String("caller_uid", callerUID),
			)
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	if !user.Claims.Satisfies(level) {
		g.logger.Debug("Отказ в доступе",
			slog.String("caller_uid", callerUID),
			slog.String("required_level", level.String()),
			slog.String("caller_role", user.Claims.Role()),
		)
		return nil, ErrPermissionDenied
	}

	return user.Claims, nil
}

// AuthorizeSelfOr разрешает доступ, если вызывающий запрашивает СВОИ данные
// (targetUID == callerUID, достаточно аутентификации) либо удовлетворяет
// переданному уровню.
func (g *Guard) AuthorizeSelfOr(ctx context.Context, callerUID, targetUID string, level claims.AccessLevel) error {
	if callerUID == "" {
		return ErrUnauthenticated
	}
	if callerUID == targetUID {
		return nil
	}
	_, err := g.Authorize(ctx, callerUID, level)
	return err
}
