// bootstrap.go — одноразовая инициализация первого супер-админа.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturkryukov/claims-admin/internal/domain/claims"
	"github.com/arturkryukov/claims-admin/internal/domain/model"
	"github.com/arturkryukov/claims-admin/internal/idp"
	"github.com/arturkryukov/claims-admin/internal/repository"
)

// BootstrapResult — результат успешной инициализации.
type BootstrapResult struct {
	// UID назначенного супер-админа
	UID string
	// Claims — записанный набор claims
	Claims claims.Set
}

// BootstrapService — инициализация первого супер-админа.
//
// Единственная операция, доступная без аутентификации: вызывающий
// подтверждает право секретом из конфигурации. После первого успешного
// вызова операция навсегда закрыта durable-маркером в БД.
type BootstrapService struct {
	store         IdentityStore
	bootstrapRepo repository.BootstrapRepository
	auditRepo     repository.AuditRepository
	secret        string
	logger        *slog.Logger
}

// NewBootstrapService создаёт сервис инициализации.
// secret — значение CA_BOOTSTRAP_SECRET из конфигурации.
func NewBootstrapService(
	store IdentityStore,
	bootstrapRepo repository.BootstrapRepository,
	auditRepo repository.AuditRepository,
	secret string,
	logger *slog.Logger,
) *BootstrapService {
	return &BootstrapService{
		store:         store,
		bootstrapRepo: bootstrapRepo,
		auditRepo:     auditRepo,
		secret:        secret,
		logger:        logger.With(slog.String("component", "bootstrap_service")),
	}
}

// Initialize назначает пользователя с указанным email супер-админом.
//
// Порядок проверок фиксирован: сначала маркер инициализации, потом
// секрет — повторный вызов получает ErrAlreadyInitialized независимо
// от правильности секрета. Аккаунт должен уже существовать в IdP:
// Initialize пользователей не создаёт.
func (s *BootstrapService) Initialize(ctx context.Context, email, secret string) (*BootstrapResult, error) {
	initialized, err := s.bootstrapRepo.IsInitialized(ctx)
	if err != nil {
		return nil, err
	}
	if initialized {
		return nil, ErrAlreadyInitialized
	}

	// Сравнение за константное время
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.secret)) != 1 {
		s.logger.Warn("Попытка инициализации с неверным секретом")
		return nil, fmt.Errorf("%w: неверный секрет инициализации", ErrPermissionDenied)
	}

	if email == "" {
		return nil, fmt.Errorf("%w: email обязателен", ErrInvalidArgument)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, idp.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: пользователь %s не найден в IdP, аккаунт нужно зарегистрировать заранее", ErrNotFound, email)
		}
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	// Атомарный захват маркера: из конкурентных вызовов выигрывает один
	acquired, err := s.bootstrapRepo.TryAcquire(ctx, user.UID, email)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrAlreadyInitialized
	}

	newClaims := claims.Merge(user.Claims, claims.SuperAdminPatch(time.Now()))
	if err := s.store.SetClaims(ctx, user.UID, newClaims); err != nil {
		// Маркер захвачен, но claims не записаны — откатываем маркер,
		// чтобы инициализацию можно было повторить
		if relErr := s.bootstrapRepo.Release(ctx); relErr != nil {
			s.logger.Error("Откат bootstrap-маркера не удался, инициализация заблокирована",
				slog.String("error", relErr.Error()),
			)
		}
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	rec := &model.AuditRecord{
		Action:      model.ActionInitSuperAdmin,
		TargetUID:   user.UID,
		PerformedBy: claims.AssignedBySystem,
		Claims:      newClaims,
	}
	if err := s.auditRepo.Append(ctx, rec); err != nil {
		s.logger.Error("Супер-админ назначен, но запись аудита не удалась",
			slog.String("target_uid", user.UID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Супер-админ инициализирован",
		slog.String("target_uid", user.UID),
		slog.String("email", email),
	)
	return &BootstrapResult{UID: user.UID, Claims: newClaims}, nil
}
