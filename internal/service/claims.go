// Пакет service — бизнес-логика Claims Admin.
// claims.go — операции над custom claims пользователей IdP.
//
// Каждая мутация: валидация входа → guard с требуемым уровнем → чтение
// текущих claims → вычисление нового набора → полная замена в IdP →
// запись аудита → возврат нового набора.
//
// Известная особенность: конкурентные мутации ОДНОГО пользователя
// выполняют read-merge-write без блокировки — возможна потеря обновления
// (последняя запись побеждает). При ожидаемой низкой конкурентности на
// пользователя это принято осознанно.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arturkryukov/claims-admin/internal/domain/claims"
	"github.com/arturkryukov/claims-admin/internal/domain/model"
	"github.com/arturkryukov/claims-admin/internal/idp"
	"github.com/arturkryukov/claims-admin/internal/repository"
)

// Границы пагинации списков.
const (
	defaultPageSize = 100
	maxPageSize     = 100
)

// ClaimsService — операции управления claims.
type ClaimsService struct {
	store     IdentityStore
	guard     *Guard
	auditRepo repository.AuditRepository
	logger    *slog.Logger
}

// NewClaimsService создаёт сервис управления claims.
func NewClaimsService(
	store IdentityStore,
	guard *Guard,
	auditRepo repository.AuditRepository,
	logger *slog.Logger,
) *ClaimsService {
	return &ClaimsService{
		store:     store,
		guard:     guard,
		auditRepo: auditRepo,
		logger:    logger.With(slog.String("component", "claims_service")),
	}
}

// GrantAdmin назначает пользователя админом. Требует супер-админа.
// level — "admin" или "super" (по умолчанию "admin").
// role всегда становится "admin": super_admin назначается только bootstrap'ом.
func (s *ClaimsService) GrantAdmin(ctx context.Context, callerUID, targetUID, level string) (claims.Set, error) {
	if targetUID == "" {
		return nil, fmt.Errorf("%w: uid обязателен", ErrInvalidArgument)
	}
	if level == "" {
		level = claims.AdminLevelAdmin
	}
	if !claims.IsValidAdminLevel(level) {
		return nil, fmt.Errorf("%w: недопустимый adminLevel %q, допустимые: admin, super", ErrInvalidArgument, level)
	}

	if _, err := s.guard.Authorize(ctx, callerUID, claims.LevelSuperAdmin); err != nil {
		return nil, err
	}

	patch := claims.AdminPatch(level, callerUID, time.Now())
	newClaims, err := s.applyPatch(ctx, targetUID, patch)
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, model.ActionMakeAdmin, targetUID, callerUID, newClaims)
	s.logger.Info("Пользователь назначен админом",
		slog.String("target_uid", targetUID),
		slog.String("admin_level", level),
		slog.String("performed_by", callerUID),
	)
	return newClaims, nil
}

// RevokeAdmin снимает admin-статус. Требует супер-админа.
// admin и adminLevel удаляются, role становится "user".
func (s *ClaimsService) RevokeAdmin(ctx context.Context, callerUID, targetUID string) (claims.Set, error) {
	if targetUID == "" {
		return nil, fmt.Errorf("%w: uid обязателен", ErrInvalidArgument)
	}

	if _, err := s.guard.Authorize(ctx, callerUID, claims.LevelSuperAdmin); err != nil {
		return nil, err
	}

	patch := claims.RevokePatch(callerUID, time.Now())
	newClaims, err := s.applyPatch(ctx, targetUID, patch)
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, model.ActionRemoveAdmin, targetUID, callerUID, newClaims)
	s.logger.Info("Admin-статус снят",
		slog.String("target_uid", targetUID),
		slog.String("performed_by", callerUID),
	)
	return newClaims, nil
}

// SetRole устанавливает роль пользователя. Требует админа.
// Допустимые роли: admin, moderator, editor, user.
// admin выводится из роли (true только для "admin").
func (s *ClaimsService) SetRole(ctx context.Context, callerUID, targetUID, role string) (claims.Set, error) {
	if targetUID == "" {
		return nil, fmt.Errorf("%w: uid обязателен", ErrInvalidArgument)
	}
	if !claims.IsAssignableRole(role) {
		return nil, fmt.Errorf("%w: недопустимая роль %q, допустимые: admin, moderator, editor, user", ErrInvalidArgument, role)
	}

	if _, err := s.guard.Authorize(ctx, callerUID, claims.LevelAdmin); err != nil {
		return nil, err
	}

	patch := claims.RolePatch(role, callerUID, time.Now())
	newClaims, err := s.applyPatch(ctx, targetUID, patch)
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, model.ActionSetRole, targetUID, callerUID, newClaims)
	s.logger.Info("Роль установлена",
		slog.String("target_uid", targetUID),
		slog.String("role", role),
		slog.String("performed_by", callerUID),
	)
	return newClaims, nil
}

// SetPermissions заменяет список permissions пользователя. Требует админа.
// Каждый токен проверяется по фиксированному словарю; при наличии
// неизвестных токенов операция отклоняется БЕЗ записи, с перечислением
// всех нарушителей.
func (s *ClaimsService) SetPermissions(ctx context.Context, callerUID, targetUID string, perms []string) (claims.Set, error) {
	if targetUID == "" {
		return nil, fmt.Errorf("%w: uid обязателен", ErrInvalidArgument)
	}
	if invalid := claims.ValidatePermissions(perms); len(invalid) > 0 {
		return nil, fmt.Errorf("%w: неизвестные permission-токены: %s",
			ErrInvalidArgument, strings.Join(invalid, ", "))
	}

	if _, err := s.guard.Authorize(ctx, callerUID, claims.LevelAdmin); err != nil {
		return nil, err
	}

	patch := claims.PermissionsPatch(perms, callerUID, time.Now())
	newClaims, err := s.applyPatch(ctx, targetUID, patch)
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, model.ActionSetPermissions, targetUID, callerUID, newClaims)
	s.logger.Info("Permissions установлены",
		slog.String("target_uid", targetUID),
		slog.Int("count", len(perms)),
		slog.String("performed_by", callerUID),
	)
	return newClaims, nil
}

// SetClaims заменяет объект claims пользователя целиком произвольным
// набором. Требует супер-админа. В отличие от остальных мутаций merge
// НЕ выполняется — записывается ровно переданный набор.
func (s *ClaimsService) SetClaims(ctx context.Context, callerUID, targetUID string, cl claims.Set) (claims.Set, error) {
	if targetUID == "" {
		return nil, fmt.Errorf("%w: uid обязателен", ErrInvalidArgument)
	}

	if _, err := s.guard.Authorize(ctx, callerUID, claims.LevelSuperAdmin); err != nil {
		return nil, err
	}

	// Проверяем существование пользователя до записи
	if _, err := s.store.GetUser(ctx, targetUID); err != nil {
		return nil, s.mapIDPError(err)
	}

	if err := s.store.SetClaims(ctx, targetUID, cl); err != nil {
		return nil, s.mapIDPError(err)
	}

	s.appendAudit(ctx, model.ActionSetClaims, targetUID, callerUID, cl)
	s.logger.Info("Claims заменены",
		slog.String("target_uid", targetUID),
		slog.String("performed_by", callerUID),
	)
	return cl, nil
}

// GetClaims возвращает пользователя с его claims.
// Доступ: сам пользователь (targetUID == callerUID) либо админ.
// Запись аудита не создаётся — операция только читает.
func (s *ClaimsService) GetClaims(ctx context.Context, callerUID, targetUID string) (*model.UserIdentity, error) {
	if targetUID == "" {
		targetUID = callerUID
	}

	if err := s.guard.AuthorizeSelfOr(ctx, callerUID, targetUID, claims.LevelAdmin); err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, targetUID)
	if err != nil {
		return nil, s.mapIDPError(err)
	}

	return toIdentity(user), nil
}

// ListAdmins возвращает страницу пользователей с admin == true.
// Требует админа. pageToken — opaque continuation token IdP;
// порядок внутри страницы не гарантируется.
func (s *ClaimsService) ListAdmins(ctx context.Context, callerUID string, pageSize int, pageToken string) ([]*model.UserIdentity, string, error) {
	if _, err := s.guard.Authorize(ctx, callerUID, claims.LevelAdmin); err != nil {
		return nil, "", err
	}

	page, err := s.listPage(ctx, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	var admins []*model.UserIdentity
	for i := range page.Users {
		if page.Users[i].Claims.IsAdmin() {
			admins = append(admins, toIdentity(&page.Users[i]))
		}
	}

	return admins, page.NextPageToken, nil
}

// ListUsers возвращает страницу всех пользователей с их claims.
// Требует админа.
func (s *ClaimsService) ListUsers(ctx context.Context, callerUID string, pageSize int, pageToken string) ([]*model.UserIdentity, string, error) {
	if _, err := s.guard.Authorize(ctx, callerUID, claims.LevelAdmin); err != nil {
		return nil, "", err
	}

	page, err := s.listPage(ctx, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	users := make([]*model.UserIdentity, len(page.Users))
	for i := range page.Users {
		users[i] = toIdentity(&page.Users[i])
	}

	return users, page.NextPageToken, nil
}

// ListAudit возвращает записи журнала аудита. Требует админа.
// action — фильтр по имени действия (пустая строка — без фильтра).
func (s *ClaimsService) ListAudit(ctx context.Context, callerUID, action string, limit, offset int) ([]*model.AuditRecord, error) {
	if _, err := s.guard.Authorize(ctx, callerUID, claims.LevelAdmin); err != nil {
		return nil, err
	}

	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	return s.auditRepo.List(ctx, action, limit, offset)
}

// ApplyDefaultClaims устанавливает стартовые claims новой identity:
// role="user", admin=false, permissions=[]. Вызывается системно по
// событию user-created, без guard'а. Ошибка возвращается для
// логирования, но вызывающая сторона её глотает — создатель identity
// синхронно её не ждёт.
func (s *ClaimsService) ApplyDefaultClaims(ctx context.Context, uid string) error {
	if uid == "" {
		return fmt.Errorf("%w: uid обязателен", ErrInvalidArgument)
	}

	patch := claims.DefaultPatch(time.Now())
	newClaims, err := s.applyPatch(ctx, uid, patch)
	if err != nil {
		return err
	}

	s.appendAudit(ctx, model.ActionDefaultClaims, uid, claims.AssignedBySystem, newClaims)
	s.logger.Info("Стартовые claims установлены",
		slog.String("target_uid", uid),
	)
	return nil
}

// --- Вспомогательные функции ---

// applyPatch выполняет read-merge-write: читает текущие claims цели,
// применяет patch и записывает результат целиком.
func (s *ClaimsService) applyPatch(ctx context.Context, targetUID string, patch claims.Set) (claims.Set, error) {
	user, err := s.store.GetUser(ctx, targetUID)
	if err != nil {
		return nil, s.mapIDPError(err)
	}

	newClaims := claims.Merge(user.Claims, patch)
	if err := s.store.SetClaims(ctx, targetUID, newClaims); err != nil {
		return nil, s.mapIDPError(err)
	}

	return newClaims, nil
}

// listPage нормализует параметры пагинации и запрашивает страницу IdP.
func (s *ClaimsService) listPage(ctx context.Context, pageSize int, pageToken string) (*idp.UserPage, error) {
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	page, err := s.store.ListUsers(ctx, pageSize, pageToken)
	if err != nil {
		return nil, s.mapIDPError(err)
	}
	return page, nil
}

// appendAudit добавляет запись аудита. Ошибка записи логируется, но
// операцию не отменяет: claims уже применены, и пара запись-аудит не
// транзакционна — рассинхронизация фиксируется в логе.
func (s *ClaimsService) appendAudit(ctx context.Context, action, targetUID, performedBy string, cl claims.Set) {
	rec := &model.AuditRecord{
		Action:      action,
		TargetUID:   targetUID,
		PerformedBy: performedBy,
		Claims:      cl,
	}
	if err := s.auditRepo.Append(ctx, rec); err != nil {
		s.logger.Error("Claims применены, но запись аудита не удалась",
			slog.String("action", action),
			slog.String("target_uid", targetUID),
			slog.String("error", err.Error()),
		)
	}
}

// mapIDPError преобразует ошибки IdP-клиента в ошибки сервисного слоя.
func (s *ClaimsService) mapIDPError(err error) error {
	if errors.Is(err, idp.ErrUserNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
}

// toIdentity конвертирует пользователя IdP в доменную модель.
func toIdentity(u *idp.User) *model.UserIdentity {
	cl := u.Claims
	if cl == nil {
		cl = claims.Set{}
	}
	return &model.UserIdentity{
		UID:           u.UID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		Disabled:      u.Disabled,
		EmailVerified: u.EmailVerified,
		Claims:        cl,
		CreatedAt:     u.CreatedAtTime(),
	}
}
