// Пакет claims — канонический словарь custom claims и чистая логика
// авторизационных решений.
//
// Claims хранятся в Identity Provider как плоский JSON-объект:
// admin (bool), adminLevel ("admin"|"super"), role, permissions ([]string),
// assignedAt/updatedAt/createdAt (RFC3339), assignedBy (uid или "system_init").
//
// Инвариант схемы: admin == true влечёт role == "admin" или "super_admin".
// Все пути записи проходят через builders этого пакета, которые выводят role
// из admin/adminLevel, поэтому расходящееся состояние через этот сервис
// недостижимо. При ЧТЕНИИ решение principals опирается только на
// admin/adminLevel — legacy-запись без role авторизуется так же.
package claims

import (
	"sort"
	"time"
)

// Set — плоский набор claims пользователя.
// Значения — JSON-совместимые скаляры или срезы строк.
type Set map[string]any

// Ключи canonical-схемы.
const (
	KeyAdmin       = "admin"
	KeyAdminLevel  = "adminLevel"
	KeyRole        = "role"
	KeyPermissions = "permissions"
	KeyAssignedAt  = "assignedAt"
	KeyUpdatedAt   = "updatedAt"
	KeyCreatedAt   = "createdAt"
	KeyAssignedBy  = "assignedBy"
)

// Роли.
const (
	RoleAdmin      = "admin"
	RoleModerator  = "moderator"
	RoleEditor     = "editor"
	RoleUser       = "user"
	RoleSuperAdmin = "super_admin"
)

// Уровни adminLevel.
const (
	AdminLevelAdmin = "admin"
	AdminLevelSuper = "super"
)

// AssignedBySystem — sentinel для системных изменений (bootstrap, trigger).
const AssignedBySystem = "system_init"

// AccessLevel — требуемый уровень доступа к операции.
type AccessLevel int

const (
	// LevelAuthenticated — любой аутентифицированный вызывающий.
	LevelAuthenticated AccessLevel = iota
	// LevelAdmin — admin любого уровня (admin == true).
	LevelAdmin
	// LevelSuperAdmin — admin == true && adminLevel == "super".
	LevelSuperAdmin
)

// String возвращает человекочитаемое имя уровня.
func (l AccessLevel) String() string {
	switch l {
	case LevelAuthenticated:
		return "authenticated"
	case LevelAdmin:
		return "admin"
	case LevelSuperAdmin:
		return "super-admin"
	default:
		return "unknown"
	}
}

// assignableRoles — роли, назначаемые операцией setRole.
// super_admin назначается ТОЛЬКО через bootstrap.
var assignableRoles = map[string]bool{
	RoleAdmin:     true,
	RoleModerator: true,
	RoleEditor:    true,
	RoleUser:      true,
}

// permissionVocabulary — фиксированный словарь permission-токенов.
var permissionVocabulary = map[string]bool{
	"create_victim":        true,
	"update_victim":        true,
	"delete_victim":        true,
	"create_camp":          true,
	"update_camp":          true,
	"delete_camp":          true,
	"create_commander":     true,
	"update_commander":     true,
	"delete_commander":     true,
	"view_admin_dashboard": true,
	"manage_users":         true,
	"export_data":          true,
	"import_data":          true,
}

// --- Чтение ---

// IsAdmin возвращает true, если набор даёт admin-права любого уровня.
func (s Set) IsAdmin() bool {
	v, ok := s[KeyAdmin].(bool)
	return ok && v
}

// IsSuperAdmin возвращает true, если набор даёт супер-админ права.
func (s Set) IsSuperAdmin() bool {
	return s.IsAdmin() && s.AdminLevel() == AdminLevelSuper
}

// AdminLevel возвращает adminLevel или пустую строку.
func (s Set) AdminLevel() string {
	v, _ := s[KeyAdminLevel].(string)
	return v
}

// Role возвращает role или пустую строку.
func (s Set) Role() string {
	v, _ := s[KeyRole].(string)
	return v
}

// Permissions возвращает permissions или nil.
// JSON-декодирование даёт []any — оба представления поддерживаются.
func (s Set) Permissions() []string {
	switch v := s[KeyPermissions].(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}

// Satisfies проверяет, удовлетворяет ли набор требуемому уровню доступа.
// Чистая функция: решение принимается ТОЛЬКО по переданному набору.
func (s Set) Satisfies(level AccessLevel) bool {
	switch level {
	case LevelAuthenticated:
		return true
	case LevelAdmin:
		return s.IsAdmin()
	case LevelSuperAdmin:
		return s.IsSuperAdmin()
	default:
		return false
	}
}

// --- Валидация ---

// IsAssignableRole проверяет, допустима ли роль для операции setRole.
func IsAssignableRole(role string) bool {
	return assignableRoles[role]
}

// IsValidAdminLevel проверяет значение adminLevel.
func IsValidAdminLevel(level string) bool {
	return level == AdminLevelAdmin || level == AdminLevelSuper
}

// ValidatePermissions возвращает токены, отсутствующие в фиксированном
// словаре. Пустой результат — все токены допустимы.
func ValidatePermissions(tokens []string) []string {
	var invalid []string
	for _, t := range tokens {
		if !permissionVocabulary[t] {
			invalid = append(invalid, t)
		}
	}
	sort.Strings(invalid)
	return invalid
}

// --- Builders ---
// Каждый builder возвращает patch для Merge. Значение nil в patch
// означает УДАЛЕНИЕ ключа из итогового набора.

// AdminPatch — patch операции grantAdmin.
// role всегда "admin", даже при level == "super": роль super_admin
// назначается только через bootstrap.
func AdminPatch(level, assignedBy string, now time.Time) Set {
	return Set{
		KeyAdmin:      true,
		KeyAdminLevel: level,
		KeyRole:       RoleAdmin,
		KeyAssignedAt: now.UTC().Format(time.RFC3339),
		KeyAssignedBy: assignedBy,
	}
}

// SuperAdminPatch — patch bootstrap-инициализации.
// Единственный путь записи role == "super_admin".
func SuperAdminPatch(now time.Time) Set {
	return Set{
		KeyAdmin:      true,
		KeyAdminLevel: AdminLevelSuper,
		KeyRole:       RoleSuperAdmin,
		KeyAssignedAt: now.UTC().Format(time.RFC3339),
		KeyAssignedBy: AssignedBySystem,
	}
}

// RevokePatch — patch операции revokeAdmin: admin и adminLevel удаляются,
// role становится "user".
func RevokePatch(assignedBy string, now time.Time) Set {
	return Set{
		KeyAdmin:      nil,
		KeyAdminLevel: nil,
		KeyRole:       RoleUser,
		KeyUpdatedAt:  now.UTC().Format(time.RFC3339),
		KeyAssignedBy: assignedBy,
	}
}

// RolePatch — patch операции setRole.
// admin выводится из роли: true только для role == "admin".
// adminLevel при не-админской роли удаляется, сохраняя инвариант схемы.
func RolePatch(role, assignedBy string, now time.Time) Set {
	patch := Set{
		KeyRole:       role,
		KeyAdmin:      role == RoleAdmin,
		KeyUpdatedAt:  now.UTC().Format(time.RFC3339),
		KeyAssignedBy: assignedBy,
	}
	if role == RoleAdmin {
		patch[KeyAdminLevel] = AdminLevelAdmin
	} else {
		patch[KeyAdminLevel] = nil
	}
	return patch
}

// PermissionsPatch — patch операции setPermissions: полная замена
// ключа permissions.
func PermissionsPatch(perms []string, assignedBy string, now time.Time) Set {
	if perms == nil {
		perms = []string{}
	}
	return Set{
		KeyPermissions: perms,
		KeyUpdatedAt:   now.UTC().Format(time.RFC3339),
		KeyAssignedBy:  assignedBy,
	}
}

// DefaultPatch — patch системного trigger'а для новой identity.
func DefaultPatch(now time.Time) Set {
	return Set{
		KeyRole:        RoleUser,
		KeyAdmin:       false,
		KeyPermissions: []string{},
		KeyCreatedAt:   now.UTC().Format(time.RFC3339),
		KeyAssignedBy:  AssignedBySystem,
	}
}

// Merge применяет patch к текущему набору и возвращает НОВЫЙ набор.
// IdP заменяет объект claims целиком, поэтому запись всегда идёт по схеме
// read-merge-write: Merge сохраняет не затронутые patch'ем ключи.
// Значение nil в patch удаляет ключ.
func Merge(current, patch Set) Set {
	result := make(Set, len(current)+len(patch))
	for k, v := range current {
		result[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(result, k)
			continue
		}
		result[k] = v
	}
	return result
}
