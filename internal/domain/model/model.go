// Пакет model — доменные модели Claims Admin.
package model

import (
	"time"

	"github.com/arturkryukov/claims-admin/internal/domain/claims"
)

// UserIdentity — пользователь из Identity Provider с его claims.
// Не хранится в БД — единственный владелец данных IdP.
type UserIdentity struct {
	// UID — идентификатор пользователя в IdP
	UID string
	// Email — адрес электронной почты (может отсутствовать)
	Email string
	// DisplayName — отображаемое имя
	DisplayName string
	// Disabled — заблокирован ли аккаунт
	Disabled bool
	// EmailVerified — подтверждён ли email
	EmailVerified bool
	// Claims — текущий набор custom claims
	Claims claims.Set
	// CreatedAt — дата создания в IdP
	CreatedAt time.Time
}

// Действия аудита.
const (
	ActionMakeAdmin      = "make_admin"
	ActionRemoveAdmin    = "remove_admin"
	ActionSetRole        = "set_role"
	ActionSetPermissions = "set_permissions"
	ActionSetClaims      = "set_claims"
	ActionInitSuperAdmin = "init_super_admin"
	ActionDefaultClaims  = "default_claims"
)

// AuditRecord — запись append-only журнала привилегированных действий.
// Хранится в таблице audit_log; никогда не обновляется и не удаляется.
type AuditRecord struct {
	// ID — UUID записи
	ID string
	// Action — имя действия (make_admin, remove_admin, ...)
	Action string
	// TargetUID — идентификатор целевого пользователя
	TargetUID string
	// PerformedBy — uid вызывающего или "system_init"
	PerformedBy string
	// Claims — снимок применённых claims (может быть nil)
	Claims claims.Set
	// CreatedAt — серверная отметка времени
	CreatedAt time.Time
}
