// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrUnauthenticated — вызывающий не аутентифицирован.
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrPermissionDenied — вызывающий аутентифицирован, но уровень прав недостаточен.
	ErrPermissionDenied = errors.New("недостаточно прав")
	// ErrInvalidArgument — некорректные входные данные.
	ErrInvalidArgument = errors.New("некорректные входные данные")
	// ErrNotFound — целевой пользователь не существует.
	ErrNotFound = errors.New("пользователь не найден")
	// ErrAlreadyInitialized — супер-админ уже инициализирован.
	ErrAlreadyInitialized = errors.New("супер-админ уже инициализирован — операция выполняется только один раз")
	// ErrIDPUnavailable — Identity Provider недоступен.
	ErrIDPUnavailable = errors.New("Identity Provider недоступен")
)
