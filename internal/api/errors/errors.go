// Пакет errors — конструкторы стандартных ошибок Claims Admin API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyExists    = "ALREADY_EXISTS"
	CodeIDPUnavailable   = "IDP_UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// Unauthenticated — 401 вызывающий не аутентифицирован.
func Unauthenticated(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthenticated, message)
}

// PermissionDenied — 403 недостаточно прав.
func PermissionDenied(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodePermissionDenied, message)
}

// InvalidArgument — 400 некорректные входные данные.
func InvalidArgument(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidArgument, message)
}

// NotFound — 404 пользователь или ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// AlreadyExists — 409 повторная инициализация.
func AlreadyExists(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeAlreadyExists, message)
}

// IDPUnavailable — 502 Identity Provider недоступен.
func IDPUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeIDPUnavailable, message)
}

// Internal — 500 внутренняя ошибка.
func Internal(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, message)
}
