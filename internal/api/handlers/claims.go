// claims.go — обработчики мутаций и чтения custom claims.
// Все мутации выполняет сервисный слой; здесь только разбор запроса,
// извлечение subject из контекста и маппинг ошибок.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/claims-admin/internal/api/errors"
	"github.com/arturkryukov/claims-admin/internal/api/middleware"
	"github.com/arturkryukov/claims-admin/internal/domain/claims"
)

// claimsResponse — ответ мутаций claims.
type claimsResponse struct {
	Success bool           `json:"success"`
	UID     string         `json:"uid"`
	Claims  map[string]any `json:"claims"`
	// Подсказка клиенту: новые claims попадут в токен только после
	// его обновления.
	Message string `json:"message,omitempty"`
}

const tokenRefreshHint = "Изменения вступят в силу после обновления ID-токена"

// GrantAdmin — POST /api/v1/users/{uid}/admin.
// Назначает пользователя админом. Доступ: супер-админ.
func (h *APIHandler) GrantAdmin(w http.ResponseWriter, r *http.Request) {
	targetUID := chi.URLParam(r, "uid")
	callerUID := middleware.SubjectFromContext(r.Context())

	var req struct {
		Level string `json:"level"`
	}
	// Пустое тело допустимо: level по умолчанию "admin"
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierrors.InvalidArgument(w, "Некорректный JSON: "+err.Error())
			return
		}
	}

	newClaims, err := h.claims.GrantAdmin(r.Context(), callerUID, targetUID, req.Level)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimsResponse{
		Success: true,
		UID:     targetUID,
		Claims:  newClaims,
		Message: tokenRefreshHint,
	})
}

// RevokeAdmin — DELETE /api/v1/users/{uid}/admin.
// Снимает admin-статус. Доступ: супер-админ.
func (h *APIHandler) RevokeAdmin(w http.ResponseWriter, r *http.Request) {
	targetUID := chi.URLParam(r, "uid")
	callerUID := middleware.SubjectFromContext(r.Context())

	newClaims, err := h.claims.RevokeAdmin(r.Context(), callerUID, targetUID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimsResponse{
		Success: true,
		UID:     targetUID,
		Claims:  newClaims,
		Message: tokenRefreshHint,
	})
}

// SetRole — PUT /api/v1/users/{uid}/role.
// Устанавливает роль пользователя. Доступ: админ.
func (h *APIHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	targetUID := chi.URLParam(r, "uid")
	callerUID := middleware.SubjectFromContext(r.Context())

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.InvalidArgument(w, "Некорректный JSON: "+err.Error())
		return
	}

	newClaims, err := h.claims.SetRole(r.Context(), callerUID, targetUID, req.Role)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimsResponse{
		Success: true,
		UID:     targetUID,
		Claims:  newClaims,
		Message: tokenRefreshHint,
	})
}

// SetPermissions — PUT /api/v1/users/{uid}/permissions.
// Заменяет список permissions. Доступ: админ.
func (h *APIHandler) SetPermissions(w http.ResponseWriter, r *http.Request) {
	targetUID := chi.URLParam(r, "uid")
	callerUID := middleware.SubjectFromContext(r.Context())

	var req struct {
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.InvalidArgument(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.Permissions == nil {
		apierrors.InvalidArgument(w, "Поле permissions обязательно (допустим пустой массив)")
		return
	}

	newClaims, err := h.claims.SetPermissions(r.Context(), callerUID, targetUID, req.Permissions)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimsResponse{
		Success: true,
		UID:     targetUID,
		Claims:  newClaims,
		Message: tokenRefreshHint,
	})
}

// SetClaims — PUT /api/v1/users/{uid}/claims.
// Полностью заменяет объект claims произвольным набором. Доступ: супер-админ.
func (h *APIHandler) SetClaims(w http.ResponseWriter, r *http.Request) {
	targetUID := chi.URLParam(r, "uid")
	callerUID := middleware.SubjectFromContext(r.Context())

	var req struct {
		Claims claims.Set `json:"claims"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.InvalidArgument(w, "Некорректный JSON: "+err.Error())
		return
	}

	newClaims, err := h.claims.SetClaims(r.Context(), callerUID, targetUID, req.Claims)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimsResponse{
		Success: true,
		UID:     targetUID,
		Claims:  newClaims,
		Message: tokenRefreshHint,
	})
}

// GetClaims — GET /api/v1/users/{uid}/claims.
// Возвращает пользователя с его claims.
// Доступ: сам пользователь либо админ.
func (h *APIHandler) GetClaims(w http.ResponseWriter, r *http.Request) {
	targetUID := chi.URLParam(r, "uid")
	callerUID := middleware.SubjectFromContext(r.Context())

	user, err := h.claims.GetClaims(r.Context(), callerUID, targetUID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}

// GetMyClaims — GET /api/v1/me/claims.
// Возвращает claims самого вызывающего.
func (h *APIHandler) GetMyClaims(w http.ResponseWriter, r *http.Request) {
	callerUID := middleware.SubjectFromContext(r.Context())

	user, err := h.claims.GetClaims(r.Context(), callerUID, callerUID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}
