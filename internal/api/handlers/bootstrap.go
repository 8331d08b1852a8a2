// bootstrap.go — обработчик одноразовой инициализации супер-админа.
// Единственный endpoint API, доступный без Bearer-токена: вызывающий
// подтверждает право секретом из тела запроса.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/arturkryukov/claims-admin/internal/api/errors"
)

// bootstrapRequest — тело запроса инициализации.
type bootstrapRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

// bootstrapResponse — ответ успешной инициализации.
type bootstrapResponse struct {
	Success bool           `json:"success"`
	UID     string         `json:"uid"`
	Claims  map[string]any `json:"claims"`
	Message string         `json:"message"`
}

// Bootstrap — POST /api/v1/bootstrap.
// Назначает пользователя с указанным email первым супер-админом.
// Повторный вызов всегда возвращает 409, независимо от секрета.
func (h *APIHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	var req bootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.InvalidArgument(w, "Некорректный JSON: "+err.Error())
		return
	}

	result, err := h.bootstrap.Initialize(r.Context(), req.Email, req.Secret)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bootstrapResponse{
		Success: true,
		UID:     result.UID,
		Claims:  result.Claims,
		Message: "Супер-админ назначен. Изменения вступят в силу после обновления ID-токена",
	})
}
