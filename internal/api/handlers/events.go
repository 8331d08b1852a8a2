// events.go — webhook событий IdP.
// POST /api/v1/events/user-created — установка стартовых claims новой
// identity. Endpoint регистрируется только при заданном CA_IDP_EVENT_SECRET.
package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Заголовок аутентификации webhook'а.
const eventSecretHeader = "X-Event-Secret"

// userCreatedEvent — тело события user-created.
type userCreatedEvent struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// UserCreated — POST /api/v1/events/user-created.
// Устанавливает стартовые claims (role=user, admin=false, permissions=[]).
//
// Всегда отвечает 204: IdP не должен ретраить событие из-за нашей
// ошибки, а отличить неверный секрет от внутренней ошибки вызывающему
// незачем. Ошибки фиксируются в логе.
func (h *APIHandler) UserCreated(w http.ResponseWriter, r *http.Request) {
	defer w.WriteHeader(http.StatusNoContent)

	secret := r.Header.Get(eventSecretHeader)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.eventSecret)) != 1 {
		h.logger.Warn("Событие user-created с неверным секретом",
			slog.String("remote_addr", r.RemoteAddr),
		)
		return
	}

	var event userCreatedEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.logger.Warn("Событие user-created с некорректным телом",
			slog.String("error", err.Error()),
		)
		return
	}
	if event.UID == "" {
		h.logger.Warn("Событие user-created без uid")
		return
	}

	if err := h.claims.ApplyDefaultClaims(r.Context(), event.UID); err != nil {
		// Глотаем ошибку: создание identity не должно падать из-за
		// недоступности claims-admin
		h.logger.Error("Не удалось установить стартовые claims",
			slog.String("uid", event.UID),
			slog.String("error", err.Error()),
		)
	}
}
