// handler.go — основной обработчик API Claims Admin.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/arturkryukov/claims-admin/internal/api/errors"
	"github.com/arturkryukov/claims-admin/internal/domain/model"
	"github.com/arturkryukov/claims-admin/internal/service"
)

// APIHandler — основной обработчик API Claims Admin.
type APIHandler struct {
	health    *HealthHandler
	claims    *service.ClaimsService
	bootstrap *service.BootstrapService
	// Секрет webhook событий IdP. Пустой — endpoint не регистрируется.
	eventSecret string
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	claims *service.ClaimsService,
	bootstrap *service.BootstrapService,
	eventSecret string,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		claims:      claims,
		bootstrap:   bootstrap,
		eventSecret: eventSecret,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// EventsEnabled сообщает, настроен ли webhook событий IdP.
func (h *APIHandler) EventsEnabled() bool {
	return h.eventSecret != ""
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError преобразует ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		apierrors.Unauthenticated(w, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		apierrors.PermissionDenied(w, err.Error())
	case errors.Is(err, service.ErrInvalidArgument):
		apierrors.InvalidArgument(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrAlreadyInitialized):
		apierrors.AlreadyExists(w, err.Error())
	case errors.Is(err, service.ErrIDPUnavailable):
		h.logger.Error("IdP недоступен", "error", err)
		apierrors.IDPUnavailable(w, "Identity Provider недоступен")
	default:
		h.logger.Error("Внутренняя ошибка", "error", err)
		apierrors.Internal(w, "Внутренняя ошибка сервиса")
	}
}

// pageParams извлекает параметры пагинации из query string.
// page_size вне диапазона 1-100 заменяется значением по умолчанию.
func pageParams(r *http.Request) (pageSize int, pageToken string) {
	pageSize = 100
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= 100 {
			pageSize = n
		}
	}
	return pageSize, r.URL.Query().Get("page_token")
}

// userResponse — представление пользователя в API.
type userResponse struct {
	UID           string         `json:"uid"`
	Email         string         `json:"email,omitempty"`
	DisplayName   string         `json:"displayName,omitempty"`
	Disabled      bool           `json:"disabled"`
	EmailVerified bool           `json:"emailVerified"`
	Claims        map[string]any `json:"claims"`
	CreatedAt     string         `json:"createdAt,omitempty"`
}

// mapUser конвертирует доменную модель пользователя в API-тип.
func mapUser(u *model.UserIdentity) userResponse {
	resp := userResponse{
		UID:           u.UID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		Disabled:      u.Disabled,
		EmailVerified: u.EmailVerified,
		Claims:        u.Claims,
	}
	if !u.CreatedAt.IsZero() && u.CreatedAt.Unix() > 0 {
		resp.CreatedAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
