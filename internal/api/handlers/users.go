// users.go — обработчики списков пользователей и админов.
package handlers

import (
	"net/http"

	"github.com/arturkryukov/claims-admin/internal/api/middleware"
)

// userListResponse — страница пользователей.
type userListResponse struct {
	Items         []userResponse `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

// ListAdmins — GET /api/v1/admins.
// Возвращает страницу пользователей с admin == true. Доступ: админ.
// Фильтрация выполняется по странице IdP: страница может быть неполной
// или пустой при непустом nextPageToken.
func (h *APIHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	callerUID := middleware.SubjectFromContext(r.Context())
	pageSize, pageToken := pageParams(r)

	admins, nextToken, err := h.claims.ListAdmins(r.Context(), callerUID, pageSize, pageToken)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]userResponse, len(admins))
	for i, u := range admins {
		items[i] = mapUser(u)
	}

	writeJSON(w, http.StatusOK, userListResponse{
		Items:         items,
		NextPageToken: nextToken,
	})
}

// ListUsers — GET /api/v1/users.
// Возвращает страницу всех пользователей с их claims. Доступ: админ.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	callerUID := middleware.SubjectFromContext(r.Context())
	pageSize, pageToken := pageParams(r)

	users, nextToken, err := h.claims.ListUsers(r.Context(), callerUID, pageSize, pageToken)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]userResponse, len(users))
	for i, u := range users {
		items[i] = mapUser(u)
	}

	writeJSON(w, http.StatusOK, userListResponse{
		Items:         items,
		NextPageToken: nextToken,
	})
}
