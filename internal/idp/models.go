// Пакет idp — HTTP-клиент к Admin REST API Identity Provider.
// models.go — модели данных IdP.
package idp

import (
	"time"

	"github.com/arturkryukov/claims-admin/internal/domain/claims"
)

// TokenResponse — ответ на запрос токена через Client Credentials flow.
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// User — пользователь в IdP.
type User struct {
	UID           string     `json:"uid"`
	Email         string     `json:"email,omitempty"`
	DisplayName   string     `json:"displayName,omitempty"`
	Disabled      bool       `json:"disabled"`
	EmailVerified bool       `json:"emailVerified"`
	Claims        claims.Set `json:"customClaims,omitempty"`
	CreatedAt     int64      `json:"createdTimestamp"`
}

// CreatedAtTime возвращает CreatedAt как time.Time.
// IdP хранит timestamp в миллисекундах.
func (u *User) CreatedAtTime() time.Time {
	return time.UnixMilli(u.CreatedAt)
}

// UserPage — страница пользователей с continuation-токеном.
// NextPageToken пуст, если страниц больше нет.
type UserPage struct {
	Users         []User `json:"users"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// statusResponse — ответ endpoint'а статуса IdP.
type statusResponse struct {
	Status string `json:"status"`
}
