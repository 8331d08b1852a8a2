// client.go — HTTP-клиент к Admin REST API Identity Provider.
// Реализует автоматическое получение service token через Client Credentials flow,
// кэширование токена (обновление за 30s до expiration).
// Операции: GetUser, GetUserByEmail, SetClaims, ListUsers, Status.
//
// IdP заменяет объект custom claims ЦЕЛИКОМ при каждом SetClaims —
// частичного patch'а нет. Вызывающая сторона обязана делать
// read-merge-write, чтобы не затереть посторонние ключи.
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrUserNotFound — пользователь не существует в IdP.
var ErrUserNotFound = errors.New("пользователь не найден в IdP")

// Client — HTTP-клиент к Admin REST API IdP.
type Client struct {
	baseURL      string // Базовый URL IdP (без trailing slash)
	clientID     string // Client ID для Client Credentials flow
	clientSecret string // Client Secret

	httpClient *http.Client
	logger     *slog.Logger

	// Кэш токена доступа
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New создаёт клиент к Admin REST API IdP.
// baseURL — базовый URL IdP (например, https://id.example.com).
// clientID, clientSecret — credentials для Client Credentials flow.
// httpClient — HTTP-клиент (может содержать TLS конфигурацию).
func New(baseURL, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger.With(slog.String("component", "idp_client")),
	}
}

// --- Аутентификация ---

// tokenEndpoint возвращает URL endpoint'а получения токена.
func (c *Client) tokenEndpoint() string {
	return c.baseURL + "/oauth/token"
}

// adminBaseURL возвращает базовый URL Admin REST API.
func (c *Client) adminBaseURL() string {
	return c.baseURL + "/admin/v1"
}

// getToken возвращает актуальный access token, обновляя при необходимости.
// Токен обновляется за 30 секунд до истечения.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Проверяем кэш: если токен валиден ещё 30 секунд — используем его
	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	// Запрашиваем новый токен через Client Credentials flow
	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("Токен IdP обновлён",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// requestToken выполняет Client Credentials flow.
func (c *Client) requestToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена IdP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("IdP вернул статус %d при запросе токена: %s", resp.StatusCode, string(body))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена IdP: %w", err)
	}

	return &token, nil
}

// --- HTTP helpers ---

// doAuthorized выполняет HTTP-запрос к Admin REST API с авторизацией.
func (c *Client) doAuthorized(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	reqURL := c.adminBaseURL() + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// decodeResponse декодирует JSON ответ в target.
// 404 преобразуется в ErrUserNotFound.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("IdP API вернул статус %d: %s", resp.StatusCode, string(body))
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("декодирование ответа IdP: %w", err)
		}
	}

	return nil
}

// checkResponse проверяет статус ответа (для запросов без тела ответа).
func checkResponse(resp *http.Response, expectedStatus int) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}

	if resp.StatusCode != expectedStatus {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("IdP API вернул статус %d (ожидался %d): %s",
			resp.StatusCode, expectedStatus, string(body))
	}

	return nil
}

// --- Users API ---

// GetUser возвращает пользователя по UID.
// Возвращает ErrUserNotFound, если пользователь не существует.
func (c *Client) GetUser(ctx context.Context, uid string) (*User, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/users/"+url.PathEscape(uid), nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := decodeResponse(resp, &user); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("GetUser: %w", err)
	}

	return &user, nil
}

// GetUserByEmail возвращает пользователя по email.
// Возвращает ErrUserNotFound, если пользователь не существует.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/users/by-email?email="+url.QueryEscape(email), nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := decodeResponse(resp, &user); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("GetUserByEmail: %w", err)
	}

	return &user, nil
}

// SetClaims заменяет объект custom claims пользователя целиком.
// claims == nil записывает пустой объект.
func (c *Client) SetClaims(ctx context.Context, uid string, cl map[string]any) error {
	if cl == nil {
		cl = map[string]any{}
	}

	resp, err := c.doAuthorized(ctx, http.MethodPut, "/users/"+url.PathEscape(uid)+"/claims", cl)
	if err != nil {
		return err
	}

	if err := checkResponse(resp, http.StatusNoContent); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("SetClaims: %w", err)
	}

	return nil
}

// ListUsers возвращает страницу пользователей.
// pageToken — opaque continuation token из предыдущей страницы
// (пустая строка — первая страница).
func (c *Client) ListUsers(ctx context.Context, pageSize int, pageToken string) (*UserPage, error) {
	path := fmt.Sprintf("/users?page_size=%d", pageSize)
	if pageToken != "" {
		path += "&page_token=" + url.QueryEscape(pageToken)
	}

	resp, err := c.doAuthorized(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var page UserPage
	if err := decodeResponse(resp, &page); err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}

	return &page, nil
}

// --- Readiness checker ---

// CheckReady проверяет доступность IdP через endpoint статуса.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.doAuthorized(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return "fail", fmt.Sprintf("IdP недоступен: %v", err)
	}

	var status statusResponse
	if err := decodeResponse(resp, &status); err != nil {
		return "fail", fmt.Sprintf("IdP недоступен: %v", err)
	}

	if status.Status != "ok" {
		return "degraded", fmt.Sprintf("IdP сообщает статус %q", status.Status)
	}

	return "ok", "IdP доступен"
}
