// Пакет config — загрузка и валидация конфигурации Claims Admin
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Claims Admin.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Identity Provider ---

	// URL Identity Provider (например, https://id.example.com)
	IDPURL string
	// Client ID для доступа к IdP Admin API
	IDPClientID string
	// Client Secret для доступа к IdP Admin API
	IDPClientSecret string

	// --- JWT ---

	// Issuer JWT (авто-вычисляется из IDPURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из IDPURL, если не задан)
	JWTJWKSURL string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration

	// --- Bootstrap ---

	// Секрет одноразовой инициализации супер-админа.
	// Обязательный, значения по умолчанию НЕТ.
	BootstrapSecret string
	// Секрет событий IdP (webhook user-created). Если пуст —
	// endpoint событий не регистрируется.
	EventSecret string

	// --- Мониторинг зависимостей ---

	// Группа topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CA_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("CA_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("CA_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CA_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// CA_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CA_LOG_LEVEL: %w", err)
	}

	// CA_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// CA_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("CA_DB_HOST")
	if err != nil {
		return nil, err
	}

	// CA_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("CA_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CA_DB_PORT: %w", err)
	}

	// CA_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("CA_DB_NAME")
	if err != nil {
		return nil, err
	}

	// CA_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("CA_DB_USER")
	if err != nil {
		return nil, err
	}

	// CA_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("CA_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// CA_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("CA_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("CA_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Identity Provider ---

	// CA_IDP_URL — обязательный
	cfg.IDPURL, err = getEnvRequired("CA_IDP_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.IDPURL = strings.TrimRight(cfg.IDPURL, "/")

	// CA_IDP_CLIENT_ID — обязательный
	cfg.IDPClientID, err = getEnvRequired("CA_IDP_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	// CA_IDP_CLIENT_SECRET — обязательный
	cfg.IDPClientSecret, err = getEnvRequired("CA_IDP_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	// --- JWT ---

	// CA_JWT_ISSUER — авто-вычисляется из IDPURL, если не задан
	cfg.JWTIssuer = getEnvDefault("CA_JWT_ISSUER", cfg.IDPURL)

	// CA_JWT_JWKS_URL — авто-вычисляется из IDPURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("CA_JWT_JWKS_URL",
		fmt.Sprintf("%s/.well-known/jwks.json", cfg.IDPURL))

	// CA_JWT_LEEWAY — допустимое отклонение времени (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("CA_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_JWT_LEEWAY: %w", err)
	}

	// CA_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 1h)
	cfg.JWKSRefreshInterval, err = getEnvDuration("CA_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CA_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// --- Bootstrap ---

	// CA_BOOTSTRAP_SECRET — обязательный. Секрет никогда не компилируется
	// в артефакт и не имеет значения по умолчанию.
	cfg.BootstrapSecret, err = getEnvRequired("CA_BOOTSTRAP_SECRET")
	if err != nil {
		return nil, err
	}

	// CA_IDP_EVENT_SECRET — секрет webhook событий IdP (опционально)
	cfg.EventSecret = getEnvDefault("CA_IDP_EVENT_SECRET", "")

	// --- Мониторинг зависимостей ---

	// CA_DEPHEALTH_GROUP — группа topologymetrics (по умолчанию claims)
	cfg.DephealthGroup = getEnvDefault("CA_DEPHEALTH_GROUP", "claims")

	// CA_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("CA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// CA_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("CA_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для метрик topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
