package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения для теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"CA_DB_HOST":           "localhost",
		"CA_DB_NAME":           "claims",
		"CA_DB_USER":           "claims",
		"CA_DB_PASSWORD":       "secret",
		"CA_IDP_URL":           "https://id.kryukov.lan",
		"CA_IDP_CLIENT_ID":     "claims-admin",
		"CA_IDP_CLIENT_SECRET": "idp-secret",
		"CA_BOOTSTRAP_SECRET":  "bootstrap-secret",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.JWTLeeway != 30*time.Second {
		t.Errorf("JWTLeeway = %v, ожидается 30s", cfg.JWTLeeway)
	}
	if cfg.JWKSRefreshInterval != time.Hour {
		t.Errorf("JWKSRefreshInterval = %v, ожидается 1h", cfg.JWKSRefreshInterval)
	}
	if cfg.EventSecret != "" {
		t.Errorf("EventSecret = %q, ожидается пустой", cfg.EventSecret)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval = %v, ожидается 15s", cfg.DephealthCheckInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_JWTAutoDerive(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.JWTIssuer != "https://id.kryukov.lan" {
		t.Errorf("JWTIssuer = %q, ожидается базовый URL IdP", cfg.JWTIssuer)
	}

	expectedJWKS := "https://id.kryukov.lan/.well-known/jwks.json"
	if cfg.JWTJWKSURL != expectedJWKS {
		t.Errorf("JWTJWKSURL = %q, ожидается %q", cfg.JWTJWKSURL, expectedJWKS)
	}
}

func TestLoad_TrailingSlashTrimmed(t *testing.T) {
	envs := minimalEnvs()
	envs["CA_IDP_URL"] = "https://id.kryukov.lan/"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.IDPURL != "https://id.kryukov.lan" {
		t.Errorf("IDPURL = %q, trailing slash должен удаляться", cfg.IDPURL)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["CA_PORT"] = "9090"
	envs["CA_LOG_LEVEL"] = "debug"
	envs["CA_LOG_FORMAT"] = "text"
	envs["CA_DB_PORT"] = "5433"
	envs["CA_DB_SSL_MODE"] = "require"
	envs["CA_JWT_ISSUER"] = "https://issuer.example.com"
	envs["CA_JWT_LEEWAY"] = "1m"
	envs["CA_IDP_EVENT_SECRET"] = "event-secret"
	envs["CA_SHUTDOWN_TIMEOUT"] = "10s"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, ожидается 9090", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.DBPort != 5433 {
		t.Errorf("DBPort = %d, ожидается 5433", cfg.DBPort)
	}
	if cfg.JWTIssuer != "https://issuer.example.com" {
		t.Errorf("JWTIssuer = %q", cfg.JWTIssuer)
	}
	if cfg.JWTLeeway != time.Minute {
		t.Errorf("JWTLeeway = %v, ожидается 1m", cfg.JWTLeeway)
	}
	if cfg.EventSecret != "event-secret" {
		t.Errorf("EventSecret = %q", cfg.EventSecret)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	required := []string{
		"CA_DB_HOST",
		"CA_DB_NAME",
		"CA_DB_USER",
		"CA_DB_PASSWORD",
		"CA_IDP_URL",
		"CA_IDP_CLIENT_ID",
		"CA_IDP_CLIENT_SECRET",
		"CA_BOOTSTRAP_SECRET",
	}

	for _, missing := range required {
		t.Run(missing, func(t *testing.T) {
			envs := minimalEnvs()
			envs[missing] = ""
			setEnvs(t, envs)

			if _, err := Load(); err == nil {
				t.Errorf("Load() должен вернуть ошибку при отсутствии %s", missing)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "нечисловой порт", key: "CA_PORT", value: "abc"},
		{name: "порт вне диапазона", key: "CA_PORT", value: "70000"},
		{name: "неизвестный уровень логирования", key: "CA_LOG_LEVEL", value: "verbose"},
		{name: "неизвестный формат логов", key: "CA_LOG_FORMAT", value: "xml"},
		{name: "неизвестный ssl mode", key: "CA_DB_SSL_MODE", value: "maybe"},
		{name: "некорректная длительность", key: "CA_JWT_LEEWAY", value: "30 seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			setEnvs(t, envs)

			if _, err := Load(); err == nil {
				t.Errorf("Load() должен вернуть ошибку для %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	dsn := cfg.DatabaseDSN()
	for _, part := range []string{"host=localhost", "port=5432", "dbname=claims", "user=claims", "sslmode=disable"} {
		if !strings.Contains(dsn, part) {
			t.Errorf("DSN %q не содержит %q", dsn, part)
		}
	}

	url := cfg.DatabaseURL()
	if !strings.HasPrefix(url, "postgres://claims:") {
		t.Errorf("DatabaseURL = %q", url)
	}
}
