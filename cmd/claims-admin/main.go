// Точка входа Claims Admin — сервис управления custom claims пользователей.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует IdP-клиент, создаёт сервисный слой и API handlers,
// запускает topologymetrics, HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/arturkryukov/claims-admin/internal/api/handlers"
	"github.com/arturkryukov/claims-admin/internal/api/middleware"
	"github.com/arturkryukov/claims-admin/internal/config"
	"github.com/arturkryukov/claims-admin/internal/database"
	"github.com/arturkryukov/claims-admin/internal/idp"
	"github.com/arturkryukov/claims-admin/internal/repository"
	"github.com/arturkryukov/claims-admin/internal/server"
	"github.com/arturkryukov/claims-admin/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Claims Admin запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("CA_DEPHEALTH_GROUP") == "" {
		logger.Warn("CA_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. IdP Admin API клиент
	idpClient := idp.New(
		cfg.IDPURL,
		cfg.IDPClientID,
		cfg.IDPClientSecret,
		nil, // стандартный HTTP-клиент
		logger,
	)
	logger.Info("IdP клиент создан", slog.String("url", cfg.IDPURL))

	// 6. Repositories
	auditRepo := repository.NewAuditRepository(pool)
	bootstrapRepo := repository.NewBootstrapRepository(pool)

	// 7. Services
	guard := service.NewGuard(idpClient, logger)
	claimsSvc := service.NewClaimsService(idpClient, guard, auditRepo, logger)
	bootstrapSvc := service.NewBootstrapService(
		idpClient, bootstrapRepo, auditRepo,
		cfg.BootstrapSecret,
		logger,
	)

	// 8. Readiness checkers (PostgreSQL + IdP Admin API + JWKS)
	pgChecker := database.NewReadinessChecker(pool)
	jwksChecker := middleware.NewIdPReadinessChecker(cfg.JWTJWKSURL, 5*time.Second)
	healthHandler := handlers.NewHealthHandler(pgChecker, idpClient, jwksChecker)

	// 9. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		claimsSvc,
		bootstrapSvc,
		cfg.EventSecret,
		logger,
	)
	if cfg.EventSecret == "" {
		logger.Info("CA_IDP_EVENT_SECRET не задан, webhook событий IdP отключён")
	}

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.JWTIssuer,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + IdP)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"claims-admin",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.IDPURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Graceful shutdown фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Claims Admin остановлен")
}
