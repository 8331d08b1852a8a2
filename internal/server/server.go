// Пакет server — HTTP-сервер Claims Admin с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/claims-admin/internal/api/handlers"
	"github.com/arturkryukov/claims-admin/internal/api/middleware"
	"github.com/arturkryukov/claims-admin/internal/config"
)

// Server — HTTP-сервер Claims Admin.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (может быть nil для тестирования без auth).
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, jwtAuth *middleware.JWTAuth) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// JWT middleware с исключениями для публичных endpoints.
	// Health и metrics проверяются Kubernetes напрямую, bootstrap и
	// events аутентифицируются секретами.
	if jwtAuth != nil {
		router.Use(jwtAuthWithExclusions(jwtAuth,
			"/health/", "/metrics",
			"/api/v1/bootstrap", "/api/v1/events/",
		))
	}

	registerRoutes(router, handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// registerRoutes привязывает маршруты API к обработчикам.
func registerRoutes(router chi.Router, h *handlers.APIHandler) {
	// Health и метрики
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		// Одноразовая инициализация супер-админа (публичный, секрет в теле)
		r.Post("/bootstrap", h.Bootstrap)

		// Webhook событий IdP — только при настроенном секрете
		if h.EventsEnabled() {
			r.Post("/events/user-created", h.UserCreated)
		}

		// Claims самого вызывающего
		r.Get("/me/claims", h.GetMyClaims)

		// Управление claims пользователей
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Route("/{uid}", func(r chi.Router) {
				r.Post("/admin", h.GrantAdmin)
				r.Delete("/admin", h.RevokeAdmin)
				r.Put("/role", h.SetRole)
				r.Put("/permissions", h.SetPermissions)
				r.Put("/claims", h.SetClaims)
				r.Get("/claims", h.GetClaims)
			})
		})

		// Списки и аудит
		r.Get("/admins", h.ListAdmins)
		r.Get("/audit", h.ListAudit)
	})
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без JWT.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Проверяем, начинается ли путь с исключённого префикса
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// Применяем JWT middleware
			jwtMiddleware(next).ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
