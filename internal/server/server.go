// Пакет server — HTTP-сервер Admin Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dronophaeton/blooddon/admin-module/internal/api/handlers"
	"github.com/dronophaeton/blooddon/admin-module/internal/api/middleware"
	"github.com/dronophaeton/blooddon/admin-module/internal/config"
	"github.com/dronophaeton/blooddon/admin-module/internal/domain/rbac"
	"github.com/dronophaeton/blooddon/admin-module/internal/session"
)

// Server — HTTP-сервер Admin Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// resolver может быть nil для тестирования без auth — тогда все
// запросы анонимны и admin-маршруты отвечают 401.
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, resolver *session.Resolver) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую, без сессии.
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		// Идентичность разрешается на каждый запрос; анонимность
		// не прерывает цепочку — отказ формируют RequireAction
		// и сами обработчики.
		if resolver != nil {
			r.Use(middleware.Identity(resolver, logger))
		}

		r.Get("/session/me", handler.SessionMe)
		r.Post("/session/logout", handler.SessionLogout)

		// Очереди модерации и переходы — только Admin.
		r.Route("/moderation/requests", func(r chi.Router) {
			r.With(middleware.RequireAction(rbac.ActionViewModerationDashboard)).
				Get("/", handler.ListModerationRequests)
			r.With(middleware.RequireAction(rbac.ActionTransitionRequest)).
				Post("/{id}/accept", handler.AcceptRequest)
			r.With(middleware.RequireAction(rbac.ActionTransitionRequest)).
				Post("/{id}/reject", handler.RejectRequest)
		})

		// Каталог пользователей и повышение ролей — только Admin.
		r.With(middleware.RequireAction(rbac.ActionViewModerationDashboard)).
			Get("/users", handler.ListUsers)
		r.With(middleware.RequireAction(rbac.ActionElevateRole)).
			Post("/users/{id}/elevate", handler.ElevateUser)

		// Журнал аудита — только Admin.
		r.With(middleware.RequireAction(rbac.ActionViewModerationDashboard)).
			Get("/audit", handler.ListAudit)
	})

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
