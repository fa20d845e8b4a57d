// Точка входа Admin Module — административный модуль платформы Blooddon.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует session resolver (JWKS) и клиент Blood Service,
// создаёт сервисный слой и API handlers, запускает topologymetrics,
// HTTP-сервер и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dronophaeton/blooddon/admin-module/internal/api/handlers"
	"github.com/dronophaeton/blooddon/admin-module/internal/bloodclient"
	"github.com/dronophaeton/blooddon/admin-module/internal/config"
	"github.com/dronophaeton/blooddon/admin-module/internal/database"
	"github.com/dronophaeton/blooddon/admin-module/internal/repository"
	"github.com/dronophaeton/blooddon/admin-module/internal/server"
	"github.com/dronophaeton/blooddon/admin-module/internal/service"
	"github.com/dronophaeton/blooddon/admin-module/internal/session"
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
	logger.Info("Admin Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("AM_DEPHEALTH_GROUP") == "" {
		logger.Warn("AM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД (журнал аудита)
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
	// Проверка здоровья PostgreSQL будет идти через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Session resolver — валидация JWT по JWKS провайдера аутентификации
	resolver, err := session.NewResolver(
		cfg.JWTJWKSURL,
		cfg.BloodServiceCACertPath,
		cfg.JWTIssuer,
		cfg.SessionCookie,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания session resolver", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session resolver инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("cookie", cfg.SessionCookie),
	)

	// 6. HTTP-клиент Blood Service
	bloodClient, err := bloodclient.New(
		cfg.BloodServiceURL,
		cfg.BloodServiceCACertPath,
		cfg.BloodServiceTimeout,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания клиента Blood Service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Клиент Blood Service создан", slog.String("url", cfg.BloodServiceURL))

	// 7. Repositories
	auditRepo := repository.NewAuditRepository(pool)

	// 8. Services
	moderationSvc := service.NewModerationService(bloodClient, auditRepo, logger)
	usersSvc := service.NewUserService(bloodClient, auditRepo, cfg.UserCacheSize, cfg.UserCacheTTL, logger)
	auditSvc := service.NewAuditService(auditRepo, logger)

	// 9. Readiness checkers (PostgreSQL + Blood Service + Auth JWKS)
	pgChecker := database.NewReadinessChecker(pool)
	bloodChecker := bloodclient.NewReadinessChecker(bloodClient)
	authChecker, err := session.NewAuthReadinessChecker(cfg.JWTJWKSURL, cfg.BloodServiceCACertPath, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания auth readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, bloodChecker, authChecker)

	// 10. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		moderationSvc,
		usersSvc,
		auditSvc,
		bloodClient,
		cfg.SessionCookie,
		logger,
	)

	// 11. topologymetrics — мониторинг зависимостей
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"admin-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.BloodServiceURL,
		cfg.JWTJWKSURL,
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
	srv := server.New(cfg, logger, apiHandler, resolver)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Admin Module остановлен")
}
