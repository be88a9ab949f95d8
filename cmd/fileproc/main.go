// Точка входа API-сервера File Processor.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL
// и RabbitMQ, собирает сервисный слой и API handlers, запускает
// topologymetrics и HTTP-сервер с JWT middleware и graceful shutdown.
// Обработкой заданий занимается отдельный бинарник fileproc-worker.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/fileproc/internal/api/handlers"
	"github.com/bigkaa/fileproc/internal/api/middleware"
	"github.com/bigkaa/fileproc/internal/config"
	"github.com/bigkaa/fileproc/internal/queue"
	"github.com/bigkaa/fileproc/internal/repository"
	"github.com/bigkaa/fileproc/internal/server"
	"github.com/bigkaa/fileproc/internal/service"
	"github.com/bigkaa/fileproc/internal/storage/filestore"
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
	logger.Info("File Processor запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("FP_DEPHEALTH_GROUP") == "" {
		logger.Warn("FP_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	if cfg.MigrateOnStart {
		logger.Info("Применение миграций БД...")
		if err := repository.Migrate(cfg.DatabaseURL); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := repository.Connect(ctx, cfg.DatabaseURL, logger)
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

	// 5. Хранилище байт файлов
	store, err := filestore.New(cfg.UploadDir)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища файлов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Хранилище файлов готово", slog.String("dir", store.DataDir()))

	// 6. Producer очереди заданий (RabbitMQ)
	producer, err := queue.NewAMQPProducer(queue.AMQPConfig{
		URL:             cfg.QueueURL,
		QueueName:       cfg.QueueName,
		JobName:         cfg.JobName,
		FailedRetention: cfg.QueueFailedRetention,
		Retry: queue.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			Backoff:     cfg.RetryBackoff,
		},
	}, logger)
	if err != nil {
		logger.Error("Ошибка подключения к очереди заданий", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer producer.Close()

	// 7. Repository и сервисный слой
	fileRepo := repository.NewFileRepository(pool)
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	ingestSvc := service.NewIngestService(cfg.MaxFileSize, store, fileRepo, producer, logger)
	querySvc := service.NewQueryService(fileRepo, cache, logger)

	// 8. Readiness checkers (PostgreSQL + RabbitMQ) и handlers
	pgChecker := repository.NewReadinessChecker(pool)
	healthHandler := handlers.NewHealthHandler(pgChecker, producer)
	apiHandler := handlers.NewAPIHandler(ingestSvc, querySvc, healthHandler, logger)

	// 9. Middleware: метрики, логирование запросов, JWT
	serverMiddlewares := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}

	// JWT-аутентификация включается при заданном FP_JWKS_URL.
	// Health и metrics доступны без токена.
	if cfg.JWKSURL != "" {
		jwtAuth, jwtErr := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:   cfg.JWKSURL,
			JWTLeeway: cfg.JWTLeeway,
		}, logger)
		if jwtErr != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", jwtErr.Error()))
			os.Exit(1)
		}
		serverMiddlewares = append(serverMiddlewares,
			server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health", "/metrics"))
		logger.Info("JWT middleware инициализирован", slog.String("jwks_url", cfg.JWKSURL))
	} else {
		logger.Warn("FP_JWKS_URL не задан, API работает без аутентификации")
	}

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL + RabbitMQ)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"fileproc",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL,
		cfg.QueueMgmtURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 11. Создание и запуск HTTP-сервера (блокирующий вызов)
	srv := server.New(cfg, logger, apiHandler, serverMiddlewares...)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Graceful shutdown фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("File Processor остановлен")
}
