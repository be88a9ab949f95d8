// Точка входа воркера File Processor.
// Подключается к PostgreSQL и RabbitMQ, получает задания обработки
// по одному и ведёт записи файлов по конечному автомату
// UPLOADED → PROCESSING → PROCESSED | FAILED.
// Останавливается по SIGINT/SIGTERM: текущее задание дорабатывается,
// неподтверждённые возвращаются в очередь.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bigkaa/fileproc/internal/config"
	"github.com/bigkaa/fileproc/internal/queue"
	"github.com/bigkaa/fileproc/internal/repository"
	"github.com/bigkaa/fileproc/internal/storage/filestore"
	"github.com/bigkaa/fileproc/internal/worker"
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
	logger.Info("Воркер File Processor запускается",
		slog.String("version", config.Version),
		slog.String("queue", cfg.QueueName),
	)

	// 3. Подключение к PostgreSQL (pgxpool)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4. Хранилище байт файлов. Директория общая с API-сервером.
	store, err := filestore.New(cfg.UploadDir)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища файлов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Consumer очереди заданий (RabbitMQ)
	consumer, err := queue.NewAMQPConsumer(queue.AMQPConfig{
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
	defer consumer.Close()

	// 6. Обработчик заданий
	fileRepo := repository.NewFileRepository(pool)
	w := worker.New(fileRepo, store, worker.DigestExtractor{}, worker.Options{
		ReprocessTerminal:  cfg.ReprocessTerminal,
		ProcessingDelayMax: cfg.ProcessingDelayMax,
	}, logger)

	// 7. Цикл обработки (блокирующий вызов до сигнала завершения)
	logger.Info("Воркер готов к обработке заданий")
	if err := consumer.Run(ctx, w.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Цикл обработки завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Воркер File Processor остановлен")
}
