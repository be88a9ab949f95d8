// Пакет config — загрузка и валидация конфигурации File Processor
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

// Config содержит все параметры конфигурации File Processor.
// Используется обоими бинарниками: API-сервером и воркером.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration
	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	// URL подключения к PostgreSQL (обязательный)
	DatabaseURL string
	// Выполнять миграции при старте
	MigrateOnStart bool

	// --- Хранилище файлов ---

	// Директория хранения загруженных файлов
	UploadDir string
	// Максимальный размер файла в байтах (по умолчанию 10 MB)
	MaxFileSize int64

	// --- Очередь обработки ---

	// URL подключения к RabbitMQ (обязательный)
	QueueURL string
	// URL management endpoint RabbitMQ для мониторинга зависимостей
	// (опциональный, пустая строка отключает проверку)
	QueueMgmtURL string
	// Имя очереди обработки. Должно совпадать у producer и воркера.
	QueueName string
	// Имя типа job. Должно совпадать у producer и воркера.
	JobName string
	// Количество неуспешных job, сохраняемых для диагностики
	QueueFailedRetention int
	// Максимальное количество попыток обработки job (0 = без retry)
	RetryMaxAttempts int
	// Базовая задержка экспоненциального backoff между попытками
	RetryBackoff time.Duration

	// --- Воркер ---

	// Повторно обрабатывать записи в терминальном статусе при redelivery.
	// true — безусловный re-run (результат детерминирован), false — ack no-op.
	ReprocessTerminal bool
	// Верхняя граница симулируемой задержки обработки (0 = без задержки)
	ProcessingDelayMax time.Duration

	// --- JWT ---

	// URL JWKS endpoint для валидации токенов
	JWKSURL string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Кэш Query Service ---

	// Максимальное количество записей в LRU-кэше терминальных записей
	CacheSize int
	// TTL записи кэша
	CacheTTL time.Duration

	// --- topologymetrics ---

	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// FP_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("FP_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("FP_PORT: %w", err)
	}

	// FP_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("FP_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("FP_LOG_LEVEL: %w", err)
	}

	// FP_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FP_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("FP_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("FP_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("FP_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("FP_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	// FP_DATABASE_URL — обязательный
	cfg.DatabaseURL, err = getEnvRequired("FP_DATABASE_URL")
	if err != nil {
		return nil, err
	}

	// FP_MIGRATE_ON_START — выполнять миграции при старте (по умолчанию true)
	cfg.MigrateOnStart, err = getEnvBool("FP_MIGRATE_ON_START", true)
	if err != nil {
		return nil, fmt.Errorf("FP_MIGRATE_ON_START: %w", err)
	}

	// --- Хранилище файлов ---

	// FP_UPLOAD_DIR — директория хранения (по умолчанию ./uploads)
	cfg.UploadDir = getEnvDefault("FP_UPLOAD_DIR", "./uploads")

	// FP_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 10 MB)
	cfg.MaxFileSize, err = getEnvInt64("FP_MAX_FILE_SIZE", 10*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("FP_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("FP_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// --- Очередь обработки ---

	// FP_QUEUE_URL — обязательный
	cfg.QueueURL, err = getEnvRequired("FP_QUEUE_URL")
	if err != nil {
		return nil, err
	}

	// FP_QUEUE_MGMT_URL — management endpoint RabbitMQ (опциональный)
	cfg.QueueMgmtURL = getEnvDefault("FP_QUEUE_MGMT_URL", "")

	// FP_QUEUE_NAME — имя очереди (по умолчанию file-processing-queue)
	cfg.QueueName = getEnvDefault("FP_QUEUE_NAME", "file-processing-queue")

	// FP_JOB_NAME — имя типа job (по умолчанию process-file-job)
	cfg.JobName = getEnvDefault("FP_JOB_NAME", "process-file-job")

	// FP_QUEUE_FAILED_RETENTION — хранение неуспешных job (по умолчанию 50)
	cfg.QueueFailedRetention, err = getEnvInt("FP_QUEUE_FAILED_RETENTION", 50)
	if err != nil {
		return nil, fmt.Errorf("FP_QUEUE_FAILED_RETENTION: %w", err)
	}
	if cfg.QueueFailedRetention < 0 {
		return nil, fmt.Errorf("FP_QUEUE_FAILED_RETENTION: значение не может быть отрицательным")
	}

	// FP_RETRY_MAX_ATTEMPTS — количество попыток (по умолчанию 0, без retry)
	cfg.RetryMaxAttempts, err = getEnvInt("FP_RETRY_MAX_ATTEMPTS", 0)
	if err != nil {
		return nil, fmt.Errorf("FP_RETRY_MAX_ATTEMPTS: %w", err)
	}
	if cfg.RetryMaxAttempts < 0 {
		return nil, fmt.Errorf("FP_RETRY_MAX_ATTEMPTS: значение не может быть отрицательным")
	}

	// FP_RETRY_BACKOFF — базовая задержка backoff (по умолчанию 1s)
	cfg.RetryBackoff, err = getEnvDuration("FP_RETRY_BACKOFF", time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_RETRY_BACKOFF: %w", err)
	}

	// --- Воркер ---

	// FP_WORKER_REPROCESS_TERMINAL — re-run для терминальных записей (по умолчанию true)
	cfg.ReprocessTerminal, err = getEnvBool("FP_WORKER_REPROCESS_TERMINAL", true)
	if err != nil {
		return nil, fmt.Errorf("FP_WORKER_REPROCESS_TERMINAL: %w", err)
	}

	// FP_PROCESSING_DELAY_MAX — верхняя граница симулируемой задержки (по умолчанию 0)
	cfg.ProcessingDelayMax, err = getEnvDuration("FP_PROCESSING_DELAY_MAX", 0)
	if err != nil {
		return nil, fmt.Errorf("FP_PROCESSING_DELAY_MAX: %w", err)
	}

	// --- JWT ---

	// FP_JWKS_URL — URL JWKS endpoint (опциональный: без него аутентификация выключена)
	cfg.JWKSURL = getEnvDefault("FP_JWKS_URL", "")

	// FP_JWT_LEEWAY — допустимое отклонение времени (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("FP_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_JWT_LEEWAY: %w", err)
	}

	// --- Кэш ---

	// FP_CACHE_SIZE — размер LRU-кэша (по умолчанию 1024)
	cfg.CacheSize, err = getEnvInt("FP_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("FP_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("FP_CACHE_SIZE: значение должно быть положительным")
	}

	// FP_CACHE_TTL — TTL записи кэша (по умолчанию 10m)
	cfg.CacheTTL, err = getEnvDuration("FP_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FP_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthCheckInterval, err = getEnvDuration("FP_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("FP_DEPHEALTH_GROUP", "fileproc")

	return cfg, nil
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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
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
