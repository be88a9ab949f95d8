// Пакет worker — обработчик заданий очереди: ведёт запись файла по
// конечному автомату UPLOADED → PROCESSING → PROCESSED | FAILED и
// вычисляет результат обработки содержимого.
package worker

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/fileproc/internal/domain/model"
	"github.com/bigkaa/fileproc/internal/queue"
	"github.com/bigkaa/fileproc/internal/repository"
	"github.com/bigkaa/fileproc/internal/storage/filestore"
)

// maxErrorLen — максимальная длина сообщения об ошибке,
// сохраняемого в записи файла.
const maxErrorLen = 250

// Prometheus-метрики воркера.
var (
	jobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fp_jobs_processed_total",
		Help: "Общее количество обработанных заданий по результату.",
	}, []string{"result"})
	jobDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fp_job_duration_seconds",
		Help:    "Длительность обработки задания в секундах.",
		Buckets: prometheus.DefBuckets,
	})
)

// Extractor — вычисление результата обработки содержимого файла.
// Возвращаемая строка сохраняется в extracted_data записи.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, rec *model.FileRecord) (string, error)
}

// DigestExtractor — извлечение MD5-дайджеста содержимого файла.
// Потоковое чтение: файл не загружается в память целиком.
type DigestExtractor struct{}

// Extract вычисляет MD5 содержимого и возвращает сводку с дайджестом,
// фактическим размером и началом оригинального имени файла.
func (DigestExtractor) Extract(_ context.Context, r io.Reader, rec *model.FileRecord) (string, error) {
	hasher := md5.New()
	size, err := io.Copy(hasher, r)
	if err != nil {
		return "", fmt.Errorf("ошибка чтения содержимого: %w", err)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	return fmt.Sprintf("MD5 Checksum: %s, Size: %d bytes, Original: %.50s",
		digest, size, rec.OriginalFilename), nil
}

// Options — параметры поведения воркера.
type Options struct {
	// ReprocessTerminal — повторно обрабатывать записи в терминальном
	// статусе при redelivery. false — подтверждение без изменений.
	ReprocessTerminal bool
	// ProcessingDelayMax — верхняя граница симулируемой задержки
	// обработки (0 = без задержки)
	ProcessingDelayMax time.Duration
}

// Worker — обработчик заданий очереди file-processing.
type Worker struct {
	repo      repository.FileRepository
	store     *filestore.FileStore
	extractor Extractor
	opts      Options
	logger    *slog.Logger
}

// New создаёт воркер.
func New(
	repo repository.FileRepository,
	store *filestore.FileStore,
	extractor Extractor,
	opts Options,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		repo:      repo,
		store:     store,
		extractor: extractor,
		opts:      opts,
		logger:    logger.With(slog.String("component", "worker")),
	}
}

// Handle обрабатывает одно задание очереди.
//
// Поток:
//  1. Чтение записи (отсутствие — постоянная ошибка, запись не мутируется)
//  2. Переход в PROCESSING
//  3. Чтение байт и извлечение результата
//  4. PROCESSED + результат, либо FAILED + усечённое сообщение об ошибке
//
// Возврат ошибки означает повторную доставку задания по политике очереди.
// Обработка идемпотентна по отношению к redelivery: повторный прогон
// записи даёт тот же результат.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	start := time.Now()
	defer func() {
		jobDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	log := w.logger.With(
		slog.Int64("file_id", job.FileID),
		slog.Int("attempt", job.Attempt))

	rec, err := w.repo.GetByID(ctx, job.FileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Записи нет и не будет: повторы бессмысленны,
			// задание уходит в failed без мутации БД
			log.Warn("Задание для несуществующей записи")
			jobsProcessedTotal.WithLabelValues("orphan").Inc()
			return queue.Permanent(fmt.Errorf("запись файла %d не найдена", job.FileID))
		}
		log.Error("Ошибка чтения записи", slog.String("error", err.Error()))
		jobsProcessedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("чтение записи %d: %w", job.FileID, err)
	}

	if !rec.Status.CanTransitionTo(model.StatusProcessing) {
		// Redelivery: запись уже прошла UPLOADED. Прерванная
		// PROCESSING-обработка возобновляется всегда (at-least-once);
		// терминальная запись перерабатывается только по политике.
		if rec.Status.IsTerminal() && !w.opts.ReprocessTerminal {
			terr := &model.TransitionError{From: rec.Status, To: model.StatusProcessing}
			log.Info("Запись уже в терминальном статусе, пропуск",
				slog.String("reason", terr.Error()))
			jobsProcessedTotal.WithLabelValues("skipped").Inc()
			return nil
		}
	}

	if err := w.repo.MarkProcessing(ctx, job.FileID); err != nil {
		log.Error("Ошибка перехода в PROCESSING", slog.String("error", err.Error()))
		jobsProcessedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("переход записи %d в PROCESSING: %w", job.FileID, err)
	}

	log.Info("Обработка файла начата",
		slog.String("filename", rec.OriginalFilename),
		slog.Int64("size", rec.Size))

	if err := w.simulateDelay(ctx); err != nil {
		jobsProcessedTotal.WithLabelValues("error").Inc()
		return err
	}

	summary, err := w.extract(ctx, rec)
	if err != nil {
		// Фиксируем FAILED и возвращаем ошибку: очередь решает судьбу
		// задания по своей политике повторов
		w.markFailed(ctx, log, job.FileID, err)
		jobsProcessedTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("обработка записи %d: %w", job.FileID, err)
	}

	if err := w.repo.FinishProcessed(ctx, job.FileID, summary); err != nil {
		log.Error("Ошибка фиксации результата", slog.String("error", err.Error()))
		jobsProcessedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("фиксация результата записи %d: %w", job.FileID, err)
	}

	log.Info("Обработка файла завершена",
		slog.Duration("duration", time.Since(start)))
	jobsProcessedTotal.WithLabelValues("processed").Inc()
	return nil
}

// extract читает байты файла и вычисляет результат обработки.
func (w *Worker) extract(ctx context.Context, rec *model.FileRecord) (string, error) {
	f, err := w.store.ReadFile(rec.StoragePath)
	if err != nil {
		return "", fmt.Errorf("чтение байт файла: %w", err)
	}
	defer f.Close()

	return w.extractor.Extract(ctx, f, rec)
}

// markFailed переводит запись в FAILED с усечённым сообщением об ошибке.
// Ошибка самого перехода только логируется: исходная причина отказа важнее.
func (w *Worker) markFailed(ctx context.Context, log *slog.Logger, id int64, cause error) {
	msg := truncateError(cause.Error())
	if err := w.repo.FinishFailed(ctx, id, msg); err != nil {
		log.Error("Ошибка перехода в FAILED", slog.String("error", err.Error()))
		return
	}
	log.Warn("Обработка файла завершилась ошибкой", slog.String("error", msg))
}

// simulateDelay приостанавливает обработку на случайный интервал
// до ProcessingDelayMax. Используется для демонстрации асинхронности.
func (w *Worker) simulateDelay(ctx context.Context) error {
	if w.opts.ProcessingDelayMax <= 0 {
		return nil
	}

	delay := time.Duration(rand.Int63n(int64(w.opts.ProcessingDelayMax)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// truncateError усекает сообщение об ошибке до maxErrorLen байт.
func truncateError(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	return msg[:maxErrorLen]
}
