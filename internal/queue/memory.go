package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryQueue — очередь заданий в памяти процесса на канале.
// Реализует Producer и Consumer с той же семантикой повторов,
// что и AMQP-очередь. Используется в тестах и для локального
// запуска без брокера.
type MemoryQueue struct {
	// jobs никогда не закрывается: отправители могут блокироваться
	// на заполненном буфере, закрытие сигнализируется через done.
	jobs    chan Job
	done    chan struct{}
	jobName string
	retry   RetryPolicy

	mu        sync.Mutex
	failed    []Job
	retention int
	closed    bool
}

// NewMemoryQueue создаёт очередь с буфером size заданий.
func NewMemoryQueue(size int, jobName string, retention int, retry RetryPolicy) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		jobs:      make(chan Job, size),
		done:      make(chan struct{}),
		jobName:   jobName,
		retry:     retry,
		retention: retention,
	}
}

// Enqueue публикует задание. Блокируется при заполненном буфере
// до освобождения места, закрытия очереди или отмены ctx.
func (q *MemoryQueue) Enqueue(ctx context.Context, fileID int64) error {
	job := Job{Name: q.jobName, FileID: fileID, Attempt: 1}
	select {
	case <-q.done:
		return fmt.Errorf("очередь закрыта")
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return fmt.Errorf("очередь закрыта")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run обрабатывает задания по одному до отмены ctx или закрытия
// очереди. После закрытия буфер дочитывается до конца.
func (q *MemoryQueue) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-q.jobs:
			q.handleJob(ctx, job, handler)
		case <-q.done:
			for {
				select {
				case job := <-q.jobs:
					q.handleJob(ctx, job, handler)
				default:
					return nil
				}
			}
		}
	}
}

// handleJob повторяет семантику AMQP-consumer: успех — задание
// исчезает, ошибка — повтор по политике, исчерпание попыток или
// постоянная ошибка — перенос в failed.
func (q *MemoryQueue) handleJob(ctx context.Context, job Job, handler Handler) {
	err := handler(ctx, job)
	if err == nil {
		return
	}

	if IsPermanent(err) || q.retry.Exhausted(job.Attempt) {
		q.appendFailed(job)
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(q.retry.Delay(job.Attempt)):
	}

	retry := Job{Name: job.Name, FileID: job.FileID, Attempt: job.Attempt + 1}
	select {
	case q.jobs <- retry:
	case <-ctx.Done():
	}
}

// appendFailed добавляет задание в список failed, ограниченный retention:
// при переполнении выбрасывается самая старая запись.
func (q *MemoryQueue) appendFailed(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.failed = append(q.failed, job)
	if q.retention > 0 && len(q.failed) > q.retention {
		q.failed = q.failed[len(q.failed)-q.retention:]
	}
}

// Failed возвращает копию списка неуспешных заданий.
func (q *MemoryQueue) Failed() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, len(q.failed))
	copy(out, q.failed)
	return out
}

// Len возвращает число заданий, ожидающих обработки.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// Close закрывает очередь. Повторный вызов безопасен.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
