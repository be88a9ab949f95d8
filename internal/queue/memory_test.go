package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// collectHandler накапливает обработанные задания и возвращает
// заранее заданные ошибки по номеру вызова для file_id.
type collectHandler struct {
	mu    sync.Mutex
	calls []Job
	// errs — ошибки, возвращаемые по порядку вызовов; после
	// исчерпания списка обработчик возвращает nil
	errs []error
}

func (h *collectHandler) handle(_ context.Context, job Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls = append(h.calls, job)
	if len(h.calls) <= len(h.errs) {
		return h.errs[len(h.calls)-1]
	}
	return nil
}

func (h *collectHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

// runQueue запускает обработку в фоне и возвращает функцию остановки.
func runQueue(t *testing.T, q *MemoryQueue, h Handler) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, h)
	}()

	return func() {
		cancel()
		<-done
	}
}

// waitFor опрашивает условие до истечения таймаута.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// TestMemoryQueue_Success проверяет доставку и подтверждение задания.
func TestMemoryQueue_Success(t *testing.T) {
	q := NewMemoryQueue(8, "process-file-job", 50, RetryPolicy{})
	h := &collectHandler{}

	stop := runQueue(t, q, h.handle)
	defer stop()

	if err := q.Enqueue(context.Background(), 101); err != nil {
		t.Fatalf("ошибка публикации: %v", err)
	}

	waitFor(t, func() bool { return h.callCount() == 1 }, "задание не доставлено")

	h.mu.Lock()
	job := h.calls[0]
	h.mu.Unlock()

	if job.FileID != 101 {
		t.Errorf("file_id: ожидалось 101, получено %d", job.FileID)
	}
	if job.Name != "process-file-job" {
		t.Errorf("имя задания: ожидалось process-file-job, получено %s", job.Name)
	}
	if job.Attempt != 1 {
		t.Errorf("попытка: ожидалось 1, получено %d", job.Attempt)
	}
	if len(q.Failed()) != 0 {
		t.Error("успешное задание не должно попадать в failed")
	}
}

// TestMemoryQueue_NoRetry проверяет политику без повторов:
// первая же ошибка переводит задание в failed.
func TestMemoryQueue_NoRetry(t *testing.T) {
	q := NewMemoryQueue(8, "process-file-job", 50, RetryPolicy{MaxAttempts: 0})
	h := &collectHandler{errs: []error{errors.New("обработка не удалась")}}

	stop := runQueue(t, q, h.handle)
	defer stop()

	if err := q.Enqueue(context.Background(), 5); err != nil {
		t.Fatalf("ошибка публикации: %v", err)
	}

	waitFor(t, func() bool { return len(q.Failed()) == 1 }, "задание не попало в failed")

	if got := h.callCount(); got != 1 {
		t.Errorf("обработчик должен вызываться один раз, вызвано %d", got)
	}
	if q.Failed()[0].FileID != 5 {
		t.Errorf("file_id в failed: ожидалось 5, получено %d", q.Failed()[0].FileID)
	}
}

// TestMemoryQueue_RetryThenSuccess проверяет повтор после временной ошибки.
func TestMemoryQueue_RetryThenSuccess(t *testing.T) {
	q := NewMemoryQueue(8, "process-file-job", 50,
		RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond})
	h := &collectHandler{errs: []error{errors.New("временный сбой")}}

	stop := runQueue(t, q, h.handle)
	defer stop()

	if err := q.Enqueue(context.Background(), 7); err != nil {
		t.Fatalf("ошибка публикации: %v", err)
	}

	waitFor(t, func() bool { return h.callCount() == 2 }, "повтор не доставлен")

	h.mu.Lock()
	second := h.calls[1]
	h.mu.Unlock()

	if second.Attempt != 2 {
		t.Errorf("номер попытки: ожидалось 2, получено %d", second.Attempt)
	}
	if len(q.Failed()) != 0 {
		t.Error("успешный повтор не должен попадать в failed")
	}
}

// TestMemoryQueue_RetryExhausted проверяет исчерпание попыток.
func TestMemoryQueue_RetryExhausted(t *testing.T) {
	fail := errors.New("постоянный сбой")
	q := NewMemoryQueue(8, "process-file-job", 50,
		RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond})
	h := &collectHandler{errs: []error{fail, fail, fail}}

	stop := runQueue(t, q, h.handle)
	defer stop()

	if err := q.Enqueue(context.Background(), 9); err != nil {
		t.Fatalf("ошибка публикации: %v", err)
	}

	waitFor(t, func() bool { return len(q.Failed()) == 1 }, "задание не попало в failed")

	// 1 основная попытка + 2 повтора
	if got := h.callCount(); got != 3 {
		t.Errorf("ожидалось 3 вызова обработчика, получено %d", got)
	}
}

// TestMemoryQueue_PermanentError проверяет, что постоянная ошибка
// не повторяется даже при разрешённых повторах.
func TestMemoryQueue_PermanentError(t *testing.T) {
	q := NewMemoryQueue(8, "process-file-job", 50,
		RetryPolicy{MaxAttempts: 5, Backoff: time.Millisecond})
	h := &collectHandler{errs: []error{Permanent(errors.New("запись не найдена"))}}

	stop := runQueue(t, q, h.handle)
	defer stop()

	if err := q.Enqueue(context.Background(), 11); err != nil {
		t.Fatalf("ошибка публикации: %v", err)
	}

	waitFor(t, func() bool { return len(q.Failed()) == 1 }, "задание не попало в failed")

	if got := h.callCount(); got != 1 {
		t.Errorf("постоянная ошибка не должна повторяться, вызвано %d", got)
	}
}

// TestMemoryQueue_FailedRetention проверяет ограничение длины failed.
func TestMemoryQueue_FailedRetention(t *testing.T) {
	q := NewMemoryQueue(16, "process-file-job", 3, RetryPolicy{})
	h := &collectHandler{errs: []error{
		errors.New("e"), errors.New("e"), errors.New("e"),
		errors.New("e"), errors.New("e"),
	}}

	stop := runQueue(t, q, h.handle)
	defer stop()

	for i := int64(1); i <= 5; i++ {
		if err := q.Enqueue(context.Background(), i); err != nil {
			t.Fatalf("ошибка публикации: %v", err)
		}
	}

	waitFor(t, func() bool { return h.callCount() == 5 }, "не все задания обработаны")

	failed := q.Failed()
	if len(failed) != 3 {
		t.Fatalf("ожидалось 3 записи в failed, получено %d", len(failed))
	}
	// Остаются самые свежие записи
	if failed[0].FileID != 3 || failed[2].FileID != 5 {
		t.Errorf("в failed должны остаться задания 3..5, получено %v", failed)
	}
}

// TestMemoryQueue_EnqueueAfterClose проверяет ошибку публикации
// в закрытую очередь.
func TestMemoryQueue_EnqueueAfterClose(t *testing.T) {
	q := NewMemoryQueue(8, "process-file-job", 50, RetryPolicy{})
	q.Close()

	if err := q.Enqueue(context.Background(), 1); err == nil {
		t.Error("ожидалась ошибка публикации в закрытую очередь")
	}
}

// TestMemoryQueue_CloseUnblocksEnqueue проверяет, что Close разблокирует
// отправителя, ожидающего места в заполненном буфере, без паники.
func TestMemoryQueue_CloseUnblocksEnqueue(t *testing.T) {
	q := NewMemoryQueue(1, "process-file-job", 50, RetryPolicy{})
	if err := q.Enqueue(context.Background(), 1); err != nil {
		t.Fatalf("ошибка публикации: %v", err)
	}

	// Второй Enqueue блокируется: буфер заполнен, потребителя нет
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Enqueue(context.Background(), 2)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("ожидалась ошибка публикации в закрытую очередь")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue завис после Close")
	}
}

// TestMemoryQueue_DrainAfterClose проверяет, что Run дочитывает буфер
// после Close и завершается без ошибки.
func TestMemoryQueue_DrainAfterClose(t *testing.T) {
	q := NewMemoryQueue(8, "process-file-job", 50, RetryPolicy{})
	h := &collectHandler{}

	for i := int64(1); i <= 3; i++ {
		if err := q.Enqueue(context.Background(), i); err != nil {
			t.Fatalf("ошибка публикации: %v", err)
		}
	}
	q.Close()

	if err := q.Run(context.Background(), h.handle); err != nil {
		t.Fatalf("Run после Close должен завершаться без ошибки: %v", err)
	}
	if got := h.callCount(); got != 3 {
		t.Errorf("буфер должен дочитываться после Close: обработано %d из 3", got)
	}
}
