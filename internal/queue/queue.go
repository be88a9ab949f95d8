// Пакет queue — контракты очереди заданий обработки файлов.
// Доставка at-least-once: задание удаляется из очереди только после
// подтверждения обработчика, сбой брокера приводит к повторной доставке.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Job — задание обработки файла. Payload в очереди — JSON {"fileId": N},
// имя задания передаётся отдельным заголовком сообщения.
type Job struct {
	// Name — имя задания (FP_JOB_NAME)
	Name string `json:"-"`
	// FileID — идентификатор записи файла
	FileID int64 `json:"fileId"`
	// Attempt — номер попытки доставки, начиная с 1
	Attempt int `json:"-"`
}

// Handler — обработчик задания. Ошибка приводит к повторной доставке
// согласно RetryPolicy, nil — к подтверждению (ack).
type Handler func(ctx context.Context, job Job) error

// Producer — публикация заданий в очередь.
type Producer interface {
	// Enqueue публикует ровно одно задание для записи файла.
	Enqueue(ctx context.Context, fileID int64) error
	Close() error
}

// Consumer — получение и обработка заданий из очереди.
type Consumer interface {
	// Run блокируется до отмены ctx, передавая задания в handler по одному.
	Run(ctx context.Context, handler Handler) error
	Close() error
}

// RetryPolicy — политика повторов обработки задания.
type RetryPolicy struct {
	// MaxAttempts — число дополнительных попыток после первой.
	// 0 — без повторов: первая же ошибка переводит задание в failed.
	MaxAttempts int
	// Backoff — базовая задержка перед повтором
	Backoff time.Duration
}

// Delay возвращает задержку перед попыткой attempt (нумерация с 1).
// Экспоненциальный рост: Backoff * 2^(attempt-1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := math.Pow(2, float64(attempt-1))
	return time.Duration(float64(p.Backoff) * mult)
}

// Exhausted сообщает, исчерпаны ли попытки для задания,
// завершившегося ошибкой на попытке attempt.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts+1
}

// PermanentError — ошибка обработки, при которой повторы бессмысленны
// (например, запись файла не существует). Задание сразу уходит в failed.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent оборачивает ошибку как не подлежащую повтору.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent проверяет, помечена ли ошибка как постоянная.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
