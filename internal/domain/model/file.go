// Пакет model — доменные модели File Processor.
//
// FileRecord — запись о загруженном файле и результате его обработки.
// Статусы образуют конечный автомат:
//
//	UPLOADED → PROCESSING → PROCESSED | FAILED
//
// PROCESSED и FAILED — терминальные статусы, переходы из них не определены.
// Повторная доставка job для терминальной записи — policy decision воркера
// (FP_WORKER_REPROCESS_TERMINAL), а не переход конечного автомата.
package model

import (
	"fmt"
	"time"
)

// FileStatus — статус обработки файла.
type FileStatus string

const (
	// StatusUploaded — файл загружен, job поставлен в очередь.
	StatusUploaded FileStatus = "UPLOADED"
	// StatusProcessing — воркер выполняет обработку.
	StatusProcessing FileStatus = "PROCESSING"
	// StatusProcessed — обработка завершена успешно (терминальный).
	StatusProcessed FileStatus = "PROCESSED"
	// StatusFailed — обработка завершилась ошибкой (терминальный).
	StatusFailed FileStatus = "FAILED"
)

// validTransitions — матрица допустимых переходов статусов.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validTransitions = map[FileStatus]map[FileStatus]bool{
	StatusUploaded:   {StatusProcessing: true},
	StatusProcessing: {StatusProcessed: true, StatusFailed: true},
	StatusProcessed:  {}, // Терминальный
	StatusFailed:     {}, // Терминальный
}

// IsTerminal возвращает true для терминальных статусов.
func (s FileStatus) IsTerminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// CanTransitionTo проверяет, допустим ли переход в указанный статус.
func (s FileStatus) CanTransitionTo(target FileStatus) bool {
	transitions, ok := validTransitions[s]
	if !ok {
		return false
	}
	return transitions[target]
}

// ParseStatus преобразует строку в FileStatus.
// Возвращает ошибку для недопустимых значений.
func ParseStatus(s string) (FileStatus, error) {
	st := FileStatus(s)
	if !isValidStatus(st) {
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: UPLOADED, PROCESSING, PROCESSED, FAILED", s)
	}
	return st, nil
}

// isValidStatus проверяет, является ли строка допустимым статусом.
func isValidStatus(s FileStatus) bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusProcessed, StatusFailed:
		return true
	default:
		return false
	}
}

// TransitionError — ошибка недопустимого перехода статуса.
type TransitionError struct {
	From FileStatus
	To   FileStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("переход %s → %s недопустим", e.From, e.To)
}

// FileRecord — запись реестра файлов (таблица files).
// OwnerID и StoragePath неизменяемы после создания.
// UpdatedAt строго возрастает при каждой мутации записи.
type FileRecord struct {
	// ID — числовой идентификатор, назначается БД при создании.
	ID int64 `json:"id"`
	// OwnerID — идентификатор владельца (sub из JWT).
	OwnerID int64 `json:"ownerId"`
	// OriginalFilename — оригинальное имя загруженного файла.
	OriginalFilename string `json:"originalFilename"`
	// StoragePath — относительный путь байт в хранилище.
	// Внутреннее поле, никогда не отдаётся клиентам.
	StoragePath string `json:"-"`
	// Mimetype — заявленный MIME-тип файла.
	Mimetype string `json:"mimetype"`
	// Size — размер файла в байтах (> 0).
	Size int64 `json:"size"`
	// Title — опциональный заголовок (≤ 255 символов).
	Title *string `json:"title"`
	// Description — опциональное описание.
	Description *string `json:"description"`
	// Status — текущий статус обработки.
	Status FileStatus `json:"status"`
	// ExtractedData — результат обработки, пишется только воркером.
	ExtractedData *string `json:"extractedData"`
	// UploadedAt — момент создания записи (неизменяемый).
	UploadedAt time.Time `json:"uploadedAt"`
	// UpdatedAt — момент последней мутации записи.
	UpdatedAt time.Time `json:"updatedAt"`
}
