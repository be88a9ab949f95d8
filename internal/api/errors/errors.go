// Пакет errors — конструкторы стандартных ошибок API File Processor.
// Единый формат тела ответа:
//
//	{"statusCode": ..., "timestamp": ..., "path": ..., "method": ..., "errorType": ..., "message": ...}
//
// Все HTTP-ответы с ошибками должны использовать WriteError — единая
// таблица соответствия вида ошибки и ответа, без per-handler логики.
package errors //nolint:revive // конфликт со stdlib, сохранено ради симметрии с api/handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Типы ошибок, отдаваемые в поле errorType.
const (
	TypeValidationError  = "ValidationError"
	TypeUnauthorized     = "Unauthorized"
	TypeForbidden        = "Forbidden"
	TypeNotFound         = "NotFound"
	TypeStorageError     = "StorageError"
	TypePersistenceError = "PersistenceError"
	TypeInternalError    = "InternalServerError"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
	Method     string `json:"method"`
	ErrorType  string `json:"errorType"`
	Message    string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, errorType — машиночитаемый тип,
// message — человекочитаемое описание.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		StatusCode: statusCode,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       r.URL.Path,
		Method:     r.Method,
		ErrorType:  errorType,
		Message:    message,
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
// messages объединяются через "; " (список ошибок валидации).
func ValidationError(w http.ResponseWriter, r *http.Request, messages ...string) {
	WriteError(w, r, http.StatusBadRequest, TypeValidationError, strings.Join(messages, "; "))
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusUnauthorized, TypeUnauthorized, message)
}

// Forbidden — 403 доступ к чужой записи.
func Forbidden(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusForbidden, TypeForbidden, message)
}

// NotFound — 404 запись не найдена.
func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, TypeNotFound, message)
}

// StorageError — 500 ошибка записи/чтения байт в durable-хранилище.
func StorageError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, TypeStorageError, message)
}

// PersistenceError — 500 ошибка Persistence Store.
func PersistenceError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, TypePersistenceError, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, TypeInternalError, message)
}
