// files.go — обработчики файловых операций:
// POST /api/v1/files/upload — приём файла (202, обработка асинхронная)
// GET  /api/v1/files/{id}   — запись файла с проверкой владения
// GET  /api/v1/files        — постраничный список записей владельца
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/fileproc/internal/api/errors"
	"github.com/bigkaa/fileproc/internal/api/middleware"
	"github.com/bigkaa/fileproc/internal/domain/model"
	"github.com/bigkaa/fileproc/internal/service"
)

// multipartOverhead — запас к лимиту тела запроса сверх максимального
// размера файла: границы multipart, заголовки part, текстовые поля.
const multipartOverhead = 1 << 20

// uploadResponse — тело ответа 202 Accepted.
type uploadResponse struct {
	ID               int64            `json:"id"`
	Status           model.FileStatus `json:"status"`
	OriginalFilename string           `json:"originalFilename"`
	Title            *string          `json:"title,omitempty"`
	Description      *string          `json:"description,omitempty"`
	Message          string           `json:"message"`
}

// handleUploadFile — реализация POST /api/v1/files/upload.
// Принимает multipart/form-data: part "file" (обязательный) и текстовые
// поля "title", "description" (опциональные). Отвечает 202 сразу после
// фиксации записи и постановки задания: результат обработки запрашивается
// через GET /api/v1/files/{id}.
func (h *APIHandler) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.UserIDFromContext(r.Context())
	if ownerID <= 0 {
		apierrors.Unauthorized(w, r, "Требуется аутентификация")
		return
	}

	// Ограничиваем тело запроса: файл больше максимума обрывается
	// на чтении, а не буферизуется целиком
	maxBody := h.ingest.MaxFileSize() + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.ValidationError(w, r,
				fmt.Sprintf("Размер запроса превышает максимум %d байт", h.ingest.MaxFileSize()))
			return
		}
		apierrors.ValidationError(w, r, "Поле file обязательно и должно содержать файл")
		return
	}
	defer file.Close()

	params := service.IngestParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		Size:             header.Size,
		OwnerID:          ownerID,
	}
	if title := r.FormValue("title"); title != "" {
		params.Title = &title
	}
	if description := r.FormValue("description"); description != "" {
		params.Description = &description
	}

	result, ierr := h.ingest.Ingest(r.Context(), params)
	if ierr != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		apierrors.WriteError(w, r, ierr.StatusCode, ierr.Code, ierr.Message)
		return
	}

	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	writeJSON(w, http.StatusAccepted, uploadResponse{
		ID:               result.Record.ID,
		Status:           result.Record.Status,
		OriginalFilename: result.Record.OriginalFilename,
		Title:            result.Record.Title,
		Description:      result.Record.Description,
		Message:          result.Message,
	})
}

// handleGetFile — реализация GET /api/v1/files/{id}.
// Порядок проверок: 404 для несуществующего id раньше 403 для чужого.
func (h *APIHandler) handleGetFile(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserIDFromContext(r.Context())
	if callerID <= 0 {
		apierrors.Unauthorized(w, r, "Требуется аутентификация")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apierrors.ValidationError(w, r, "Идентификатор файла должен быть положительным числом")
		return
	}

	record, qerr := h.query.Get(r.Context(), id, callerID)
	if qerr != nil {
		middleware.OperationsTotal.WithLabelValues("get", "error").Inc()
		apierrors.WriteError(w, r, qerr.StatusCode, qerr.Code, qerr.Message)
		return
	}

	middleware.OperationsTotal.WithLabelValues("get", "success").Inc()
	writeJSON(w, http.StatusOK, record)
}

// handleListFiles — реализация GET /api/v1/files?page=N&limit=M.
// Некорректные значения пагинации заменяются значениями по умолчанию.
func (h *APIHandler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserIDFromContext(r.Context())
	if callerID <= 0 {
		apierrors.Unauthorized(w, r, "Требуется аутентификация")
		return
	}

	page := queryInt(r, "page")
	limit := queryInt(r, "limit")

	result, qerr := h.query.List(r.Context(), callerID, page, limit)
	if qerr != nil {
		middleware.OperationsTotal.WithLabelValues("list", "error").Inc()
		apierrors.WriteError(w, r, qerr.StatusCode, qerr.Code, qerr.Message)
		return
	}

	middleware.OperationsTotal.WithLabelValues("list", "success").Inc()
	writeJSON(w, http.StatusOK, result)
}

// queryInt возвращает целочисленный query-параметр.
// Отсутствующее или нечисловое значение — 0, далее нормализуется сервисом.
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}
