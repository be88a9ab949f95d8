// ingest.go — сервис приёма файлов: валидация, сохранение байт,
// создание записи и постановка задания обработки в очередь.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	apierrors "github.com/bigkaa/fileproc/internal/api/errors"
	"github.com/bigkaa/fileproc/internal/domain/model"
	"github.com/bigkaa/fileproc/internal/queue"
	"github.com/bigkaa/fileproc/internal/repository"
	"github.com/bigkaa/fileproc/internal/storage/filestore"
)

// maxTitleLen — максимальная длина заголовка (ограничение столбца title).
const maxTitleLen = 255

// uploadAcceptedMessage — сообщение ответа при успешном приёме файла.
const uploadAcceptedMessage = "File uploaded successfully and queued for processing."

// IngestParams — параметры приёма файла.
type IngestParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalFilename — оригинальное имя файла из multipart part
	OriginalFilename string
	// ContentType — заявленный MIME-тип
	ContentType string
	// Size — заявленный размер файла в байтах
	Size int64
	// OwnerID — владелец (sub из JWT)
	OwnerID int64
	// Title — опциональный заголовок
	Title *string
	// Description — опциональное описание
	Description *string
}

// IngestResult — результат приёма файла.
type IngestResult struct {
	Record *model.FileRecord
	// Message — человекочитаемое подтверждение приёма
	Message string
}

// IngestError — ошибка приёма с HTTP-кодом.
type IngestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IngestService — сервис приёма файлов.
type IngestService struct {
	maxFileSize int64
	store       *filestore.FileStore
	repo        repository.FileRepository
	producer    queue.Producer
	logger      *slog.Logger
}

// NewIngestService создаёт сервис приёма файлов.
func NewIngestService(
	maxFileSize int64,
	store *filestore.FileStore,
	repo repository.FileRepository,
	producer queue.Producer,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		maxFileSize: maxFileSize,
		store:       store,
		repo:        repo,
		producer:    producer,
		logger:      logger.With(slog.String("component", "ingest_service")),
	}
}

// MaxFileSize возвращает максимальный допустимый размер файла в байтах.
func (s *IngestService) MaxFileSize() int64 {
	return s.maxFileSize
}

// Ingest принимает файл.
//
// Поток:
//  1. Валидация параметров
//  2. SaveFile (байты на диск, атомарно)
//  3. repo.Create (запись со статусом UPLOADED)
//  4. producer.Enqueue (ровно одно задание)
//
// При ошибке на шагах 3-4 — откат: удаление байт и записи best-effort.
// Откат не гарантирован (процесс может упасть между шагами), поэтому
// очередь и воркер обязаны переносить задания для несуществующих записей.
func (s *IngestService) Ingest(ctx context.Context, params IngestParams) (*IngestResult, *IngestError) {
	// 1. Валидация
	if verr := s.validate(params); verr != nil {
		return nil, verr
	}

	// 2. Сохраняем байты на диск
	saved, err := s.store.SaveFile(params.Reader, params.OriginalFilename, params.OwnerID)
	if err != nil {
		s.logger.Error("Ошибка сохранения файла на диск",
			slog.String("filename", params.OriginalFilename),
			slog.String("error", err.Error()))
		return nil, &IngestError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.TypeStorageError,
			Message:    "Не удалось сохранить файл в хранилище",
		}
	}

	// Откат: удаляем байты, если запись или задание не созданы
	rollbackBytes := func() {
		if derr := s.store.DeleteFile(saved.StoragePath); derr != nil {
			s.logger.Warn("Откат: не удалось удалить байты файла",
				slog.String("storage_path", saved.StoragePath),
				slog.String("error", derr.Error()))
		}
	}

	// Размер multipart part известен только после чтения потока:
	// проверяем фактический размер записанных байт.
	if saved.Size == 0 {
		rollbackBytes()
		return nil, &IngestError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.TypeValidationError,
			Message:    "Файл пуст",
		}
	}
	if saved.Size > s.maxFileSize {
		rollbackBytes()
		return nil, &IngestError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.TypeValidationError,
			Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", saved.Size, s.maxFileSize),
		}
	}

	// 3. Создаём запись в статусе UPLOADED
	record, err := s.repo.Create(ctx, repository.CreateParams{
		OwnerID:          params.OwnerID,
		OriginalFilename: params.OriginalFilename,
		StoragePath:      saved.StoragePath,
		Mimetype:         params.ContentType,
		Size:             saved.Size,
		Title:            params.Title,
		Description:      params.Description,
	})
	if err != nil {
		s.logger.Error("Ошибка создания записи о файле",
			slog.String("filename", params.OriginalFilename),
			slog.String("error", err.Error()))
		rollbackBytes()
		return nil, &IngestError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.TypePersistenceError,
			Message:    "Не удалось сохранить запись о файле",
		}
	}

	// 4. Публикуем ровно одно задание обработки
	if err := s.producer.Enqueue(ctx, record.ID); err != nil {
		s.logger.Error("Ошибка постановки задания в очередь",
			slog.Int64("file_id", record.ID),
			slog.String("error", err.Error()))
		// Best-effort откат записи и байт
		if derr := s.repo.Delete(ctx, record.ID); derr != nil {
			s.logger.Warn("Откат: не удалось удалить запись",
				slog.Int64("file_id", record.ID),
				slog.String("error", derr.Error()))
		}
		rollbackBytes()
		return nil, &IngestError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.TypeInternalError,
			Message:    "Не удалось поставить файл в очередь обработки",
		}
	}

	s.logger.Info("Файл принят и поставлен в очередь",
		slog.Int64("file_id", record.ID),
		slog.Int64("owner_id", params.OwnerID),
		slog.String("filename", params.OriginalFilename),
		slog.Int64("size", saved.Size))

	return &IngestResult{Record: record, Message: uploadAcceptedMessage}, nil
}

// validate проверяет параметры приёма до записи байт на диск.
func (s *IngestService) validate(params IngestParams) *IngestError {
	var problems []string

	if params.Reader == nil || params.OriginalFilename == "" {
		problems = append(problems, "Файл обязателен")
	}
	if params.OwnerID <= 0 {
		problems = append(problems, "Некорректный идентификатор владельца")
	}
	if params.Size > s.maxFileSize {
		problems = append(problems, fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", params.Size, s.maxFileSize))
	}
	// VARCHAR(255) считает символы, не байты
	if params.Title != nil && utf8.RuneCountInString(*params.Title) > maxTitleLen {
		problems = append(problems, fmt.Sprintf("Заголовок длиннее %d символов", maxTitleLen))
	}

	if len(problems) > 0 {
		return &IngestError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.TypeValidationError,
			Message:    strings.Join(problems, "; "),
		}
	}
	return nil
}
