// query.go — сервис чтения записей файлов: получение по id с проверкой
// владения и постраничный список записей владельца.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/fileproc/internal/api/errors"
	"github.com/bigkaa/fileproc/internal/domain/model"
	"github.com/bigkaa/fileproc/internal/repository"
)

// Параметры пагинации по умолчанию.
const (
	// DefaultPage — номер страницы по умолчанию
	DefaultPage = 1
	// DefaultLimit — размер страницы по умолчанию
	DefaultLimit = 10
	// MaxLimit — верхняя граница размера страницы
	MaxLimit = 100
)

// QueryError — ошибка чтения с HTTP-кодом.
type QueryError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// PageMeta — метаданные страницы списка.
type PageMeta struct {
	// Total — общее количество записей владельца
	Total int `json:"total"`
	// Page — номер текущей страницы (с 1)
	Page int `json:"page"`
	// Limit — размер страницы
	Limit int `json:"limit"`
	// LastPage — номер последней страницы, минимум 1
	LastPage int `json:"lastPage"`
}

// FilePage — страница записей файлов владельца.
type FilePage struct {
	Data []*model.FileRecord `json:"data"`
	Meta PageMeta            `json:"meta"`
}

// QueryService — сервис чтения записей файлов.
type QueryService struct {
	repo   repository.FileRepository
	cache  *CacheService
	logger *slog.Logger
}

// NewQueryService создаёт сервис чтения.
func NewQueryService(repo repository.FileRepository, cache *CacheService, logger *slog.Logger) *QueryService {
	return &QueryService{
		repo:   repo,
		cache:  cache,
		logger: logger.With(slog.String("component", "query_service")),
	}
}

// Get возвращает запись по id с проверкой владения.
//
// Порядок проверок фиксирован: сначала существование (404), затем
// владение (403). Чужая существующая запись отвечает 403 и тем самым
// подтверждает существование id — это осознанный выбор, не утечка.
func (s *QueryService) Get(ctx context.Context, id, callerID int64) (*model.FileRecord, *QueryError) {
	if record, ok := s.cache.Get(id); ok {
		if record.OwnerID != callerID {
			return nil, s.forbidden(id, callerID)
		}
		return record, nil
	}

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &QueryError{
				StatusCode: http.StatusNotFound,
				Code:       apierrors.TypeNotFound,
				Message:    fmt.Sprintf("File with ID %d not found", id),
			}
		}
		s.logger.Error("Ошибка чтения записи",
			slog.Int64("file_id", id),
			slog.String("error", err.Error()))
		return nil, &QueryError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.TypePersistenceError,
			Message:    "Не удалось прочитать запись о файле",
		}
	}

	if record.OwnerID != callerID {
		return nil, s.forbidden(id, callerID)
	}

	// Терминальные записи неизменяемы — их можно кэшировать
	s.cache.Set(record)

	return record, nil
}

// List возвращает страницу записей владельца, новые первыми.
// page и limit нормализуются: значения < 1 заменяются значениями
// по умолчанию, limit ограничен сверху MaxLimit.
func (s *QueryService) List(ctx context.Context, callerID int64, page, limit int) (*FilePage, *QueryError) {
	page, limit = NormalizePagination(page, limit)
	offset := (page - 1) * limit

	records, total, err := s.repo.ListByOwner(ctx, callerID, limit, offset)
	if err != nil {
		s.logger.Error("Ошибка чтения списка записей",
			slog.Int64("owner_id", callerID),
			slog.String("error", err.Error()))
		return nil, &QueryError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.TypePersistenceError,
			Message:    "Не удалось прочитать список файлов",
		}
	}

	if records == nil {
		records = []*model.FileRecord{}
	}

	return &FilePage{
		Data: records,
		Meta: PageMeta{
			Total:    total,
			Page:     page,
			Limit:    limit,
			LastPage: lastPage(total, limit),
		},
	}, nil
}

// forbidden — ответ 403 для чужой записи.
func (s *QueryService) forbidden(id, callerID int64) *QueryError {
	s.logger.Warn("Попытка доступа к чужой записи",
		slog.Int64("file_id", id),
		slog.Int64("caller_id", callerID))
	return &QueryError{
		StatusCode: http.StatusForbidden,
		Code:       apierrors.TypeForbidden,
		Message:    "You do not have permission to access this file",
	}
}

// NormalizePagination приводит параметры пагинации к допустимым значениям.
func NormalizePagination(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// lastPage возвращает номер последней страницы: ceil(total/limit), минимум 1.
func lastPage(total, limit int) int {
	if total <= 0 {
		return 1
	}
	lp := (total + limit - 1) / limit
	if lp < 1 {
		lp = 1
	}
	return lp
}
