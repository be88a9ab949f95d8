package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/fileproc/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `id, owner_id, original_filename, storage_path, mimetype, size,
	title, description, status, extracted_data, uploaded_at, updated_at`

// CreateParams — параметры создания записи о файле.
type CreateParams struct {
	// OwnerID — идентификатор владельца
	OwnerID int64
	// OriginalFilename — оригинальное имя файла
	OriginalFilename string
	// StoragePath — относительный путь байт в хранилище
	StoragePath string
	// Mimetype — заявленный MIME-тип
	Mimetype string
	// Size — размер файла в байтах (> 0)
	Size int64
	// Title — опциональный заголовок
	Title *string
	// Description — опциональное описание
	Description *string
}

// FileRepository — интерфейс доступа к таблице files.
// Статусные мутации выражены отдельными операциями, а не общим Update:
// переходы конечного автомата — единственный способ изменить статус.
type FileRepository interface {
	// Create создаёт запись со статусом UPLOADED и возвращает её.
	Create(ctx context.Context, params CreateParams) (*model.FileRecord, error)
	// GetByID возвращает запись по id или ErrNotFound.
	GetByID(ctx context.Context, id int64) (*model.FileRecord, error)
	// ListByOwner возвращает страницу записей владельца (uploaded_at DESC)
	// и общее количество его записей.
	ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]*model.FileRecord, int, error)
	// MarkProcessing переводит запись в PROCESSING.
	MarkProcessing(ctx context.Context, id int64) error
	// FinishProcessed переводит запись в PROCESSED и сохраняет результат обработки.
	FinishProcessed(ctx context.Context, id int64, extractedData string) error
	// FinishFailed переводит запись в FAILED и сохраняет усечённое сообщение об ошибке.
	FinishFailed(ctx context.Context, id int64, message string) error
	// Delete удаляет запись (best-effort откат при ошибке постановки в очередь).
	Delete(ctx context.Context, id int64) error
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// scanFile сканирует строку таблицы files в FileRecord.
// Статус проходит через model.ParseStatus: неизвестное значение в столбце
// status — ошибка чтения, а не молчаливо принятый статус.
func scanFile(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	var status string
	if err := row.Scan(
		&f.ID, &f.OwnerID, &f.OriginalFilename, &f.StoragePath, &f.Mimetype, &f.Size,
		&f.Title, &f.Description, &status, &f.ExtractedData, &f.UploadedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}

	st, err := model.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("запись файла %d: %w", f.ID, err)
	}
	f.Status = st
	return f, nil
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// Create создаёт запись со статусом UPLOADED.
func (r *fileRepo) Create(ctx context.Context, params CreateParams) (*model.FileRecord, error) {
	query := fmt.Sprintf(`
		INSERT INTO files (owner_id, original_filename, storage_path, mimetype, size,
			title, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s`, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, query,
		params.OwnerID, params.OriginalFilename, params.StoragePath,
		params.Mimetype, params.Size, params.Title, params.Description,
		model.StatusUploaded,
	))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания записи файла: %w", err)
	}
	return f, nil
}

// GetByID возвращает запись по id или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, id int64) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

// ListByOwner возвращает страницу записей владельца и общее количество.
// Порядок строго uploaded_at DESC; id DESC — детерминированный tie-breaker
// для записей с одинаковым uploaded_at.
func (r *fileRepo) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]*model.FileRecord, int, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM files
		WHERE owner_id = $1
		ORDER BY uploaded_at DESC, id DESC
		LIMIT $2 OFFSET $3`, fileColumns)

	rows, err := r.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка листинга файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM files WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта файлов: %w", err)
	}

	return result, total, nil
}

// MarkProcessing переводит запись в PROCESSING.
// clock_timestamp() вместо now(): updated_at строго возрастает даже для
// нескольких мутаций внутри одной транзакции.
func (r *fileRepo) MarkProcessing(ctx context.Context, id int64) error {
	return r.updateStatus(ctx, id, `
		UPDATE files
		SET status = $2, updated_at = clock_timestamp()
		WHERE id = $1`, model.StatusProcessing)
}

// FinishProcessed переводит запись в PROCESSED и сохраняет результат.
func (r *fileRepo) FinishProcessed(ctx context.Context, id int64, extractedData string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE files
		SET status = $2, extracted_data = $3, updated_at = clock_timestamp()
		WHERE id = $1`, id, model.StatusProcessed, extractedData)
	if err != nil {
		return fmt.Errorf("ошибка завершения обработки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishFailed переводит запись в FAILED и сохраняет сообщение об ошибке
// в extracted_data (поведение оригинальной системы: результат и причина
// отказа живут в одном поле).
func (r *fileRepo) FinishFailed(ctx context.Context, id int64, message string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE files
		SET status = $2, extracted_data = $3, updated_at = clock_timestamp()
		WHERE id = $1`, id, model.StatusFailed, message)
	if err != nil {
		return fmt.Errorf("ошибка фиксации отказа обработки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет запись по id.
func (r *fileRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// updateStatus — общий UPDATE статуса без дополнительных полей.
func (r *fileRepo) updateStatus(ctx context.Context, id int64, query string, status model.FileStatus) error {
	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
