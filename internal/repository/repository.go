// Пакет repository — хранилище записей о фотографиях.
// Две реализации: in-memory (по умолчанию) и PostgreSQL (чистый SQL через pgx).
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/jspotlight/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — запись с таким ID уже существует.
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// PhotoRepository — CRUD записей о фотографиях.
// Реализации безопасны для конкурентного использования
// и возвращают копии, не связанные с внутренним состоянием.
type PhotoRepository interface {
	// Create сохраняет новую запись. Заполняет CreatedAt/UpdatedAt, если они пусты.
	Create(ctx context.Context, p *model.Photo) error
	// GetByID возвращает запись по ID.
	GetByID(ctx context.Context, id string) (*model.Photo, error)
	// List возвращает страницу записей (новые первыми) и общее число записей по фильтру.
	List(ctx context.Context, filter ListFilter) ([]*model.Photo, int, error)
	// Update меняет редактируемые поля записи.
	Update(ctx context.Context, id string, upd model.PhotoUpdate, updatedAt time.Time) (*model.Photo, error)
	// UpdateTags заменяет теги и их статус.
	UpdateTags(ctx context.Context, id string, tags []string, status model.TagStatus, updatedAt time.Time) (*model.Photo, error)
	// Delete удаляет запись.
	Delete(ctx context.Context, id string) error
	// ListSentinel возвращает до limit записей с sentinel-тегами, старые первыми.
	ListSentinel(ctx context.Context, limit int) ([]*model.Photo, error)
}

// ListFilter — параметры выборки списка.
type ListFilter struct {
	// Tag — вернуть только записи с этим тегом ("" — все)
	Tag string
	// Limit — размер страницы (0 — без ограничения)
	Limit int
	// Offset — смещение от начала списка
	Offset int
}

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
