package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/jspotlight/internal/domain/model"
)

// photoColumns — список колонок в порядке scanPhoto.
const photoColumns = `id, file_name, creation_date, file_path, tags, tag_status,
	content_type, size, checksum, uploaded_by, created_at, updated_at`

// photoRepo — реализация PhotoRepository на PostgreSQL.
type photoRepo struct {
	db DBTX
}

// NewPhotoRepository создаёт репозиторий записей на PostgreSQL.
func NewPhotoRepository(db DBTX) PhotoRepository {
	return &photoRepo{db: db}
}

func (r *photoRepo) Create(ctx context.Context, p *model.Photo) error {
	query := `
		INSERT INTO photos (id, file_name, creation_date, file_path, tags, tag_status,
			content_type, size, checksum, uploaded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			COALESCE($11, NOW()), COALESCE($12, COALESCE($11, NOW())))
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.FileName, p.CreationDate, p.FilePath, tagsOrEmpty(p.Tags), string(p.TagStatus),
		p.ContentType, p.Size, p.Checksum, p.UploadedBy,
		nullTime(p.CreatedAt), nullTime(p.UpdatedAt),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: запись %s", ErrConflict, p.ID)
		}
		return fmt.Errorf("ошибка создания записи: %w", err)
	}
	return nil
}

func (r *photoRepo) GetByID(ctx context.Context, id string) (*model.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = $1`

	p, err := scanPhoto(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return p, nil
}

func (r *photoRepo) List(ctx context.Context, filter ListFilter) ([]*model.Photo, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM photos WHERE ($1::text = '' OR $1::text = ANY(tags))`
	if err := r.db.QueryRow(ctx, countQuery, filter.Tag).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}

	// LIMIT NULL в PostgreSQL — без ограничения
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}
	query := `SELECT ` + photoColumns + `
		FROM photos
		WHERE ($1::text = '' OR $1::text = ANY(tags))
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, filter.Tag, limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	photos, err := collectPhotos(rows)
	if err != nil {
		return nil, 0, err
	}
	return photos, total, nil
}

func (r *photoRepo) Update(ctx context.Context, id string, upd model.PhotoUpdate, updatedAt time.Time) (*model.Photo, error) {
	query := `
		UPDATE photos
		SET file_name = COALESCE($2, file_name),
			creation_date = COALESCE($3, creation_date),
			updated_at = $4
		WHERE id = $1
		RETURNING ` + photoColumns

	p, err := scanPhoto(r.db.QueryRow(ctx, query, id, upd.FileName, upd.CreationDate, updatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления записи: %w", err)
	}
	return p, nil
}

func (r *photoRepo) UpdateTags(ctx context.Context, id string, tags []string, status model.TagStatus, updatedAt time.Time) (*model.Photo, error) {
	query := `
		UPDATE photos
		SET tags = $2, tag_status = $3, updated_at = $4
		WHERE id = $1
		RETURNING ` + photoColumns

	p, err := scanPhoto(r.db.QueryRow(ctx, query, id, tagsOrEmpty(tags), string(status), updatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления тегов: %w", err)
	}
	return p, nil
}

func (r *photoRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM photos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *photoRepo) ListSentinel(ctx context.Context, limit int) ([]*model.Photo, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	query := `SELECT ` + photoColumns + `
		FROM photos
		WHERE tag_status <> $1
		ORDER BY created_at, id
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, string(model.TagStatusOK), lim)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки записей с sentinel-тегами: %w", err)
	}
	return collectPhotos(rows)
}

// scanPhoto читает одну строку в порядке photoColumns.
func scanPhoto(row pgx.Row) (*model.Photo, error) {
	p := &model.Photo{}
	var status string
	err := row.Scan(
		&p.ID, &p.FileName, &p.CreationDate, &p.FilePath, &p.Tags, &status,
		&p.ContentType, &p.Size, &p.Checksum, &p.UploadedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.TagStatus = model.TagStatus(status)
	p.CreationDate = p.CreationDate.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func collectPhotos(rows pgx.Rows) ([]*model.Photo, error) {
	defer rows.Close()

	photos := []*model.Photo{}
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения записи: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации записей: %w", err)
	}
	return photos, nil
}

// tagsOrEmpty не даёт записать NULL в NOT NULL колонку tags.
func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
