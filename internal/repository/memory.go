package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/jspotlight/internal/domain/model"
)

// memoryPhotoRepo — потокобезопасное in-memory хранилище записей.
// sync.RWMutex: конкурентное чтение, эксклюзивная запись.
// Содержимое теряется при рестарте.
type memoryPhotoRepo struct {
	mu     sync.RWMutex
	photos map[string]*model.Photo
}

// NewMemoryPhotoRepository создаёт пустое in-memory хранилище.
func NewMemoryPhotoRepository() PhotoRepository {
	return &memoryPhotoRepo{
		photos: make(map[string]*model.Photo),
	}
}

func (r *memoryPhotoRepo) Create(_ context.Context, p *model.Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.photos[p.ID]; ok {
		return fmt.Errorf("%w: запись %s", ErrConflict, p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	// Копия, чтобы внешние изменения не затрагивали хранилище
	r.photos[p.ID] = p.Clone()
	return nil
}

func (r *memoryPhotoRepo) GetByID(_ context.Context, id string) (*model.Photo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.photos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (r *memoryPhotoRepo) List(_ context.Context, filter ListFilter) ([]*model.Photo, int, error) {
	r.mu.RLock()
	filtered := make([]*model.Photo, 0, len(r.photos))
	for _, p := range r.photos {
		if filter.Tag == "" || slices.Contains(p.Tags, filter.Tag) {
			filtered = append(filtered, p.Clone())
		}
	}
	r.mu.RUnlock()

	// Новые первыми, при равенстве — по ID для стабильного порядка
	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		return filtered[i].ID < filtered[j].ID
	})

	total := len(filtered)
	if filter.Offset >= total {
		return []*model.Photo{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < total {
		end = filter.Offset + filter.Limit
	}
	return filtered[filter.Offset:end], total, nil
}

func (r *memoryPhotoRepo) Update(_ context.Context, id string, upd model.PhotoUpdate, updatedAt time.Time) (*model.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.photos[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.FileName != nil {
		p.FileName = *upd.FileName
	}
	if upd.CreationDate != nil {
		p.CreationDate = *upd.CreationDate
	}
	p.UpdatedAt = updatedAt
	return p.Clone(), nil
}

func (r *memoryPhotoRepo) UpdateTags(_ context.Context, id string, tags []string, status model.TagStatus, updatedAt time.Time) (*model.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.photos[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Tags = slices.Clone(tags)
	p.TagStatus = status
	p.UpdatedAt = updatedAt
	return p.Clone(), nil
}

func (r *memoryPhotoRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.photos[id]; !ok {
		return ErrNotFound
	}
	delete(r.photos, id)
	return nil
}

func (r *memoryPhotoRepo) ListSentinel(_ context.Context, limit int) ([]*model.Photo, error) {
	r.mu.RLock()
	var result []*model.Photo
	for _, p := range r.photos {
		if p.TagStatus.IsSentinel() {
			result = append(result, p.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
