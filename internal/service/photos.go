// photos.go — операции над записями: список, чтение, редактирование,
// удаление, повторное тегирование.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/jspotlight/internal/domain/model"
	"github.com/bigkaa/jspotlight/internal/repository"
	"github.com/bigkaa/jspotlight/internal/storage"
	"github.com/bigkaa/jspotlight/internal/tagging"
)

// MaxListLimit — верхняя граница явно заданного limit.
const MaxListLimit = 500

// ListParams — параметры листинга. Нулевой Limit — все записи.
type ListParams struct {
	Tag    string
	Limit  int
	Offset int
}

// ListResult — страница записей.
type ListResult struct {
	Items  []*model.Photo
	Total  int
	Limit  int
	Offset int
}

// PhotoService — операции над существующими записями.
type PhotoService struct {
	store  BlobStore
	tagger tagging.Provider
	repo   repository.PhotoRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewPhotoService создаёт сервис записей.
func NewPhotoService(
	store BlobStore,
	tagger tagging.Provider,
	repo repository.PhotoRepository,
	logger *slog.Logger,
) *PhotoService {
	return &PhotoService{
		store:  store,
		tagger: tagger,
		repo:   repo,
		logger: logger.With(slog.String("component", "photos")),
		now:    time.Now,
	}
}

// List возвращает записи, новые первыми. Пустой Tag отключает фильтр.
func (s *PhotoService) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Limit < 0 || params.Offset < 0 {
		return nil, fmt.Errorf("%w: limit и offset не могут быть отрицательными", ErrValidation)
	}
	limit := min(params.Limit, MaxListLimit)

	items, total, err := s.repo.List(ctx, repository.ListFilter{
		Tag:    strings.TrimSpace(params.Tag),
		Limit:  limit,
		Offset: params.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка: %w", err)
	}

	return &ListResult{Items: items, Total: total, Limit: limit, Offset: params.Offset}, nil
}

// Get возвращает запись по ID.
func (s *PhotoService) Get(ctx context.Context, id string) (*model.Photo, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return p, nil
}

// OpenFile возвращает запись и поток её содержимого.
// Вызывающий код обязан закрыть ReadCloser.
func (s *PhotoService) OpenFile(ctx context.Context, id string) (*model.Photo, io.ReadCloser, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, p.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, nil, fmt.Errorf("%w: содержимое изображения отсутствует", ErrNotFound)
		}
		return nil, nil, fmt.Errorf("ошибка чтения изображения: %w", err)
	}
	return p, rc, nil
}

// Update меняет имя файла и/или дату съёмки. ID, путь, теги и дата
// создания не редактируются.
func (s *PhotoService) Update(ctx context.Context, id string, upd model.PhotoUpdate) (*model.Photo, error) {
	if upd.FileName == nil && upd.CreationDate == nil {
		return nil, fmt.Errorf("%w: нет полей для обновления", ErrValidation)
	}
	if upd.FileName != nil {
		name := strings.TrimSpace(*upd.FileName)
		if name == "" {
			return nil, fmt.Errorf("%w: имя файла не может быть пустым", ErrValidation)
		}
		upd.FileName = &name
	}
	if upd.CreationDate != nil {
		if upd.CreationDate.IsZero() {
			return nil, fmt.Errorf("%w: дата съёмки не может быть пустой", ErrValidation)
		}
		d := upd.CreationDate.UTC()
		upd.CreationDate = &d
	}

	p, err := s.repo.Update(ctx, id, upd, s.now().UTC())
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("Запись обновлена", slog.String("id", id))
	return p, nil
}

// Delete удаляет запись и её содержимое. Отсутствие содержимого или сбой
// его удаления не мешают удалению записи.
func (s *PhotoService) Delete(ctx context.Context, id string) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return mapRepoError(err)
	}

	if err := s.store.Delete(ctx, p.FilePath); err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			s.logger.Warn("Содержимое изображения уже отсутствует",
				slog.String("id", id),
				slog.String("handle", p.FilePath),
			)
		} else {
			s.logger.Warn("Ошибка удаления содержимого изображения",
				slog.String("id", id),
				slog.String("handle", p.FilePath),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoError(err)
	}

	s.logger.Info("Запись удалена", slog.String("id", id))
	return nil
}

// Retag повторно тегирует сохранённое изображение и обновляет теги записи.
// Sentinel-результат не заменяет теги, ранее полученные от модели.
func (s *PhotoService) Retag(ctx context.Context, id string) (*model.Photo, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}

	result := tagBlob(ctx, s.store, s.tagger, p.FilePath, s.logger)
	if result.Status.IsSentinel() && !p.TagStatus.IsSentinel() {
		s.logger.Warn("Тегирование не удалось, теги модели сохранены",
			slog.String("id", id),
			slog.String("tag_status", string(result.Status)),
		)
		return p, nil
	}

	updated, err := s.repo.UpdateTags(ctx, id, result.Tags, result.Status, s.now().UTC())
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("Теги обновлены",
		slog.String("id", id),
		slog.String("tag_status", string(updated.TagStatus)),
	)
	return updated, nil
}

// mapRepoError переводит ошибки репозитория в ошибки сервисного слоя.
func mapRepoError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
