// Пакет service — бизнес-логика JSpotlight.
// upload.go — загрузка изображения: сохранение, тегирование, создание записи.
package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/jspotlight/internal/domain/model"
	"github.com/bigkaa/jspotlight/internal/repository"
	"github.com/bigkaa/jspotlight/internal/storage"
	"github.com/bigkaa/jspotlight/internal/tagging"
)

// Prometheus метрики загрузок
var (
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jspotlight_uploads_total",
			Help: "Общее количество загрузок по результату",
		},
		[]string{"result"},
	)

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jspotlight_upload_bytes_total",
		Help: "Общий объём загруженных изображений в байтах",
	})
)

// sniffLen — число байт для определения MIME-типа (как в http.DetectContentType).
const sniffLen = 512

// BlobStore — хранилище содержимого изображений.
// Реализации: filestore.FileStore (локальный диск), s3store.Store (S3).
type BlobStore interface {
	Save(ctx context.Context, reader io.Reader, originalName string) (*storage.SaveResult, error)
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
	Delete(ctx context.Context, handle string) error
}

// UploadParams — параметры загрузки изображения.
type UploadParams struct {
	// Reader — поток содержимого
	Reader io.Reader
	// FileName — исходное имя файла
	FileName string
	// CreationDate — дата съёмки; нулевое значение заменяется моментом загрузки
	CreationDate time.Time
	// ContentType — MIME-тип от клиента; пустой или octet-stream определяется по содержимому
	ContentType string
	// UploadedBy — subject из токена (пусто для анонимной загрузки)
	UploadedBy string
}

// UploadService — оркестратор загрузки изображений.
type UploadService struct {
	store  BlobStore
	tagger tagging.Provider
	repo   repository.PhotoRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(
	store BlobStore,
	tagger tagging.Provider,
	repo repository.PhotoRepository,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		store:  store,
		tagger: tagger,
		repo:   repo,
		logger: logger.With(slog.String("component", "upload")),
		now:    time.Now,
	}
}

// Upload сохраняет изображение, синхронно получает теги и создаёт запись.
//
// Порядок:
//  1. Сохранение в хранилище (ошибка — ErrStorageFailed, запись не создаётся)
//  2. Тегирование сохранённого содержимого (сбой даёт sentinel-тег, не ошибку)
//  3. Создание записи (ошибка — сохранённое изображение удаляется)
func (s *UploadService) Upload(ctx context.Context, params UploadParams) (*model.Photo, error) {
	fileName := strings.TrimSpace(params.FileName)
	if fileName == "" {
		return nil, fmt.Errorf("%w: имя файла не задано", ErrValidation)
	}

	reader, contentType := sniffContentType(params.Reader, params.ContentType)

	saved, err := s.store.Save(ctx, reader, fileName)
	if err != nil {
		uploadsTotal.WithLabelValues("storage_failed").Inc()
		s.logger.Error("Ошибка сохранения изображения",
			slog.String("file_name", fileName),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrStorageFailed, err)
	}

	result := tagBlob(ctx, s.store, s.tagger, saved.Handle, s.logger)

	now := s.now().UTC()
	creationDate := params.CreationDate
	if creationDate.IsZero() {
		creationDate = now
	}

	photo := &model.Photo{
		ID:           uuid.NewString(),
		FileName:     fileName,
		CreationDate: creationDate.UTC(),
		FilePath:     saved.Handle,
		Tags:         result.Tags,
		TagStatus:    result.Status,
		ContentType:  contentType,
		Size:         saved.Size,
		Checksum:     saved.Checksum,
		UploadedBy:   params.UploadedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, photo); err != nil {
		uploadsTotal.WithLabelValues("record_failed").Inc()
		if delErr := s.store.Delete(context.WithoutCancel(ctx), saved.Handle); delErr != nil {
			s.logger.Warn("Не удалось удалить изображение после ошибки записи",
				slog.String("handle", saved.Handle),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("ошибка создания записи: %w", err)
	}

	uploadsTotal.WithLabelValues("ok").Inc()
	uploadBytesTotal.Add(float64(saved.Size))

	s.logger.Info("Изображение загружено",
		slog.String("id", photo.ID),
		slog.String("file_name", photo.FileName),
		slog.String("handle", photo.FilePath),
		slog.Int64("size", photo.Size),
		slog.String("tag_status", string(photo.TagStatus)),
		slog.String("uploaded_by", photo.UploadedBy),
	)

	return photo, nil
}

// tagBlob открывает сохранённое изображение и передаёт его провайдеру тегов.
func tagBlob(ctx context.Context, store BlobStore, tagger tagging.Provider, handle string, logger *slog.Logger) tagging.Result {
	rc, err := store.Open(ctx, handle)
	if err != nil {
		logger.Warn("Не удалось открыть изображение для тегирования",
			slog.String("handle", handle),
			slog.String("error", err.Error()),
		)
		return tagging.Unknown()
	}
	defer rc.Close()

	return tagger.Tag(ctx, rc)
}

// sniffContentType возвращает MIME-тип: заявленный клиентом либо определённый
// по первым байтам. Возвращённый reader отдаёт поток целиком.
func sniffContentType(r io.Reader, declared string) (io.Reader, string) {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
		return r, mediaType
	}
	br := bufio.NewReaderSize(r, sniffLen)
	head, _ := br.Peek(sniffLen)
	return br, http.DetectContentType(head)
}
