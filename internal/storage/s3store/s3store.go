// Пакет s3store — хранение изображений в S3-совместимом хранилище (MinIO, AWS S3).
// Handle объекта — s3://<bucket>/<uuid>_<имя файла>.
package s3store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/bigkaa/jspotlight/internal/storage"
)

const handleScheme = "s3://"

// Config — параметры подключения к S3.
type Config struct {
	// Endpoint — адрес S3-совместимого сервиса, пусто для AWS
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// objectAPI — подмножество методов *s3.Client, используемое хранилищем.
type objectAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store — хранилище изображений в S3 bucket.
type Store struct {
	client objectAPI
	bucket string
	logger *slog.Logger
}

// New создаёт клиент S3 и проверяет доступность bucket.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации AWS: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	s := newStore(client, cfg.Bucket, logger)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("bucket %s недоступен: %w", cfg.Bucket, err)
	}
	return s, nil
}

func newStore(client objectAPI, bucket string, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		logger: logger.With(slog.String("component", "s3store")),
	}
}

// Save загружает данные в bucket под уникальным ключом.
// Поток буферизуется во временный файл: PutObject требует известный размер тела.
func (s *Store) Save(ctx context.Context, reader io.Reader, originalName string) (*storage.SaveResult, error) {
	tmp, err := os.CreateTemp("", "jspotlight-upload-*")
	if err != nil {
		return nil, fmt.Errorf("%w: создание временного файла: %w", storage.ErrIOFailure, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hasher := sha256.New()
	size, err := io.Copy(tmp, io.TeeReader(reader, hasher))
	if err != nil {
		return nil, fmt.Errorf("%w: запись данных: %w", storage.ErrIOFailure, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek: %w", storage.ErrIOFailure, err)
	}

	key := storage.ObjectName(uuid.NewString(), originalName)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          tmp,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: PutObject %s: %w", storage.ErrIOFailure, key, err)
	}

	return &storage.SaveResult{
		Handle:   s.handle(key),
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open возвращает поток содержимого объекта. Вызывающий код обязан закрыть его.
func (s *Store) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	key, err := s.keyFromHandle(handle)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrBlobNotFound, handle)
		}
		return nil, fmt.Errorf("%w: GetObject %s: %w", storage.ErrIOFailure, key, err)
	}
	return out.Body, nil
}

// Delete удаляет объект. Отсутствующий объект — storage.ErrBlobNotFound.
// DeleteObject в S3 идемпотентен, поэтому существование проверяется через HeadObject.
func (s *Store) Delete(ctx context.Context, handle string) error {
	key, err := s.keyFromHandle(handle)
	if err != nil {
		return err
	}

	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", storage.ErrBlobNotFound, handle)
		}
		return fmt.Errorf("%w: HeadObject %s: %w", storage.ErrIOFailure, key, err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("%w: DeleteObject %s: %w", storage.ErrIOFailure, key, err)
	}

	s.logger.Debug("Объект удалён", slog.String("key", key))
	return nil
}

// CheckReady проверяет доступность bucket.
func (s *Store) CheckReady() (string, string) {
	if _, err := s.client.HeadBucket(context.Background(), &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return "fail", fmt.Sprintf("bucket %s недоступен: %v", s.bucket, err)
	}
	return "ok", ""
}

func (s *Store) handle(key string) string {
	return handleScheme + s.bucket + "/" + key
}

// keyFromHandle извлекает ключ объекта из handle этого bucket.
func (s *Store) keyFromHandle(handle string) (string, error) {
	prefix := handleScheme + s.bucket + "/"
	key, ok := strings.CutPrefix(handle, prefix)
	if !ok || key == "" || strings.Contains(key, "/") {
		return "", fmt.Errorf("%w: чужой handle %s", storage.ErrBlobNotFound, handle)
	}
	return key, nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
