// Пакет filestore — хранение изображений в локальной директории.
// Запись потоковая с подсчётом SHA-256 на лету.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/jspotlight/internal/storage"
)

// FileStore — хранилище изображений на локальном диске.
// Handle объекта — путь <dir>/<uuid>_<имя файла>.
type FileStore struct {
	dir string
}

// New создаёт FileStore и директорию хранения, если её нет.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Save записывает данные из reader в новый файл с уникальным именем.
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При любой ошибке временный файл удаляется, возвращается storage.ErrIOFailure.
func (fs *FileStore) Save(ctx context.Context, reader io.Reader, originalName string) (*storage.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Директория могла быть удалена после старта
	if err := os.MkdirAll(fs.dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: создание директории: %w", storage.ErrIOFailure, err)
	}

	fullPath := filepath.Join(fs.dir, storage.ObjectName(uuid.NewString(), originalName))
	tmpPath := fullPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("%w: создание временного файла: %w", storage.ErrIOFailure, err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: запись данных: %w", storage.ErrIOFailure, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: fsync: %w", storage.ErrIOFailure, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: закрытие файла: %w", storage.ErrIOFailure, err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: атомарное переименование: %w", storage.ErrIOFailure, err)
	}

	return &storage.SaveResult{
		Handle:   fullPath,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает сохранённый файл для чтения. Вызывающий код обязан закрыть его.
func (fs *FileStore) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	if !fs.owns(handle) {
		return nil, fmt.Errorf("%w: %s", storage.ErrBlobNotFound, handle)
	}
	f, err := os.Open(handle)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrBlobNotFound, handle)
		}
		return nil, fmt.Errorf("%w: открытие %s: %w", storage.ErrIOFailure, handle, err)
	}
	return f, nil
}

// Delete удаляет файл. Отсутствующий файл — storage.ErrBlobNotFound.
func (fs *FileStore) Delete(_ context.Context, handle string) error {
	if !fs.owns(handle) {
		return fmt.Errorf("%w: %s", storage.ErrBlobNotFound, handle)
	}
	if err := os.Remove(handle); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", storage.ErrBlobNotFound, handle)
		}
		return fmt.Errorf("%w: удаление %s: %w", storage.ErrIOFailure, handle, err)
	}
	return nil
}

// Dir возвращает директорию хранения.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// CheckReady проверяет, что в директорию можно писать.
func (fs *FileStore) CheckReady() (string, string) {
	probe := filepath.Join(fs.dir, ".health_check")
	if err := os.WriteFile(probe, []byte("ok"), 0o640); err != nil {
		return "fail", fmt.Sprintf("директория %s недоступна для записи: %v", fs.dir, err)
	}
	os.Remove(probe)
	return "ok", ""
}

// owns проверяет, что handle указывает на файл непосредственно внутри dir.
func (fs *FileStore) owns(handle string) bool {
	rel, err := filepath.Rel(filepath.Clean(fs.dir), filepath.Clean(handle))
	if err != nil {
		return false
	}
	return rel != "." && !strings.Contains(rel, string(filepath.Separator)) && !strings.HasPrefix(rel, "..")
}
