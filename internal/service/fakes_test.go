package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/bigkaa/jspotlight/internal/domain/model"
	"github.com/bigkaa/jspotlight/internal/repository"
	"github.com/bigkaa/jspotlight/internal/storage"
	"github.com/bigkaa/jspotlight/internal/tagging"
)

// memStore — BlobStore в памяти.
type memStore struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	seq       int
	saveErr   error
	deleteErr error
	deleted   []string
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (s *memStore) Save(_ context.Context, r io.Reader, name string) (*storage.SaveResult, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrIOFailure, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	handle := fmt.Sprintf("mem://%d/%s", s.seq, name)
	s.blobs[handle] = data
	sum := sha256.Sum256(data)
	return &storage.SaveResult{
		Handle:   handle,
		Size:     int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

func (s *memStore) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[handle]
	if !ok {
		return nil, storage.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) Delete(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, handle)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.blobs[handle]; !ok {
		return storage.ErrBlobNotFound
	}
	delete(s.blobs, handle)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// stubTagger возвращает заданный результат и запоминает полученные байты.
type stubTagger struct {
	mu     sync.Mutex
	result tagging.Result
	seen   [][]byte
}

func (t *stubTagger) Name() string { return "stub" }

func (t *stubTagger) Tag(_ context.Context, r io.Reader) tagging.Result {
	data, _ := io.ReadAll(r)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = append(t.seen, data)
	return t.result
}

func (t *stubTagger) set(res tagging.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = res
}

// failingRepo — репозиторий, у которого Create всегда завершается ошибкой.
type failingRepo struct {
	repository.PhotoRepository
}

var errRepoDown = errors.New("база данных недоступна")

func (failingRepo) Create(context.Context, *model.Photo) error {
	return errRepoDown
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store    *memStore
	tagger   *stubTagger
	repo     repository.PhotoRepository
	uploads  *UploadService
	photos   *PhotoService
	backfill *BackfillService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMemStore(),
		tagger: &stubTagger{result: tagging.OK([]string{"tabby", "tiger cat"})},
		repo:   repository.NewMemoryPhotoRepository(),
	}
	f.uploads = NewUploadService(f.store, f.tagger, f.repo, testLogger())
	f.photos = NewPhotoService(f.store, f.tagger, f.repo, testLogger())
	f.backfill = NewBackfillService(f.photos, f.repo, 0, testLogger())
	return f
}

func (f *fixture) upload(t *testing.T, name string, data []byte) *model.Photo {
	t.Helper()
	p, err := f.uploads.Upload(context.Background(), UploadParams{
		Reader:   bytes.NewReader(data),
		FileName: name,
	})
	if err != nil {
		t.Fatalf("ошибка загрузки %s: %v", name, err)
	}
	return p
}
