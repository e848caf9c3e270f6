package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/jspotlight/internal/domain/model"
)

// TestMemoryPhotoRepository проверяет in-memory реализацию.
func TestMemoryPhotoRepository(t *testing.T) {
	testRepositoryContract(t, NewMemoryPhotoRepository())
}

// TestMemoryPhotoRepository_Listing проверяет порядок и фильтрацию списка.
func TestMemoryPhotoRepository_Listing(t *testing.T) {
	testRepositoryListing(t, NewMemoryPhotoRepository())
}

// TestMemoryPhotoRepository_ReturnsCopies проверяет изоляцию хранимых данных.
func TestMemoryPhotoRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryPhotoRepository()
	ctx := context.Background()

	p := newPhoto("cat.jpg", time.Now(), "cat")
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("ошибка создания: %v", err)
	}
	p.Tags[0] = "changed after create"

	got, _ := repo.GetByID(ctx, p.ID)
	got.Tags[0] = "changed after get"

	again, _ := repo.GetByID(ctx, p.ID)
	if again.Tags[0] != "cat" {
		t.Errorf("хранимая запись изменена извне: %v", again.Tags)
	}
}

// TestMemoryPhotoRepository_Concurrent проверяет конкурентные операции (запускать с -race).
func TestMemoryPhotoRepository_Concurrent(t *testing.T) {
	repo := NewMemoryPhotoRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := newPhoto("c.jpg", time.Now(), "cat")
			if err := repo.Create(ctx, p); err != nil {
				t.Errorf("ошибка создания %d: %v", i, err)
				return
			}
			_, _ = repo.UpdateTags(ctx, p.ID, []string{"dog"}, model.TagStatusOK, time.Now())
			_, _, _ = repo.List(ctx, ListFilter{})
		}()
	}
	wg.Wait()

	_, total, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("ошибка списка: %v", err)
	}
	if total != 50 {
		t.Errorf("ожидалось 50 записей, получено %d", total)
	}
}
