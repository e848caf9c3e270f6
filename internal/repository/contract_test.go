package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/jspotlight/internal/domain/model"
)

// newPhoto создаёт запись с уникальным ID и заданным моментом загрузки.
func newPhoto(name string, createdAt time.Time, tags ...string) *model.Photo {
	status := model.TagStatusOK
	if len(tags) == 0 {
		tags = []string{"unavailable"}
		status = model.TagStatusUnavailable
	}
	return &model.Photo{
		ID:           uuid.NewString(),
		FileName:     name,
		CreationDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		FilePath:     "uploads/" + name,
		Tags:         tags,
		TagStatus:    status,
		ContentType:  "image/jpeg",
		Size:         42,
		Checksum:     "abc",
		UploadedBy:   "user",
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

// testRepositoryContract проверяет общее поведение реализаций PhotoRepository.
func testRepositoryContract(t *testing.T, repo PhotoRepository) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("CreateGet", func(t *testing.T) {
		p := newPhoto("cat.jpg", base, "tabby", "tiger cat")
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("ошибка создания: %v", err)
		}

		got, err := repo.GetByID(ctx, p.ID)
		if err != nil {
			t.Fatalf("ошибка получения: %v", err)
		}
		if got.FileName != "cat.jpg" || got.FilePath != p.FilePath || got.TagStatus != model.TagStatusOK {
			t.Errorf("неожиданная запись: %+v", got)
		}
		if len(got.Tags) != 2 || got.Tags[0] != "tabby" {
			t.Errorf("теги = %v", got.Tags)
		}

		if err := repo.Create(ctx, p); !errors.Is(err, ErrConflict) {
			t.Errorf("повторное создание: ожидалась ErrConflict, получено %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
			t.Errorf("ожидалась ErrNotFound, получено %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		p := newPhoto("old.jpg", base, "dog")
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("ошибка создания: %v", err)
		}

		name := "new.jpg"
		date := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
		got, err := repo.Update(ctx, p.ID, model.PhotoUpdate{FileName: &name, CreationDate: &date}, base.Add(time.Minute))
		if err != nil {
			t.Fatalf("ошибка обновления: %v", err)
		}
		if got.FileName != name || !got.CreationDate.Equal(date) {
			t.Errorf("поля не обновлены: %+v", got)
		}
		if got.FilePath != p.FilePath || got.Tags[0] != "dog" {
			t.Errorf("неизменяемые поля изменились: %+v", got)
		}

		if _, err := repo.Update(ctx, uuid.NewString(), model.PhotoUpdate{FileName: &name}, base); !errors.Is(err, ErrNotFound) {
			t.Errorf("ожидалась ErrNotFound, получено %v", err)
		}
	})

	t.Run("UpdateTags", func(t *testing.T) {
		p := newPhoto("retag.jpg", base)
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("ошибка создания: %v", err)
		}
		got, err := repo.UpdateTags(ctx, p.ID, []string{"cat"}, model.TagStatusOK, base.Add(time.Minute))
		if err != nil {
			t.Fatalf("ошибка обновления тегов: %v", err)
		}
		if got.TagStatus != model.TagStatusOK || len(got.Tags) != 1 || got.Tags[0] != "cat" {
			t.Errorf("теги не обновлены: %+v", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		p := newPhoto("del.jpg", base, "x")
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("ошибка создания: %v", err)
		}
		if err := repo.Delete(ctx, p.ID); err != nil {
			t.Fatalf("ошибка удаления: %v", err)
		}
		if _, err := repo.GetByID(ctx, p.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("запись не удалена: %v", err)
		}
		if err := repo.Delete(ctx, p.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("повторное удаление: ожидалась ErrNotFound, получено %v", err)
		}
	})
}

// testRepositoryListing проверяет порядок, фильтр и пагинацию на пустом хранилище.
func testRepositoryListing(t *testing.T, repo PhotoRepository) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	oldest := newPhoto("a.jpg", base.Add(-2*time.Hour), "cat")
	middle := newPhoto("b.jpg", base.Add(-time.Hour))
	newest := newPhoto("c.jpg", base, "cat", "dog")
	for _, p := range []*model.Photo{middle, newest, oldest} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("ошибка создания: %v", err)
		}
	}

	all, total, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("ошибка списка: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("ожидалось 3 записи, получено %d (total %d)", len(all), total)
	}
	if all[0].ID != newest.ID || all[2].ID != oldest.ID {
		t.Error("записи должны быть отсортированы от новых к старым")
	}

	page, total, err := repo.List(ctx, ListFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ошибка списка: %v", err)
	}
	if total != 3 || len(page) != 1 || page[0].ID != middle.ID {
		t.Errorf("неожиданная страница: total %d, len %d", total, len(page))
	}

	cats, total, err := repo.List(ctx, ListFilter{Tag: "cat"})
	if err != nil {
		t.Fatalf("ошибка списка: %v", err)
	}
	if total != 2 || len(cats) != 2 {
		t.Errorf("фильтр по тегу: ожидалось 2, получено %d", len(cats))
	}

	beyond, _, err := repo.List(ctx, ListFilter{Offset: 10})
	if err != nil {
		t.Fatalf("ошибка списка: %v", err)
	}
	if beyond == nil || len(beyond) != 0 {
		t.Errorf("за пределами списка ожидался пустой срез, получено %v", beyond)
	}

	sentinel, err := repo.ListSentinel(ctx, 10)
	if err != nil {
		t.Fatalf("ошибка выборки sentinel: %v", err)
	}
	if len(sentinel) != 1 || sentinel[0].ID != middle.ID {
		t.Errorf("ожидалась одна запись с sentinel-тегами, получено %d", len(sentinel))
	}
}
