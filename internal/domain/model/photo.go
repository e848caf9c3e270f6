// Пакет model — доменные сущности JSpotlight.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// TagStatus — происхождение тегов записи.
type TagStatus string

const (
	// TagStatusOK — теги получены от модели.
	TagStatusOK TagStatus = "ok"
	// TagStatusUnknown — модель не дала пригодного результата.
	TagStatusUnknown TagStatus = "unknown"
	// TagStatusUnavailable — сервис тегирования недоступен.
	TagStatusUnavailable TagStatus = "unavailable"
	// TagStatusModelNotLoaded — локальная модель не загружена.
	TagStatusModelNotLoaded TagStatus = "model_not_loaded"
)

// IsSentinel сообщает, что теги записи — заглушка, а не результат модели.
func (s TagStatus) IsSentinel() bool {
	return s != TagStatusOK
}

// Photo — запись о загруженном изображении.
type Photo struct {
	ID           string    `json:"id"`
	FileName     string    `json:"fileName"`
	CreationDate time.Time `json:"creationDate"`
	// FilePath — handle объекта в хранилище изображений
	FilePath    string    `json:"filePath"`
	Tags        []string  `json:"tags"`
	TagStatus   TagStatus `json:"tagStatus"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum,omitempty"`
	UploadedBy  string    `json:"uploadedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone возвращает глубокую копию записи.
func (p *Photo) Clone() *Photo {
	cp := *p
	cp.Tags = slices.Clone(p.Tags)
	return &cp
}

// PhotoUpdate — изменяемые поля записи. nil — поле не меняется.
// Handle, теги и checksum через обновление не меняются.
type PhotoUpdate struct {
	FileName     *string
	CreationDate *time.Time
}

// creationDateLayouts — принимаемые форматы даты создания.
var creationDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseCreationDate разбирает дату создания снимка.
// Пустая строка — нулевое время (подставляется момент загрузки).
func ParseCreationDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range creationDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("некорректная дата %q, ожидается YYYY-MM-DD или RFC 3339", raw)
}
