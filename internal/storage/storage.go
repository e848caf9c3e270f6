// Пакет storage — общий контракт хранилищ изображений (blob store):
// результат записи, ошибки и формат имени сохраняемого объекта.
package storage

import (
	"errors"
	"path"
	"strings"
	"unicode"
)

var (
	// ErrIOFailure — хранилище не смогло выполнить операцию.
	ErrIOFailure = errors.New("ошибка ввода-вывода хранилища")
	// ErrBlobNotFound — объект по handle не существует.
	ErrBlobNotFound = errors.New("объект хранилища не найден")
)

// SaveResult — результат сохранения изображения.
type SaveResult struct {
	// Handle — непрозрачный идентификатор объекта (путь на диске или s3://bucket/key)
	Handle string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого (hex)
	Checksum string
}

// maxNameLength — ограничение длины исходного имени в имени объекта.
const maxNameLength = 200

// ObjectName формирует имя объекта: <id>_<исходное имя файла>.
// Из исходного имени убираются компоненты пути и управляющие символы,
// поэтому результат всегда остаётся одним сегментом пути.
func ObjectName(id, originalName string) string {
	return id + "_" + sanitizeName(originalName)
}

// sanitizeName оставляет только последний компонент пути без управляющих символов.
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))

	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) || r == '/' {
			continue
		}
		b.WriteRune(r)
	}
	result := strings.TrimSpace(b.String())
	if result == "" || result == "." || result == ".." {
		return "file"
	}
	if len(result) > maxNameLength {
		result = strings.ToValidUTF8(result[len(result)-maxNameLength:], "")
	}
	return result
}
