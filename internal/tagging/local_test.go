package tagging

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bigkaa/jspotlight/internal/domain/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const rgbModel = `{
  "version": 1,
  "labels": [
    {"name": "red",   "centroid": [1, 0, 0, 1, 1]},
    {"name": "green", "centroid": [0, 1, 0, 1, 1]},
    {"name": "blue",  "centroid": [0, 0, 1, 1, 1]}
  ]
}`

func solidImage(c color.Color, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

// solidPNG кодирует однотонное изображение w x h в PNG.
func solidPNG(t *testing.T, c color.Color, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(c, w, h)); err != nil {
		t.Fatalf("ошибка кодирования PNG: %v", err)
	}
	return buf.Bytes()
}

func newRGBProvider(t *testing.T, topK int) *LocalProvider {
	t.Helper()
	m, err := ParsePaletteModel(strings.NewReader(rgbModel))
	if err != nil {
		t.Fatalf("ошибка разбора модели: %v", err)
	}
	return NewLocalProvider(m, topK, quietLogger())
}

// TestLocalProvider_Classifies проверяет, что однотонное изображение получает свою метку первой.
func TestLocalProvider_Classifies(t *testing.T) {
	p := newRGBProvider(t, 2)

	tests := []struct {
		name  string
		color color.Color
		want  string
	}{
		{"красный", color.RGBA{R: 255, A: 255}, "red"},
		{"зелёный", color.RGBA{G: 255, A: 255}, "green"},
		{"синий", color.RGBA{B: 255, A: 255}, "blue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Tag(context.Background(), bytes.NewReader(solidPNG(t, tt.color, 320, 240)))
			if res.Status != model.TagStatusOK {
				t.Fatalf("статус = %s, ожидался ok", res.Status)
			}
			if len(res.Tags) != 2 {
				t.Fatalf("ожидалось 2 тега, получено %v", res.Tags)
			}
			if res.Tags[0] != tt.want {
				t.Errorf("первый тег = %q, ожидался %q", res.Tags[0], tt.want)
			}
		})
	}
}

// TestLocalProvider_NotLoaded проверяет sentinel при отсутствии модели.
func TestLocalProvider_NotLoaded(t *testing.T) {
	p := LoadLocalProvider(filepath.Join(t.TempDir(), "missing.json"), 3, quietLogger())
	if p.Loaded() {
		t.Fatal("модель не должна быть загружена")
	}

	res := p.Tag(context.Background(), bytes.NewReader(solidPNG(t, color.White, 4, 4)))
	if res.Status != model.TagStatusModelNotLoaded {
		t.Errorf("статус = %s, ожидался model_not_loaded", res.Status)
	}
	if len(res.Tags) != 1 || res.Tags[0] != SentinelModelNotLoaded {
		t.Errorf("теги = %v, ожидался [%s]", res.Tags, SentinelModelNotLoaded)
	}
	if status, _ := p.CheckReady(); status != "degraded" {
		t.Errorf("readiness = %s, ожидался degraded", status)
	}
}

// TestLocalProvider_Undecodable проверяет Unknown для данных, не являющихся изображением.
func TestLocalProvider_Undecodable(t *testing.T) {
	p := newRGBProvider(t, 3)
	res := p.Tag(context.Background(), strings.NewReader("definitely not an image"))
	if res.Status != model.TagStatusUnknown || res.Tags[0] != SentinelUnknown {
		t.Errorf("результат = %+v, ожидался unknown", res)
	}
}

// pngHeader возвращает сигнатуру PNG и чанк IHDR (8 бит, оттенки серого) без данных изображения.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 0, 17)
	ihdr = append(ihdr, "IHDR"...)
	ihdr = binary.BigEndian.AppendUint32(ihdr, w)
	ihdr = binary.BigEndian.AppendUint32(ihdr, h)
	ihdr = append(ihdr, 8, 0, 0, 0, 0)

	out := []byte("\x89PNG\r\n\x1a\n")
	out = binary.BigEndian.AppendUint32(out, 13)
	out = append(out, ihdr...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(ihdr))
}

// TestLocalProvider_TooLarge проверяет отказ от декодирования изображений сверх предельной площади.
func TestLocalProvider_TooLarge(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		maxPixels int
	}{
		{"заголовок 20000x20000", pngHeader(20000, 20000), DefaultMaxPixels},
		{"заголовок 100000x1", pngHeader(100000, 1), 50_000},
		{"полное изображение сверх предела", solidPNG(t, color.White, 320, 240), 320*240 - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newRGBProvider(t, 3)
			p.maxPixels = tt.maxPixels

			res := p.Tag(context.Background(), bytes.NewReader(tt.data))
			if res.Status != model.TagStatusUnknown || res.Tags[0] != SentinelUnknown {
				t.Errorf("результат = %+v, ожидался unknown", res)
			}
		})
	}
}

// TestLocalProvider_AtPixelLimit проверяет, что изображение на границе предела классифицируется.
func TestLocalProvider_AtPixelLimit(t *testing.T) {
	p := newRGBProvider(t, 1)
	p.maxPixels = 320 * 240

	res := p.Tag(context.Background(), bytes.NewReader(solidPNG(t, color.RGBA{B: 255, A: 255}, 320, 240)))
	if res.Status != model.TagStatusOK || res.Tags[0] != "blue" {
		t.Errorf("результат = %+v, ожидался ok/blue", res)
	}
}

// panicModel паникует при инференсе.
type panicModel struct{}

func (panicModel) Predict(image.Image, int) []Prediction {
	panic("сбой инференса")
}

// TestLocalProvider_PanicContained проверяет, что паника модели не выходит за пределы Tag.
func TestLocalProvider_PanicContained(t *testing.T) {
	p := NewLocalProvider(panicModel{}, 3, quietLogger())
	res := p.Tag(context.Background(), bytes.NewReader(solidPNG(t, color.White, 4, 4)))
	if res.Status != model.TagStatusUnknown {
		t.Errorf("статус = %s, ожидался unknown", res.Status)
	}
}

// TestPaletteModel_TinyImage проверяет изображение меньше области обрезки.
func TestPaletteModel_TinyImage(t *testing.T) {
	p := newRGBProvider(t, 1)
	res := p.Tag(context.Background(), bytes.NewReader(solidPNG(t, color.RGBA{B: 255, A: 255}, 1, 1)))
	if len(res.Tags) != 1 || res.Tags[0] != "blue" {
		t.Errorf("теги = %v, ожидался [blue]", res.Tags)
	}
}

// TestParsePaletteModel_Invalid проверяет валидацию файла модели.
func TestParsePaletteModel_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"не JSON", "{"},
		{"без меток", `{"labels": []}`},
		{"пустое имя", `{"labels": [{"name": " ", "centroid": [0,0,0,0,0]}]}`},
		{"дубликат", `{"labels": [{"name": "a"}, {"name": "a"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePaletteModel(strings.NewReader(tt.data)); err == nil {
				t.Error("ожидалась ошибка")
			}
		})
	}
}

// TestLoadPaletteModel_Bundled проверяет модель, поставляемую с сервисом.
func TestLoadPaletteModel_Bundled(t *testing.T) {
	m, err := LoadPaletteModel(filepath.Join("..", "..", "model", "palette.json"))
	if err != nil {
		t.Fatalf("ошибка загрузки модели: %v", err)
	}
	preds := m.Predict(solidImage(color.RGBA{R: 250, G: 250, B: 252, A: 255}, 64, 48), 3)
	if len(preds) != 3 {
		t.Fatalf("ожидалось 3 предсказания, получено %d", len(preds))
	}
	if preds[0].Label != "snow" {
		t.Errorf("первая метка = %q, ожидалась snow", preds[0].Label)
	}
	for i := 1; i < len(preds); i++ {
		if preds[i].Score > preds[i-1].Score {
			t.Error("предсказания должны быть упорядочены по убыванию оценки")
		}
	}
}
