package tagging

import (
	"bytes"
	"context"
	"image"
	"io"
	"log/slog"
	"time"

	// Декодеры форматов изображений
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels — предельная площадь изображения для декодирования.
const DefaultMaxPixels = 50_000_000

// Model — встроенный классификатор изображений.
type Model interface {
	Predict(img image.Image, k int) []Prediction
}

// LocalProvider классифицирует изображение встроенной моделью.
// Модель загружается один раз при старте; если загрузка не удалась,
// каждый вызов возвращает ModelNotLoaded.
type LocalProvider struct {
	model     Model
	topK      int
	maxPixels int
	logger    *slog.Logger
}

// NewLocalProvider создаёт провайдер с уже загруженной моделью (nil — модель не загружена).
func NewLocalProvider(m Model, topK int, logger *slog.Logger) *LocalProvider {
	if topK < 1 {
		topK = 3
	}
	return &LocalProvider{
		model:     m,
		topK:      topK,
		maxPixels: DefaultMaxPixels,
		logger:    logger.With(slog.String("component", "local_tagger")),
	}
}

// LoadLocalProvider загружает модель из файла. Ошибка загрузки не фатальна:
// сервис продолжает работу, записи получают тег model-not-loaded.
func LoadLocalProvider(path string, topK int, logger *slog.Logger) *LocalProvider {
	m, err := LoadPaletteModel(path)
	if err != nil {
		logger.Error("Модель тегирования не загружена",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return NewLocalProvider(nil, topK, logger)
	}
	logger.Info("Модель тегирования загружена",
		slog.String("path", path),
		slog.Int("labels", m.Labels()),
	)
	return NewLocalProvider(m, topK, logger)
}

// Name возвращает имя варианта.
func (p *LocalProvider) Name() string {
	return "local"
}

// Loaded сообщает, загружена ли модель.
func (p *LocalProvider) Loaded() bool {
	return p.model != nil
}

// CheckReady — readiness: без модели сервис работает в режиме degraded.
func (p *LocalProvider) CheckReady() (string, string) {
	if p.model == nil {
		return "degraded", "модель тегирования не загружена"
	}
	return "ok", ""
}

// Tag декодирует изображение и возвращает topK меток модели.
// Неизвестный формат или сбой инференса — Unknown.
func (p *LocalProvider) Tag(ctx context.Context, r io.Reader) (res Result) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("Паника при инференсе", slog.Any("panic", rec))
			res = Unknown()
		}
		observe(p.Name(), start, res)
	}()

	if p.model == nil {
		return ModelNotLoaded()
	}

	// Размеры читаются из заголовка до выделения растра.
	// Прочитанные байты заголовка возвращаются в поток для полного декодирования.
	var header bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		p.logger.Warn("Не удалось прочитать заголовок изображения", slog.String("error", err.Error()))
		return Unknown()
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(p.maxPixels) {
		p.logger.Warn("Изображение слишком велико для тегирования",
			slog.Int("width", cfg.Width),
			slog.Int("height", cfg.Height),
		)
		return Unknown()
	}

	img, format, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		p.logger.Warn("Не удалось декодировать изображение", slog.String("error", err.Error()))
		return Unknown()
	}
	if ctx.Err() != nil {
		return Unknown()
	}

	preds := p.model.Predict(img, p.topK)
	tags := make([]string, 0, len(preds))
	for _, pr := range preds {
		tags = append(tags, pr.Label)
	}

	p.logger.Debug("Изображение классифицировано",
		slog.String("format", format),
		slog.Any("tags", tags),
	)
	return OK(tags)
}
