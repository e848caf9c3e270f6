package tagging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxResponseSize — ограничение тела ответа сервиса классификации.
const maxResponseSize = 1 << 20

// serviceErrorTags — теги, которыми сервис классификации сообщает о своей ошибке.
var serviceErrorTags = []string{"error", "unknown", "no-image"}

// RemoteConfig — параметры клиента сервиса классификации.
type RemoteConfig struct {
	// Endpoint — URL, принимающий POST с сырыми байтами изображения
	Endpoint string
	// Timeout — таймаут одного запроса
	Timeout time.Duration
	// CacheSize — число кэшируемых результатов (0 — без кэша)
	CacheSize int
	// CacheTTL — время жизни записи кэша
	CacheTTL time.Duration
	// HTTPClient — готовый клиент (тесты); nil — создаётся по Timeout
	HTTPClient *http.Client
	// TempDir — каталог временных файлов изображения ("" — os.TempDir)
	TempDir string
}

// RemoteProvider отправляет изображение во внешний сервис классификации.
// Формат ответа: {"tags": ["tabby", "tiger cat", ...]}.
// Изображение буферизуется во временный файл, а не в памяти.
// Успешные результаты кэшируются по SHA-256 содержимого.
type RemoteProvider struct {
	endpoint   string
	tempDir    string
	httpClient *http.Client
	cache      *expirable.LRU[string, []string]
	logger     *slog.Logger
}

// predictResponse — тело ответа сервиса классификации.
type predictResponse struct {
	Tags []string `json:"tags"`
}

// NewRemoteProvider создаёт клиент сервиса классификации.
func NewRemoteProvider(cfg RemoteConfig, logger *slog.Logger) (*RemoteProvider, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("некорректный URL сервиса тегирования: %q", cfg.Endpoint)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		}
	}

	p := &RemoteProvider{
		endpoint:   cfg.Endpoint,
		tempDir:    cfg.TempDir,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "remote_tagger")),
	}
	if cfg.CacheSize > 0 {
		p.cache = expirable.NewLRU[string, []string](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return p, nil
}

// Name возвращает имя варианта.
func (p *RemoteProvider) Name() string {
	return "remote"
}

// Endpoint возвращает URL сервиса классификации.
func (p *RemoteProvider) Endpoint() string {
	return p.endpoint
}

// Tag отправляет изображение в сервис классификации.
// Сетевая ошибка, таймаут или не-2xx ответ — Unavailable.
// Пустое изображение, неразбираемый ответ или пустой список тегов — Unknown.
func (p *RemoteProvider) Tag(ctx context.Context, image io.Reader) (res Result) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("Паника при тегировании", slog.Any("panic", rec))
			res = Unavailable()
		}
		observe(p.Name(), start, res)
	}()

	spool, err := os.CreateTemp(p.tempDir, "jspotlight-tag-*")
	if err != nil {
		p.logger.Error("Не удалось создать временный файл", slog.String("error", err.Error()))
		return Unavailable()
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(spool, hasher), image)
	if err != nil {
		p.logger.Warn("Не удалось прочитать изображение", slog.String("error", err.Error()))
		return Unknown()
	}
	if size == 0 {
		return Unknown()
	}

	key := hex.EncodeToString(hasher.Sum(nil))
	if p.cache != nil {
		if tags, ok := p.cache.Get(key); ok {
			taggingCacheHitsTotal.Inc()
			return OK(tags)
		}
		taggingCacheMissesTotal.Inc()
	}

	tags, err := p.predict(ctx, spool, size)
	if err != nil {
		var bad *badResponseError
		if errors.As(err, &bad) {
			p.logger.Warn("Некорректный ответ сервиса тегирования", slog.String("error", err.Error()))
			return Unknown()
		}
		p.logger.Warn("Сервис тегирования недоступен",
			slog.String("endpoint", p.endpoint),
			slog.String("error", err.Error()),
		)
		return Unavailable()
	}

	tags = cleanTags(tags)
	if len(tags) == 0 || isServiceError(tags) {
		return Unknown()
	}

	if p.cache != nil {
		p.cache.Add(key, tags)
	}
	return OK(tags)
}

// badResponseError — сервис ответил 2xx, но тело не разбирается.
type badResponseError struct {
	err error
}

func (e *badResponseError) Error() string {
	return "некорректное тело ответа: " + e.err.Error()
}

func (e *badResponseError) Unwrap() error {
	return e.err
}

// predict выполняет POST с сырыми байтами изображения из временного файла.
func (p *RemoteProvider) predict(ctx context.Context, spool *os.File, size int64) ([]string, error) {
	head := make([]byte, 512)
	n, err := spool.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("чтение временного файла: %w", err)
	}

	body := io.NewSectionReader(spool, 0, size)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.ContentLength = size
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(io.NewSectionReader(spool, 0, size)), nil
	}
	req.Header.Set("Content-Type", http.DetectContentType(head[:n]))
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос к сервису тегирования: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, fmt.Errorf("сервис тегирования вернул статус %d", resp.StatusCode)
	}

	var body predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return nil, &badResponseError{err: err}
	}
	return body.Tags, nil
}

// cleanTags убирает пустые теги и пробелы по краям.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// isServiceError сообщает, что сервис вернул свои теги-заглушки вместо классификации.
func isServiceError(tags []string) bool {
	for _, t := range tags {
		if !slices.Contains(serviceErrorTags, t) {
			return false
		}
	}
	return true
}
