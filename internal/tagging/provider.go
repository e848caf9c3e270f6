// Пакет tagging — получение тегов для изображения.
// Два варианта: RemoteProvider (HTTP-сервис классификации) и
// LocalProvider (встроенная модель). Оба никогда не возвращают ошибку:
// любой сбой превращается в sentinel-тег.
package tagging

import (
	"context"
	"io"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/jspotlight/internal/domain/model"
)

// Sentinel-теги, сохраняемые вместо результата модели.
const (
	SentinelUnknown        = "unknown"
	SentinelUnavailable    = "unavailable"
	SentinelModelNotLoaded = "model-not-loaded"
)

// Provider — источник тегов для изображения.
type Provider interface {
	// Name — имя варианта для логов и метрик.
	Name() string
	// Tag возвращает теги для изображения. Не паникует и не возвращает ошибку.
	Tag(ctx context.Context, image io.Reader) Result
}

// Result — результат тегирования: непустой список тегов и их происхождение.
type Result struct {
	Tags   []string
	Status model.TagStatus
}

// OK — результат модели. Пустой список сводится к Unknown.
func OK(tags []string) Result {
	if len(tags) == 0 {
		return Unknown()
	}
	return Result{Tags: slices.Clone(tags), Status: model.TagStatusOK}
}

// Unknown — модель не дала пригодного результата.
func Unknown() Result {
	return Result{Tags: []string{SentinelUnknown}, Status: model.TagStatusUnknown}
}

// Unavailable — сервис тегирования недоступен.
func Unavailable() Result {
	return Result{Tags: []string{SentinelUnavailable}, Status: model.TagStatusUnavailable}
}

// ModelNotLoaded — локальная модель не загружена.
func ModelNotLoaded() Result {
	return Result{Tags: []string{SentinelModelNotLoaded}, Status: model.TagStatusModelNotLoaded}
}

// Prometheus-метрики тегирования.
var (
	taggingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jspotlight_tagging_requests_total",
			Help: "Общее количество запросов тегирования по вариантам и статусам",
		},
		[]string{"provider", "status"},
	)

	taggingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jspotlight_tagging_duration_seconds",
			Help:    "Длительность тегирования одного изображения в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	taggingCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jspotlight_tagging_cache_hits_total",
		Help: "Общее количество попаданий в кэш результатов тегирования",
	})
	taggingCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jspotlight_tagging_cache_misses_total",
		Help: "Общее количество промахов кэша результатов тегирования",
	})
)

// observe записывает метрики одного вызова тегирования.
func observe(provider string, start time.Time, res Result) {
	taggingRequestsTotal.WithLabelValues(provider, string(res.Status)).Inc()
	taggingDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}
