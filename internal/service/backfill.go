// backfill.go — фоновое повторное тегирование записей с sentinel-тегами.
//
// Записи, получившие unknown/unavailable/model-not-loaded, тегируются заново
// через PhotoService.Retag. Запускается как горутина с периодическим
// тикером (JS_BACKFILL_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/jspotlight/internal/repository"
)

// Prometheus метрики backfill
var (
	backfillRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jspotlight_backfill_runs_total",
		Help: "Общее количество запусков backfill",
	})

	backfillRetaggedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jspotlight_backfill_retagged_total",
		Help: "Количество записей, получивших теги модели при backfill",
	})

	backfillDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jspotlight_backfill_duration_seconds",
		Help:    "Длительность выполнения backfill в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

// DefaultBackfillBatch — число записей, обрабатываемых за один запуск.
const DefaultBackfillBatch = 100

// BackfillResult — результат одного запуска backfill.
type BackfillResult struct {
	// Scanned — количество записей с sentinel-тегами в выборке
	Scanned int
	// Retagged — количество записей, получивших теги модели
	Retagged int
	// StillSentinel — количество записей, оставшихся с sentinel-тегом
	StillSentinel int
	// Errors — количество ошибок обновления
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// BackfillService — сервис фонового повторного тегирования.
type BackfillService struct {
	photos   *PhotoService
	repo     repository.PhotoRepository
	interval time.Duration
	batch    int
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBackfillService создаёт сервис backfill.
func NewBackfillService(
	photos *PhotoService,
	repo repository.PhotoRepository,
	interval time.Duration,
	logger *slog.Logger,
) *BackfillService {
	return &BackfillService{
		photos:   photos,
		repo:     repo,
		interval: interval,
		batch:    DefaultBackfillBatch,
		logger:   logger.With(slog.String("component", "backfill")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (b *BackfillService) Start(ctx context.Context) {
	bfCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})

	go b.run(bfCtx)

	b.logger.Info("Backfill запущен",
		slog.String("interval", b.interval.String()),
	)
}

// Stop останавливает фоновый процесс и ждёт завершения текущего запуска.
func (b *BackfillService) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.logger.Info("Backfill остановлен")
}

// run — основной цикл фоновой горутины.
func (b *BackfillService) run(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл: выбирает записи с sentinel-тегами
// (самые старые первыми) и тегирует их заново.
func (b *BackfillService) RunOnce(ctx context.Context) *BackfillResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	result := &BackfillResult{}

	photos, err := b.repo.ListSentinel(ctx, b.batch)
	if err != nil {
		b.logger.Error("Backfill: ошибка выборки записей",
			slog.String("error", err.Error()),
		)
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}
	result.Scanned = len(photos)

	for _, p := range photos {
		if ctx.Err() != nil {
			break
		}
		updated, err := b.photos.Retag(ctx, p.ID)
		if err != nil {
			b.logger.Error("Backfill: ошибка обновления тегов",
				slog.String("id", p.ID),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		if updated.TagStatus.IsSentinel() {
			result.StillSentinel++
		} else {
			result.Retagged++
		}
	}

	result.Duration = time.Since(start)

	backfillRunsTotal.Inc()
	backfillRetaggedTotal.Add(float64(result.Retagged))
	backfillDurationSeconds.Observe(result.Duration.Seconds())

	b.logger.Info("Backfill завершён",
		slog.Int("scanned", result.Scanned),
		slog.Int("retagged", result.Retagged),
		slog.Int("still_sentinel", result.StillSentinel),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}
