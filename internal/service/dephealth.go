// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// JSpotlight мониторит до двух зависимостей:
//   - PostgreSQL — SQL checker через существующий pgxpool (critical)
//   - сервис классификации — HTTP checker к <base>/health (non-critical:
//     при его недоступности загрузки продолжаются с тегом unavailable)
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для сервиса классификации
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNoDependencies — нет ни одной зависимости для мониторинга.
var ErrNoDependencies = errors.New("нет зависимостей для мониторинга")

// DephealthParams — параметры мониторинга зависимостей.
type DephealthParams struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках (JS_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB из pgxpool через stdlib.OpenDBFromPool(); nil без PostgreSQL
	DB *sql.DB
	// PgConnURL — URL PostgreSQL (для лейблов, не для подключения)
	PgConnURL string
	// TaggerURL — базовый URL сервиса классификации; пусто для локальной модели
	TaggerURL string
	// CheckInterval — интервал проверки (JS_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(params DephealthParams, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(params, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	params DephealthParams,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(params, logger, dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(
	params DephealthParams,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	opts := dependencyOptions(params)
	if len(opts) == 0 {
		return nil, ErrNoDependencies
	}

	opts = append([]dephealth.Option{dephealth.WithLogger(logger)}, opts...)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(params.ServiceID, params.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// dependencyOptions собирает опции зависимостей из параметров.
func dependencyOptions(params DephealthParams) []dephealth.Option {
	var opts []dephealth.Option

	if params.DB != nil {
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(params.DB)),
			dephealth.FromURL(params.PgConnURL),
			dephealth.CheckInterval(params.CheckInterval),
			dephealth.Critical(true),
		))
	}

	if params.TaggerURL != "" {
		opts = append(opts, dephealth.HTTP("tagger",
			dephealth.FromURL(params.TaggerURL),
			dephealth.WithHTTPHealthPath("/health"),
			dephealth.CheckInterval(params.CheckInterval),
			dephealth.Critical(false),
		))
	}

	return opts
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
