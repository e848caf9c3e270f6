// Пакет database — пул подключений к хранилищу записей о фотографиях,
// схема таблицы photos (golang-migrate) и её проверка готовности.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/jspotlight/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// applicationName — имя клиента в pg_stat_activity.
const applicationName = "jspotlight"

// ErrDirtySchema — предыдущая миграция схемы photos прервана, нужна ручная правка.
var ErrDirtySchema = errors.New("схема photos в состоянии dirty")

// Connect создаёт пул подключений к базе записей и проверяет её доступность.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к базе записей: %w", err)
	}

	logger.Info("База записей о фотографиях подключена",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)

	return pool, nil
}

// Migrate приводит схему таблицы photos к последней версии.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	dbURL, err := migrationURL(cfg.DatabaseDSN())
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()
	m.Log = &migrateLogger{logger: logger.With(slog.String("component", "migrate"))}

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		from = 0
	case err != nil:
		return fmt.Errorf("ошибка чтения версии схемы: %w", err)
	case dirty:
		return fmt.Errorf("%w: версия %d", ErrDirtySchema, from)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	to, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("ошибка чтения версии схемы: %w", err)
	}
	if to == from {
		logger.Info("Схема photos актуальна", slog.Uint64("version", uint64(to)))
		return nil
	}
	logger.Info("Схема photos обновлена",
		slog.Uint64("from", uint64(from)),
		slog.Uint64("to", uint64(to)),
	)
	return nil
}

// migrationURL переводит DSN в URL драйвера pgx5 для golang-migrate.
func migrationURL(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
	default:
		return "", fmt.Errorf("неподдерживаемая схема DSN %q", u.Scheme)
	}
	u.Scheme = "pgx5"
	return u.String(), nil
}

// migrateLogger направляет сообщения golang-migrate в slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// ReadinessChecker — проверка готовности базы записей для health endpoint.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности базы записей.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady проверяет, что таблица photos доступна, и сообщает
// число записей, ожидающих повторного тегирования.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var pending int64
	err := c.pool.QueryRow(ctx,
		`SELECT count(*) FROM photos WHERE tag_status <> 'ok'`,
	).Scan(&pending)
	if err != nil {
		return "fail", fmt.Sprintf("таблица photos недоступна: %v", err)
	}
	return "ok", fmt.Sprintf("записей без тегов модели: %d", pending)
}
