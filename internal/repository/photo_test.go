package repository

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/jspotlight/internal/config"
	"github.com/bigkaa/jspotlight/internal/database"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("jspotlight_test"),
		postgres.WithUsername("jspotlight"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}
	portNum, err := strconv.Atoi(port.Port())
	if err != nil {
		t.Fatalf("Некорректный порт контейнера: %v", err)
	}

	cfg := &config.Config{
		DBHost:     host,
		DBPort:     portNum,
		DBName:     "jspotlight_test",
		DBUser:     "jspotlight",
		DBPassword: "test-password",
		DBSSLMode:  "disable",
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// TestPhotoRepository проверяет PostgreSQL-реализацию.
func TestPhotoRepository(t *testing.T) {
	pool := setupTestDB(t)
	testRepositoryContract(t, NewPhotoRepository(pool))

	if status, msg := database.NewReadinessChecker(pool).CheckReady(); status != "ok" {
		t.Errorf("readiness = %s (%s), ожидался ok", status, msg)
	}
}

// TestPhotoRepository_Listing проверяет порядок и фильтрацию списка.
func TestPhotoRepository_Listing(t *testing.T) {
	pool := setupTestDB(t)
	testRepositoryListing(t, NewPhotoRepository(pool))
}
