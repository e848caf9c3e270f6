// Точка входа JSpotlight — сервис загрузки и тегирования фотографий.
// Загружает конфигурацию, создаёт хранилище изображений, провайдер тегов
// и хранилище записей, собирает сервисный слой и API handlers,
// запускает фоновые задачи (backfill, topologymetrics),
// HTTP-сервер с проверкой токенов и graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/jspotlight/internal/api/handlers"
	"github.com/bigkaa/jspotlight/internal/auth"
	"github.com/bigkaa/jspotlight/internal/config"
	"github.com/bigkaa/jspotlight/internal/database"
	"github.com/bigkaa/jspotlight/internal/repository"
	"github.com/bigkaa/jspotlight/internal/server"
	"github.com/bigkaa/jspotlight/internal/service"
	"github.com/bigkaa/jspotlight/internal/storage/filestore"
	"github.com/bigkaa/jspotlight/internal/storage/s3store"
	"github.com/bigkaa/jspotlight/internal/tagging"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("JSpotlight запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("blob_backend", cfg.BlobBackend),
		slog.String("tagger_mode", cfg.TaggerMode),
		slog.String("record_store", cfg.RecordStore),
	)

	ctx := context.Background()
	checkers := make(map[string]handlers.ReadinessChecker)

	// 3. Хранилище изображений
	var store service.BlobStore
	switch cfg.BlobBackend {
	case config.BlobBackendS3:
		s3, s3Err := s3store.New(ctx, s3store.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, logger)
		if s3Err != nil {
			logger.Error("Ошибка подключения к S3", slog.String("error", s3Err.Error()))
			os.Exit(1)
		}
		store = s3
		checkers["storage"] = s3
	default:
		fs, fsErr := filestore.New(cfg.UploadDir)
		if fsErr != nil {
			logger.Error("Ошибка создания директории загрузок",
				slog.String("dir", cfg.UploadDir),
				slog.String("error", fsErr.Error()),
			)
			os.Exit(1)
		}
		store = fs
		checkers["storage"] = fs
	}
	logger.Info("Хранилище изображений готово", slog.String("backend", cfg.BlobBackend))

	// 4. Провайдер тегов
	var tagger tagging.Provider
	switch cfg.TaggerMode {
	case config.TaggerModeLocal:
		local := tagging.LoadLocalProvider(cfg.ModelPath, cfg.ModelTopK, logger)
		tagger = local
		checkers["tagger"] = local
	default:
		remote, remoteErr := tagging.NewRemoteProvider(tagging.RemoteConfig{
			Endpoint:  cfg.TaggerURL,
			Timeout:   cfg.TaggerTimeout,
			CacheSize: cfg.TaggerCacheSize,
			CacheTTL:  cfg.TaggerCacheTTL,
		}, logger)
		if remoteErr != nil {
			logger.Error("Ошибка создания клиента тегирования", slog.String("error", remoteErr.Error()))
			os.Exit(1)
		}
		tagger = remote
	}

	// 5. Хранилище записей
	var repo repository.PhotoRepository
	var pgDB *sql.DB
	if cfg.RecordStore == config.RecordStorePostgres {
		// 5.1 Применение миграций БД
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		// 5.2 Подключение к PostgreSQL (pgxpool)
		pool, poolErr := database.Connect(ctx, cfg, logger)
		if poolErr != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", poolErr.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		// 5.3 Адаптер pgxpool → *sql.DB для topologymetrics
		pgDB = stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		repo = repository.NewPhotoRepository(pool)
		checkers["postgresql"] = database.NewReadinessChecker(pool)
	} else {
		repo = repository.NewMemoryPhotoRepository()
		logger.Warn("Записи хранятся в памяти и теряются при перезапуске")
	}

	// 6. Аутентификация
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Error("Ошибка создания сервиса токенов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	creds, err := auth.NewCredentials(cfg.AuthUsername, cfg.AuthPassword)
	if err != nil {
		logger.Error("Ошибка подготовки учётных данных", slog.String("error", err.Error()))
		os.Exit(1)
	}
	authenticator := auth.NewAuthenticator(creds, tokens)

	// 7. Services
	uploadSvc := service.NewUploadService(store, tagger, repo, logger)
	photoSvc := service.NewPhotoService(store, tagger, repo, logger)

	// 8. Фоновое повторное тегирование
	if cfg.BackfillInterval > 0 {
		backfillSvc := service.NewBackfillService(photoSvc, repo, cfg.BackfillInterval, logger)
		backfillSvc.Start(ctx)
		defer backfillSvc.Stop()
	}

	// 9. topologymetrics — мониторинг зависимостей
	var deps handlers.DependencyHealth
	depParams := service.DephealthParams{
		ServiceID:     "jspotlight",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		CheckInterval: cfg.DephealthCheckInterval,
	}
	if pgDB != nil {
		depParams.PgConnURL = cfg.DatabaseDSN()
	}
	if cfg.TaggerMode == config.TaggerModeRemote {
		depParams.TaggerURL = cfg.TaggerURL
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(depParams, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		defer dephealthSvc.Stop()
		deps = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. HTTP handlers и маршруты
	router := server.NewRouter(server.RouterConfig{
		Auth:         handlers.NewAuthHandler(authenticator, logger),
		Photos:       handlers.NewPhotosHandler(uploadSvc, photoSvc, cfg.MaxUploadSize, logger),
		Health:       handlers.NewHealthHandler(checkers, deps),
		Verifier:     tokens,
		AuthRequired: cfg.AuthRequired,
		CORSOrigins:  cfg.CORSOrigins,
	}, logger)

	// 11. Запуск HTTP-сервера
	srv := server.New(cfg, logger, router)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
