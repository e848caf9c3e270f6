// Пакет config — загрузка и валидация конфигурации JSpotlight
// из переменных окружения (с необязательным .env файлом).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые значения переключателей backend-ов.
const (
	BlobBackendLocal = "local"
	BlobBackendS3    = "s3"

	TaggerModeRemote = "remote"
	TaggerModeLocal  = "local"

	RecordStoreMemory   = "memory"
	RecordStorePostgres = "postgres"
)

// minSecretLength — минимальная длина ключа подписи HS256 (256 бит).
const minSecretLength = 32

// Config содержит все параметры конфигурации JSpotlight.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Секрет подписи токенов (HS256)
	JWTSecret []byte
	// Время жизни выданного токена
	TokenTTL time.Duration
	// Учётные данные единственного пользователя
	AuthUsername string
	AuthPassword string
	// Требовать токен для /photos (по умолчанию запросы без заголовка пропускаются)
	AuthRequired bool
	// Разрешённые источники CORS
	CORSOrigins []string

	// Директория локального хранилища изображений
	UploadDir string
	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64
	// Backend хранения изображений: local или s3
	BlobBackend string
	// Параметры S3-совместимого хранилища (только BlobBackend = s3)
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	// Вариант тегирования: remote или local
	TaggerMode string
	// URL сервиса тегирования (POST сырых байт изображения)
	TaggerURL string
	// Таймаут одного запроса к сервису тегирования
	TaggerTimeout time.Duration
	// Размер и TTL кэша результатов тегирования
	TaggerCacheSize int
	TaggerCacheTTL  time.Duration
	// Путь к файлу локальной модели и число возвращаемых тегов
	ModelPath string
	ModelTopK int

	// Хранилище записей: memory или postgres
	RecordStore string
	// Параметры подключения к PostgreSQL (только RecordStore = postgres)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Интервал повторного тегирования записей с sentinel-тегами (0 — отключено)
	BackfillInterval time.Duration
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Перед разбором читается .env файл (JS_ENV_FILE), если он существует.
// Уже заданные переменные окружения файлом не перезаписываются.
func Load() (*Config, error) {
	envFile := getEnvDefault("JS_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("JS_ENV_FILE: ошибка чтения %q: %w", envFile, err)
	}

	cfg := &Config{}
	var err error

	// JS_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("JS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("JS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("JS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// JS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	cfg.ShutdownTimeout, err = getEnvDuration("JS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("JS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// JS_JWT_SECRET — обязательный, не короче 32 байт
	secret, err := getEnvRequired("JS_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("JS_JWT_SECRET: длина ключа %d байт, требуется не менее %d", len(secret), minSecretLength)
	}
	cfg.JWTSecret = []byte(secret)

	// JS_TOKEN_TTL — время жизни токена (по умолчанию 1h)
	cfg.TokenTTL, err = getEnvDuration("JS_TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JS_TOKEN_TTL: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("JS_TOKEN_TTL: значение должно быть положительным")
	}

	// JS_AUTH_USERNAME / JS_AUTH_PASSWORD — учётные данные (по умолчанию user/pass)
	cfg.AuthUsername = getEnvDefault("JS_AUTH_USERNAME", "user")
	cfg.AuthPassword = getEnvDefault("JS_AUTH_PASSWORD", "pass")

	// JS_AUTH_REQUIRED — требовать токен для /photos (по умолчанию false)
	cfg.AuthRequired, err = getEnvBool("JS_AUTH_REQUIRED", false)
	if err != nil {
		return nil, fmt.Errorf("JS_AUTH_REQUIRED: %w", err)
	}

	// JS_CORS_ORIGINS — список источников через запятую (по умолчанию *)
	cfg.CORSOrigins = splitList(getEnvDefault("JS_CORS_ORIGINS", "*"))

	// JS_UPLOAD_DIR — директория хранения изображений (по умолчанию uploads)
	cfg.UploadDir = getEnvDefault("JS_UPLOAD_DIR", "uploads")

	// JS_MAX_UPLOAD_SIZE — максимальный размер загрузки (по умолчанию 100 MB)
	cfg.MaxUploadSize, err = getEnvInt64("JS_MAX_UPLOAD_SIZE", 100<<20)
	if err != nil {
		return nil, fmt.Errorf("JS_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("JS_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	// JS_BLOB_BACKEND — local или s3 (по умолчанию local)
	cfg.BlobBackend = getEnvDefault("JS_BLOB_BACKEND", BlobBackendLocal)
	switch cfg.BlobBackend {
	case BlobBackendLocal:
	case BlobBackendS3:
		// JS_S3_BUCKET — обязательный для s3
		cfg.S3Bucket, err = getEnvRequired("JS_S3_BUCKET")
		if err != nil {
			return nil, err
		}
		cfg.S3Endpoint = getEnvDefault("JS_S3_ENDPOINT", "")
		cfg.S3Region = getEnvDefault("JS_S3_REGION", "us-east-1")
		cfg.S3AccessKey = getEnvDefault("JS_S3_ACCESS_KEY", "")
		cfg.S3SecretKey = getEnvDefault("JS_S3_SECRET_KEY", "")
	default:
		return nil, fmt.Errorf("JS_BLOB_BACKEND: недопустимое значение %q, допустимые: local, s3", cfg.BlobBackend)
	}

	// JS_TAGGER_MODE — remote или local (по умолчанию remote)
	cfg.TaggerMode = getEnvDefault("JS_TAGGER_MODE", TaggerModeRemote)
	if cfg.TaggerMode != TaggerModeRemote && cfg.TaggerMode != TaggerModeLocal {
		return nil, fmt.Errorf("JS_TAGGER_MODE: недопустимое значение %q, допустимые: remote, local", cfg.TaggerMode)
	}

	// JS_TAGGER_URL — URL сервиса тегирования
	cfg.TaggerURL = getEnvDefault("JS_TAGGER_URL", "http://localhost:5000/predict")
	if cfg.TaggerMode == TaggerModeRemote {
		u, parseErr := url.Parse(cfg.TaggerURL)
		if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("JS_TAGGER_URL: некорректный URL %q", cfg.TaggerURL)
		}
	}

	// JS_TAGGER_TIMEOUT — таймаут запроса к сервису тегирования (по умолчанию 10s)
	cfg.TaggerTimeout, err = getEnvDuration("JS_TAGGER_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("JS_TAGGER_TIMEOUT: %w", err)
	}

	// JS_TAGGER_CACHE_SIZE — размер кэша результатов (по умолчанию 1024, 0 — без кэша)
	cfg.TaggerCacheSize, err = getEnvInt("JS_TAGGER_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("JS_TAGGER_CACHE_SIZE: %w", err)
	}
	if cfg.TaggerCacheSize < 0 {
		return nil, fmt.Errorf("JS_TAGGER_CACHE_SIZE: значение не может быть отрицательным")
	}

	// JS_TAGGER_CACHE_TTL — время жизни записи кэша (по умолчанию 1h)
	cfg.TaggerCacheTTL, err = getEnvDuration("JS_TAGGER_CACHE_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JS_TAGGER_CACHE_TTL: %w", err)
	}

	// JS_MODEL_PATH — файл локальной модели (по умолчанию model/palette.json)
	cfg.ModelPath = getEnvDefault("JS_MODEL_PATH", "model/palette.json")

	// JS_MODEL_TOP_K — число тегов от локальной модели (по умолчанию 3)
	cfg.ModelTopK, err = getEnvInt("JS_MODEL_TOP_K", 3)
	if err != nil {
		return nil, fmt.Errorf("JS_MODEL_TOP_K: %w", err)
	}
	if cfg.ModelTopK < 1 {
		return nil, fmt.Errorf("JS_MODEL_TOP_K: значение должно быть не меньше 1")
	}

	// JS_RECORD_STORE — memory или postgres (по умолчанию memory)
	cfg.RecordStore = getEnvDefault("JS_RECORD_STORE", RecordStoreMemory)
	switch cfg.RecordStore {
	case RecordStoreMemory:
	case RecordStorePostgres:
		if err := loadDatabase(cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("JS_RECORD_STORE: недопустимое значение %q, допустимые: memory, postgres", cfg.RecordStore)
	}

	// JS_BACKFILL_INTERVAL — интервал повторного тегирования (по умолчанию 0, отключено)
	cfg.BackfillInterval, err = getEnvDuration("JS_BACKFILL_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("JS_BACKFILL_INTERVAL: %w", err)
	}
	if cfg.BackfillInterval < 0 {
		return nil, fmt.Errorf("JS_BACKFILL_INTERVAL: значение не может быть отрицательным")
	}

	// JS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("JS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("JS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// JS_DEPHEALTH_GROUP — имя группы в метриках topologymetrics (по умолчанию "jspotlight")
	cfg.DephealthGroup = getEnvDefault("JS_DEPHEALTH_GROUP", "jspotlight")

	// JS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("JS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("JS_LOG_LEVEL: %w", err)
	}

	// JS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("JS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("JS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	return cfg, nil
}

// loadDatabase читает параметры подключения к PostgreSQL.
func loadDatabase(cfg *Config) error {
	var err error

	cfg.DBHost = getEnvDefault("JS_DB_HOST", "localhost")

	cfg.DBPort, err = getEnvInt("JS_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("JS_DB_PORT: %w", err)
	}

	cfg.DBName = getEnvDefault("JS_DB_NAME", "jspotlight")

	// JS_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("JS_DB_USER")
	if err != nil {
		return err
	}

	// JS_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("JS_DB_PASSWORD")
	if err != nil {
		return err
	}

	// JS_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("JS_DB_SSL_MODE", "disable")
	validSSL := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSL[cfg.DBSSLMode] {
		return fmt.Errorf("JS_DB_SSL_MODE: недопустимое значение %q", cfg.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате URL.
func (c *Config) DatabaseDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// splitList разбирает список через запятую, пропуская пустые элементы.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
