// router.go — маршруты и цепочка middleware.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/jspotlight/internal/api/handlers"
	"github.com/bigkaa/jspotlight/internal/api/middleware"
)

// RouterConfig — зависимости маршрутизатора.
type RouterConfig struct {
	Auth   *handlers.AuthHandler
	Photos *handlers.PhotosHandler
	Health *handlers.HealthHandler
	// Verifier — проверка Bearer-токенов
	Verifier middleware.TokenVerifier
	// AuthRequired — запросы без токена к /photos отклоняются (401)
	AuthRequired bool
	// CORSOrigins — разрешённые origin; пусто — CORS выключен
	CORSOrigins []string
	// MetricsHandler — обработчик /metrics; nil — promhttp.Handler()
	MetricsHandler http.Handler
}

// NewRouter собирает маршруты JSpotlight.
//
// Порядок middleware: логирование, метрики, CORS, проверка токена.
// Login, health и metrics доступны без токена.
func NewRouter(cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MetricsMiddleware())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSOrigins))
	}

	gate := middleware.NewAuthGate(cfg.Verifier, logger)
	r.Use(middleware.WithExclusions(gate.Middleware(), "/auth/login", "/health/", "/metrics"))

	r.Post("/auth/login", cfg.Auth.Login)

	r.Get("/health/live", cfg.Health.HealthLive)
	r.Get("/health/ready", cfg.Health.HealthReady)

	metrics := cfg.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/photos", func(r chi.Router) {
		if cfg.AuthRequired {
			r.Use(middleware.RequireSubject)
		}
		r.Get("/", cfg.Photos.List)
		r.Post("/", cfg.Photos.Upload)
		r.Post("/upload", cfg.Photos.Upload)
		r.Get("/{id}", cfg.Photos.Get)
		r.Put("/{id}", cfg.Photos.Update)
		r.Delete("/{id}", cfg.Photos.Delete)
		r.Get("/{id}/file", cfg.Photos.File)
		r.Post("/{id}/tags", cfg.Photos.Retag)
	})

	return r
}
