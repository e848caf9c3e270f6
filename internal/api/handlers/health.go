// health.go — обработчики health endpoints.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (хранилище, записи, тегирование)
package handlers

import (
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/bigkaa/jspotlight/internal/config"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"

	serviceName = "jspotlight"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// DependencyHealth — состояние зависимостей из фонового мониторинга.
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	checkers map[string]ReadinessChecker
	deps     DependencyHealth
	now      func() time.Time
}

// NewHealthHandler создаёт обработчик health endpoints.
// checkers — проверки по имени; deps может быть nil.
func NewHealthHandler(checkers map[string]ReadinessChecker, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		deps:     deps,
		now:      time.Now,
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status       string                       `json:"status"`
	Timestamp    string                       `json:"timestamp"`
	Version      string                       `json:"version"`
	Service      string                       `json:"service"`
	Checks       map[string]healthCheckResult `json:"checks"`
	Dependencies map[string]bool              `json:"dependencies,omitempty"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe.
// Возвращает 200 (ok/degraded) или 503 (fail).
// Недоступная зависимость из мониторинга даёт degraded.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
		Checks:    make(map[string]healthCheckResult, len(h.checkers)),
	}

	statuses := make([]string, 0, len(h.checkers)+1)
	for _, name := range slices.Sorted(maps.Keys(h.checkers)) {
		status, msg := h.checkers[name].CheckReady()
		resp.Checks[name] = healthCheckResult{Status: status, Message: msg}
		statuses = append(statuses, status)
	}

	if h.deps != nil {
		resp.Dependencies = h.deps.Health()
		for _, ok := range resp.Dependencies {
			if !ok {
				statuses = append(statuses, statusDegraded)
				break
			}
		}
	}

	resp.Status = overallStatus(statuses...)

	httpStatus := http.StatusOK
	if resp.Status == statusFail {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, resp)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}
