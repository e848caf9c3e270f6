// auth.go — проверка bearer-токена на входящих запросах.
// Запросы без заголовка Authorization пропускаются без subject,
// запросы с неверным токеном отклоняются с 401.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/jspotlight/internal/api/errors"
	"github.com/bigkaa/jspotlight/internal/auth"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeySubject — ключ для sub из токена в контексте запроса.
const ContextKeySubject contextKey = "jwt_subject"

// TokenVerifier проверяет токен и возвращает subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AuthGate — middleware проверки bearer-токенов.
type AuthGate struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewAuthGate создаёт middleware проверки токенов.
func NewAuthGate(verifier TokenVerifier, logger *slog.Logger) *AuthGate {
	return &AuthGate{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "auth_gate")),
	}
}

// Middleware возвращает HTTP middleware.
// OPTIONS (preflight) и запросы без заголовка Authorization проходят без изменений.
// Заголовок не вида "Bearer <token>" или неверный токен — 401.
func (g *AuthGate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				apierrors.Unauthorized(w, "Некорректный формат Authorization header, ожидается: Bearer <token>")
				return
			}

			subject, err := g.verifier.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				g.logger.Debug("Токен отклонён",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.Unauthorized(w, unauthorizedMessage(err))
				return
			}

			if info, ok := r.Context().Value(contextKeyRequestInfo).(*requestInfo); ok {
				info.subject = subject
			}
			ctx := context.WithValue(r.Context(), ContextKeySubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// unauthorizedMessage возвращает текст ответа по виду ошибки проверки.
func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return "Срок действия токена истёк"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "Неверная подпись токена"
	default:
		return "Некорректный токен"
	}
}

// RequireSubject отклоняет запросы без проверенного subject.
// Подключается после AuthGate, когда анонимный доступ запрещён.
func RequireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions && SubjectFromContext(r.Context()) == "" {
			apierrors.Unauthorized(w, "Требуется авторизация")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithExclusions оборачивает middleware, пропуская пути,
// начинающиеся с любого из excludePrefixes.
func WithExclusions(mw func(http.Handler) http.Handler, excludePrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		protected := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// SubjectFromContext извлекает subject из контекста запроса.
// Пустая строка — запрос без токена.
func SubjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeySubject).(string); ok {
		return v
	}
	return ""
}
