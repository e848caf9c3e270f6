package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/jspotlight/internal/auth"
)

func newLoginHandler(t *testing.T) (*AuthHandler, *auth.TokenService) {
	t.Helper()
	creds, err := auth.NewCredentials("user", "pass")
	if err != nil {
		t.Fatalf("ошибка создания учётных данных: %v", err)
	}
	tokens, err := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	if err != nil {
		t.Fatalf("ошибка создания TokenService: %v", err)
	}
	return NewAuthHandler(auth.NewAuthenticator(creds, tokens), testLogger()), tokens
}

// TestLogin проверяет выдачу токена и отказы.
func TestLogin(t *testing.T) {
	h, tokens := newLoginHandler(t)

	tests := []struct {
		name       string
		body       string
		statusCode int
	}{
		{"верные учётные данные", `{"username":"user","password":"pass"}`, http.StatusOK},
		{"неверный пароль", `{"username":"user","password":"wrong"}`, http.StatusUnauthorized},
		{"неизвестный пользователь", `{"username":"admin","password":"pass"}`, http.StatusUnauthorized},
		{"пустое тело", `{}`, http.StatusUnauthorized},
		{"битый JSON", `{"username":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body)))

			if rec.Code != tt.statusCode {
				t.Fatalf("ожидался %d, получен %d: %s", tt.statusCode, rec.Code, rec.Body.String())
			}
			if tt.statusCode != http.StatusOK {
				return
			}

			var resp loginResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("ошибка декодирования: %v", err)
			}
			sub, err := tokens.Verify(resp.Token)
			if err != nil {
				t.Fatalf("выданный токен не проходит проверку: %v", err)
			}
			if sub != "user" {
				t.Errorf("sub: ожидалось user, получено %q", sub)
			}
		})
	}
}
