package auth

import (
	"errors"
	"testing"
	"time"
)

// TestAuthenticator_Login проверяет вход с верными и неверными учётными данными.
func TestAuthenticator_Login(t *testing.T) {
	creds, err := NewCredentials("user", "pass")
	if err != nil {
		t.Fatalf("ошибка создания учётных данных: %v", err)
	}
	tokens, err := NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("ошибка создания TokenService: %v", err)
	}
	a := NewAuthenticator(creds, tokens)

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"верные данные", "user", "pass", nil},
		{"неверный пароль", "user", "wrong", ErrInvalidCredentials},
		{"неверный пользователь", "admin", "pass", ErrInvalidCredentials},
		{"пустые поля", "", "", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := a.Login(tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ошибка = %v, ожидалась %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if token != "" {
					t.Error("при ошибке токен должен быть пустым")
				}
				return
			}
			sub, err := tokens.Verify(token)
			if err != nil {
				t.Fatalf("выданный токен не проходит проверку: %v", err)
			}
			if sub != tt.username {
				t.Errorf("subject = %q, ожидался %q", sub, tt.username)
			}
		})
	}
}

// TestNewCredentials_EmptyUsername проверяет отказ при пустом имени пользователя.
func TestNewCredentials_EmptyUsername(t *testing.T) {
	if _, err := NewCredentials("", "pass"); err == nil {
		t.Error("ожидалась ошибка для пустого имени пользователя")
	}
}
