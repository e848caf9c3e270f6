package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T, now time.Time) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("ошибка создания TokenService: %v", err)
	}
	svc.now = func() time.Time { return now }
	return svc
}

// TestIssueVerify проверяет, что выданный токен проходит проверку и возвращает subject.
func TestIssueVerify(t *testing.T) {
	svc := newTestService(t, time.Now())

	token, err := svc.Issue("user")
	if err != nil {
		t.Fatalf("ошибка выпуска токена: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("токен должен состоять из трёх частей: %q", token)
	}

	sub, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("ошибка проверки токена: %v", err)
	}
	if sub != "user" {
		t.Errorf("subject = %q, ожидался user", sub)
	}
}

// TestVerify_Expired проверяет отказ для токена с истёкшим сроком действия.
func TestVerify_Expired(t *testing.T) {
	issuedAt := time.Now()
	svc := newTestService(t, issuedAt)
	token, err := svc.Issue("user")
	if err != nil {
		t.Fatalf("ошибка выпуска токена: %v", err)
	}

	// За секунду до истечения токен ещё принимается.
	svc.now = func() time.Time { return issuedAt.Add(time.Hour - time.Second) }
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("токен до истечения должен приниматься: %v", err)
	}

	svc.now = func() time.Time { return issuedAt.Add(time.Hour + time.Minute) }
	if _, err := svc.Verify(token); !errors.Is(err, ErrExpired) {
		t.Errorf("ожидалась ErrExpired, получено %v", err)
	}
}

// TestVerify_OtherSecret проверяет отказ для токена, подписанного другим ключом.
func TestVerify_OtherSecret(t *testing.T) {
	other, err := NewTokenService([]byte("ffffffffffffffffffffffffffffffff"), time.Hour)
	if err != nil {
		t.Fatalf("ошибка создания TokenService: %v", err)
	}
	token, err := other.Issue("user")
	if err != nil {
		t.Fatalf("ошибка выпуска токена: %v", err)
	}

	svc := newTestService(t, time.Now())
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("ожидалась ErrInvalidSignature, получено %v", err)
	}
}

// TestVerify_TamperedPayload проверяет отказ при подмене payload с сохранением подписи.
func TestVerify_TamperedPayload(t *testing.T) {
	svc := newTestService(t, time.Now())
	token, err := svc.Issue("user")
	if err != nil {
		t.Fatalf("ошибка выпуска токена: %v", err)
	}
	parts := strings.Split(token, ".")

	payload, err := json.Marshal(map[string]any{
		"sub": "admin",
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("ошибка сериализации payload: %v", err)
	}
	forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString(payload) + "." + parts[2]

	if _, err := svc.Verify(forged); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("ожидалась ErrInvalidSignature, получено %v", err)
	}
}

// TestVerify_WrongAlgorithm проверяет отказ для токена с алгоритмом, отличным от HS256.
func TestVerify_WrongAlgorithm(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("ошибка подписи: %v", err)
	}

	svc := newTestService(t, time.Now())
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("ожидалась ErrInvalidSignature, получено %v", err)
	}
}

// TestVerify_Malformed проверяет отказ для неразбираемых токенов и токенов без обязательных claims.
func TestVerify_Malformed(t *testing.T) {
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user"}).
		SignedString(testSecret)
	if err != nil {
		t.Fatalf("ошибка подписи: %v", err)
	}
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("ошибка подписи: %v", err)
	}

	svc := newTestService(t, time.Now())
	tests := []struct {
		name  string
		token string
	}{
		{"пустая строка", ""},
		{"не JWT", "not-a-token"},
		{"мусор в сегментах", "a.b.c"},
		{"без exp", noExp},
		{"без sub", noSub},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Verify(tt.token); !errors.Is(err, ErrMalformed) {
				t.Errorf("ожидалась ErrMalformed, получено %v", err)
			}
		})
	}
}

// TestNewTokenService_EmptySecret проверяет отказ при пустом ключе.
func TestNewTokenService_EmptySecret(t *testing.T) {
	if _, err := NewTokenService(nil, time.Hour); err == nil {
		t.Error("ожидалась ошибка для пустого ключа")
	}
}

// TestNewTokenService_DefaultTTL проверяет подстановку TTL по умолчанию.
func TestNewTokenService_DefaultTTL(t *testing.T) {
	svc, err := NewTokenService(testSecret, 0)
	if err != nil {
		t.Fatalf("ошибка создания TokenService: %v", err)
	}
	if svc.TTL() != DefaultTTL {
		t.Errorf("TTL = %v, ожидалось %v", svc.TTL(), DefaultTTL)
	}
}
