// Пакет auth — выпуск и проверка bearer-токенов (JWT, HS256)
// и проверка учётных данных при входе.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL — время жизни токена по умолчанию.
const DefaultTTL = time.Hour

// Ошибки проверки токена.
var (
	// ErrMalformed — токен не разбирается или не содержит обязательных claims.
	ErrMalformed = errors.New("некорректный токен")
	// ErrInvalidSignature — подпись не совпадает или алгоритм не HS256.
	ErrInvalidSignature = errors.New("неверная подпись токена")
	// ErrExpired — срок действия токена истёк.
	ErrExpired = errors.New("срок действия токена истёк")
)

// TokenService выпускает и проверяет подписанные токены с claim sub.
// Безопасен для конкурентного использования: состояние неизменяемо после создания.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService создаёт сервис токенов. ttl <= 0 заменяется на DefaultTTL.
func NewTokenService(secret []byte, ttl time.Duration) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("ключ подписи не задан")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := make([]byte, len(secret))
	copy(key, secret)

	return &TokenService{
		secret: key,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL возвращает время жизни выдаваемых токенов.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue выпускает токен для subject со сроком действия now+TTL.
func (s *TokenService) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("subject не задан")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, nil
}

// Verify проверяет подпись и срок действия токена и возвращает subject.
// Ошибки сводятся к ErrMalformed, ErrInvalidSignature или ErrExpired.
func (s *TokenService) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", classify(err)
	}
	if claims.Subject == "" {
		return "", ErrMalformed
	}
	return claims.Subject, nil
}

// classify сводит ошибки jwt к ошибкам пакета.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}
