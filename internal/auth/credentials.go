package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials — неверное имя пользователя или пароль.
var ErrInvalidCredentials = errors.New("неверные учётные данные")

// Credentials — учётные данные единственного пользователя.
// Пароль хранится только в виде bcrypt-хэша.
type Credentials struct {
	username     string
	passwordHash []byte
}

// NewCredentials хэширует пароль и возвращает проверяемые учётные данные.
func NewCredentials(username, password string) (*Credentials, error) {
	if username == "" {
		return nil, errors.New("имя пользователя не задано")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("ошибка хэширования пароля: %w", err)
	}
	return &Credentials{username: username, passwordHash: hash}, nil
}

// Check сравнивает пару username/password с сохранёнными учётными данными.
func (c *Credentials) Check(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	// bcrypt выполняется и при несовпадении имени пользователя.
	passErr := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(password))
	return userOK && passErr == nil
}

// Authenticator проверяет учётные данные и выдаёт токен.
type Authenticator struct {
	creds  *Credentials
	tokens *TokenService
}

// NewAuthenticator создаёт обработчик входа.
func NewAuthenticator(creds *Credentials, tokens *TokenService) *Authenticator {
	return &Authenticator{creds: creds, tokens: tokens}
}

// Login возвращает токен с sub=username или ErrInvalidCredentials.
func (a *Authenticator) Login(username, password string) (string, error) {
	if !a.creds.Check(username, password) {
		return "", ErrInvalidCredentials
	}
	return a.tokens.Issue(username)
}
