// auth.go — обработчик POST /auth/login.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/jspotlight/internal/api/errors"
	"github.com/bigkaa/jspotlight/internal/auth"
)

// maxLoginBody — ограничение размера тела запроса входа.
const maxLoginBody = 4 << 10

// LoginService — выдача токена по учётным данным.
type LoginService interface {
	Login(username, password string) (string, error)
}

// AuthHandler — обработчик аутентификации.
type AuthHandler struct {
	login  LoginService
	logger *slog.Logger
}

// NewAuthHandler создаёт обработчик аутентификации.
func NewAuthHandler(login LoginService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		login:  login,
		logger: logger.With(slog.String("component", "auth_handler")),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login обрабатывает POST /auth/login.
// Тело: {"username": "...", "password": "..."}. Ответ: {"token": "..."} или 401.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	token, err := h.login.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Warn("Неудачная попытка входа", slog.String("username", req.Username))
			apierrors.Unauthorized(w, "Неверное имя пользователя или пароль")
			return
		}
		h.logger.Error("Ошибка выдачи токена", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось выдать токен")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}
