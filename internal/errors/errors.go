// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход принимает доменную ошибку (service, token, oauth), на выход даёт:
//   - корректный HTTP-статус;
//   - короткий стабильный код для фронта;
//   - безопасное message без утечки деталей.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/chat-auth/internal/oauth"
	"github.com/pribylovaa/chat-auth/internal/service"
	"github.com/pribylovaa/chat-auth/internal/token"
)

// Нестандартный код, часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// APIError: единый формат для фронта.
// Code: короткий стабильный код для машиночитаемой обработки.
// Message: безопасное человекочитаемое описание.
// RequestID: прокидывается из X-Request-Id (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse: корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// argError: ошибка разбора входных данных на уровне хендлера.
type argError struct{ msg string }

func (e *argError) Error() string { return e.msg }

// InvalidArgument возвращает ошибку, которая отдаётся клиенту как 400
// с переданным сообщением.
func InvalidArgument(msg string) error { return &argError{msg: msg} }

// ToHTTP конвертирует ошибку в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil: программная ошибка вызова, 500/internal;
//   - известные доменные ошибки маппятся через таблицу ниже;
//   - всё остальное даёт 500/internal без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	httpStatus, code, msg := fromDomain(err)

	return httpStatus, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// WriteError: хелпер для HTTP-хендлеров.
// Пишет статус и тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// fromDomain: таблица доменная ошибка -> HTTP/код/сообщение.
// Порядок важен: более конкретные ошибки проверяются раньше общих.
func fromDomain(err error) (int, string, string) {
	var (
		arg       *argError
		collision *service.CollisionError
	)

	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"

	case errors.As(err, &arg):
		return http.StatusBadRequest, "invalid_argument", arg.msg

	// 401
	case errors.Is(err, service.ErrTokenRequired):
		return http.StatusUnauthorized, "unauthenticated", "token required"
	case errors.Is(err, service.ErrAccountDeactivated):
		return http.StatusUnauthorized, "account_deactivated", "account deactivated"
	case errors.Is(err, service.ErrRefreshFailed):
		return http.StatusUnauthorized, "invalid_refresh_token", "invalid refresh token"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, token.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired", "token expired"
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, token.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthenticated", "invalid token"

	// 409
	case errors.As(err, &collision):
		return http.StatusConflict, "account_collision", collision.Error()
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, "email_taken", "email already taken"

	// 400
	case errors.Is(err, service.ErrMissingEmail):
		return http.StatusBadRequest, "missing_email", "provider did not return a usable email address"
	case errors.Is(err, service.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_argument", "invalid email format"
	case errors.Is(err, service.ErrEmptyPassword):
		return http.StatusBadRequest, "invalid_argument", "password is empty"
	case errors.Is(err, service.ErrWeakPassword):
		return http.StatusBadRequest, "invalid_argument", "password is too weak"
	case errors.Is(err, service.ErrInvalidProfile):
		return http.StatusBadRequest, "invalid_argument", "invalid profile fields"
	case errors.Is(err, service.ErrInvalidHandshake):
		return http.StatusBadRequest, "invalid_argument", "invalid provider response"

	// 404
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "not_found", "user not found"
	case errors.Is(err, oauth.ErrUnknownProvider):
		return http.StatusNotFound, "unknown_provider", "unknown provider"

	// 502: внешний провайдер отклонил обмен или не отдал профиль.
	case errors.Is(err, oauth.ErrExchangeFailed), errors.Is(err, oauth.ErrProfileFetch):
		return http.StatusBadGateway, "provider_error", "identity provider error"

	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"

	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
