// service содержит бизнес-логику аутентификации: связывание OAuth-аккаунтов,
// обмен refresh-токена, локальную регистрацию/вход по e-mail и работу
// с профилем. Состояние запроса внутри Service не хранится; экземпляр
// безопасен для конкурентного использования, если потокобезопасно хранилище.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pribylovaa/chat-auth/internal/models"
	"github.com/pribylovaa/chat-auth/internal/storage"
)

var (
	// ErrUnauthorized: запрос без действительного access-токена. HTTP 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenRequired: строгий режим, а токена в запросе нет. HTTP 401.
	ErrTokenRequired = errors.New("token required")

	// ErrAccountDeactivated: аккаунт выключен. HTTP 401.
	ErrAccountDeactivated = errors.New("account deactivated")

	// ErrAccountCollision: e-mail уже принадлежит аккаунту другого провайдера.
	// Конкретные данные несёт *CollisionError. HTTP 409.
	ErrAccountCollision = errors.New("account collision")

	// ErrMissingEmail: провайдер не вернул пригодный e-mail. HTTP 400.
	ErrMissingEmail = errors.New("missing email")

	// ErrInvalidHandshake: handshake без провайдера или его идентификатора. HTTP 400.
	ErrInvalidHandshake = errors.New("invalid handshake")

	// ErrRefreshFailed: обмен refresh-токена отклонён. Причина наружу
	// не раскрывается. HTTP 401.
	ErrRefreshFailed = errors.New("refresh failed")

	// ErrInvalidCredentials: пара e-mail/пароль неверна. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken: e-mail занят другим локальным аккаунтом. HTTP 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidEmail: e-mail имеет некорректный формат. HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword: пароль не удовлетворяет политике сложности. HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword: пароль пустой. HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrInvalidProfile: некорректные поля профиля. HTTP 400.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrUserNotFound: пользователь не найден. HTTP 404.
	ErrUserNotFound = errors.New("user not found")
)

// CollisionError описывает попытку привязать e-mail, уже занятый
// аккаунтом другого провайдера. errors.Is(err, ErrAccountCollision) == true.
type CollisionError struct {
	Email            string
	ExistingProvider models.Provider
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("An account with email %s already exists. Please sign in with your existing method.", e.Email)
}

func (e *CollisionError) Is(target error) bool {
	return target == ErrAccountCollision
}

// TokenIssuer выпускает и проверяет пары токенов (см. internal/token).
type TokenIssuer interface {
	Issue(userID uuid.UUID) (*models.TokenPair, error)
	VerifyAccess(token string) (uuid.UUID, error)
	VerifyRefresh(token string) (uuid.UUID, error)
}

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage  storage.Storage
	tokens   TokenIssuer
	validate *validator.Validate
	now      func() time.Time
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, tokens TokenIssuer) *Service {
	return &Service{
		storage:  storage,
		tokens:   tokens,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}
}
