package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/chat-auth/internal/models"
	"github.com/pribylovaa/chat-auth/internal/pkg/log"
	"github.com/pribylovaa/chat-auth/internal/pkg/redact"
	"github.com/pribylovaa/chat-auth/internal/storage"
	"github.com/pribylovaa/chat-auth/internal/token"
)

// RegisterUser регистрирует локальный аккаунт (provider=email) и выпускает пару токенов.
func (s *Service) RegisterUser(ctx context.Context, email, password, name string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.RegisterUser"

	normEmail, ok := s.normalizeEmail(email)
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(password); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.checkLocalEmailFree(ctx, normEmail); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.New(),
		Provider:     models.ProviderEmail,
		Email:        normEmail,
		Name:         displayName(name, normEmail),
		PasswordHash: hashedPassword,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Соседний запрос занял e-mail между проверкой и вставкой.
			if err := s.checkLocalEmailFree(ctx, normEmail); err != nil {
				return nil, nil, fmt.Errorf("%s: %w", op, err)
			}

			return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_registered",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(normEmail)),
	)

	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// LoginUser выполняет вход по e-mail и паролю.
// Аккаунты OAuth-провайдеров пароля не имеют и получают ErrInvalidCredentials.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.LoginUser"

	normEmail, ok := s.normalizeEmail(email)
	if !ok || len(password) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if user.Provider != models.ProviderEmail || !checkPassword(user.PasswordHash, password) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !user.Active {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrAccountDeactivated)
	}

	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// RefreshToken меняет refresh-токен на новую пару (ротация обоих токенов).
// Любая причина отказа сводится к ErrRefreshFailed. Прежний refresh-токен
// остаётся действительным до истечения срока: списка отзыва нет.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	const op = "service.auth.RefreshToken"

	lg := log.From(ctx).With(slog.String("op", op))

	uid, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		lg.Warn("refresh_rejected", slog.String("reason", "invalid_token"))
		return nil, fmt.Errorf("%s: %w", op, ErrRefreshFailed)
	}

	user, err := s.storage.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_rejected", slog.String("reason", "user_not_found"))
			return nil, fmt.Errorf("%s: %w", op, ErrRefreshFailed)
		}

		lg.Error("refresh_user_lookup_failed", slog.String("err", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.Active {
		lg.Warn("refresh_rejected", slog.String("reason", "deactivated"), slog.String("user_id", uid.String()))
		return nil, fmt.Errorf("%s: %w", op, ErrRefreshFailed)
	}

	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, nil
}

// Authenticate проверяет access-токен и загружает владельца.
//
// Ошибки:
//   - ErrUnauthorized вместе с token.ErrTokenExpired или token.ErrInvalidToken;
//   - ErrUnauthorized вместе с ErrUserNotFound, если владельца нет;
//   - ErrAccountDeactivated для выключенного аккаунта;
//   - прочие ошибки хранилища как есть.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.Identity, error) {
	const op = "service.auth.Authenticate"

	uid, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
	}

	user, err := s.storage.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.Active {
		return nil, fmt.Errorf("%s: %w", op, ErrAccountDeactivated)
	}

	return &models.Identity{User: user, Provider: user.Provider}, nil
}

// Profile возвращает пользователя по ID.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "service.auth.Profile"

	user, err := s.storage.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// ProfileInput: изменяемые поля профиля. nil означает «не трогать».
type ProfileInput struct {
	Name      *string
	AvatarURL *string
}

// UpdateProfile меняет имя и/или аватар. Пустое имя недопустимо, пустой
// аватар сбрасывает картинку.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, in ProfileInput) (*models.User, error) {
	const op = "service.auth.UpdateProfile"

	if in.Name != nil {
		if err := s.validate.Var(*in.Name, "required,max=100"); err != nil {
			return nil, fmt.Errorf("%s: %w: name", op, ErrInvalidProfile)
		}
	}

	if in.AvatarURL != nil && *in.AvatarURL != "" {
		if err := s.validate.Var(*in.AvatarURL, "url,max=2048"); err != nil {
			return nil, fmt.Errorf("%s: %w: avatar", op, ErrInvalidProfile)
		}
	}

	user, err := s.storage.UpdateProfile(ctx, id, storage.ProfileUpdate{
		Name:      in.Name,
		AvatarURL: in.AvatarURL,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// Deactivate выключает аккаунт. Запись не удаляется; последующие запросы
// с токенами этого пользователя получают ErrAccountDeactivated.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	const op = "service.auth.Deactivate"

	if err := s.storage.SetActive(ctx, id, false); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("account_deactivated", slog.String("op", op), slog.String("user_id", id.String()))

	return nil
}

// IsTokenExpired сообщает, что отказ вызван истечением access-токена.
func IsTokenExpired(err error) bool {
	return errors.Is(err, token.ErrTokenExpired)
}

// checkLocalEmailFree: e-mail OAuth-аккаунта даёт *CollisionError,
// e-mail другого локального аккаунта даёт ErrEmailTaken.
func (s *Service) checkLocalEmailFree(ctx context.Context, email string) error {
	err := s.checkEmailFree(ctx, email)

	var collision *CollisionError
	if errors.As(err, &collision) && collision.ExistingProvider == models.ProviderEmail {
		return ErrEmailTaken
	}

	return err
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	if hash == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 || len(pw) > 72 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}
