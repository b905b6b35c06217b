package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pribylovaa/chat-auth/internal/models"
	"github.com/pribylovaa/chat-auth/internal/pkg/log"
	"github.com/pribylovaa/chat-auth/internal/pkg/redact"
	"github.com/pribylovaa/chat-auth/internal/storage"
)

// ResolveHandshake выбирает аккаунт для завершённого OAuth handshake:
//  1. существующий аккаунт с той же идентичностью провайдера возвращается
//     без изменений;
//  2. e-mail, уже занятый любым аккаунтом, даёт *CollisionError;
//  3. иначе создаётся новый активный аккаунт.
//
// Handshake без пригодного e-mail отклоняется с ErrMissingEmail до создания.
// Проверка и вставка не разделены: уникальность держит хранилище, а проигравший
// в гонке получает ту же классификацию, что и при последовательном вызове.
func (s *Service) ResolveHandshake(ctx context.Context, hs *models.Handshake) (*models.User, error) {
	const op = "service.linking.ResolveHandshake"

	lg := log.From(ctx).With(slog.String("op", op), slog.String("provider", hs.Provider.String()))

	if !hs.Provider.OAuth() || strings.TrimSpace(hs.ProviderID) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidHandshake)
	}

	// 1) повторный вход.
	user, err := s.storage.UserByProvider(ctx, hs.Provider, hs.ProviderID)
	if err == nil {
		lg.Debug("handshake_existing_identity", slog.String("user_id", user.ID.String()))
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		lg.Error("provider_lookup_failed", slog.String("err", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	email, ok := s.normalizeEmail(hs.Email)
	if !ok {
		lg.Warn("handshake_missing_email")
		return nil, fmt.Errorf("%s: %w", op, ErrMissingEmail)
	}

	// 2) e-mail уже занят.
	if err := s.checkEmailFree(ctx, email); err != nil {
		if errors.Is(err, ErrAccountCollision) {
			lg.Warn("account_collision", slog.String("email", redact.Email(email)))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// 3) новый аккаунт.
	now := s.now()
	user = &models.User{
		ID:         uuid.New(),
		Provider:   hs.Provider,
		ProviderID: hs.ProviderID,
		Email:      email,
		Name:       displayName(hs.Name, email),
		AvatarURL:  hs.AvatarURL,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.storage.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, storage.ErrAlreadyExists) {
			lg.Error("create_user_failed", slog.String("err", err.Error()))
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return s.resolveLostRace(ctx, hs, email)
	}

	lg.Info("user_created",
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(email)),
	)

	return user, nil
}

// resolveLostRace классифицирует конфликт вставки: параллельный вход той же
// идентичности возвращает созданный соседом аккаунт, иначе это коллизия e-mail.
func (s *Service) resolveLostRace(ctx context.Context, hs *models.Handshake, email string) (*models.User, error) {
	const op = "service.linking.resolveLostRace"

	user, err := s.storage.UserByProvider(ctx, hs.Provider, hs.ProviderID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.checkEmailFree(ctx, email); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Запись, вызвавшая конфликт, уже не видна: сообщаем о коллизии без провайдера.
	return nil, fmt.Errorf("%s: %w", op, &CollisionError{Email: email})
}

// CompleteHandshake связывает handshake с аккаунтом и выпускает пару токенов.
func (s *Service) CompleteHandshake(ctx context.Context, hs *models.Handshake) (*models.TokenPair, *models.User, error) {
	const op = "service.linking.CompleteHandshake"

	user, err := s.ResolveHandshake(ctx, hs)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.Active {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrAccountDeactivated)
	}

	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		log.From(ctx).Error("token_issue_failed", slog.String("op", op), slog.String("err", err.Error()))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// checkEmailFree возвращает *CollisionError, если e-mail занят.
func (s *Service) checkEmailFree(ctx context.Context, email string) error {
	existing, err := s.storage.UserByEmail(ctx, email)
	if err == nil {
		return &CollisionError{Email: email, ExistingProvider: existing.Provider}
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}

	return err
}

// normalizeEmail обрезает пробелы, приводит к нижнему регистру и проверяет формат.
func (s *Service) normalizeEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", false
	}

	if err := s.validate.Var(email, "required,email"); err != nil {
		return "", false
	}

	return email, true
}

func displayName(name, email string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}

	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}

	return email
}
