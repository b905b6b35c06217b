package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/chat-auth/internal/models"
	"github.com/pribylovaa/chat-auth/internal/storage"
)

const userColumns = `
	id, provider, COALESCE(provider_id, ''), email, name,
	COALESCE(avatar_url, ''), COALESCE(password_hash, ''),
	active, created_at, updated_at
`

// CreateUser вставляет пользователя. Уникальность email и (provider, provider_id)
// обеспечивается индексами: проверка и вставка выполняются одной командой.
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.CreateUser"

	query := `
		INSERT INTO users(id, provider, provider_id, email, name, avatar_url, password_hash, active, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10)
	`

	_, err := s.db.Exec(ctx, query,
		user.ID,
		string(user.Provider),
		user.ProviderID,
		user.Email,
		user.Name,
		user.AvatarURL,
		user.PasswordHash,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByProvider находит пользователя по идентичности провайдера.
func (s *Storage) UserByProvider(ctx context.Context, provider models.Provider, providerID string) (*models.User, error) {
	const op = "storage.postgres.UserByProvider"

	query := `SELECT ` + userColumns + ` FROM users WHERE provider = $1 AND provider_id = $2`

	user, err := scanUser(s.db.QueryRow(ctx, query, string(provider), providerID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByEmail находит пользователя по email (CITEXT, регистронезависимо).
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.UserByEmail"

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateProfile обновляет имя/аватар и возвращает актуальную запись.
func (s *Storage) UpdateProfile(ctx context.Context, id uuid.UUID, upd storage.ProfileUpdate) (*models.User, error) {
	const op = "storage.postgres.UpdateProfile"

	query := `
		UPDATE users
		SET name = COALESCE($2, name),
		    avatar_url = COALESCE($3, avatar_url),
		    updated_at = $4
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRow(ctx, query, id, upd.Name, upd.AvatarURL, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// SetActive переключает флаг активности аккаунта.
func (s *Storage) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	const op = "storage.postgres.SetActive"

	query := `
		UPDATE users
		SET active = $2, updated_at = $3
		WHERE id = $1
	`

	tag, err := s.db.Exec(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		user     models.User
		provider string
	)

	err := row.Scan(
		&user.ID,
		&provider,
		&user.ProviderID,
		&user.Email,
		&user.Name,
		&user.AvatarURL,
		&user.PasswordHash,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	user.Provider = models.Provider(provider)

	return &user, nil
}
