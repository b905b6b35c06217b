// storage задаёт контракт хранилища идентичностей: поиск пользователя по
// (provider, provider_id), по email среди всех провайдеров и по ID, а также
// атомарную вставку с гарантией уникальности email.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/pribylovaa/chat-auth/internal/models"
)

var (
	// ErrNotFound: запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists: нарушение уникальности (email или provider+provider_id).
	ErrAlreadyExists = errors.New("already exists")
)

// ProfileUpdate: изменяемые поля профиля. nil означает «не трогать».
type ProfileUpdate struct {
	Name      *string
	AvatarURL *string
}

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// CreateUser атомарно вставляет пользователя, если email и пара
	// (provider, provider_id) ещё свободны. Иначе возвращает ErrAlreadyExists.
	CreateUser(ctx context.Context, user *models.User) error
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// UserByProvider находит пользователя по (provider, provider_id).
	UserByProvider(ctx context.Context, provider models.Provider, providerID string) (*models.User, error)
	// UserByEmail находит пользователя по email среди всех провайдеров.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdateProfile обновляет имя и/или аватар.
	UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*models.User, error)
	// SetActive включает или выключает аккаунт.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	Close()
}
