// memory: хранилище идентичностей в памяти процесса. Используется в
// окружении local и в тестах; инварианты уникальности те же, что у БД.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/chat-auth/internal/models"
	"github.com/pribylovaa/chat-auth/internal/storage"
)

type providerKey struct {
	provider   models.Provider
	providerID string
}

// Storage хранит пользователей и два индекса. Проверка уникальности и вставка
// выполняются под одной блокировкой.
type Storage struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]*models.User
	byEmail    map[string]uuid.UUID
	byProvider map[providerKey]uuid.UUID
}

func New() *Storage {
	return &Storage{
		users:      make(map[uuid.UUID]*models.User),
		byEmail:    make(map[string]uuid.UUID),
		byProvider: make(map[providerKey]uuid.UUID),
	}
}

func emailKey(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (s *Storage) CreateUser(_ context.Context, user *models.User) error {
	const op = "storage.memory.CreateUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	ek := emailKey(user.Email)
	if _, ok := s.byEmail[ek]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	pk := providerKey{user.Provider, user.ProviderID}
	if user.ProviderID != "" {
		if _, ok := s.byProvider[pk]; ok {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
	}

	cp := *user
	s.users[user.ID] = &cp
	s.byEmail[ek] = user.ID
	if user.ProviderID != "" {
		s.byProvider[pk] = user.ID
	}

	return nil
}

func (s *Storage) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.memory.UserByID"

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *u
	return &cp, nil
}

func (s *Storage) UserByProvider(_ context.Context, provider models.Provider, providerID string) (*models.User, error) {
	const op = "storage.memory.UserByProvider"

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byProvider[providerKey{provider, providerID}]
	if !ok || providerID == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *s.users[id]
	return &cp, nil
}

func (s *Storage) UserByEmail(_ context.Context, email string) (*models.User, error) {
	const op = "storage.memory.UserByEmail"

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *s.users[id]
	return &cp, nil
}

func (s *Storage) UpdateProfile(_ context.Context, id uuid.UUID, upd storage.ProfileUpdate) (*models.User, error) {
	const op = "storage.memory.UpdateProfile"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	u.UpdatedAt = time.Now().UTC()

	cp := *u
	return &cp, nil
}

func (s *Storage) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	const op = "storage.memory.SetActive"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	u.Active = active
	u.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *Storage) Close() {}

var _ storage.Storage = (*Storage)(nil)
