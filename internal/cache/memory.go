package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryItem struct {
	entry     StateEntry
	expiresAt time.Time
}

// MemoryStateStore хранит state в памяти процесса. Подходит для одного
// экземпляра сервиса; просроченные записи чистит DeleteExpired.
type MemoryStateStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryStateStore создаёт пустое хранилище.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (s *MemoryStateStore) Save(_ context.Context, state string, e *StateEntry, ttl time.Duration) error {
	const op = "cache.memory.Save"

	if ttl <= 0 {
		return fmt.Errorf("%s: %w", op, ErrInvalidTTL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[state] = memoryItem{entry: *e, expiresAt: s.now().Add(ttl)}

	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (*StateEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[state]
	if !ok {
		return nil, false, nil
	}
	delete(s.items, state)

	if !s.now().Before(it.expiresAt) {
		return nil, false, nil
	}

	e := it.entry
	return &e, true, nil
}

// DeleteExpired удаляет записи, истёкшие к моменту now, и возвращает их число.
func (s *MemoryStateStore) DeleteExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, it := range s.items {
		if !now.Before(it.expiresAt) {
			delete(s.items, k)
			n++
		}
	}

	return n
}

// Len возвращает число хранимых записей.
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}

func (s *MemoryStateStore) Close() error { return nil }

var _ StateStore = (*MemoryStateStore)(nil)
