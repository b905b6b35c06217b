// cache хранит одноразовые OAuth state между стартом авторизации у
// провайдера и callback. Запись живёт не дольше TTL и удаляется при
// первом чтении, повторное использование state невозможно.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/chat-auth/internal/models"
)

// ErrInvalidTTL возвращается при попытке сохранить state без срока жизни.
var ErrInvalidTTL = errors.New("state ttl must be positive")

// StateEntry описывает данные, сохранённые под OAuth state.
type StateEntry struct {
	Provider  models.Provider
	CreatedAt time.Time
}

// StateStore: минимальный контракт хранилища OAuth state.
type StateStore interface {
	// Save сохраняет запись с TTL.
	Save(ctx context.Context, state string, e *StateEntry, ttl time.Duration) error
	// Consume атомарно читает и удаляет запись. ok=false, если state
	// неизвестен, уже использован или истёк.
	Consume(ctx context.Context, state string) (*StateEntry, bool, error)
	// Close освобождает ресурсы.
	Close() error
}

type redisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStateStore создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой, используется "auth:state:".
func NewRedisStateStore(ctx context.Context, redisURL, prefix string) (StateStore, error) {
	const op = "cache.cache.NewRedisStateStore"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewRedisStateStoreWithClient(rdb, prefix), nil
}

// NewRedisStateStoreWithClient оборачивает готовый клиент.
func NewRedisStateStoreWithClient(rdb *redis.Client, prefix string) StateStore {
	if prefix == "" {
		prefix = "auth:state:"
	}

	return &redisStore{rdb: rdb, prefix: prefix}
}

func (c *redisStore) key(state string) string { return c.prefix + state }

// Храним как Redis Hash с полями: prv (провайдер), cat (unix-время создания).
func (c *redisStore) Save(ctx context.Context, state string, e *StateEntry, ttl time.Duration) error {
	const op = "cache.cache.Save"

	if ttl <= 0 {
		return fmt.Errorf("%s: %w", op, ErrInvalidTTL)
	}

	kv := map[string]string{
		"prv": e.Provider.String(),
		"cat": strconv.FormatInt(e.CreatedAt.Unix(), 10),
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.key(state), kv)
	pipe.Expire(ctx, c.key(state), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Consume выполняет HGETALL и DEL в одной транзакции MULTI/EXEC:
// из двух параллельных callback с одним state запись получит только один.
func (c *redisStore) Consume(ctx context.Context, state string) (*StateEntry, bool, error) {
	const op = "cache.cache.Consume"

	pipe := c.rdb.TxPipeline()
	get := pipe.HGetAll(ctx, c.key(state))
	pipe.Del(ctx, c.key(state))

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	m, err := get.Result()
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	created, err := strconv.ParseInt(m["cat"], 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	return &StateEntry{
		Provider:  models.Provider(m["prv"]),
		CreatedAt: time.Unix(created, 0).UTC(),
	}, true, nil
}

func (c *redisStore) Close() error { return c.rdb.Close() }
