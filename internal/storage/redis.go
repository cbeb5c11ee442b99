package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix namespaces this service's keys in a shared Redis.
const defaultKeyPrefix = "limiter:"

// RedisStorage implements the Storage interface using Redis. Counters are
// plain string keys with server-side TTL expiry; identity sets are Redis
// sets whose TTL is refreshed on every observation. Because Redis expires
// keys itself, Sweep is a no-op. This is the backend of choice when several
// service instances must share quota state.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage creates a new Redis-backed storage instance and verifies
// connectivity before returning.
func NewRedisStorage(config Config) (*RedisStorage, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("addr is required for Redis storage")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &RedisStorage{
		client: client,
		prefix: prefix,
	}, nil
}

func (r *RedisStorage) counterKey(key string) string {
	return r.prefix + "counter:" + key
}

func (r *RedisStorage) identityKey(address string) string {
	return r.prefix + "ids:" + address
}

// GetCount returns the stored count for a counter key, or 0 when the key
// is absent or expired.
func (r *RedisStorage) GetCount(ctx context.Context, key string) (int, error) {
	val, err := r.client.Get(ctx, r.counterKey(key)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("malformed counter value %q: %w", val, err)
	}
	return count, nil
}

// SetCount stores count under key with a server-side TTL.
func (r *RedisStorage) SetCount(ctx context.Context, key string, count int, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.counterKey(key), count, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set counter: %w", err)
	}
	return nil
}

// AddIdentity unions userID into the address's identity set, refreshes the
// set's TTL, and returns the resulting cardinality. The three commands run
// in a single transactional pipeline so the count reflects this addition.
func (r *RedisStorage) AddIdentity(ctx context.Context, address, userID string, ttl time.Duration) (int, error) {
	key := r.identityKey(address)

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, userID)
	pipe.Expire(ctx, key, ttl)
	card := pipe.SCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to record identity: %w", err)
	}
	return int(card.Val()), nil
}

// Sweep is a no-op: Redis removes expired keys server-side.
func (r *RedisStorage) Sweep(_ context.Context) error {
	return nil
}

// Ping verifies the storage backend is reachable and operational.
func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the storage connection.
func (r *RedisStorage) Close() error {
	return r.client.Close()
}
