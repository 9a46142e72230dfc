package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultRedisKeyPrefix = "quill:ledger:"
	maxRedisTxRetries     = 10
)

// RedisStore keeps one JSON document per entry and updates it with an
// optimistic WATCH/MULTI transaction.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// OpenRedisStore parses a redis:// URL and verifies the connection.
func OpenRedisStore(ctx context.Context, redisURL, keyPrefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStore(client, keyPrefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

// Create stores the entry only if the key is free.
func (s *RedisStore) Create(ctx context.Context, entry Entry) (Entry, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode ledger entry: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(entry.ID), data, 0).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to store ledger entry: %w", err)
	}
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrExists, entry.ID)
	}
	return cloneEntry(entry), nil
}

// Get loads an entry.
func (s *RedisStore) Get(ctx context.Context, id string) (Entry, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load ledger entry: %w", err)
	}
	return decodeRedisEntry(data)
}

// Update merges patch into the stored entry. A concurrent writer aborts the
// transaction and the merge is retried against the fresh value.
func (s *RedisStore) Update(ctx context.Context, id string, patch Patch, now time.Time) (Entry, error) {
	key := s.key(id)
	var updated Entry

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to load ledger entry: %w", err)
		}

		current, err := decodeRedisEntry(data)
		if err != nil {
			return err
		}

		next, err := applyPatch(current, patch, now)
		if err != nil {
			return err
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode ledger entry: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	}

	for attempt := 0; attempt < maxRedisTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Entry{}, err
		}
		return cloneEntry(updated), nil
	}
	return Entry{}, fmt.Errorf("ledger entry %s: too many concurrent updates", id)
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeRedisEntry(data []byte) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("failed to decode ledger entry: %w", err)
	}
	return entry, nil
}
