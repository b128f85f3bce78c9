package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces session keys.
const KeyPrefix = "surveyd:session:"

// maxTxRetries bounds optimistic retries before Update gives up.
const maxTxRetries = 16

// RedisStore keeps sessions as JSON values. Update uses WATCH and MULTI/EXEC
// so concurrent writers to one token retry instead of overwriting each other.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and checks the connection. ttl of 0
// keeps sessions forever; otherwise every write refreshes it.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreFromClient(client, ttl), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(token string) string { return KeyPrefix + token }

// Create implements Store.
func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := r.client.SetNX(ctx, key(s.Token), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrExists, s.Token)
	}
	return nil
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := r.client.Get(ctx, key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, token)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Update implements Store.
func (r *RedisStore) Update(ctx context.Context, token string, fn func(*Session) error) (*Session, error) {
	k := key(token)
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		var out *Session
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, k).Bytes()
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %q", ErrNotFound, token)
			}
			if err != nil {
				return fmt.Errorf("load session: %w", err)
			}
			var s Session
			if err := json.Unmarshal(data, &s); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
			work := s.Clone()
			if err := fn(work); err != nil {
				if errors.Is(err, ErrNoChange) {
					out = &s
					return nil
				}
				return err
			}
			buf, err := json.Marshal(work)
			if err != nil {
				return fmt.Errorf("marshal session: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, k, buf, r.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			out = work
			return nil
		}, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q after %d attempts", ErrConflict, token, maxTxRetries)
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, token string) error {
	n, err := r.client.Del(ctx, key(token)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, token)
	}
	return nil
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
