package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	redisKeyPrefix = "stockroom:session:"
	// optimistic transactions are retried when another writer touched the key
	redisUpdateRetries = 8
)

// RedisStore keeps each session as a JSON value whose TTL matches its expiry
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore creates a session store on an existing client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// NewRedisClient parses a redis:// URL and verifies the connection
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	data, ttl, err := r.encode(s)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, redisKey(s.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session id collision")
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, redisKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return r.decode(raw)
}

// Update runs mutate inside WATCH/MULTI. A concurrent write to the same key
// aborts the transaction and the whole read-mutate-write is retried.
func (r *RedisStore) Update(ctx context.Context, id string, mutate func(*Session) error) (*Session, error) {
	key := redisKey(id)

	for attempt := 0; attempt < redisUpdateRetries; attempt++ {
		var updated *Session
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrSessionNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}
			s, err := r.decode(raw)
			if err != nil {
				return err
			}
			if err := mutate(s); err != nil {
				return err
			}
			s.ID = id
			data, ttl, err := r.encode(s)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, ttl)
				return nil
			})
			if err != nil {
				return err
			}
			updated = s
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("failed to update session after %d attempts: %w", redisUpdateRetries, ErrSessionContended)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts sessions through their TTL
func (r *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (r *RedisStore) encode(s *Session) ([]byte, time.Duration, error) {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil, 0, ErrSessionNotFound
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, ttl, nil
}

func (r *RedisStore) decode(raw []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.Expired(r.now()) {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}
