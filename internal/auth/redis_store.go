package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultRedisSessionPrefix = "clipriver:session:"

// RedisSessionConfig configures the Redis-backed session store.
type RedisSessionConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// RedisSessionStore keeps sessions in Redis so multiple API replicas share
// authentication state. Tokens are stored hashed; expiry is enforced by key
// TTLs, so PurgeExpired has nothing to do.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

type redisSessionRecord struct {
	UserID            string    `json:"userId"`
	IssuedAt          time.Time `json:"issuedAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
	AbsoluteExpiresAt time.Time `json:"absoluteExpiresAt"`
}

// NewRedisSessionStore connects to Redis and verifies the connection.
func NewRedisSessionStore(cfg RedisSessionConfig) (*RedisSessionStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = defaultRedisSessionPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   2,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisSessionStore{client: client, prefix: prefix}, nil
}

// Close releases the Redis client resources.
func (s *RedisSessionStore) Close(context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisSessionStore) key(token string) (string, error) {
	hashed, err := digestToken(token)
	if err != nil {
		return "", err
	}
	return s.prefix + hashed, nil
}

// Save stores or updates the session with a TTL matching its expiry.
func (s *RedisSessionStore) Save(record SessionRecord) error {
	key, err := s.key(record.Token)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(redisSessionRecord{
		UserID:            record.UserID,
		IssuedAt:          record.IssuedAt.UTC(),
		ExpiresAt:         record.ExpiresAt.UTC(),
		AbsoluteExpiresAt: record.AbsoluteExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return s.client.Del(context.Background(), key).Err()
	}
	return s.client.Set(context.Background(), key, payload, ttl).Err()
}

// Get retrieves the session record for the provided token.
func (s *RedisSessionStore) Get(token string) (SessionRecord, bool, error) {
	key, err := s.key(token)
	if err != nil {
		return SessionRecord{}, false, err
	}
	payload, err := s.client.Get(context.Background(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return SessionRecord{}, false, nil
	} else if err != nil {
		return SessionRecord{}, false, err
	}
	var stored redisSessionRecord
	if err := json.Unmarshal(payload, &stored); err != nil {
		return SessionRecord{}, false, fmt.Errorf("decode session record: %w", err)
	}
	return SessionRecord{
		Token:             token,
		UserID:            stored.UserID,
		IssuedAt:          stored.IssuedAt,
		ExpiresAt:         stored.ExpiresAt,
		AbsoluteExpiresAt: stored.AbsoluteExpiresAt,
	}, true, nil
}

// Delete removes the session token.
func (s *RedisSessionStore) Delete(token string) error {
	key, err := s.key(token)
	if err != nil {
		return err
	}
	return s.client.Del(context.Background(), key).Err()
}

// PurgeExpired is a no-op: Redis evicts sessions via key TTLs.
func (s *RedisSessionStore) PurgeExpired(time.Time) error {
	return nil
}

// Ping verifies connectivity to Redis.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
