package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Ronald-silva/agenbot/internal/models"
)

const (
	// redisKeyPrefix namespaces conversation state keys.
	redisKeyPrefix = "conv:"
	// redisOpTimeout bounds each Redis round trip so a hung backend cannot
	// stall message processing.
	redisOpTimeout = 5 * time.Second
	// redisStateTTL expires abandoned conversations after thirty days.
	redisStateTTL = 30 * 24 * time.Hour
)

type RedisStore struct {
	rdb *goredis.Client
}

// NewRedisStore creates a Redis store and verifies connectivity with a ping.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewRedisStore invoked", "addr_set", cfg.RedisAddr != "")

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis address not set")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPass,
		DialTimeout: redisOpTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		slog.Error("Redis ping failed", "error", err, "addr", cfg.RedisAddr)
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.Info("Redis connection established", "addr", cfg.RedisAddr)

	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) GetConversationState(phone string) (*models.ConversationState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := s.rdb.Get(ctx, redisKeyPrefix+phone).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetConversationState failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to read state for %s: %w", phone, err)
	}

	var state models.ConversationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		slog.Error("RedisStore GetConversationState unmarshal failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to decode state for %s: %w", phone, err)
	}
	return &state, nil
}

func (s *RedisStore) SaveConversationState(state models.ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", state.Phone, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.rdb.Set(ctx, redisKeyPrefix+state.Phone, raw, redisStateTTL).Err(); err != nil {
		slog.Error("RedisStore SaveConversationState failed", "error", err, "phone", state.Phone)
		return fmt.Errorf("failed to save state for %s: %w", state.Phone, err)
	}
	slog.Debug("RedisStore SaveConversationState succeeded", "phone", state.Phone)
	return nil
}

func (s *RedisStore) DeleteConversationState(phone string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.rdb.Del(ctx, redisKeyPrefix+phone).Err(); err != nil {
		slog.Error("RedisStore DeleteConversationState failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to delete state for %s: %w", phone, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
