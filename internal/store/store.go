// Package store provides conversation-state storage backends for agenbot.
//
// It includes an in-memory store, SQLite and PostgreSQL backed stores, a
// Redis side-store, and a caching wrapper that keeps message processing
// alive when the durable backend is down.
package store

import (
	"strings"

	"github.com/Ronald-silva/agenbot/internal/models"
)

// Store is the persistence contract for per-customer conversation state.
// GetConversationState returns (nil, nil) when no state exists for the phone.
type Store interface {
	GetConversationState(phone string) (*models.ConversationState, error)
	SaveConversationState(state models.ConversationState) error
	DeleteConversationState(phone string) error
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN       string
	RedisAddr string
	RedisPass string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN configures a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN configures a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisAddr configures the Redis server address for the Redis store.
func WithRedisAddr(addr string) Option {
	return func(o *Opts) { o.RedisAddr = addr }
}

// WithRedisPassword configures the Redis password.
func WithRedisPassword(pass string) Option {
	return func(o *Opts) { o.RedisPass = pass }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite" so callers can
// pick the right backend from a single configuration value.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
