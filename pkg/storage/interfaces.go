package storage

import (
	"context"
	"time"
)

// Record is the storage shape of an organization
type Record struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

// Clone returns a copy so callers never share a stored record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Reader loads records
type Reader interface {
	Get(ctx context.Context, id string) (*Record, error)
	GetAll(ctx context.Context) ([]*Record, error)
}

// Writer persists and removes records
type Writer interface {
	// Save inserts the record or replaces the stored one with the same ID
	Save(ctx context.Context, record *Record) (*Record, error)
	Delete(ctx context.Context, id string) error
}

// HealthChecker reports backend health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Store is the full record store gateway
type Store interface {
	Reader
	Writer
	HealthChecker
	Close() error
}

// Config for storage backend
type Config struct {
	Type string `env:"STORE_TYPE"` // "memory", "postgres", "sqlite"

	// SQL config
	DSN         string        `env:"STORE_DSN"`
	ReplicaDSNs []string      `env:"STORE_REPLICA_DSNS" envSeparator:","`
	MaxConns    int           `env:"STORE_MAX_CONNS"`
	MinConns    int           `env:"STORE_MIN_CONNS"`
	Timeout     time.Duration `env:"STORE_TIMEOUT"`
	MaxLifetime time.Duration `env:"STORE_MAX_LIFETIME"`
	MaxIdleTime time.Duration `env:"STORE_MAX_IDLE_TIME"`

	// Cache config
	CacheEnabled bool          `env:"CACHE_ENABLED"`
	CacheSize    int           `env:"CACHE_SIZE"`
	CacheTTL     time.Duration `env:"CACHE_TTL"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:         "memory",
		MaxConns:     20,
		MinConns:     2,
		Timeout:      10 * time.Second,
		MaxLifetime:  30 * time.Minute,
		MaxIdleTime:  5 * time.Minute,
		CacheEnabled: true,
		CacheSize:    1024,
		CacheTTL:     time.Minute,
	}
}
