package chatstore

import (
	"log/slog"
	"os"
	"time"
)

// DefaultListTTL is how long conversation listings are served from cache.
const DefaultListTTL = 60 * time.Second

type storeConfig struct {
	dimension int
	listTTL   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func newStoreConfig(opts []Option) storeConfig {
	cfg := storeConfig{
		listTTL: DefaultListTTL,
		logger:  slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures a MessageStore implementation.
type Option func(*storeConfig)

// WithDimension makes Append reject embeddings whose length is not dim.
// Zero disables the check.
func WithDimension(dim int) Option {
	return func(c *storeConfig) {
		c.dimension = dim
	}
}

// WithListTTL sets how long conversation listings are cached. Zero disables caching.
func WithListTTL(ttl time.Duration) Option {
	return func(c *storeConfig) {
		c.listTTL = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *storeConfig) {
		c.logger = logger
	}
}
