// Package config loads service configuration from .csearch.kdl with sane
// defaults for running without any file at all.
package config

import (
	"fmt"
	"time"

	"github.com/standardbeagle/csearch/internal/searchtypes"
)

// Config is the full service configuration.
type Config struct {
	Pool      Pool
	Index     Index
	Budget    Budget
	Cache     Cache
	Resources Resources
}

// Pool tunes the workspace handle pool.
type Pool struct {
	Capacity       int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
}

// Index tunes workspace scanning and watching.
type Index struct {
	MaxFileSize     int64
	Include         []string
	Exclude         []string
	WatchMode       bool
	WatchDebounceMs int
}

// Budget sets the default response budget.
type Budget struct {
	MaxTokens int
	Mode      string
}

// Cache tunes the response cache.
type Cache struct {
	Capacity int
	TTL      time.Duration
}

// Resources tunes the overflow resource store.
type Resources struct {
	// Backend is "memory" or "sqlite".
	Backend string
	// Dir holds the sqlite database when the sqlite backend is selected.
	// Empty means the user cache directory.
	Dir              string
	TTL              time.Duration
	PurgeInterval    time.Duration
	PreserveOverflow bool
}

// Default returns the configuration used when no .csearch.kdl exists.
func Default() *Config {
	return &Config{
		Pool: Pool{
			Capacity:       8,
			AcquireTimeout: 5 * time.Second,
			IdleTimeout:    10 * time.Minute,
			SweepInterval:  time.Minute,
		},
		Index: Index{
			MaxFileSize:     2 * 1024 * 1024,
			WatchMode:       true,
			WatchDebounceMs: 500,
		},
		Budget: Budget{
			MaxTokens: searchtypes.DefaultMaxTokens,
			Mode:      string(searchtypes.ModeDefault),
		},
		Cache: Cache{
			Capacity: 256,
			TTL:      10 * time.Minute,
		},
		Resources: Resources{
			Backend:          "memory",
			TTL:              30 * time.Minute,
			PurgeInterval:    time.Minute,
			PreserveOverflow: true,
		},
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Pool.Capacity < 1 {
		return fmt.Errorf("pool capacity must be at least 1, got %d", c.Pool.Capacity)
	}
	if c.Pool.AcquireTimeout <= 0 {
		return fmt.Errorf("pool acquire_timeout_ms must be positive")
	}
	if c.Budget.MaxTokens < 1 {
		return fmt.Errorf("budget max_tokens must be at least 1, got %d", c.Budget.MaxTokens)
	}
	switch searchtypes.ResponseMode(c.Budget.Mode) {
	case searchtypes.ModeDefault, searchtypes.ModePriority, searchtypes.ModeDiverse:
	default:
		return fmt.Errorf("budget mode %q is not one of default, priority, diverse", c.Budget.Mode)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache capacity must be at least 1, got %d", c.Cache.Capacity)
	}
	switch c.Resources.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("resources backend %q is not one of memory, sqlite", c.Resources.Backend)
	}
	if c.Index.MaxFileSize <= 0 {
		return fmt.Errorf("index max_file_size must be positive")
	}
	return nil
}
