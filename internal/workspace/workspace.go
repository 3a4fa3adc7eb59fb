// Package workspace manages the pool of per-workspace index handles.
//
// Opening a search index is expensive, so handles are cached, shared across
// concurrent queries through reference counts and retired by LRU eviction or
// an idle sweep. The table is the only broadly shared mutable structure in
// the service: one mutex guards table membership, refcounts and state
// transitions together, so "about to be acquired" can never race "about to
// be evicted".
package workspace

import (
	"context"
	"path/filepath"
	"time"

	"github.com/standardbeagle/csearch/internal/searchtypes"
)

// Index is the open query capability for one workspace.
type Index interface {
	// Query runs one search against the index.
	Query(ctx context.Context, q searchtypes.Query) ([]searchtypes.RawResult, error)
	// Generation identifies the index build; it increments on rebuild.
	Generation() uint64
	// Flush persists pending writes. Called before Close.
	Flush() error
	// Close releases the underlying index.
	Close() error
}

// Opener opens the index for a canonical workspace id. Implementations may
// build the index lazily on first open.
type Opener interface {
	Open(ctx context.Context, workspaceID string) (Index, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, workspaceID string) (Index, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, workspaceID string) (Index, error) {
	return f(ctx, workspaceID)
}

// Config tunes the pool.
type Config struct {
	// Capacity bounds resident handles, including ones still opening.
	Capacity int
	// AcquireTimeout bounds how long a full-pool Acquire waits for a slot
	// before failing with capacity_exceeded.
	AcquireTimeout time.Duration
	// IdleTimeout is how long a refcount-0 handle may sit unused before
	// the sweep closes it.
	IdleTimeout time.Duration
	// SweepInterval is how often the idle sweep runs. Zero disables it.
	SweepInterval time.Duration
}

// DefaultConfig returns the pool defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:       8,
		AcquireTimeout: 5 * time.Second,
		IdleTimeout:    10 * time.Minute,
		SweepInterval:  time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = d.AcquireTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	return c
}

// Canonicalize maps a user-supplied workspace path to the pool's identity
// for it. Two spellings of the same directory share one handle.
func Canonicalize(workspacePath string) string {
	abs, err := filepath.Abs(workspacePath)
	if err != nil {
		return filepath.Clean(workspacePath)
	}
	return filepath.Clean(abs)
}
