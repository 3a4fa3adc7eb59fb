package resource

import (
	"context"
	"sync"
	"time"

	"github.com/standardbeagle/csearch/internal/debug"
	"github.com/standardbeagle/csearch/internal/errors"
)

type memoryRecord struct {
	data       []byte
	compressed bool
	createdAt  time.Time
	expiresAt  time.Time
}

// MemoryStore keeps overflow payloads in process memory. Suitable for a
// single-process MCP server; payloads above the compression threshold are
// held zstd-compressed.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	purged  int
	stored  int

	minter *uriMinter
	codec  *codec
	now    func() time.Time

	stopPurge chan struct{}
	purgeDone chan struct{}
	closeOnce sync.Once
}

// MemoryOption tunes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock substitutes the time source. Test hook.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a store whose purge sweep runs every purgeInterval.
// A non-positive interval disables the sweep; expiry is then enforced on
// read only.
func NewMemoryStore(purgeInterval time.Duration, opts ...MemoryOption) (*MemoryStore, error) {
	c, err := newCodec()
	if err != nil {
		return nil, err
	}

	s := &MemoryStore{
		records:   make(map[string]memoryRecord),
		codec:     c,
		now:       time.Now,
		stopPurge: make(chan struct{}),
		purgeDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.minter = newURIMinter(s.now)

	if purgeInterval > 0 {
		go s.purgeLoop(purgeInterval)
	} else {
		close(s.purgeDone)
	}
	return s, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, payload []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	uri, err := s.minter.mint()
	if err != nil {
		return "", err
	}

	data, compressed := s.codec.encode(payload)
	now := s.now()

	s.mu.Lock()
	s.records[uri] = memoryRecord{
		data:       data,
		compressed: compressed,
		createdAt:  now,
		expiresAt:  now.Add(ttl),
	}
	s.stored++
	s.mu.Unlock()

	debug.LogCache("resource stored: %s (%d bytes, compressed=%v, ttl=%v)\n", uri, len(data), compressed, ttl)
	return uri, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, uri string) ([]byte, error) {
	s.mu.RLock()
	rec, ok := s.records[uri]
	s.mu.RUnlock()

	if !ok || !s.now().Before(rec.expiresAt) {
		return nil, errors.ResourceNotFound(uri)
	}
	return s.codec.decode(rec.data, rec.compressed)
}

// Stats implements Store.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live := 0
	now := s.now()
	for _, rec := range s.records {
		if now.Before(rec.expiresAt) {
			live++
		}
	}
	return Stats{Live: live, Stored: s.stored, Purged: s.purged}
}

// Purge drops every expired record and returns how many were removed.
func (s *MemoryStore) Purge() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for uri, rec := range s.records {
		if !now.Before(rec.expiresAt) {
			delete(s.records, uri)
			removed++
		}
	}
	s.purged += removed
	return removed
}

func (s *MemoryStore) purgeLoop(interval time.Duration) {
	defer close(s.purgeDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Purge(); n > 0 {
				debug.LogCache("resource purge removed %d expired records\n", n)
			}
		case <-s.stopPurge:
			return
		}
	}
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopPurge)
	})
	<-s.purgeDone
	s.codec.close()
	return nil
}
