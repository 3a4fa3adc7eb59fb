// Package resource stores overflow payloads that did not fit a budgeted
// response. Payloads are addressed by opaque URIs, live until a TTL and are
// immutable once written; a URI is never reused after expiry.
package resource

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"
)

// URIPrefix namespaces every resource URI issued by this store.
const URIPrefix = "csearch://resource/"

// DefaultTTL bounds how long an overflow payload stays retrievable.
const DefaultTTL = 30 * time.Minute

// compressThreshold is the payload size above which zstd kicks in. Small
// payloads are stored raw; the frame overhead is not worth it.
const compressThreshold = 1024

// Store persists overflow payloads under opaque URIs.
type Store interface {
	// Put stores payload for ttl and returns its unique URI.
	Put(ctx context.Context, payload []byte, ttl time.Duration) (string, error)
	// Get returns the payload for uri, or a resource_not_found error once
	// the TTL elapsed. Expired entries never yield stale payloads.
	Get(ctx context.Context, uri string) ([]byte, error)
	// Stats reports live and total record counts.
	Stats() Stats
	// Close stops the purge sweep and releases the backing storage.
	Close() error
}

// Stats describes store occupancy.
type Stats struct {
	Live   int `json:"live"`
	Stored int `json:"stored"`
	Purged int `json:"purged"`
}

// uriMinter issues monotonic ULID-based URIs. Monotonic entropy keeps URIs
// unique even when minted within the same millisecond.
type uriMinter struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func newURIMinter(now func() time.Time) *uriMinter {
	return &uriMinter{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     now,
	}
}

func (m *uriMinter) mint() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(m.now()), m.entropy)
	if err != nil {
		return "", fmt.Errorf("failed to mint resource id: %w", err)
	}
	return URIPrefix + id.String(), nil
}

// ValidURI reports whether uri belongs to this store's namespace.
func ValidURI(uri string) bool {
	if !strings.HasPrefix(uri, URIPrefix) {
		return false
	}
	_, err := ulid.Parse(strings.TrimPrefix(uri, URIPrefix))
	return err == nil
}

// codec transparently zstd-compresses payloads above the threshold.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) encode(payload []byte) (data []byte, compressed bool) {
	if len(payload) < compressThreshold {
		return payload, false
	}
	return c.enc.EncodeAll(payload, nil), true
}

func (c *codec) decode(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	return c.dec.DecodeAll(data, nil)
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}
