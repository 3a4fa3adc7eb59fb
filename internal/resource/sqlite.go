package resource

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/standardbeagle/csearch/internal/debug"
	"github.com/standardbeagle/csearch/internal/errors"
)

// SQLiteStore persists overflow payloads in a WAL-mode SQLite database so
// resource URIs survive a server restart.
type SQLiteStore struct {
	db     *sql.DB
	minter *uriMinter
	codec  *codec
	now    func() time.Time

	mu     sync.Mutex
	stored int
	purged int

	stopPurge chan struct{}
	purgeDone chan struct{}
	closeOnce sync.Once
}

// SQLiteOption tunes a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteClock substitutes the time source. Test hook.
func WithSQLiteClock(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore opens (or creates) baseDir/resources.db and starts the
// purge sweep. Pragmas ride the DSN so every pooled connection gets them.
func NewSQLiteStore(baseDir string, purgeInterval time.Duration, opts ...SQLiteOption) (*SQLiteStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create resource store directory: %w", err)
	}

	dsn := filepath.Join(baseDir, "resources.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open resource database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS resources (
	  uri        TEXT PRIMARY KEY,
	  payload    BLOB NOT NULL,
	  compressed INTEGER NOT NULL,
	  created_at INTEGER NOT NULL,
	  expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_resources_expires ON resources(expires_at);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create resource schema: %w", err)
	}

	c, err := newCodec()
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:        db,
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
func (s *SQLiteStore) Put(ctx context.Context, payload []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	uri, err := s.minter.mint()
	if err != nil {
		return "", err
	}

	data, compressed := s.codec.encode(payload)
	now := s.now()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resources (uri, payload, compressed, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		uri, data, boolToInt(compressed), now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to store resource: %w", err)
	}

	s.mu.Lock()
	s.stored++
	s.mu.Unlock()

	debug.LogCache("resource stored: %s (%d bytes, compressed=%v, ttl=%v)\n", uri, len(data), compressed, ttl)
	return uri, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, uri string) ([]byte, error) {
	var data []byte
	var compressed int

	err := s.db.QueryRowContext(ctx,
		`SELECT payload, compressed FROM resources WHERE uri = ? AND expires_at > ?`,
		uri, s.now().UnixMilli()).Scan(&data, &compressed)
	if err == sql.ErrNoRows {
		return nil, errors.ResourceNotFound(uri)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read resource: %w", err)
	}
	return s.codec.decode(data, compressed != 0)
}

// Stats implements Store.
func (s *SQLiteStore) Stats() Stats {
	var live int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM resources WHERE expires_at > ?`, s.now().UnixMilli()).Scan(&live)

	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Live: live, Stored: s.stored, Purged: s.purged}
}

// Purge drops expired rows and returns how many were removed.
func (s *SQLiteStore) Purge() int {
	res, err := s.db.Exec(`DELETE FROM resources WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		debug.LogCache("resource purge failed: %v\n", err)
		return 0
	}
	n, _ := res.RowsAffected()

	s.mu.Lock()
	s.purged += int(n)
	s.mu.Unlock()
	return int(n)
}

func (s *SQLiteStore) purgeLoop(interval time.Duration) {
	defer close(s.purgeDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Purge(); n > 0 {
				debug.LogCache("resource purge removed %d expired rows\n", n)
			}
		case <-s.stopPurge:
			return
		}
	}
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopPurge)
	})
	<-s.purgeDone
	s.codec.close()
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
