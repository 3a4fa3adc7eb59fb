package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// metaFile persists the index generation and build time next to the bleve
// directory so reopening a workspace resumes the generation sequence
// instead of restarting it (restarting could replay stale cache entries).
type metaFile struct {
	path string
	mu   sync.Mutex
}

type metaPayload struct {
	Generation uint64    `json:"generation"`
	SavedAt    time.Time `json:"saved_at"`
}

func newMetaFile(metaDir string) *metaFile {
	return &metaFile{path: filepath.Join(metaDir, metaFileName)}
}

// load reads the persisted generation. A missing or unreadable file yields
// zero: the caller bumps past it on the first build.
func (m *metaFile) load() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		return 0
	}
	var p metaPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return 0
	}
	return p.Generation
}

// save writes the generation atomically via rename.
func (m *metaFile) save(generation uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(metaPayload{Generation: generation, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}
