package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"

	"github.com/standardbeagle/csearch/internal/debug"
	"github.com/standardbeagle/csearch/internal/searchtypes"
)

// Opener opens workspace indexes for the handle pool, building them from
// scratch on first open and resuming persisted ones afterwards.
type Opener struct {
	scan  ScanConfig
	watch WatchConfig
}

// NewOpener creates the pool's index opener.
func NewOpener(scan ScanConfig, watch WatchConfig) *Opener {
	return &Opener{scan: scan, watch: watch}
}

// Open opens or builds the index for a workspace root. The returned index
// has its watcher running when watching is enabled, so content changes bump
// the generation without a reopen.
func (o *Opener) Open(ctx context.Context, workspaceID string) (*Index, error) {
	info, err := os.Stat(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", workspaceID)
	}

	metaDir := filepath.Join(workspaceID, MetaDirName)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", metaDir, err)
	}
	indexPath := filepath.Join(metaDir, indexDirName)

	ix := &Index{
		workspace: workspaceID,
		meta:      newMetaFile(metaDir),
	}
	ix.gen.Store(ix.meta.load())

	bidx, err := bleve.Open(indexPath)
	switch {
	case err == nil:
		ix.bleve = bidx
		debug.Log("index", "reopened %s at generation %d\n", workspaceID, ix.gen.Load())

	case err == bleve.ErrorIndexPathDoesNotExist:
		bidx, err = bleve.New(indexPath, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("creating index: %w", err)
		}
		ix.bleve = bidx
		if _, err := build(ctx, bidx, workspaceID, o.scan); err != nil {
			_ = bidx.Close()
			return nil, fmt.Errorf("building index: %w", err)
		}
		ix.bumpGeneration()

	default:
		return nil, fmt.Errorf("opening index: %w", err)
	}

	if o.watch.Enabled {
		w, err := NewWatcher(ix, o.scan, o.watch)
		if err != nil {
			// Watch failure degrades to a static index; queries still work.
			debug.Log("index", "watcher unavailable for %s: %v\n", workspaceID, err)
		} else {
			ix.watcher = w
			w.Start()
		}
	}
	return ix, nil
}

// Rebuild deletes the persisted index so the next Open builds fresh. The
// generation sidecar survives, keeping the sequence monotonic across the
// rebuild.
func (o *Opener) Rebuild(workspaceID string) error {
	indexPath := filepath.Join(workspaceID, MetaDirName, indexDirName)
	if err := os.RemoveAll(indexPath); err != nil {
		return fmt.Errorf("removing index: %w", err)
	}
	return nil
}

// The pool consumes this package through its Index interface; assert the
// concrete type satisfies it without importing the pool here.
var _ interface {
	Query(ctx context.Context, q searchtypes.Query) ([]searchtypes.RawResult, error)
	Generation() uint64
	Flush() error
	Close() error
} = (*Index)(nil)
