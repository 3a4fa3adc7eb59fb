package index

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/csearch/internal/debug"
)

// WatchConfig controls the per-workspace file watcher.
type WatchConfig struct {
	// Enabled turns watching on. Off, the index only changes on rebuild.
	Enabled bool
	// Debounce is how long the watcher gathers events before applying one
	// batched update. Editors touch files in bursts.
	Debounce time.Duration
}

// DefaultWatchConfig returns the watcher defaults.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{Enabled: true, Debounce: 500 * time.Millisecond}
}

// Watcher monitors a workspace for content changes and applies debounced
// incremental updates to its index, bumping the generation once per batch.
type Watcher struct {
	index   *Index
	scanner *scanner
	fsw     *fsnotify.Watcher
	cfg     WatchConfig

	mu      sync.Mutex
	changed map[string]struct{}
	removed map[string]struct{}
	timer   *time.Timer

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher over the index's workspace. Call Start to
// begin delivering updates.
func NewWatcher(ix *Index, scan ScanConfig, cfg WatchConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultWatchConfig().Debounce
	}

	w := &Watcher{
		index:   ix,
		scanner: newScanner(ix.workspace, scan),
		fsw:     fsw,
		cfg:     cfg,
		changed: make(map[string]struct{}),
		removed: make(map[string]struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := w.addWatches(ix.workspace); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start launches the event loop.
func (w *Watcher) Start() {
	go w.run()
}

// Stop tears the watcher down and waits for the loop to exit. Pending
// debounced events are dropped; the index is going away or about to be
// reopened anyway.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.fsw.Close()
		<-w.done
	})
}

// addWatches registers every non-excluded directory. Symlink cycles are
// broken by tracking resolved paths.
func (w *Watcher) addWatches(root string) error {
	visited := make(map[string]bool)
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		rel, err := filepath.Rel(root, path)
		if err == nil && rel != "." && w.scanner.dirExcluded(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			debug.Log("watch", "cannot watch %s: %v\n", path, err)
		}
		return nil
	})
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			debug.Log("watch", "watcher error in %s: %v\n", w.index.workspace, err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	info, statErr := os.Stat(path)
	if statErr == nil && info.IsDir() {
		// New directories need their own watch before events inside them
		// can arrive.
		if event.Op&fsnotify.Create != 0 {
			rel, err := filepath.Rel(w.index.workspace, path)
			if err == nil && !w.scanner.dirExcluded(filepath.ToSlash(rel)) {
				if err := w.fsw.Add(path); err != nil {
					debug.Log("watch", "cannot watch new dir %s: %v\n", path, err)
				}
			}
		}
		return
	}

	rel, err := filepath.Rel(w.index.workspace, path)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.enqueue(path, true)
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if statErr != nil || !w.scanner.shouldIndex(rel, path) {
			return
		}
		w.enqueue(path, false)
	}
}

// enqueue records one event and (re)arms the debounce timer. The latest
// event for a path wins: a remove after a write is a remove.
func (w *Watcher) enqueue(path string, removed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if removed {
		delete(w.changed, path)
		w.removed[path] = struct{}{}
	} else {
		delete(w.removed, path)
		w.changed[path] = struct{}{}
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, w.flush)
}

// flush applies the gathered batch to the index.
func (w *Watcher) flush() {
	w.mu.Lock()
	changed := make([]string, 0, len(w.changed))
	for p := range w.changed {
		changed = append(changed, p)
	}
	removed := make([]string, 0, len(w.removed))
	for p := range w.removed {
		removed = append(removed, p)
	}
	w.changed = make(map[string]struct{})
	w.removed = make(map[string]struct{})
	w.mu.Unlock()

	if len(changed) == 0 && len(removed) == 0 {
		return
	}

	select {
	case <-w.stop:
		// Shutdown raced the timer; drop the batch.
		return
	default:
	}

	debug.Log("watch", "applying %d changed, %d removed in %s\n",
		len(changed), len(removed), w.index.workspace)
	w.index.applyChanges(changed, removed)
}
