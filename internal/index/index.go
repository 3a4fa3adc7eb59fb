// Package index implements the per-workspace full-text index on top of
// bleve, with incremental updates driven by a file watcher and a generation
// counter that advances on every content change.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/standardbeagle/csearch/internal/debug"
	"github.com/standardbeagle/csearch/internal/searchtypes"
)

const (
	// MetaDirName is the per-workspace directory holding the index and its
	// metadata, relative to the workspace root.
	MetaDirName = ".csearch"

	indexDirName = "index"
	metaFileName = "meta.json"
)

// fileDoc is the bleve document for one indexed file.
type fileDoc struct {
	Path    string `json:"path"`
	Dir     string `json:"dir"`
	Ext     string `json:"ext"`
	Content string `json:"content"`
}

// Index is one open workspace index. It satisfies the handle pool's Index
// interface: queries may run concurrently; the watcher applies incremental
// updates and bumps the generation, which invalidates fingerprinted caches
// without reopening the handle.
type Index struct {
	workspace string
	bleve     bleve.Index
	meta      *metaFile
	gen       atomic.Uint64

	watcher *Watcher // nil when watching is disabled

	closeOnce sync.Once
	closeErr  error
}

// Workspace returns the canonical workspace root this index covers.
func (ix *Index) Workspace() string {
	return ix.workspace
}

// Generation identifies the current index build. It increments whenever the
// indexed content changes.
func (ix *Index) Generation() uint64 {
	return ix.gen.Load()
}

// Query runs one search. Results come back in bleve relevance order with
// the first matching line of each file extracted as the fragment.
func (ix *Index) Query(ctx context.Context, q searchtypes.Query) ([]searchtypes.RawResult, error) {
	if strings.TrimSpace(q.Pattern) == "" {
		return nil, fmt.Errorf("empty search pattern")
	}

	size := q.MaxResults
	if size <= 0 {
		size = searchtypes.DefaultMaxResults
	}

	bq := buildQuery(q)
	req := bleve.NewSearchRequestOptions(bq, size, 0, false)
	req.Fields = []string{"path", "dir", "ext", "content"}

	res, err := ix.bleve.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]searchtypes.RawResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		path := stringField(hit.Fields, "path")
		if path == "" {
			path = hit.ID
		}
		if q.FilePattern != "" && !matchFilePattern(q.FilePattern, path) {
			continue
		}

		content := stringField(hit.Fields, "content")
		line, fragment := firstMatchingLine(content, q.Pattern, q.CaseInsensitive)

		results = append(results, searchtypes.RawResult{
			Path:     path,
			Line:     line,
			Fragment: fragment,
			Score:    hit.Score,
			Fields: map[string]string{
				"dir": stringField(hit.Fields, "dir"),
				"ext": stringField(hit.Fields, "ext"),
			},
		})
	}

	debug.LogSearch("query %q in %s: %d hits (generation %d)\n",
		q.Pattern, ix.workspace, len(results), ix.gen.Load())
	return results, nil
}

// Flush persists pending metadata. bleve writes through on batch commit, so
// only the generation sidecar needs saving here.
func (ix *Index) Flush() error {
	return ix.meta.save(ix.gen.Load())
}

// Close stops the watcher, flushes metadata and closes the underlying
// bleve index. Safe to call more than once.
func (ix *Index) Close() error {
	ix.closeOnce.Do(func() {
		if ix.watcher != nil {
			ix.watcher.Stop()
		}
		if err := ix.meta.save(ix.gen.Load()); err != nil {
			debug.Log("index", "saving metadata for %s: %v\n", ix.workspace, err)
		}
		ix.closeErr = ix.bleve.Close()
	})
	return ix.closeErr
}

// bumpGeneration advances the generation after an incremental update and
// persists it so reopen sees the new value.
func (ix *Index) bumpGeneration() uint64 {
	gen := ix.gen.Add(1)
	if err := ix.meta.save(gen); err != nil {
		debug.Log("index", "persisting generation %d for %s: %v\n", gen, ix.workspace, err)
	}
	debug.Log("index", "generation of %s is now %d\n", ix.workspace, gen)
	return gen
}

// applyChanges reindexes changed files and drops removed ones, then bumps
// the generation once for the whole batch.
func (ix *Index) applyChanges(changed, removed []string) {
	batch := ix.bleve.NewBatch()
	applied := 0

	for _, path := range removed {
		rel := ix.relPath(path)
		batch.Delete(rel)
		applied++
	}
	for _, path := range changed {
		doc, ok := loadFileDoc(ix.workspace, path)
		if !ok {
			continue
		}
		if err := batch.Index(doc.Path, doc); err != nil {
			debug.Log("index", "batching %s: %v\n", doc.Path, err)
			continue
		}
		applied++
	}
	if applied == 0 {
		return
	}

	if err := ix.bleve.Batch(batch); err != nil {
		debug.Log("index", "applying %d changes to %s: %v\n", applied, ix.workspace, err)
		return
	}
	ix.bumpGeneration()
}

func (ix *Index) relPath(abs string) string {
	rel, err := filepath.Rel(ix.workspace, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// buildQuery maps the service query onto a bleve query. Wildcards in the
// pattern switch to a wildcard query; everything else is a match query
// against the analyzed content field.
func buildQuery(q searchtypes.Query) query.Query {
	pattern := strings.TrimSpace(q.Pattern)
	if strings.ContainsAny(pattern, "*?") {
		// The standard analyzer lowercases terms, so wildcard patterns
		// must be lowercased to match.
		wq := bleve.NewWildcardQuery(strings.ToLower(pattern))
		wq.SetField("content")
		return wq
	}
	mq := bleve.NewMatchQuery(pattern)
	mq.SetField("content")
	return mq
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// matchFilePattern applies the query's file glob against the relative path.
func matchFilePattern(pattern, path string) bool {
	matched, err := doublestarMatch(pattern, path)
	if err != nil {
		return false
	}
	return matched
}

// firstMatchingLine scans stored content for the first line containing the
// pattern and returns its 1-based number and trimmed text. Falls back to
// the first non-empty line when the analyzed match does not correspond to a
// literal substring.
func firstMatchingLine(content, pattern string, caseInsensitive bool) (int, string) {
	if content == "" {
		return 0, ""
	}
	needle := pattern
	if caseInsensitive {
		needle = strings.ToLower(pattern)
	}

	lineNo := 0
	firstNonEmpty := 0
	firstNonEmptyText := ""
	for _, line := range strings.Split(content, "\n") {
		lineNo++
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if firstNonEmpty == 0 {
			firstNonEmpty = lineNo
			firstNonEmptyText = truncateFragment(trimmed)
		}
		haystack := line
		if caseInsensitive {
			haystack = strings.ToLower(line)
		}
		if strings.Contains(haystack, needle) {
			return lineNo, truncateFragment(trimmed)
		}
	}
	return firstNonEmpty, firstNonEmptyText
}

const maxFragmentLen = 200

func truncateFragment(s string) string {
	if len(s) <= maxFragmentLen {
		return s
	}
	return s[:maxFragmentLen] + "..."
}

// loadFileDoc reads one file into its bleve document. Returns false for
// unreadable, binary or vanished files.
func loadFileDoc(workspace, absPath string) (fileDoc, bool) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return fileDoc{}, false
	}
	if isBinary(data) {
		return fileDoc{}, false
	}

	rel, err := filepath.Rel(workspace, absPath)
	if err != nil {
		rel = absPath
	}
	rel = filepath.ToSlash(rel)

	return fileDoc{
		Path:    rel,
		Dir:     filepath.ToSlash(filepath.Dir(rel)),
		Ext:     strings.TrimPrefix(filepath.Ext(rel), "."),
		Content: string(data),
	}, true
}
