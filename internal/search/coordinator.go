// Package search coordinates one search request across the handle pool,
// the index, the response pipeline and the overflow store.
package search

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/standardbeagle/csearch/internal/debug"
	"github.com/standardbeagle/csearch/internal/errors"
	"github.com/standardbeagle/csearch/internal/resource"
	"github.com/standardbeagle/csearch/internal/response"
	"github.com/standardbeagle/csearch/internal/searchtypes"
	"github.com/standardbeagle/csearch/internal/workspace"
)

var errEmptyPattern = stderrors.New("empty search pattern")

// Rebuilder deletes a workspace's persisted index so the next open builds
// it fresh. The index opener implements this.
type Rebuilder interface {
	Rebuild(workspaceID string) error
}

// Request is one search invocation.
type Request struct {
	Workspace        string
	Query            searchtypes.Query
	Budget           searchtypes.Budget
	PreserveOverflow bool
	ResourceTTL      time.Duration
}

// Coordinator routes requests through acquire → query → build → release.
// The release runs on every exit path, including cancellation: leaking a
// refcount would pin a handle in the pool forever.
type Coordinator struct {
	pool      *workspace.Cache
	builder   *response.Builder
	store     resource.Store
	rebuilder Rebuilder
	started   time.Time
}

// NewCoordinator wires the service core together. rebuilder may be nil when
// explicit rebuilds are not supported.
func NewCoordinator(pool *workspace.Cache, builder *response.Builder, store resource.Store, rebuilder Rebuilder) *Coordinator {
	return &Coordinator{
		pool:      pool,
		builder:   builder,
		store:     store,
		rebuilder: rebuilder,
		started:   time.Now(),
	}
}

// Search runs one query against a workspace and shapes the response to the
// request budget.
func (c *Coordinator) Search(ctx context.Context, req Request) (*response.BuiltResponse, error) {
	req.Query = normalizeQuery(req.Query)
	if req.Query.Pattern == "" {
		return nil, errors.New(errors.KindInternal, "search", errEmptyPattern).
			WithHint("provide a non-empty search pattern")
	}

	h, err := c.pool.Acquire(ctx, req.Workspace)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := c.pool.Release(h); rerr != nil {
			debug.LogSearch("release failed for %s: %v\n", req.Workspace, rerr)
		}
	}()

	// Generation is read under the live handle so the fingerprint matches
	// exactly the index the query ran against.
	generation := h.Generation()
	raw, err := h.Index().Query(ctx, req.Query)
	if err != nil {
		return nil, errors.New(errors.KindInternal, "query", err).
			WithWorkspace(h.WorkspaceID())
	}

	return c.builder.Build(ctx, raw, req.Budget, response.BuildContext{
		Tool:             "search",
		Workspace:        h.WorkspaceID(),
		Generation:       generation,
		Query:            req.Query,
		PreserveOverflow: req.PreserveOverflow,
		ResourceTTL:      req.ResourceTTL,
	})
}

// GetResource fetches a preserved overflow payload by URI.
func (c *Coordinator) GetResource(ctx context.Context, uri string) ([]byte, error) {
	if !resource.ValidURI(uri) {
		return nil, errors.ResourceNotFound(uri)
	}
	return c.store.Get(ctx, uri)
}

// EvictWorkspace retires the workspace's handle. With rebuild set the
// persisted index is also deleted, so the next search builds from scratch.
// Busy handles drain first; the eviction completes on their final release.
func (c *Coordinator) EvictWorkspace(workspacePath string, rebuild bool) error {
	id := workspace.Canonicalize(workspacePath)
	c.pool.Evict(id)
	if rebuild && c.rebuilder != nil {
		if err := c.rebuilder.Rebuild(id); err != nil {
			return errors.New(errors.KindInternal, "rebuild", err).WithWorkspace(id)
		}
	}
	debug.LogSearch("evicted workspace %s (rebuild=%v)\n", id, rebuild)
	return nil
}

// Status reports pool, cache and store health in one snapshot.
type Status struct {
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Pool          workspace.PoolStats   `json:"pool"`
	Responses     response.BuilderStats `json:"responses"`
	ResponseCache respcacheStats        `json:"response_cache"`
	Resources     resource.Stats        `json:"resources"`
}

type respcacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Corrupted int64 `json:"corrupted"`
}

// Status snapshots the service for the status tool.
func (c *Coordinator) Status() Status {
	cs := c.builder.Cache().Stats()
	return Status{
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
		Pool:          c.pool.Stats(),
		Responses:     c.builder.Stats(),
		ResponseCache: respcacheStats{
			Entries:   cs.Entries,
			Hits:      cs.Hits,
			Misses:    cs.Misses,
			Evictions: cs.Evictions,
			Corrupted: cs.Corrupted,
		},
		Resources: c.store.Stats(),
	}
}

// normalizeQuery trims whitespace and clamps the result bound so equivalent
// requests fingerprint identically.
func normalizeQuery(q searchtypes.Query) searchtypes.Query {
	q.Pattern = strings.TrimSpace(q.Pattern)
	q.FilePattern = strings.TrimSpace(q.FilePattern)
	if q.MaxResults <= 0 || q.MaxResults > searchtypes.DefaultMaxResults {
		q.MaxResults = searchtypes.DefaultMaxResults
	}
	return q
}
