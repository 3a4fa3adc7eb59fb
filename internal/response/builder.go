package response

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/csearch/internal/debug"
	"github.com/standardbeagle/csearch/internal/reduce"
	"github.com/standardbeagle/csearch/internal/resource"
	"github.com/standardbeagle/csearch/internal/respcache"
	"github.com/standardbeagle/csearch/internal/searchtypes"
	"github.com/standardbeagle/csearch/internal/tokens"
)

// BuildContext identifies one build for fingerprinting and overflow
// preservation. Generation is mandatory in the fingerprint: a rebuilt index
// must never serve a response cached against the old one.
type BuildContext struct {
	Tool             string
	Workspace        string
	Generation       uint64
	Query            searchtypes.Query
	PreserveOverflow bool
	ResourceTTL      time.Duration
}

// Builder orchestrates estimation, reduction, overflow preservation and
// response caching into one bounded build.
type Builder struct {
	est   *tokens.Estimator
	cache *respcache.Cache
	store resource.Store

	builds    atomic.Int64
	cacheHits atomic.Int64
}

// NewBuilder wires the pipeline. store may be nil when overflow
// preservation is disabled globally.
func NewBuilder(est *tokens.Estimator, cache *respcache.Cache, store resource.Store) *Builder {
	return &Builder{est: est, cache: cache, store: store}
}

// BuilderStats counts cache effectiveness across builds.
type BuilderStats struct {
	Builds    int64 `json:"builds"`
	CacheHits int64 `json:"cache_hits"`
}

// Stats returns a snapshot of the builder counters.
func (b *Builder) Stats() BuilderStats {
	return BuilderStats{Builds: b.builds.Load(), CacheHits: b.cacheHits.Load()}
}

// fingerprintParams is the normalized parameter set hashed into the cache
// key. Struct fields marshal in declaration order, so the key is stable.
type fingerprintParams struct {
	Query  searchtypes.Query  `json:"query"`
	Budget searchtypes.Budget `json:"budget"`
}

// Build shapes raw results to the budget. On a fingerprint hit the cached
// response is returned without re-estimating or reducing anything.
func (b *Builder) Build(ctx context.Context, raw []searchtypes.RawResult, budget searchtypes.Budget, bctx BuildContext) (*BuiltResponse, error) {
	budget = budget.Normalize()

	key, err := respcache.Fingerprint(bctx.Tool, fingerprintParams{Query: bctx.Query, Budget: budget}, bctx.Workspace, bctx.Generation)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint request: %w", err)
	}

	var cached BuiltResponse
	if b.cache.Get(key, &cached) {
		b.cacheHits.Add(1)
		debug.LogCache("response cache hit for %s %x\n", bctx.Tool, key)
		return &cached, nil
	}
	b.builds.Add(1)

	fullCost := b.est.EstimateCollection(raw)
	summary := summarize(raw)

	kept := raw
	truncated := false
	strategyName := ""
	if fullCost > budget.MaxTokens {
		strategy := reduce.ForContext(budget.Mode, raw)
		strategyName = strategy.Name()
		kept, truncated = strategy.Reduce(raw, b.est, budget.MaxTokens)
	}

	keptCost := fullCost
	firstOver := false
	if truncated {
		keptCost = b.est.EstimateCollection(kept)
		firstOver = len(kept) == 1 && keptCost > budget.MaxTokens
	}

	resourceURI := ""
	if truncated && bctx.PreserveOverflow && b.store != nil {
		resourceURI, err = b.preserveOverflow(ctx, raw, bctx)
		if err != nil {
			// Preservation is best-effort: the bounded response is still
			// valid without the overflow pointer.
			debug.LogCache("overflow preservation failed: %v\n", err)
			resourceURI = ""
		}
	}

	resp := &BuiltResponse{
		Success:         true,
		Query:           bctx.Query,
		TotalResults:    len(raw),
		ReturnedResults: len(kept),
		Results:         kept,
		ResultsSummary:  summary,
		Insights:        buildInsights(bctx.Query, summary, budget, truncated, len(kept), len(raw), firstOver),
		Actions:         buildActions(bctx.Query, summary, budget, truncated, fullCost, resourceURI),
		Meta: Meta{
			Mode:            budget.Mode,
			Truncated:       truncated,
			EstimatedTokens: keptCost,
			ResourceURI:     resourceURI,
			Strategy:        strategyName,
		},
	}

	b.cache.Set(key, resp)
	return resp, nil
}

// preserveOverflow serializes the FULL raw set into the resource store so
// the client can fetch what the budget cut.
func (b *Builder) preserveOverflow(ctx context.Context, raw []searchtypes.RawResult, bctx BuildContext) (string, error) {
	payload, err := json.Marshal(struct {
		Query   searchtypes.Query       `json:"query"`
		Results []searchtypes.RawResult `json:"results"`
	}{Query: bctx.Query, Results: raw})
	if err != nil {
		return "", err
	}

	ttl := bctx.ResourceTTL
	if ttl <= 0 {
		ttl = resource.DefaultTTL
	}
	return b.store.Put(ctx, payload, ttl)
}

// Cache exposes the underlying response cache for status reporting.
// Generation bumps, not explicit invalidation, are how stale entries die.
func (b *Builder) Cache() *respcache.Cache {
	return b.cache
}
