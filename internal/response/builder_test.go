package response

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/csearch/internal/resource"
	"github.com/standardbeagle/csearch/internal/respcache"
	"github.com/standardbeagle/csearch/internal/searchtypes"
	"github.com/standardbeagle/csearch/internal/tokens"
)

func newTestBuilder(t *testing.T) (*Builder, resource.Store) {
	t.Helper()
	store, err := resource.NewMemoryStore(0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewBuilder(tokens.NewEstimator(), respcache.New(64, time.Minute), store), store
}

// resultsWithCost builds n results each estimating to roughly perItemTokens.
func resultsWithCost(n, perItemTokens int) []searchtypes.RawResult {
	// Invert the estimator model: chars = (tokens - metadata) * 4 / 1.2.
	chars := (perItemTokens - 10) * 10 / 3
	results := make([]searchtypes.RawResult, n)
	for i := range results {
		results[i] = searchtypes.RawResult{
			Path:     fmt.Sprintf("pkg%02d/file.go", i%10),
			Line:     i + 1,
			Fragment: strings.Repeat("a", chars-len("pkg00/file.go")),
			Score:    0,
		}
	}
	return results
}

func testContext(gen uint64) BuildContext {
	return BuildContext{
		Tool:             "search",
		Workspace:        "/ws/project",
		Generation:       gen,
		Query:            searchtypes.Query{Pattern: "handler"},
		PreserveOverflow: true,
		ResourceTTL:      time.Minute,
	}
}

func TestBuild_WithinBudgetReturnsEverything(t *testing.T) {
	b, _ := newTestBuilder(t)
	raw := resultsWithCost(5, 50)

	resp, err := b.Build(context.Background(), raw, searchtypes.Budget{MaxTokens: 10000}, testContext(1))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.False(t, resp.Meta.Truncated)
	assert.Empty(t, resp.Meta.ResourceURI)
	assert.Len(t, resp.Results, 5)
	assert.Equal(t, 5, resp.TotalResults)
	assert.LessOrEqual(t, resp.Meta.EstimatedTokens, 10000)
}

func TestBuild_TruncatesToBudgetAndPreservesOverflow(t *testing.T) {
	b, store := newTestBuilder(t)
	raw := resultsWithCost(500, 50)

	resp, err := b.Build(context.Background(), raw, searchtypes.Budget{MaxTokens: 1000}, testContext(1))
	require.NoError(t, err)

	assert.True(t, resp.Meta.Truncated)
	// ~50 tokens each, 1000-token budget: about 20 kept.
	assert.InDelta(t, 20, len(resp.Results), 3)
	assert.LessOrEqual(t, resp.Meta.EstimatedTokens, 1000)
	require.NotEmpty(t, resp.Meta.ResourceURI)

	// The overflow resource holds the FULL raw set.
	payload, err := store.Get(context.Background(), resp.Meta.ResourceURI)
	require.NoError(t, err)
	var overflow struct {
		Results []searchtypes.RawResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(payload, &overflow))
	assert.Len(t, overflow.Results, 500)

	// Summary reflects the full set, not the truncated subset.
	assert.Equal(t, 500, resp.ResultsSummary.TotalMatches)
	assert.Equal(t, 500, resp.TotalResults)
	assert.Equal(t, len(resp.Results), resp.ReturnedResults)
}

// failingStore rejects every Put so overflow preservation cannot succeed.
type failingStore struct {
	resource.Store
}

func (f *failingStore) Put(ctx context.Context, payload []byte, ttl time.Duration) (string, error) {
	return "", fmt.Errorf("store unavailable")
}

func TestBuild_OverflowPutFailureStillResponds(t *testing.T) {
	store, err := resource.NewMemoryStore(0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	b := NewBuilder(tokens.NewEstimator(), respcache.New(64, time.Minute), &failingStore{Store: store})

	resp, err := b.Build(context.Background(), resultsWithCost(500, 50), searchtypes.Budget{MaxTokens: 1000}, testContext(1))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.True(t, resp.Meta.Truncated)
	assert.Empty(t, resp.Meta.ResourceURI, "failed preservation leaves the truncated response without a resource")
}

func TestBuild_SecondIdenticalBuildHitsCache(t *testing.T) {
	b, _ := newTestBuilder(t)
	raw := resultsWithCost(100, 50)
	budget := searchtypes.Budget{MaxTokens: 1000}

	first, err := b.Build(context.Background(), raw, budget, testContext(3))
	require.NoError(t, err)
	second, err := b.Build(context.Background(), raw, budget, testContext(3))
	require.NoError(t, err)

	// Bit-identical responses.
	fj, err := json.Marshal(first)
	require.NoError(t, err)
	sj, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, fj, sj)

	// The second call did no estimation or reduction work.
	stats := b.Stats()
	assert.Equal(t, int64(1), stats.Builds)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestBuild_GenerationBumpInvalidates(t *testing.T) {
	b, _ := newTestBuilder(t)
	raw := resultsWithCost(10, 50)
	budget := searchtypes.Budget{MaxTokens: 10000}

	_, err := b.Build(context.Background(), raw, budget, testContext(1))
	require.NoError(t, err)
	_, err = b.Build(context.Background(), raw, budget, testContext(2))
	require.NoError(t, err)

	stats := b.Stats()
	assert.Equal(t, int64(2), stats.Builds, "new generation must rebuild")
	assert.Equal(t, int64(0), stats.CacheHits)
}

func TestBuild_FirstItemOverBudget(t *testing.T) {
	b, _ := newTestBuilder(t)
	raw := []searchtypes.RawResult{
		{Path: "huge.go", Fragment: strings.Repeat("x", 8000)},
		{Path: "small.go", Fragment: "y"},
	}

	resp, err := b.Build(context.Background(), raw, searchtypes.Budget{MaxTokens: 100}, testContext(1))
	require.NoError(t, err)

	assert.True(t, resp.Success, "budget_unsatisfiable is not fatal")
	assert.True(t, resp.Meta.Truncated)
	require.Len(t, resp.Results, 1)

	found := false
	for _, in := range resp.Insights {
		if strings.Contains(in, "first result exceeds") {
			found = true
		}
	}
	assert.True(t, found, "expected an explanatory insight, got %v", resp.Insights)
}

func TestBuild_OverflowDisabled(t *testing.T) {
	b, _ := newTestBuilder(t)
	raw := resultsWithCost(100, 50)
	bctx := testContext(1)
	bctx.PreserveOverflow = false

	resp, err := b.Build(context.Background(), raw, searchtypes.Budget{MaxTokens: 500}, bctx)
	require.NoError(t, err)

	assert.True(t, resp.Meta.Truncated)
	assert.Empty(t, resp.Meta.ResourceURI, "resource uri present iff preservation enabled")
}

func TestBuild_ActionsCarryCostAndPriority(t *testing.T) {
	b, _ := newTestBuilder(t)
	raw := resultsWithCost(200, 50)

	resp, err := b.Build(context.Background(), raw, searchtypes.Budget{MaxTokens: 800}, testContext(1))
	require.NoError(t, err)

	require.NotEmpty(t, resp.Actions)
	ids := map[string]bool{}
	for _, a := range resp.Actions {
		ids[a.ID] = true
		assert.Greater(t, a.EstimatedTokens, 0, "action %s must carry a cost", a.ID)
		assert.Greater(t, a.Priority, 0)
		assert.NotEmpty(t, a.Command)
	}
	assert.True(t, ids["fetch_full_results"])
	assert.True(t, ids["raise_budget"])
}

func TestBuild_EmptyResults(t *testing.T) {
	b, _ := newTestBuilder(t)

	resp, err := b.Build(context.Background(), nil, searchtypes.DefaultBudget(), testContext(1))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.False(t, resp.Meta.Truncated)
	assert.Equal(t, 0, resp.TotalResults)
}
