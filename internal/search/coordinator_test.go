package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/csearch/internal/errors"
	"github.com/standardbeagle/csearch/internal/resource"
	"github.com/standardbeagle/csearch/internal/respcache"
	"github.com/standardbeagle/csearch/internal/response"
	"github.com/standardbeagle/csearch/internal/searchtypes"
	"github.com/standardbeagle/csearch/internal/tokens"
	"github.com/standardbeagle/csearch/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubIndex serves canned results and tracks generation per reopen.
type stubIndex struct {
	results  []searchtypes.RawResult
	gen      uint64
	queryErr error
}

func (s *stubIndex) Query(ctx context.Context, q searchtypes.Query) ([]searchtypes.RawResult, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.results, nil
}

func (s *stubIndex) Generation() uint64 { return s.gen }
func (s *stubIndex) Flush() error       { return nil }
func (s *stubIndex) Close() error       { return nil }

type stubBackend struct {
	mu       sync.Mutex
	results  []searchtypes.RawResult
	gens     map[string]uint64
	queryErr error
	rebuilt  []string
}

func newStubBackend(results []searchtypes.RawResult) *stubBackend {
	return &stubBackend{results: results, gens: make(map[string]uint64)}
}

func (b *stubBackend) Open(ctx context.Context, workspaceID string) (workspace.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gens[workspaceID]++
	return &stubIndex{results: b.results, gen: b.gens[workspaceID], queryErr: b.queryErr}, nil
}

func (b *stubBackend) Rebuild(workspaceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebuilt = append(b.rebuilt, workspaceID)
	return nil
}

type fixture struct {
	coord *Coordinator
	pool  *workspace.Cache
	store *resource.MemoryStore
	back  *stubBackend
}

func newFixture(t *testing.T, results []searchtypes.RawResult) *fixture {
	t.Helper()
	back := newStubBackend(results)
	pool := workspace.NewCache(back, workspace.Config{SweepInterval: 0})
	store, err := resource.NewMemoryStore(0)
	require.NoError(t, err)
	builder := response.NewBuilder(tokens.NewEstimator(), respcache.New(respcache.DefaultCapacity, respcache.DefaultTTL), store)
	coord := NewCoordinator(pool, builder, store, back)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, pool.Close(ctx))
		require.NoError(t, store.Close())
	})
	return &fixture{coord: coord, pool: pool, store: store, back: back}
}

func sampleResults(n int) []searchtypes.RawResult {
	out := make([]searchtypes.RawResult, n)
	for i := range out {
		out[i] = searchtypes.RawResult{
			Path:     fmt.Sprintf("pkg%02d/file.go", i%10),
			Line:     i + 1,
			Fragment: "func Example() {}",
			Score:    float64(n - i),
		}
	}
	return out
}

func TestSearchHappyPath(t *testing.T) {
	f := newFixture(t, sampleResults(5))

	resp, err := f.coord.Search(context.Background(), Request{
		Workspace: "/ws/demo",
		Query:     searchtypes.Query{Pattern: "Example"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 5, resp.TotalResults)
	assert.Equal(t, 5, resp.ReturnedResults)
	assert.False(t, resp.Meta.Truncated)

	// The handle must be back at refcount zero.
	for _, h := range f.pool.Stats().Handles {
		assert.Zero(t, h.Refs)
	}
}

func TestSearchEmptyPatternRejected(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.coord.Search(context.Background(), Request{
		Workspace: "/ws/demo",
		Query:     searchtypes.Query{Pattern: "   "},
	})
	require.Error(t, err)
	assert.Equal(t, 0, f.pool.Stats().Resident, "validation failures must not open handles")
}

func TestSearchTruncatesAndPreservesOverflow(t *testing.T) {
	results := sampleResults(200)
	f := newFixture(t, results)

	resp, err := f.coord.Search(context.Background(), Request{
		Workspace:        "/ws/demo",
		Query:            searchtypes.Query{Pattern: "Example"},
		Budget:           searchtypes.Budget{MaxTokens: 500},
		PreserveOverflow: true,
	})
	require.NoError(t, err)
	assert.True(t, resp.Meta.Truncated)
	assert.Less(t, resp.ReturnedResults, resp.TotalResults)
	require.NotEmpty(t, resp.Meta.ResourceURI)

	payload, err := f.coord.GetResource(context.Background(), resp.Meta.ResourceURI)
	require.NoError(t, err)

	var stored struct {
		Results []searchtypes.RawResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(payload, &stored))
	assert.Len(t, stored.Results, 200, "overflow must hold the full raw set")
}

func TestSearchReleasesOnQueryError(t *testing.T) {
	f := newFixture(t, nil)
	f.back.queryErr = fmt.Errorf("index corrupted")

	_, err := f.coord.Search(context.Background(), Request{
		Workspace: "/ws/demo",
		Query:     searchtypes.Query{Pattern: "x"},
	})
	require.Error(t, err)

	for _, h := range f.pool.Stats().Handles {
		assert.Zero(t, h.Refs, "query failures must still release the handle")
	}
}

func TestRepeatSearchHitsResponseCache(t *testing.T) {
	f := newFixture(t, sampleResults(5))
	req := Request{Workspace: "/ws/demo", Query: searchtypes.Query{Pattern: "Example"}}

	first, err := f.coord.Search(context.Background(), req)
	require.NoError(t, err)
	second, err := f.coord.Search(context.Background(), req)
	require.NoError(t, err)

	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	assert.Equal(t, string(firstJSON), string(secondJSON))

	stats := f.coord.Status().Responses
	assert.Equal(t, int64(1), stats.Builds)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestEvictInvalidatesCachedResponses(t *testing.T) {
	f := newFixture(t, sampleResults(5))
	req := Request{Workspace: "/ws/demo", Query: searchtypes.Query{Pattern: "Example"}}

	_, err := f.coord.Search(context.Background(), req)
	require.NoError(t, err)

	// Eviction retires the handle; the reopen carries a new generation, so
	// the same request fingerprints differently and rebuilds.
	require.NoError(t, f.coord.EvictWorkspace("/ws/demo", false))
	_, err = f.coord.Search(context.Background(), req)
	require.NoError(t, err)

	stats := f.coord.Status().Responses
	assert.Equal(t, int64(2), stats.Builds)
	assert.Equal(t, int64(0), stats.CacheHits)
}

func TestEvictWithRebuild(t *testing.T) {
	f := newFixture(t, sampleResults(1))

	_, err := f.coord.Search(context.Background(), Request{
		Workspace: "/ws/demo",
		Query:     searchtypes.Query{Pattern: "x"},
	})
	require.NoError(t, err)

	require.NoError(t, f.coord.EvictWorkspace("/ws/demo", true))
	f.back.mu.Lock()
	rebuilt := append([]string(nil), f.back.rebuilt...)
	f.back.mu.Unlock()
	require.Len(t, rebuilt, 1)
	assert.Equal(t, workspace.Canonicalize("/ws/demo"), rebuilt[0])
}

func TestGetResourceUnknownURI(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.coord.GetResource(context.Background(), "csearch://resource/01HQZX0000000000000000000Z")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindResourceNotFound))

	_, err = f.coord.GetResource(context.Background(), "not-a-uri")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindResourceNotFound))
}

func TestStatusSnapshot(t *testing.T) {
	f := newFixture(t, sampleResults(3))

	_, err := f.coord.Search(context.Background(), Request{
		Workspace: "/ws/demo",
		Query:     searchtypes.Query{Pattern: "Example"},
	})
	require.NoError(t, err)

	status := f.coord.Status()
	assert.Equal(t, 1, status.Pool.Resident)
	assert.Equal(t, int64(1), status.Responses.Builds)
	assert.GreaterOrEqual(t, status.UptimeSeconds, int64(0))
}
