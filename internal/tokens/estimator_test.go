package tokens

import (
	"strings"
	"testing"

	"github.com/standardbeagle/csearch/internal/searchtypes"
)

func TestEstimate_Monotonic(t *testing.T) {
	e := NewEstimator()

	short := searchtypes.RawResult{Path: "a.go", Fragment: "x"}
	long := searchtypes.RawResult{Path: "a.go", Fragment: strings.Repeat("x", 400)}

	if e.Estimate(long) <= e.Estimate(short) {
		t.Errorf("longer fragment must cost more: short=%d long=%d", e.Estimate(short), e.Estimate(long))
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	e := NewEstimator()
	r := searchtypes.RawResult{
		Path:     "internal/server/server.go",
		Line:     42,
		Fragment: "func NewServer(cfg *Config) (*Server, error) {",
		Fields:   map[string]string{"ext": ".go"},
	}

	first := e.Estimate(r)
	for i := 0; i < 10; i++ {
		if got := e.Estimate(r); got != first {
			t.Fatalf("estimate changed between calls: %d vs %d", first, got)
		}
	}
}

func TestEstimateCollection_SumsItems(t *testing.T) {
	e := NewEstimator()
	results := []searchtypes.RawResult{
		{Path: "a.go", Fragment: "one"},
		{Path: "b.go", Fragment: "two"},
		{Path: "c.go", Fragment: "three"},
	}

	want := 0
	for _, r := range results {
		want += e.Estimate(r)
	}
	if got := e.EstimateCollection(results); got != want {
		t.Errorf("collection estimate %d != sum of items %d", got, want)
	}
	if e.EstimateCollection(nil) != 0 {
		t.Error("empty collection must cost zero")
	}
}

func TestEstimate_MoreItemsCostMore(t *testing.T) {
	e := NewEstimator()
	r := searchtypes.RawResult{Path: "pkg/util/util.go", Fragment: "func Clamp(v, lo, hi int) int"}

	five := e.EstimateCollection([]searchtypes.RawResult{r, r, r, r, r})
	ten := e.EstimateCollection([]searchtypes.RawResult{r, r, r, r, r, r, r, r, r, r})
	if ten != 2*five {
		t.Errorf("uniform items must scale linearly: 5 items=%d, 10 items=%d", five, ten)
	}
}
