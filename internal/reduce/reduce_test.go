package reduce

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/csearch/internal/searchtypes"
	"github.com/standardbeagle/csearch/internal/tokens"
)

// uniformResults builds n results whose estimated cost is identical.
func uniformResults(n int) []searchtypes.RawResult {
	results := make([]searchtypes.RawResult, n)
	for i := range results {
		// Same-length paths and fragments keep per-item cost uniform.
		results[i] = searchtypes.RawResult{
			Path:     fmt.Sprintf("dir%02d/f.go", i%7),
			Fragment: strings.Repeat("x", 140),
		}
	}
	return results
}

func TestStandard_UniformCostKeepsFloorOfBudget(t *testing.T) {
	est := tokens.NewEstimator()
	items := uniformResults(500)
	perItem := est.Estimate(items[0])

	budget := 20 * perItem
	kept, truncated := Standard{}.Reduce(items, est, budget)

	assert.Len(t, kept, 20)
	assert.True(t, truncated)
}

func TestStandard_AllFitWithinBudget(t *testing.T) {
	est := tokens.NewEstimator()
	items := uniformResults(5)

	kept, truncated := Standard{}.Reduce(items, est, est.EstimateCollection(items)+100)

	assert.Len(t, kept, 5)
	assert.False(t, truncated)
}

func TestStandard_FirstItemAlwaysKept(t *testing.T) {
	est := tokens.NewEstimator()
	items := []searchtypes.RawResult{
		{Path: "big.go", Fragment: strings.Repeat("y", 4000)},
		{Path: "small.go", Fragment: "z"},
	}

	kept, truncated := Standard{}.Reduce(items, est, 10)

	require.Len(t, kept, 1)
	assert.Equal(t, "big.go", kept[0].Path)
	assert.True(t, truncated)
}

func TestStandard_EmptyInput(t *testing.T) {
	kept, truncated := Standard{}.Reduce(nil, tokens.NewEstimator(), 100)
	assert.Empty(t, kept)
	assert.False(t, truncated)
}

func TestStandard_PreservesOrder(t *testing.T) {
	est := tokens.NewEstimator()
	items := uniformResults(50)

	kept, _ := Standard{}.Reduce(items, est, est.Estimate(items[0])*10)

	for i := range kept {
		assert.Equal(t, items[i].Path, kept[i].Path, "kept must be a prefix in input order")
	}
}

func TestPriority_KeepsHighestScoresInOriginalOrder(t *testing.T) {
	est := tokens.NewEstimator()
	items := uniformResults(10)
	// Score ascending: the tail items are the most relevant.
	for i := range items {
		items[i].Score = float64(i)
	}
	perItem := est.Estimate(items[0])

	kept, truncated := PriorityWeighted{}.Reduce(items, est, 4*perItem)

	require.True(t, truncated)
	require.Len(t, kept, 4)
	// Mandatory first item plus the three best scores, in input order.
	assert.Equal(t, items[0].Path, kept[0].Path)
	assert.Equal(t, float64(0), kept[0].Score)
	assert.Equal(t, float64(7), kept[1].Score)
	assert.Equal(t, float64(8), kept[2].Score)
	assert.Equal(t, float64(9), kept[3].Score)
}

func TestPriority_StableTieBreakByIndex(t *testing.T) {
	est := tokens.NewEstimator()
	items := uniformResults(10)
	for i := range items {
		items[i].Score = 1.0
		items[i].Fields = map[string]string{"n": fmt.Sprintf("%d", i)}
	}
	perItem := est.Estimate(items[0])

	kept, _ := PriorityWeighted{}.Reduce(items, est, 3*perItem)

	require.NotEmpty(t, kept)
	// Equal scores fill from the front of the input.
	for i := range kept {
		assert.Equal(t, fmt.Sprintf("%d", i), kept[i].Fields["n"])
	}
}

func TestPriority_Deterministic(t *testing.T) {
	est := tokens.NewEstimator()
	items := uniformResults(40)
	for i := range items {
		items[i].Score = float64((i * 31) % 13)
	}
	budget := est.Estimate(items[0]) * 9

	first, _ := PriorityWeighted{}.Reduce(items, est, budget)
	for run := 0; run < 5; run++ {
		again, _ := PriorityWeighted{}.Reduce(items, est, budget)
		require.Equal(t, first, again)
	}
}

func TestClustered_RoundRobinAcrossDirectories(t *testing.T) {
	est := tokens.NewEstimator()
	var items []searchtypes.RawResult
	// Three directories, heavily skewed toward the first.
	for i := 0; i < 20; i++ {
		items = append(items, searchtypes.RawResult{Path: "hot/f.go", Fragment: strings.Repeat("a", 140)})
	}
	items = append(items,
		searchtypes.RawResult{Path: "warm/g.go", Fragment: strings.Repeat("a", 140)},
		searchtypes.RawResult{Path: "cold/h.go", Fragment: strings.Repeat("a", 140)},
	)
	perItem := est.Estimate(items[0])

	kept, truncated := Clustered{}.Reduce(items, est, 3*perItem)

	require.True(t, truncated)
	require.Len(t, kept, 3)
	dirs := map[string]int{}
	for _, r := range kept {
		dirs[r.Path]++
	}
	// One from each cluster, not three from the hot directory.
	assert.Equal(t, 1, dirs["hot/f.go"])
	assert.Equal(t, 1, dirs["warm/g.go"])
	assert.Equal(t, 1, dirs["cold/h.go"])
}

func TestClustered_FallsBackToStandardForSingleCluster(t *testing.T) {
	est := tokens.NewEstimator()
	items := make([]searchtypes.RawResult, 6)
	for i := range items {
		items[i] = searchtypes.RawResult{Path: "same/f.go", Fragment: strings.Repeat("b", 140)}
	}
	budget := est.Estimate(items[0]) * 2

	clustered, ctrunc := Clustered{}.Reduce(items, est, budget)
	standard, strunc := Standard{}.Reduce(items, est, budget)

	assert.Equal(t, standard, clustered)
	assert.Equal(t, strunc, ctrunc)
}

func TestForContext_Selection(t *testing.T) {
	scored := uniformResults(4)
	for i := range scored {
		scored[i].Score = float64(i + 1)
	}
	unscored := uniformResults(4)

	assert.Equal(t, "standard", ForContext(searchtypes.ModeDefault, unscored).Name())
	assert.Equal(t, "priority", ForContext(searchtypes.ModeDefault, scored).Name())
	assert.Equal(t, "priority", ForContext(searchtypes.ModePriority, unscored).Name())
	assert.Equal(t, "clustered", ForContext(searchtypes.ModeDiverse, scored).Name())

	// Diversity over a single cluster degenerates to standard.
	same := []searchtypes.RawResult{{Path: "a/x.go"}, {Path: "a/y.go"}}
	assert.Equal(t, "standard", ForContext(searchtypes.ModeDiverse, same).Name())
}
