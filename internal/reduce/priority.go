package reduce

import (
	"sort"

	"github.com/standardbeagle/csearch/internal/searchtypes"
	"github.com/standardbeagle/csearch/internal/tokens"
)

// PriorityWeighted spends the budget on the highest-scoring items first,
// then presents the survivors in their original input order. Equal scores
// break by original index.
type PriorityWeighted struct{}

// Name implements Strategy.
func (PriorityWeighted) Name() string { return "priority" }

// Reduce implements Strategy.
func (PriorityWeighted) Reduce(items []searchtypes.RawResult, est *tokens.Estimator, maxTokens int) ([]searchtypes.RawResult, bool) {
	if len(items) == 0 {
		return nil, false
	}

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if items[ia].Score != items[ib].Score {
			return items[ia].Score > items[ib].Score
		}
		return ia < ib
	})

	// The first input item is mandatory regardless of its score.
	used := est.Estimate(items[0])
	firstOver := used > maxTokens
	chosen := map[int]bool{0: true}

	for _, idx := range order {
		if chosen[idx] {
			continue
		}
		cost := est.Estimate(items[idx])
		if used+cost > maxTokens {
			continue
		}
		used += cost
		chosen[idx] = true
	}

	kept := make([]searchtypes.RawResult, 0, len(chosen))
	for i := range items {
		if chosen[i] {
			kept = append(kept, items[i])
		}
	}
	return kept, len(kept) < len(items) || firstOver
}
