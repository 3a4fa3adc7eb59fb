package reduce

import (
	"github.com/standardbeagle/csearch/internal/searchtypes"
	"github.com/standardbeagle/csearch/internal/tokens"
)

// Standard keeps a greedy prefix of the input in original order, stopping
// before the item that would push the total past the budget.
type Standard struct{}

// Name implements Strategy.
func (Standard) Name() string { return "standard" }

// Reduce implements Strategy.
func (Standard) Reduce(items []searchtypes.RawResult, est *tokens.Estimator, maxTokens int) ([]searchtypes.RawResult, bool) {
	if len(items) == 0 {
		return nil, false
	}

	used := est.Estimate(items[0])
	end := 1
	for end < len(items) {
		cost := est.Estimate(items[end])
		if used+cost > maxTokens {
			break
		}
		used += cost
		end++
	}

	kept := items[:end:end]
	return kept, end < len(items) || used > maxTokens
}
