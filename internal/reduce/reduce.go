// Package reduce shrinks raw result sets to a token budget.
//
// All strategies share one contract: the kept slice preserves original input
// order, the first item survives even when it alone exceeds the budget (a
// non-empty input never reduces to nothing), and ties break by original
// input index so repeated reductions of the same input are bit-identical.
package reduce

import (
	"path/filepath"

	"github.com/standardbeagle/csearch/internal/searchtypes"
	"github.com/standardbeagle/csearch/internal/tokens"
)

// Strategy reduces a result sequence to a token budget.
type Strategy interface {
	Name() string
	Reduce(items []searchtypes.RawResult, est *tokens.Estimator, maxTokens int) (kept []searchtypes.RawResult, truncated bool)
}

// ForContext picks the strategy for a build: Clustered when diversity is
// requested, PriorityWeighted when results carry relevance scores, Standard
// otherwise. Pure function of its inputs.
func ForContext(mode searchtypes.ResponseMode, items []searchtypes.RawResult) Strategy {
	switch {
	case mode == searchtypes.ModeDiverse && clusterable(items):
		return Clustered{}
	case mode == searchtypes.ModePriority:
		return PriorityWeighted{}
	case searchtypes.HasRelevance(items):
		return PriorityWeighted{}
	default:
		return Standard{}
	}
}

// clusterKey partitions results for diversity: directory plus extension.
func clusterKey(r searchtypes.RawResult) string {
	return filepath.Dir(r.Path) + "|" + filepath.Ext(r.Path)
}

// clusterable reports whether the items span more than one cluster.
// A single cluster degenerates to Standard reduction.
func clusterable(items []searchtypes.RawResult) bool {
	if len(items) < 2 {
		return false
	}
	first := clusterKey(items[0])
	for i := 1; i < len(items); i++ {
		if clusterKey(items[i]) != first {
			return true
		}
	}
	return false
}
