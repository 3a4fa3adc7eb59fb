package reduce

import (
	"github.com/standardbeagle/csearch/internal/searchtypes"
	"github.com/standardbeagle/csearch/internal/tokens"
)

// Clustered spreads the budget across result clusters (directory plus
// extension), taking one item per cluster round-robin so a single hot
// directory cannot crowd out the rest of the tree. Clusters are visited in
// first-appearance order; within a cluster items keep input order. The
// survivors are presented in original input order.
type Clustered struct{}

// Name implements Strategy.
func (Clustered) Name() string { return "clustered" }

// Reduce implements Strategy.
func (Clustered) Reduce(items []searchtypes.RawResult, est *tokens.Estimator, maxTokens int) ([]searchtypes.RawResult, bool) {
	if len(items) == 0 {
		return nil, false
	}
	if !clusterable(items) {
		return Standard{}.Reduce(items, est, maxTokens)
	}

	// Cluster order is first appearance, which makes item 0 the first pick
	// of the round-robin.
	var keys []string
	clusters := make(map[string][]int)
	for i := range items {
		k := clusterKey(items[i])
		if _, seen := clusters[k]; !seen {
			keys = append(keys, k)
		}
		clusters[k] = append(clusters[k], i)
	}

	used := 0
	firstOver := false
	mandatory := true
	chosen := make(map[int]bool)

	for {
		progressed := false
		for _, k := range keys {
			queue := clusters[k]
			if len(queue) == 0 {
				continue
			}
			idx := queue[0]
			cost := est.Estimate(items[idx])
			if mandatory {
				// Item 0 is kept even over budget; non-empty input never
				// reduces to nothing.
				mandatory = false
				firstOver = cost > maxTokens
			} else if used+cost > maxTokens {
				// The cluster's next item does not fit; retire the cluster
				// so the rotation stays deterministic.
				clusters[k] = nil
				continue
			}
			used += cost
			chosen[idx] = true
			clusters[k] = queue[1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}

	kept := make([]searchtypes.RawResult, 0, len(chosen))
	for i := range items {
		if chosen[i] {
			kept = append(kept, items[i])
		}
	}
	return kept, len(kept) < len(items) || firstOver
}
