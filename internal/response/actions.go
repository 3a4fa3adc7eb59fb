package response

import (
	"fmt"

	"github.com/standardbeagle/csearch/internal/searchtypes"
)

// buildActions derives follow-up actions from the full raw set and the
// budget outcome. Each action carries the token cost the client would pay
// for invoking it, so the client can budget its own context.
func buildActions(query searchtypes.Query, summary Summary, budget searchtypes.Budget, truncated bool, fullCost int, resourceURI string) []ActionDescriptor {
	var actions []ActionDescriptor

	if resourceURI != "" {
		actions = append(actions, ActionDescriptor{
			ID:          "fetch_full_results",
			Description: fmt.Sprintf("retrieve all %d results that were preserved for this search", summary.TotalMatches),
			Command:     "get_resource",
			Parameters:  map[string]interface{}{"uri": resourceURI},
			// The overflow payload is the full set serialized.
			EstimatedTokens: fullCost,
			Priority:        1,
		})
	}

	if truncated && len(summary.TopDirs) > 0 {
		dir := summary.TopDirs[0].Key
		actions = append(actions, ActionDescriptor{
			ID:          "narrow_to_directory",
			Description: fmt.Sprintf("re-run the search restricted to %s, the directory with the most matches", dir),
			Command:     "search",
			Parameters: map[string]interface{}{
				"pattern": query.Pattern,
				"filter":  dir + "/**",
			},
			EstimatedTokens: budget.MaxTokens,
			Priority:        2,
		})
	}

	if truncated {
		raised := budget.MaxTokens * 2
		actions = append(actions, ActionDescriptor{
			ID:          "raise_budget",
			Description: fmt.Sprintf("re-run with max_tokens=%d to see more of the %d results", raised, summary.TotalMatches),
			Command:     "search",
			Parameters: map[string]interface{}{
				"pattern":    query.Pattern,
				"max_tokens": raised,
			},
			EstimatedTokens: raised,
			Priority:        3,
		})
	}

	return actions
}
