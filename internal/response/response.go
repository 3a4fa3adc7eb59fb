// Package response shapes unbounded raw result sets into budget-constrained,
// cacheable responses. A built response never exceeds its token budget beyond
// the mandatory first item, and everything summarizing the result set is
// computed from the full raw set so truncation never skews the summary.
package response

import (
	"github.com/standardbeagle/csearch/internal/searchtypes"
)

// BuiltResponse is the stable serialized response object. Field names are
// part of the tool contract with the AI client.
type BuiltResponse struct {
	Success         bool                    `json:"success"`
	Query           searchtypes.Query       `json:"query"`
	TotalResults    int                     `json:"total_results"`
	ReturnedResults int                     `json:"returned_results"`
	Results         []searchtypes.RawResult `json:"results"`
	ResultsSummary  Summary                 `json:"results_summary"`
	Insights        []string                `json:"insights,omitempty"`
	Actions         []ActionDescriptor      `json:"actions,omitempty"`
	Meta            Meta                    `json:"meta"`
}

// Meta carries the budget accounting for one response.
type Meta struct {
	Mode            searchtypes.ResponseMode `json:"mode"`
	Truncated       bool                     `json:"truncated"`
	EstimatedTokens int                      `json:"tokens"`
	// ResourceURI points at the preserved full result set when the response
	// was truncated with preservation enabled. Preservation is best-effort:
	// if the store rejects the payload the response still goes out truncated,
	// just without a URI.
	ResourceURI string `json:"resource_uri,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
}

// Summary aggregates the full raw result set, independent of truncation.
type Summary struct {
	TotalMatches  int        `json:"total_matches"`
	DistinctFiles int        `json:"distinct_files"`
	TopDirs       []KeyCount `json:"top_dirs,omitempty"`
	TopExtensions []KeyCount `json:"top_extensions,omitempty"`
	TopTerms      []KeyCount `json:"top_terms,omitempty"`
}

// KeyCount is one line of a frequency table.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// ActionDescriptor describes a follow-up the client can invoke, with the
// token cost it would add to the conversation.
type ActionDescriptor struct {
	ID              string                 `json:"id"`
	Description     string                 `json:"description"`
	Command         string                 `json:"command"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
	EstimatedTokens int                    `json:"estimated_tokens"`
	Priority        int                    `json:"priority"`
}
