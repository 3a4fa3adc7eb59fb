package searchtypes

// RawResult represents a single query match as produced by the index
// capability. It is opaque to the response pipeline: the pipeline only
// orders, counts and costs it.
type RawResult struct {
	Path     string            `json:"path"`
	Line     int               `json:"line,omitempty"`
	Fragment string            `json:"fragment,omitempty"`
	Score    float64           `json:"score"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// HasRelevance reports whether results carry meaningful relevance scores.
// Score zero across the board means the capability did not rank.
func HasRelevance(results []RawResult) bool {
	for i := range results {
		if results[i].Score != 0 {
			return true
		}
	}
	return false
}

// DefaultMaxResults caps how many raw matches one query pulls from the
// index when the caller does not say otherwise.
const DefaultMaxResults = 500

// Query describes one search request against a workspace index.
type Query struct {
	Pattern         string `json:"pattern"`
	MaxResults      int    `json:"max,omitempty"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
	FilePattern     string `json:"filter,omitempty"`
}

// ResponseMode selects how aggressively a response is shaped to budget.
type ResponseMode string

const (
	// ModeDefault keeps results in index order and trims the tail.
	ModeDefault ResponseMode = "default"
	// ModePriority keeps the highest-scoring results within budget.
	ModePriority ResponseMode = "priority"
	// ModeDiverse spreads the kept results across directories.
	ModeDiverse ResponseMode = "diverse"
)

// Budget bounds the serialized size of one built response.
// Immutable for the duration of a build.
type Budget struct {
	MaxTokens int          `json:"max_tokens"`
	Mode      ResponseMode `json:"mode"`
}

// DefaultMaxTokens matches the context share a single tool response may
// claim from an AI client without crowding out the conversation.
const DefaultMaxTokens = 8000

// DefaultBudget returns the budget applied when the caller does not set one.
func DefaultBudget() Budget {
	return Budget{MaxTokens: DefaultMaxTokens, Mode: ModeDefault}
}

// Normalize fills unset fields with defaults and clamps nonsense values.
func (b Budget) Normalize() Budget {
	if b.MaxTokens <= 0 {
		b.MaxTokens = DefaultMaxTokens
	}
	if b.Mode == "" {
		b.Mode = ModeDefault
	}
	return b
}
