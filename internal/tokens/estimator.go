// Package tokens estimates the serialized context cost of search results.
// Estimates are deterministic and monotonic in content length; they proxy
// the AI client's tokenizer without reproducing it exactly.
package tokens

import (
	"encoding/json"

	"github.com/standardbeagle/csearch/internal/searchtypes"
)

const (
	// Rough approximation: 1 token ≈ 4 characters for English text and
	// code. JSON structure adds ~20% on top.
	averageCharsPerToken = 4.0
	jsonOverheadFactor   = 1.2

	// Fixed per-result cost for line number, score and field scaffolding.
	resultMetadataTokens = 10
)

// Estimator converts results into estimated token counts.
type Estimator struct {
	charsPerToken float64
	overhead      float64
}

// NewEstimator creates an estimator with the default cost model.
func NewEstimator() *Estimator {
	return &Estimator{
		charsPerToken: averageCharsPerToken,
		overhead:      jsonOverheadFactor,
	}
}

// Estimate returns the token cost of a single raw result.
func (e *Estimator) Estimate(r searchtypes.RawResult) int {
	chars := len(r.Path) + len(r.Fragment)
	for k, v := range r.Fields {
		chars += len(k) + len(v)
	}

	t := int(float64(chars)/e.charsPerToken*e.overhead) + resultMetadataTokens
	return t
}

// EstimateCollection returns the total token cost of a result slice.
func (e *Estimator) EstimateCollection(results []searchtypes.RawResult) int {
	total := 0
	for i := range results {
		total += e.Estimate(results[i])
	}
	return total
}

// EstimateJSON estimates the cost of an arbitrary value by serializing it.
// Used for insights, actions and other non-result response sections.
func (e *Estimator) EstimateJSON(v interface{}) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return int(float64(len(b)) / e.charsPerToken * e.overhead)
}

// EstimateText estimates the cost of a plain text payload.
func (e *Estimator) EstimateText(s string) int {
	return int(float64(len(s)) / e.charsPerToken)
}
