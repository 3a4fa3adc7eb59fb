package searchtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudgetNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   Budget
		want Budget
	}{
		{"zero value", Budget{}, Budget{MaxTokens: DefaultMaxTokens, Mode: ModeDefault}},
		{"negative tokens", Budget{MaxTokens: -5, Mode: ModePriority}, Budget{MaxTokens: DefaultMaxTokens, Mode: ModePriority}},
		{"mode only missing", Budget{MaxTokens: 1200}, Budget{MaxTokens: 1200, Mode: ModeDefault}},
		{"already complete", Budget{MaxTokens: 400, Mode: ModeDiverse}, Budget{MaxTokens: 400, Mode: ModeDiverse}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Normalize())
		})
	}
}

func TestDefaultBudgetIsNormalized(t *testing.T) {
	b := DefaultBudget()
	assert.Equal(t, b, b.Normalize())
}

func TestHasRelevance(t *testing.T) {
	assert.False(t, HasRelevance(nil))
	assert.False(t, HasRelevance([]RawResult{{Path: "a"}, {Path: "b"}}))
	assert.True(t, HasRelevance([]RawResult{{Path: "a"}, {Path: "b", Score: 0.3}}))
}
