package response

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	edlib "github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"

	"github.com/standardbeagle/csearch/internal/searchtypes"
)

const (
	topListLimit  = 5
	minTermLength = 3
	// relatedTermThreshold is the Jaro-Winkler similarity above which a
	// frequent term is reported as related to a query term.
	relatedTermThreshold = 0.84
)

// summarize aggregates the FULL raw set; it must never see the truncated
// subset or summaries drift from reality under truncation.
func summarize(raw []searchtypes.RawResult) Summary {
	dirs := make(map[string]int)
	exts := make(map[string]int)
	files := make(map[string]struct{})
	terms := make(map[string]int)

	for i := range raw {
		files[raw[i].Path] = struct{}{}
		dirs[filepath.Dir(raw[i].Path)]++
		if ext := filepath.Ext(raw[i].Path); ext != "" {
			exts[ext]++
		}
		countTerms(raw[i].Fragment, terms)
	}

	return Summary{
		TotalMatches:  len(raw),
		DistinctFiles: len(files),
		TopDirs:       topCounts(dirs, topListLimit),
		TopExtensions: topCounts(exts, topListLimit),
		TopTerms:      topCounts(terms, topListLimit),
	}
}

// countTerms extracts identifier-ish words, stems them and counts stems.
func countTerms(fragment string, into map[string]int) {
	for _, word := range splitWords(fragment) {
		if len(word) < minTermLength {
			continue
		}
		stem := porter2.Stem(strings.ToLower(word))
		if len(stem) < minTermLength {
			continue
		}
		into[stem]++
	}
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// topCounts returns the n most frequent keys, ties broken lexically so the
// output is deterministic.
func topCounts(m map[string]int, n int) []KeyCount {
	out := make([]KeyCount, 0, len(m))
	for k, v := range m {
		out = append(out, KeyCount{Key: k, Count: v})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		return out[a].Key < out[b].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// buildInsights derives human-readable observations from the full raw set
// and the budget outcome.
func buildInsights(query searchtypes.Query, summary Summary, budget searchtypes.Budget, truncated bool, kept, total int, firstOver bool) []string {
	var insights []string

	if firstOver {
		insights = append(insights,
			fmt.Sprintf("even the first result exceeds the %d-token budget; it is returned anyway, raise max_tokens for complete fragments", budget.MaxTokens))
	}
	if truncated {
		insights = append(insights,
			fmt.Sprintf("showing %d of %d results to stay within the %d-token budget", kept, total, budget.MaxTokens))
	}

	if len(summary.TopDirs) > 0 && summary.TotalMatches > 0 {
		lead := summary.TopDirs[0]
		share := lead.Count * 100 / summary.TotalMatches
		if share >= 50 && summary.DistinctFiles > 1 {
			insights = append(insights,
				fmt.Sprintf("matches concentrate in %s (%d%% of all results)", lead.Key, share))
		}
	}

	if related := relatedTerms(query.Pattern, summary.TopTerms); len(related) > 0 {
		insights = append(insights,
			fmt.Sprintf("frequent terms near your pattern: %s", strings.Join(related, ", ")))
	}

	return insights
}

// relatedTerms finds frequent stems that are similar to, but not the same
// as, the query terms. Points the client at near-miss vocabulary.
func relatedTerms(pattern string, topTerms []KeyCount) []string {
	queryTerms := splitWords(strings.ToLower(pattern))
	if len(queryTerms) == 0 {
		return nil
	}

	var related []string
	for _, tc := range topTerms {
		for _, qt := range queryTerms {
			stem := porter2.Stem(qt)
			if tc.Key == stem || tc.Key == qt {
				continue
			}
			score, err := edlib.StringsSimilarity(tc.Key, qt, edlib.JaroWinkler)
			if err != nil {
				continue
			}
			if float64(score) >= relatedTermThreshold {
				related = append(related, tc.Key)
				break
			}
		}
	}
	return related
}
