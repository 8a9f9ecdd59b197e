// Package fuzzy provides approximate string matching over small controlled
// vocabularies such as property names and expense categories. It powers the
// "Did you mean" suggestions surfaced when a tool receives an argument that
// does not exactly match the dataset.
package fuzzy

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultSimilarityFloor is the minimum normalized similarity a candidate
// must reach to appear in suggestions.
const DefaultSimilarityFloor = 0.55

// DefaultMaxSuggestions caps the number of suggestions returned.
const DefaultMaxSuggestions = 3

// Suggestion pairs a candidate value with its similarity to the query.
type Suggestion struct {
	Value      string
	Similarity float64
}

// Result is the outcome of matching a query against a vocabulary.
type Result struct {
	// Exact holds the vocabulary entry the query matched byte for byte,
	// empty otherwise. Case or punctuation variants of a known entry are
	// not exact; they surface as the top-ranked suggestion instead.
	Exact string
	// Suggestions holds near matches above the similarity floor, best
	// first, only populated when Exact is empty.
	Suggestions []Suggestion
}

// Matched reports whether the query resolved to a vocabulary entry.
func (r Result) Matched() bool { return r.Exact != "" }

// SuggestionValues returns just the candidate strings, best first.
func (r Result) SuggestionValues() []string {
	vals := make([]string, len(r.Suggestions))
	for i, s := range r.Suggestions {
		vals[i] = s.Value
	}
	return vals
}

// Matcher matches queries against a fixed vocabulary.
type Matcher struct {
	vocabulary []string
	floor      float64
	max        int
}

// NewMatcher builds a matcher over the given vocabulary. A floor <= 0 or
// max <= 0 falls back to the package defaults.
func NewMatcher(vocabulary []string, floor float64, max int) *Matcher {
	if floor <= 0 {
		floor = DefaultSimilarityFloor
	}
	if max <= 0 {
		max = DefaultMaxSuggestions
	}
	return &Matcher{
		vocabulary: append([]string(nil), vocabulary...),
		floor:      floor,
		max:        max,
	}
}

// Normalize lowercases and strips spaces, hyphens and underscores so that
// "Building 120", "building-120" and "BUILDING_120" all compare equal.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '-', '_':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Similarity returns a normalized Levenshtein similarity in [0, 1] between
// the normalized forms of a and b. Two empty strings are fully similar.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}
	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(na, nb)
	return 1.0 - float64(dist)/float64(maxLen)
}

// Match resolves query against the vocabulary. Only a byte-equal hit
// counts as exact; otherwise candidates above the floor are ranked by
// descending similarity, with ties broken by vocabulary order, and the
// top N returned. A query that differs from a known entry only in case
// or punctuation scores 1.0 and therefore ranks first.
func (m *Matcher) Match(query string) Result {
	for _, v := range m.vocabulary {
		if v == query {
			return Result{Exact: v}
		}
	}

	candidates := make([]Suggestion, 0, len(m.vocabulary))
	for _, v := range m.vocabulary {
		sim := Similarity(query, v)
		if sim >= m.floor {
			candidates = append(candidates, Suggestion{Value: v, Similarity: sim})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > m.max {
		candidates = candidates[:m.max]
	}
	return Result{Suggestions: candidates}
}
