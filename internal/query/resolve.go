package query

import (
	"strings"

	"github.com/datasmith-ai/datasmith/internal/profile"
)

const maxEditDistance = 2

// ResolveColumn maps a possibly imprecise column reference onto the schema.
// Preference order: exact match, unique case-insensitive match, unique
// shortest-edit-distance match within distance 2. Anything still ambiguous
// is reported as unresolvable rather than guessed.
func ResolveColumn(name string, prof *profile.SchemaProfile) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &UnresolvableError{Fragment: name, Reason: "empty column reference"}
	}
	if _, ok := prof.Column(name); ok {
		return name, nil
	}

	var folded []string
	for _, col := range prof.ColumnNames() {
		if strings.EqualFold(col, name) {
			folded = append(folded, col)
		}
	}
	if len(folded) == 1 {
		return folded[0], nil
	}
	if len(folded) > 1 {
		return "", &UnresolvableError{Fragment: name, Reason: "multiple case-insensitive matches", Candidates: folded}
	}

	best := maxEditDistance + 1
	var closest []string
	for _, col := range prof.ColumnNames() {
		d := levenshtein(strings.ToLower(name), strings.ToLower(col))
		switch {
		case d < best:
			best = d
			closest = []string{col}
		case d == best:
			closest = append(closest, col)
		}
	}
	if best > maxEditDistance {
		return "", &UnresolvableError{Fragment: name, Reason: "no matching column"}
	}
	if len(closest) > 1 {
		return "", &UnresolvableError{Fragment: name, Reason: "ambiguous column reference", Candidates: closest}
	}
	return closest[0], nil
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
