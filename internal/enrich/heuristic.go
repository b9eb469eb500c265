package enrich

import (
	"regexp"
	"strings"

	"github.com/datasmith-ai/datasmith/internal/dataset"
	"github.com/datasmith-ai/datasmith/internal/profile"
)

// Heuristic for "real-world entity" columns: text columns whose sampled
// values look like names or places (capitalized short phrases), with enough
// distinct values to be identifiers of something external, and whose column
// name does not look like a surrogate key.
var (
	entityValuePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9 .,&'-]*$`)
	keyNamePattern     = regexp.MustCompile(`(?i)(^|_)(id|uuid|guid|code|hash|key)($|_)`)
)

const (
	entityMinDistinctRatio = 0.5
	entityMatchRatio       = 0.8
	entityMaxTokens        = 6
)

// isEntityColumn reports whether a column's sampled values resemble
// real-world entities worth a web lookup.
func isEntityColumn(cp *profile.ColumnProfile, rowCount int) bool {
	if cp.Type != dataset.TypeText || rowCount == 0 {
		return false
	}
	if keyNamePattern.MatchString(cp.Name) {
		return false
	}
	nonNull := rowCount - cp.NullCount
	if nonNull == 0 {
		return false
	}
	if float64(cp.Distinct)/float64(nonNull) < entityMinDistinctRatio {
		return false
	}
	if len(cp.TopValues) == 0 {
		return false
	}
	matched := 0
	for _, tv := range cp.TopValues {
		if entityValuePattern.MatchString(tv.Value) && len(strings.Fields(tv.Value)) <= entityMaxTokens {
			matched++
		}
	}
	return float64(matched)/float64(len(cp.TopValues)) >= entityMatchRatio
}
