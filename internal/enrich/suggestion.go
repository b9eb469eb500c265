package enrich

import (
	"sort"

	"github.com/datasmith-ai/datasmith/internal/gateway"
)

// Provenance ranks how trustworthy a suggestion's origin is. Statistical
// candidates are derived from the data itself, web-search candidates can be
// checked against their sources, and model-authored ones cannot.
type Provenance string

const (
	ProvenanceStatistical Provenance = "internal-statistical"
	ProvenanceWebSearch   Provenance = "web-search"
	ProvenanceAI          Provenance = "ai-generated"
)

var provenancePriority = map[Provenance]int{
	ProvenanceStatistical: 0,
	ProvenanceWebSearch:   1,
	ProvenanceAI:          2,
}

// Suggestion is one proposed dataset improvement. Accepting it materializes
// a new dataset version; discarding it has no effect.
type Suggestion struct {
	ID             string                 `json:"id"`
	Column         string                 `json:"column,omitempty"`
	NewColumn      string                 `json:"new_column,omitempty"`
	Transformation string                 `json:"transformation"`
	Rationale      string                 `json:"rationale"`
	Confidence     float64                `json:"confidence"`
	Provenance     Provenance             `json:"provenance"`
	MatchValue     string                 `json:"match_value,omitempty"`
	Sources        []gateway.SearchResult `json:"sources,omitempty"`
}

// rank orders suggestions by confidence descending; equal confidence is
// broken by provenance priority. The sort is stable so suggestions that tie
// on both keys keep their production order.
func rank(suggestions []Suggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return provenancePriority[suggestions[i].Provenance] < provenancePriority[suggestions[j].Provenance]
	})
}
