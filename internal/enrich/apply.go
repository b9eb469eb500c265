package enrich

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datasmith-ai/datasmith/internal/dataset"
	"github.com/datasmith-ai/datasmith/internal/profile"
)

// Apply materializes an accepted suggestion as a new dataset version. Only
// suggestions that define a concrete column transformation can be applied;
// advisory ones (drop recommendations, free-form model proposals) are
// rejected so the caller can present them as guidance instead.
func Apply(ds *dataset.Dataset, prof *profile.SchemaProfile, s Suggestion) (*dataset.Dataset, error) {
	switch {
	case strings.HasSuffix(s.NewColumn, "_imputed"):
		return applyImputation(ds, prof, s)
	case strings.HasSuffix(s.NewColumn, "_web_context"):
		return applyWebContext(ds, s)
	case strings.HasSuffix(s.NewColumn, "_outlier"):
		return applyOutlierFlag(ds, prof, s)
	case strings.HasPrefix(s.Transformation, "encode "):
		return applyCategoricalEncoding(ds, s)
	default:
		return nil, fmt.Errorf("suggestion %q is advisory and cannot be applied automatically", s.Transformation)
	}
}

func applyImputation(ds *dataset.Dataset, prof *profile.SchemaProfile, s Suggestion) (*dataset.Dataset, error) {
	idx := ds.ColumnIndex(s.Column)
	if idx < 0 {
		return nil, &dataset.SchemaViolationError{Field: s.Column, Reason: "column not found"}
	}
	col, _ := ds.Column(s.Column)
	cp, ok := prof.Column(s.Column)
	if !ok {
		return nil, &dataset.SchemaViolationError{Field: s.Column, Reason: "column missing from profile"}
	}

	var fill any
	if col.Type == dataset.TypeNumber {
		if cp.Numeric == nil || cp.Numeric.Count == 0 {
			return nil, fmt.Errorf("cannot impute %s: no non-null values", s.Column)
		}
		fill = cp.Numeric.Mean
	} else {
		if len(cp.TopValues) == 0 {
			return nil, fmt.Errorf("cannot impute %s: no non-null values", s.Column)
		}
		fill = cp.TopValues[0].Value
	}
	values := make([]any, ds.RowCount())
	for i := 0; i < ds.RowCount(); i++ {
		if cell := ds.Row(i)[idx]; cell != nil {
			values[i] = cell
		} else {
			values[i] = fill
		}
	}
	return ds.WithColumn(dataset.Column{Name: s.NewColumn, Type: col.Type}, values)
}

func applyWebContext(ds *dataset.Dataset, s Suggestion) (*dataset.Dataset, error) {
	idx := ds.ColumnIndex(s.Column)
	if idx < 0 {
		return nil, &dataset.SchemaViolationError{Field: s.Column, Reason: "column not found"}
	}
	if len(s.Sources) == 0 {
		return nil, fmt.Errorf("suggestion for %s carries no search results", s.Column)
	}
	context := fmt.Sprintf("%s: %s (%s)", s.Sources[0].Title, s.Sources[0].Snippet, s.Sources[0].URL)
	values := make([]any, ds.RowCount())
	for i := 0; i < ds.RowCount(); i++ {
		cell := ds.Row(i)[idx]
		if str, ok := cell.(string); ok && str == s.MatchValue {
			values[i] = context
		}
	}
	return ds.WithColumn(dataset.Column{Name: s.NewColumn, Type: dataset.TypeText}, values)
}

func applyOutlierFlag(ds *dataset.Dataset, prof *profile.SchemaProfile, s Suggestion) (*dataset.Dataset, error) {
	idx := ds.ColumnIndex(s.Column)
	if idx < 0 {
		return nil, &dataset.SchemaViolationError{Field: s.Column, Reason: "column not found"}
	}
	cp, ok := prof.Column(s.Column)
	if !ok || cp.Numeric == nil {
		return nil, fmt.Errorf("cannot flag outliers in non-numeric column %s", s.Column)
	}
	threshold := cp.Numeric.Mean + 4*cp.Numeric.Std
	values := make([]any, ds.RowCount())
	for i := 0; i < ds.RowCount(); i++ {
		if cell := ds.Row(i)[idx]; cell != nil {
			values[i] = cell.(float64) > threshold
		}
	}
	return ds.WithColumn(dataset.Column{Name: s.NewColumn, Type: dataset.TypeBool}, values)
}

// applyCategoricalEncoding assigns each distinct value its alphabetical
// rank, which keeps the encoding stable across runs.
func applyCategoricalEncoding(ds *dataset.Dataset, s Suggestion) (*dataset.Dataset, error) {
	idx := ds.ColumnIndex(s.Column)
	if idx < 0 {
		return nil, &dataset.SchemaViolationError{Field: s.Column, Reason: "column not found"}
	}
	distinct := make(map[string]struct{})
	for i := 0; i < ds.RowCount(); i++ {
		if str, ok := ds.Row(i)[idx].(string); ok {
			distinct[str] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(distinct))
	for v := range distinct {
		ordered = append(ordered, v)
	}
	sort.Strings(ordered)
	codes := make(map[string]float64, len(ordered))
	for i, v := range ordered {
		codes[v] = float64(i)
	}
	values := make([]any, ds.RowCount())
	for i := 0; i < ds.RowCount(); i++ {
		if str, ok := ds.Row(i)[idx].(string); ok {
			values[i] = codes[str]
		}
	}
	return ds.WithColumn(dataset.Column{Name: s.Column + "_code", Type: dataset.TypeNumber}, values)
}
