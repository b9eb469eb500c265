// Package enrich produces ranked enrichment suggestions for a dataset from
// three tiers of decreasing trust: statistics computed from the schema
// profile, web-search lookups for entity-like columns, and free-form model
// proposals. A failing tier is omitted, never fatal on its own.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"

	"github.com/datasmith-ai/datasmith/internal/common"
	"github.com/datasmith-ai/datasmith/internal/dataset"
	"github.com/datasmith-ai/datasmith/internal/gateway"
	"github.com/datasmith-ai/datasmith/internal/profile"
	"github.com/datasmith-ai/datasmith/internal/prompt"
)

const (
	nullRatioThreshold    = 0.2
	lowCardinalityLimit   = 10
	lowCardinalityMinRows = 20
	resultsPerQuery       = 3
)

// Engine computes enrichment suggestions. searcher may be nil when web
// search is not configured; the web tier is then skipped entirely.
type Engine struct {
	model       gateway.Model
	searcher    gateway.Searcher
	composer    *prompt.Composer
	parallelism int
	queryCap    int
}

// New constructs an Engine. parallelism bounds concurrent search calls and
// queryCap bounds the total number of per-value queries in one request.
func New(model gateway.Model, searcher gateway.Searcher, composer *prompt.Composer, parallelism, queryCap int) *Engine {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Engine{model: model, searcher: searcher, composer: composer, parallelism: parallelism, queryCap: queryCap}
}

// Request carries the inputs of one enrichment call.
type Request struct {
	Dataset        *dataset.Dataset
	Profile        *profile.SchemaProfile
	Goal           string
	AllowWebSearch bool
}

// Suggest returns suggestions ordered by confidence descending with
// provenance breaking ties. The statistical tier never requires a gateway;
// a gateway failure is surfaced only when no tier produced anything.
func (e *Engine) Suggest(ctx context.Context, req Request) ([]Suggestion, error) {
	logger := common.Logger()
	if req.Profile == nil || req.Profile.Empty {
		return nil, fmt.Errorf("enrich: dataset has no schema")
	}

	suggestions := statisticalTier(req.Profile)
	logger.Debug("enrich: statistical tier complete", "suggestions", len(suggestions))

	var lastErr error
	if req.AllowWebSearch && e.searcher != nil {
		webSuggestions, err := e.webTier(ctx, req.Profile)
		if err != nil {
			logger.Warn("enrich: web tier omitted", "error", err)
			lastErr = err
		} else {
			suggestions = append(suggestions, webSuggestions...)
		}
	}

	aiSuggestions, err := e.aiTier(ctx, req, suggestions)
	if err != nil {
		logger.Warn("enrich: ai tier omitted", "error", err)
		lastErr = err
	} else {
		suggestions = append(suggestions, aiSuggestions...)
	}

	if len(suggestions) == 0 && lastErr != nil {
		return nil, lastErr
	}
	rank(suggestions)
	logger.Info("enrich: suggestions produced", "count", len(suggestions))
	return suggestions, nil
}

// statisticalTier derives candidates from the profile alone. Suggestions
// come out in column order, so the tier is deterministic.
func statisticalTier(prof *profile.SchemaProfile) []Suggestion {
	var out []Suggestion
	for _, col := range prof.Columns {
		if col.Distinct == 1 && prof.RowCount > 1 {
			out = append(out, Suggestion{
				ID:             uuid.NewString(),
				Column:         col.Name,
				Transformation: fmt.Sprintf("drop constant column %s", col.Name),
				Rationale:      "every non-null value is identical, so the column carries no information",
				Confidence:     0.95,
				Provenance:     ProvenanceStatistical,
			})
		}
		if col.NullRatio >= nullRatioThreshold {
			transformation := fmt.Sprintf("impute nulls in %s with the most frequent value", col.Name)
			if col.Type == dataset.TypeNumber {
				transformation = fmt.Sprintf("impute nulls in %s with the column mean", col.Name)
			}
			confidence := 0.6 + 0.3*col.NullRatio
			if confidence > 0.9 {
				confidence = 0.9
			}
			out = append(out, Suggestion{
				ID:             uuid.NewString(),
				Column:         col.Name,
				NewColumn:      col.Name + "_imputed",
				Transformation: transformation,
				Rationale:      fmt.Sprintf("%.0f%% of values are null", col.NullRatio*100),
				Confidence:     confidence,
				Provenance:     ProvenanceStatistical,
			})
		}
		if col.Type == dataset.TypeText && col.Distinct > 1 && col.Distinct <= lowCardinalityLimit && prof.RowCount >= lowCardinalityMinRows {
			out = append(out, Suggestion{
				ID:             uuid.NewString(),
				Column:         col.Name,
				Transformation: fmt.Sprintf("encode %s as a categorical variable", col.Name),
				Rationale:      fmt.Sprintf("only %d distinct values across %d rows", col.Distinct, prof.RowCount),
				Confidence:     0.7,
				Provenance:     ProvenanceStatistical,
			})
		}
		if n := col.Numeric; n != nil && n.Count > 1 && n.Std > 0 && n.Max > n.Mean+4*n.Std {
			out = append(out, Suggestion{
				ID:             uuid.NewString(),
				Column:         col.Name,
				NewColumn:      col.Name + "_outlier",
				Transformation: fmt.Sprintf("flag outliers in %s beyond four standard deviations", col.Name),
				Rationale:      fmt.Sprintf("max %.4g is far above mean %.4g", n.Max, n.Mean),
				Confidence:     0.65,
				Provenance:     ProvenanceStatistical,
			})
		}
	}
	return out
}

type webQuery struct {
	column string
	value  string
}

// webTier issues one bounded search per sampled entity value. Queries run
// concurrently up to the parallelism limit, but results are merged by the
// original value order so the output is independent of arrival order.
func (e *Engine) webTier(ctx context.Context, prof *profile.SchemaProfile) ([]Suggestion, error) {
	var queries []webQuery
	for i := range prof.Columns {
		col := &prof.Columns[i]
		if !isEntityColumn(col, prof.RowCount) {
			continue
		}
		for _, tv := range col.TopValues {
			if len(queries) >= e.queryCap {
				break
			}
			queries = append(queries, webQuery{column: col.Name, value: tv.Value})
		}
		if len(queries) >= e.queryCap {
			break
		}
	}
	if len(queries) == 0 {
		return nil, nil
	}

	results := make([][]gateway.SearchResult, len(queries))
	errs := make([]error, len(queries))
	pool := pond.NewPool(e.parallelism)
	for i, q := range queries {
		i, q := i, q
		pool.Submit(func() {
			results[i], errs[i] = e.searcher.Search(ctx, fmt.Sprintf("%s %s", q.column, q.value), resultsPerQuery)
		})
	}
	pool.StopAndWait()

	var out []Suggestion
	failures := 0
	for i, q := range queries {
		if errs[i] != nil || len(results[i]) == 0 {
			if errs[i] != nil {
				failures++
			}
			continue
		}
		top := results[i][0]
		hits := len(results[i])
		if hits > 3 {
			hits = 3
		}
		out = append(out, Suggestion{
			ID:             uuid.NewString(),
			Column:         q.column,
			NewColumn:      q.column + "_web_context",
			Transformation: fmt.Sprintf("attach web context where %s = %q", q.column, q.value),
			Rationale:      fmt.Sprintf("%s: %s", top.Title, top.Snippet),
			Confidence:     0.45 + 0.05*float64(hits),
			Provenance:     ProvenanceWebSearch,
			MatchValue:     q.value,
			Sources:        results[i],
		})
	}
	if len(out) == 0 && failures == len(queries) {
		return nil, errs[0]
	}
	return out, nil
}

// aiTier asks the model for suggestions beyond what the verifiable tiers
// found. It is the lowest-trust tier: fixed baseline confidence decreasing
// with rank, floored at 0.05.
func (e *Engine) aiTier(ctx context.Context, req Request, known []Suggestion) ([]Suggestion, error) {
	knownLines := make([]string, 0, len(known))
	var external []string
	for _, s := range known {
		knownLines = append(knownLines, "- "+s.Transformation)
		for _, src := range s.Sources {
			external = append(external, fmt.Sprintf("%s - %s (%s)", src.Title, src.Snippet, src.URL))
		}
	}
	userText := strings.Join(knownLines, "\n")
	if userText == "" {
		userText = "(none)"
	}
	if goal := strings.TrimSpace(req.Goal); goal != "" {
		userText = "Enrichment goal: " + goal + "\n" + userText
	}
	promptText, err := e.composer.Compose(prompt.Request{
		Purpose:  prompt.PurposeEnrichment,
		Profile:  req.Profile,
		Sample:   prompt.SampleFromDataset(req.Dataset, 5),
		UserText: userText,
		External: external,
	})
	if err != nil {
		return nil, err
	}
	raw, err := e.model.Generate(ctx, promptText, prompt.PurposeEnrichment)
	if err != nil {
		return nil, err
	}
	var out []Suggestion
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		text := strings.TrimSpace(strings.TrimPrefix(line, "- "))
		if text == "" {
			continue
		}
		confidence := 0.35 - 0.05*float64(len(out))
		if confidence < 0.05 {
			confidence = 0.05
		}
		out = append(out, Suggestion{
			ID:             uuid.NewString(),
			Transformation: text,
			Rationale:      "proposed by the model from the schema summary",
			Confidence:     confidence,
			Provenance:     ProvenanceAI,
		})
	}
	return out, nil
}
