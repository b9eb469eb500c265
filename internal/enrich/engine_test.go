package enrich

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/datasmith-ai/datasmith/internal/dataset"
	"github.com/datasmith-ai/datasmith/internal/gateway"
	"github.com/datasmith-ai/datasmith/internal/profile"
	"github.com/datasmith-ai/datasmith/internal/prompt"
)

type stubModel struct {
	response string
	err      error
}

func (m *stubModel) Generate(context.Context, string, prompt.Purpose) (string, error) {
	return m.response, m.err
}

func (m *stubModel) Name() string { return "stub" }

type stubSearcher struct {
	err     error
	delayed bool
	calls   int
}

func (s *stubSearcher) Search(_ context.Context, query string, maxResults int) ([]gateway.SearchResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.delayed && s.calls%2 == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	return []gateway.SearchResult{{
		Title:       "Result for " + query,
		Snippet:     "snippet",
		URL:         "https://example.com/" + strings.ReplaceAll(query, " ", "-"),
		RetrievedAt: time.Now(),
	}}, nil
}

func (s *stubSearcher) Name() string { return "stub" }

// companyDataset has an entity-like text column and a numeric column with
// enough nulls to trigger an imputation suggestion.
func companyDataset(t *testing.T) (*dataset.Dataset, *profile.SchemaProfile) {
	t.Helper()
	names := []string{
		"Acme Corp", "Globex", "Initech", "Umbrella Group",
		"Stark Industries", "Wayne Enterprises", "Hooli", "Vehement Capital",
		"Acme Corp", "Globex",
	}
	rows := make([][]any, len(names))
	for i := range rows {
		var revenue any
		if i%3 != 0 {
			revenue = float64(100 + i)
		}
		rows[i] = []any{names[i], revenue}
	}
	ds, err := dataset.New("companies", []dataset.Column{
		{Name: "company", Type: dataset.TypeText},
		{Name: "revenue", Type: dataset.TypeNumber},
	}, rows)
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	return ds, profile.Build(ds)
}

func TestSuggestOrdersByConfidenceThenProvenance(t *testing.T) {
	ds, prof := companyDataset(t)
	model := &stubModel{response: "- derive a revenue band column\n- join an industry classification"}
	e := New(model, &stubSearcher{}, prompt.NewComposer(12000, 5), 2, 4)
	suggestions, err := e.Suggest(context.Background(), Request{Dataset: ds, Profile: prof, AllowWebSearch: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatal("expected suggestions")
	}
	if !sort.SliceIsSorted(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return provenancePriority[suggestions[i].Provenance] < provenancePriority[suggestions[j].Provenance]
	}) {
		t.Fatalf("suggestions not ordered by confidence then provenance: %+v", suggestions)
	}
	var provenances []Provenance
	for _, s := range suggestions {
		provenances = append(provenances, s.Provenance)
	}
	for _, want := range []Provenance{ProvenanceStatistical, ProvenanceWebSearch, ProvenanceAI} {
		found := false
		for _, p := range provenances {
			if p == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("tier %s produced nothing: %v", want, provenances)
		}
	}
}

func TestSuggestOmitsFailingWebTier(t *testing.T) {
	ds, prof := companyDataset(t)
	searcher := &stubSearcher{err: &gateway.UnavailableError{Gateway: "search", Err: errors.New("timeout")}}
	model := &stubModel{response: "- derive a revenue band column"}
	e := New(model, searcher, prompt.NewComposer(12000, 5), 2, 4)
	suggestions, err := e.Suggest(context.Background(), Request{Dataset: ds, Profile: prof, AllowWebSearch: true})
	if err != nil {
		t.Fatalf("partial failure must not abort, got %v", err)
	}
	for _, s := range suggestions {
		if s.Provenance == ProvenanceWebSearch {
			t.Fatalf("failing web tier must be omitted, got %+v", s)
		}
	}
	if len(suggestions) == 0 {
		t.Fatal("surviving tiers should still produce suggestions")
	}
}

func TestSuggestOmitsFailingAITier(t *testing.T) {
	ds, prof := companyDataset(t)
	model := &stubModel{err: &gateway.UnavailableError{Gateway: "ai", Err: errors.New("timeout")}}
	e := New(model, nil, prompt.NewComposer(12000, 5), 2, 4)
	suggestions, err := e.Suggest(context.Background(), Request{Dataset: ds, Profile: prof})
	if err != nil {
		t.Fatalf("statistical tier alone should suffice, got %v", err)
	}
	for _, s := range suggestions {
		if s.Provenance != ProvenanceStatistical {
			t.Fatalf("only statistical suggestions expected, got %+v", s)
		}
	}
}

func TestSuggestSurfacesErrorOnlyWhenNothingProduced(t *testing.T) {
	// One text column with no statistical findings, model down, search off.
	names := []string{"Alpha One", "Beta Two", "Gamma Three", "Delta Four"}
	rows := make([][]any, 4)
	for i := range rows {
		rows[i] = []any{names[i]}
	}
	ds, err := dataset.New("t", []dataset.Column{{Name: "name", Type: dataset.TypeText}}, rows)
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	prof := profile.Build(ds)
	model := &stubModel{err: &gateway.UnavailableError{Gateway: "ai", Err: errors.New("down")}}
	e := New(model, nil, prompt.NewComposer(12000, 5), 2, 4)
	_, err = e.Suggest(context.Background(), Request{Dataset: ds, Profile: prof})
	if !gateway.IsUnavailable(err) {
		t.Fatalf("expected the gateway failure to surface when no tier produced output, got %v", err)
	}
}

func TestWebTierRespectsQueryCapAndIsDeterministic(t *testing.T) {
	_, prof := companyDataset(t)
	model := &stubModel{response: ""}
	run := func() []Suggestion {
		searcher := &stubSearcher{delayed: true}
		e := New(model, searcher, prompt.NewComposer(12000, 5), 3, 3)
		out, err := e.webTier(context.Background(), prof)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if searcher.calls > 3 {
			t.Fatalf("query cap exceeded: %d calls", searcher.calls)
		}
		return out
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("runs differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].MatchValue != b[i].MatchValue {
			t.Fatalf("merge order differs across runs: %q vs %q", a[i].MatchValue, b[i].MatchValue)
		}
	}
}

func TestWebTierSkipsNonEntityColumns(t *testing.T) {
	rows := make([][]any, 30)
	for i := range rows {
		rows[i] = []any{fmt.Sprintf("u-%04d", i), float64(i)}
	}
	ds, err := dataset.New("t", []dataset.Column{
		{Name: "user_id", Type: dataset.TypeText},
		{Name: "v", Type: dataset.TypeNumber},
	}, rows)
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	searcher := &stubSearcher{}
	e := New(&stubModel{}, searcher, prompt.NewComposer(12000, 5), 2, 8)
	out, err := e.webTier(context.Background(), profile.Build(ds))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 || searcher.calls != 0 {
		t.Fatalf("identifier-like column must not be searched, got %d suggestions from %d calls", len(out), searcher.calls)
	}
}

func TestAITierConfidenceDecreasesWithRank(t *testing.T) {
	ds, prof := companyDataset(t)
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = fmt.Sprintf("- idea number %d", i)
	}
	model := &stubModel{response: strings.Join(lines, "\n")}
	e := New(model, nil, prompt.NewComposer(12000, 5), 2, 4)
	out, err := e.aiTier(context.Background(), Request{Dataset: ds, Profile: prof}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 10 {
		t.Fatalf("parsed %d suggestions, want 10", len(out))
	}
	if out[0].Confidence != 0.35 {
		t.Fatalf("first confidence = %v, want 0.35", out[0].Confidence)
	}
	for i := 1; i < len(out); i++ {
		if out[i].Confidence > out[i-1].Confidence {
			t.Fatalf("confidence must not increase with rank: %v then %v", out[i-1].Confidence, out[i].Confidence)
		}
		if out[i].Confidence < 0.05 {
			t.Fatalf("confidence floor violated: %v", out[i].Confidence)
		}
	}
	if out[len(out)-1].Provenance != ProvenanceAI {
		t.Fatalf("provenance = %s, want %s", out[len(out)-1].Provenance, ProvenanceAI)
	}
}

func TestAITierIgnoresProseLines(t *testing.T) {
	ds, prof := companyDataset(t)
	model := &stubModel{response: "Here are some ideas:\n- real suggestion\nClosing remarks."}
	e := New(model, nil, prompt.NewComposer(12000, 5), 2, 4)
	out, err := e.aiTier(context.Background(), Request{Dataset: ds, Profile: prof}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Transformation != "real suggestion" {
		t.Fatalf("parsed %+v, want the single bullet", out)
	}
}

func TestSuggestRejectsEmptySchema(t *testing.T) {
	e := New(&stubModel{}, nil, prompt.NewComposer(12000, 5), 2, 4)
	if _, err := e.Suggest(context.Background(), Request{Profile: &profile.SchemaProfile{Empty: true}}); err == nil {
		t.Fatal("expected error for empty schema")
	}
}
