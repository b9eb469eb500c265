package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/datasmith-ai/datasmith/internal/dataset"
	"github.com/datasmith-ai/datasmith/internal/engine"
	"github.com/datasmith-ai/datasmith/internal/enrich"
	"github.com/datasmith-ai/datasmith/internal/gateway"
	"github.com/datasmith-ai/datasmith/internal/profile"
	"github.com/datasmith-ai/datasmith/internal/prompt"
	"github.com/datasmith-ai/datasmith/internal/query"
)

// scriptedModel replays canned responses in order. The session makes two
// model calls per successful question: the plan translation and the answer
// phrasing.
type scriptedModel struct {
	responses []string
	err       error
}

func (m *scriptedModel) Generate(_ context.Context, _ string, _ prompt.Purpose) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	out := m.responses[0]
	m.responses = m.responses[1:]
	return out, nil
}

func (m *scriptedModel) Name() string { return "scripted" }

func newTestSession(t *testing.T, model gateway.Model) (*Session, *dataset.Dataset) {
	t.Helper()
	ds, err := dataset.New("sales", []dataset.Column{
		{Name: "country", Type: dataset.TypeText},
		{Name: "price", Type: dataset.TypeNumber},
	}, [][]any{
		{"US", float64(10)},
		{"DE", float64(20)},
		{"US", float64(30)},
	})
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	composer := prompt.NewComposer(12000, 5)
	profiles := profile.NewCache(time.Minute)
	t.Cleanup(profiles.Stop)
	sess := New(Options{
		Profiles:   profiles,
		Translator: query.NewTranslator(model, composer, 5),
		Executor:   engine.New(1000),
		Enricher:   enrich.New(model, nil, composer, 2, 4),
		Model:      model,
		Composer:   composer,
	})
	return sess, ds
}

func TestSessionStartsEmpty(t *testing.T) {
	sess, _ := newTestSession(t, &scriptedModel{})
	if sess.State() != StateEmpty {
		t.Fatalf("state = %s, want empty", sess.State())
	}
	if _, err := sess.Ask(context.Background(), "anything"); err == nil {
		t.Fatal("asking without a dataset must fail")
	}
}

func TestAskTranslatesExecutesAndPhrases(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"filter": [{"column": "country", "op": "eq", "value": "US"}], "aggregate": {"func": "avg", "column": "price"}}`,
		"The average price for US rows is 20.",
	}}
	sess, ds := newTestSession(t, model)
	sess.Reset(ds)

	turn, err := sess.Ask(context.Background(), "average price in the US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turn.Plan == nil || turn.Plan.Aggregate == nil {
		t.Fatalf("turn plan = %+v, want the translated aggregate", turn.Plan)
	}
	if turn.Answer != "The average price for US rows is 20." {
		t.Fatalf("answer = %q", turn.Answer)
	}
	if !strings.Contains(turn.ResultSummary, "filtered to 2 rows where country = 'US', then averaged price") {
		t.Fatalf("result summary = %q", turn.ResultSummary)
	}
	if turn.Seq != 1 || turn.DatasetVersion != ds.Version() {
		t.Fatalf("turn metadata = seq %d version %q", turn.Seq, turn.DatasetVersion)
	}
	if sess.State() != StateActive {
		t.Fatalf("state = %s, want active", sess.State())
	}
}

func TestAskRecordsFailedTranslationAsTurn(t *testing.T) {
	model := &scriptedModel{responses: []string{"I have no idea."}}
	sess, ds := newTestSession(t, model)
	sess.Reset(ds)

	turn, err := sess.Ask(context.Background(), "something unanswerable")
	if err == nil {
		t.Fatal("expected translation error")
	}
	if turn == nil || turn.Plan != nil {
		t.Fatalf("failed translation must record a turn with a nil plan, got %+v", turn)
	}
	if turns := sess.Turns(); len(turns) != 1 {
		t.Fatalf("history has %d turns, want 1", len(turns))
	}
}

func TestAskFallsBackToSummaryWhenPhrasingFails(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"aggregate": {"func": "count"}}`,
		// Script exhausted: the phrasing call fails.
	}}
	sess, ds := newTestSession(t, model)
	sess.Reset(ds)

	turn, err := sess.Ask(context.Background(), "how many rows")
	if err != nil {
		t.Fatalf("phrasing failure must not fail the turn, got %v", err)
	}
	if turn.Answer != turn.ResultSummary {
		t.Fatalf("answer = %q, want the deterministic summary %q", turn.Answer, turn.ResultSummary)
	}
}

func TestAskSurfacesGatewayFailure(t *testing.T) {
	model := &scriptedModel{err: &gateway.UnavailableError{Gateway: "ai", Err: errors.New("timeout")}}
	sess, ds := newTestSession(t, model)
	sess.Reset(ds)
	_, err := sess.Ask(context.Background(), "q")
	if !gateway.IsUnavailable(err) {
		t.Fatalf("expected gateway failure, got %v", err)
	}
}

func TestResetClearsHistory(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"aggregate": {"func": "count"}}`,
		"There are 3 rows.",
	}}
	sess, ds := newTestSession(t, model)
	sess.Reset(ds)
	if _, err := sess.Ask(context.Background(), "how many rows"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	replacement, err := dataset.New("other", []dataset.Column{{Name: "x", Type: dataset.TypeText}}, [][]any{{"a"}})
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	sess.Reset(replacement)
	if turns := sess.Turns(); len(turns) != 0 {
		t.Fatalf("reset must clear history, %d turns remain", len(turns))
	}
	if sess.Dataset().Version() != replacement.Version() {
		t.Fatal("reset must install the new dataset")
	}
}

func TestAdvanceRequiresDirectDescent(t *testing.T) {
	sess, ds := newTestSession(t, &scriptedModel{})
	sess.Reset(ds)

	unrelated, err := dataset.New("other", []dataset.Column{{Name: "x", Type: dataset.TypeText}}, [][]any{{"a"}})
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	if err := sess.Advance(unrelated); err == nil {
		t.Fatal("advancing to an unrelated version must fail")
	}

	child, err := ds.WithColumn(dataset.Column{Name: "note", Type: dataset.TypeText}, []any{nil, nil, nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sess.Advance(child); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Dataset().Version() != child.Version() {
		t.Fatal("advance must install the child version")
	}
}

func TestAdvanceKeepsHistory(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"aggregate": {"func": "count"}}`,
		"There are 3 rows.",
	}}
	sess, ds := newTestSession(t, model)
	sess.Reset(ds)
	if _, err := sess.Ask(context.Background(), "how many rows"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	child, err := ds.WithColumn(dataset.Column{Name: "note", Type: dataset.TypeText}, []any{nil, nil, nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sess.Advance(child); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	turns := sess.Turns()
	if len(turns) != 1 {
		t.Fatalf("history has %d turns, want 1", len(turns))
	}
	if turns[0].DatasetVersion != ds.Version() {
		t.Fatalf("turn version = %q, want the version it ran against %q", turns[0].DatasetVersion, ds.Version())
	}
}

func TestAcceptAdvancesLineage(t *testing.T) {
	sess, _ := newTestSession(t, &scriptedModel{})
	ds, err := dataset.New("t", []dataset.Column{{Name: "v", Type: dataset.TypeNumber}},
		[][]any{{float64(10)}, {nil}, {float64(30)}})
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	sess.Reset(ds)

	next, err := sess.Accept(enrich.Suggestion{Column: "v", NewColumn: "v_imputed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Parent() != ds.Version() {
		t.Fatal("accepted enrichment must descend from the prior version")
	}
	if sess.Dataset().Version() != next.Version() {
		t.Fatal("session must now point at the enriched version")
	}
	idx := next.ColumnIndex("v_imputed")
	if got := next.Row(1)[idx].(float64); got != 20 {
		t.Fatalf("imputed value = %v, want 20", got)
	}
}

func TestInsightsUsesModel(t *testing.T) {
	model := &scriptedModel{responses: []string{"Two countries dominate the data."}}
	sess, ds := newTestSession(t, model)
	sess.Reset(ds)
	got, err := sess.Insights(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Two countries dominate the data." {
		t.Fatalf("insights = %q", got)
	}
}
