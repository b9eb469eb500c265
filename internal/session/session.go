// Package session owns the conversational state for one dataset lineage:
// the current dataset version, its cached profiles, and the ordered history
// of question/answer turns. One request is processed at a time.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/datasmith-ai/datasmith/internal/common"
	"github.com/datasmith-ai/datasmith/internal/dataset"
	"github.com/datasmith-ai/datasmith/internal/engine"
	"github.com/datasmith-ai/datasmith/internal/enrich"
	"github.com/datasmith-ai/datasmith/internal/gateway"
	"github.com/datasmith-ai/datasmith/internal/profile"
	"github.com/datasmith-ai/datasmith/internal/prompt"
	"github.com/datasmith-ai/datasmith/internal/query"
)

// State is the lifecycle of a session: Empty until a dataset is loaded,
// Active while turns accumulate, back to Empty when a new dataset replaces
// the lineage.
type State string

const (
	StateEmpty  State = "empty"
	StateActive State = "active"
)

// Turn is one question/answer exchange. The plan is nil when translation
// failed; the dataset version records which snapshot the turn ran against,
// kept for auditability even after the lineage advances.
type Turn struct {
	Seq            int         `json:"seq"`
	Question       string      `json:"question"`
	Plan           *query.Plan `json:"plan,omitempty"`
	ResultSummary  string      `json:"result_summary,omitempty"`
	Answer         string      `json:"answer,omitempty"`
	DatasetVersion string      `json:"dataset_version"`
	At             time.Time   `json:"at"`
}

// Session wires the translator, executor, enrichment engine and gateways
// around one dataset lineage.
type Session struct {
	mu sync.Mutex

	ds         *dataset.Dataset
	profiles   *profile.Cache
	translator *query.Translator
	executor   *engine.Executor
	enricher   *enrich.Engine
	model      gateway.Model
	composer   *prompt.Composer

	sampleSize   int
	historyLimit int
	turns        []Turn
	now          func() time.Time
}

// Options bundles the collaborators a Session needs.
type Options struct {
	Profiles     *profile.Cache
	Translator   *query.Translator
	Executor     *engine.Executor
	Enricher     *enrich.Engine
	Model        gateway.Model
	Composer     *prompt.Composer
	SampleSize   int
	HistoryLimit int
}

// New constructs an empty Session.
func New(opts Options) *Session {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 5
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = 20
	}
	return &Session{
		profiles:     opts.Profiles,
		translator:   opts.Translator,
		executor:     opts.Executor,
		enricher:     opts.Enricher,
		model:        opts.Model,
		composer:     opts.Composer,
		sampleSize:   opts.SampleSize,
		historyLimit: opts.HistoryLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// State reports whether a dataset is loaded.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return StateEmpty
	}
	return StateActive
}

// Reset replaces the dataset lineage. All prior turns are destroyed with
// the session they belonged to.
func (s *Session) Reset(ds *dataset.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ds = ds
	s.turns = nil
	common.Logger().Info("session: dataset loaded", "version", ds.Version(), "rows", ds.RowCount())
}

// Advance moves the session to a new version of the same lineage, after an
// accepted enrichment. Turns are kept: they reference the versions they ran
// against. The new version must descend directly from the current one.
func (s *Session) Advance(ds *dataset.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return fmt.Errorf("session: no dataset loaded")
	}
	if ds.Parent() != s.ds.Version() {
		return fmt.Errorf("session: version %s does not descend from %s", ds.Version(), s.ds.Version())
	}
	s.ds = ds
	common.Logger().Info("session: lineage advanced", "version", ds.Version(), "parent", ds.Parent())
	return nil
}

// Dataset returns the current dataset version, or nil when Empty.
func (s *Session) Dataset() *dataset.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ds
}

// Profile returns the schema profile of the current dataset version.
func (s *Session) Profile() (*profile.SchemaProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return nil, fmt.Errorf("session: no dataset loaded")
	}
	return s.profiles.For(s.ds), nil
}

// Turns returns a copy of the conversation history.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Ask processes one chat question: translate, execute, then phrase the
// answer from the executor's description. A failed translation is still
// recorded as a turn with a nil plan, and the error is returned alongside.
func (s *Session) Ask(ctx context.Context, question string) (*Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger := common.Logger()
	if s.ds == nil {
		return nil, fmt.Errorf("session: no dataset loaded")
	}
	prof := s.profiles.For(s.ds)
	history := make([]query.TurnContext, 0, len(s.turns))
	for _, t := range s.turns {
		if t.Answer != "" {
			history = append(history, query.TurnContext{Question: t.Question, Answer: t.Answer})
		}
	}

	plan, err := s.translator.Translate(ctx, question, prof, history)
	if err != nil {
		turn := s.appendTurn(Turn{
			Question: question,
			Answer:   fmt.Sprintf("I could not turn that question into a data operation: %v", err),
		})
		logger.Warn("session: translation failed", "question", question, "error", err)
		return turn, err
	}

	result, err := s.executor.Execute(plan, s.ds)
	if err != nil {
		turn := s.appendTurn(Turn{Question: question, Plan: plan})
		return turn, err
	}
	summary := result.Description
	if result.Warning != nil {
		summary += "; warning: " + result.Warning.Error()
	}

	answer, err := s.phraseAnswer(ctx, question, prof, result, summary)
	if err != nil {
		// The computation itself succeeded; keep the deterministic summary
		// as the answer when the phrasing call fails.
		logger.Warn("session: answer phrasing failed, using executor summary", "error", err)
		answer = summary
	}
	turn := s.appendTurn(Turn{
		Question:      question,
		Plan:          plan,
		ResultSummary: summary,
		Answer:        answer,
	})
	return turn, nil
}

func (s *Session) phraseAnswer(ctx context.Context, question string, prof *profile.SchemaProfile, result *engine.Result, summary string) (string, error) {
	userText := fmt.Sprintf("Computed result: %s\n%s\nAnswer the question in one or two sentences, citing only the computed numbers above.\nQuestion: %s",
		summary, renderResult(result), question)
	promptText, err := s.composer.Compose(prompt.Request{
		Purpose:  prompt.PurposeChat,
		Profile:  prof,
		UserText: userText,
	})
	if err != nil {
		return "", err
	}
	return s.model.Generate(ctx, promptText, prompt.PurposeChat)
}

const answerPreviewRows = 10

func renderResult(result *engine.Result) string {
	if scalar, ok := result.Scalar(); ok {
		return fmt.Sprintf("%s = %v", result.Columns[0], scalar)
	}
	var b strings.Builder
	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteString("\n")
	for i, row := range result.Rows {
		if i == answerPreviewRows {
			fmt.Fprintf(&b, "... (%d more rows)\n", len(result.Rows)-answerPreviewRows)
			break
		}
		cells := make([]string, len(row))
		for j, cell := range row {
			if cell == nil {
				cells[j] = "null"
			} else {
				cells[j] = fmt.Sprint(cell)
			}
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	return b.String()
}

func (s *Session) appendTurn(turn Turn) *Turn {
	turn.Seq = len(s.turns) + 1
	turn.DatasetVersion = s.ds.Version()
	turn.At = s.now()
	s.turns = append(s.turns, turn)
	return &s.turns[len(s.turns)-1]
}

// Insights produces the dataset-level narrative overview (the "AI
// Analysis" operation): a purpose=analysis prompt grounded in the schema
// profile and a row sample.
func (s *Session) Insights(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return "", fmt.Errorf("session: no dataset loaded")
	}
	prof := s.profiles.For(s.ds)
	promptText, err := s.composer.Compose(prompt.Request{
		Purpose:  prompt.PurposeAnalysis,
		Profile:  prof,
		Sample:   prompt.SampleFromDataset(s.ds, s.sampleSize),
		UserText: "",
	})
	if err != nil {
		return "", err
	}
	return s.model.Generate(ctx, promptText, prompt.PurposeAnalysis)
}

// Enrich runs the enrichment engine against the current dataset version.
func (s *Session) Enrich(ctx context.Context, goal string, allowWebSearch bool) ([]enrich.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return nil, fmt.Errorf("session: no dataset loaded")
	}
	prof := s.profiles.For(s.ds)
	return s.enricher.Suggest(ctx, enrich.Request{
		Dataset:        s.ds,
		Profile:        prof,
		Goal:           goal,
		AllowWebSearch: allowWebSearch,
	})
}

// Accept materializes a suggestion and advances the lineage to the new
// dataset version. Prior turns keep their original version references.
func (s *Session) Accept(suggestion enrich.Suggestion) (*dataset.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return nil, fmt.Errorf("session: no dataset loaded")
	}
	prof := s.profiles.For(s.ds)
	next, err := enrich.Apply(s.ds, prof, suggestion)
	if err != nil {
		return nil, err
	}
	s.ds = next
	common.Logger().Info("session: enrichment accepted", "version", next.Version(), "parent", next.Parent())
	return next, nil
}
