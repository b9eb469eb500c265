package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datasmith-ai/datasmith/internal/common"
	"github.com/datasmith-ai/datasmith/internal/gateway"
	"github.com/datasmith-ai/datasmith/internal/profile"
	"github.com/datasmith-ai/datasmith/internal/prompt"
)

// TurnContext is a prior conversation turn included for reference
// resolution ("that column", "the same filter").
type TurnContext struct {
	Question string
	Answer   string
}

// Translator maps a natural-language question onto a validated Plan by way
// of a single model call. The model's output never reaches execution
// without passing schema validation first.
type Translator struct {
	model        gateway.Model
	composer     *prompt.Composer
	historyLimit int
}

// NewTranslator constructs a Translator that includes up to historyLimit
// prior turns in the translation prompt.
func NewTranslator(model gateway.Model, composer *prompt.Composer, historyLimit int) *Translator {
	return &Translator{model: model, composer: composer, historyLimit: historyLimit}
}

const planInstructions = `Translate the user's question about the dataset into a JSON plan.
Respond with JSON only, no commentary, using exactly this shape (omit parts
that do not apply):
{
  "filter": [{"column": "...", "op": "eq|neq|gt|gte|lt|lte|contains", "value": "..."}],
  "aggregate": {"func": "avg|sum|min|max|count", "column": "...", "group_by": ["..."]},
  "sort": {"column": "...", "descending": false},
  "project": ["..."]
}
Use only column names from the schema above.`

type planProposal struct {
	Filter []struct {
		Column string `json:"column"`
		Op     string `json:"op"`
		Value  string `json:"value"`
	} `json:"filter"`
	Aggregate *struct {
		Func    string   `json:"func"`
		Column  string   `json:"column"`
		GroupBy []string `json:"group_by"`
	} `json:"aggregate"`
	Sort *struct {
		Column     string `json:"column"`
		Descending bool   `json:"descending"`
	} `json:"sort"`
	Project []string `json:"project"`
}

// Translate turns question into a Plan validated against prof, or fails
// with an UnresolvableError, PlanValidationError or gateway failure. The
// returned plan is frozen: callers hand it to the executor unchanged.
func (t *Translator) Translate(ctx context.Context, question string, prof *profile.SchemaProfile, history []TurnContext) (*Plan, error) {
	logger := common.Logger()
	if strings.TrimSpace(question) == "" {
		return nil, &UnresolvableError{Fragment: question, Reason: "empty question"}
	}
	if prof == nil || prof.Empty {
		return nil, &UnresolvableError{Fragment: question, Reason: "no dataset schema available"}
	}

	promptText, err := t.composer.Compose(prompt.Request{
		Purpose:  prompt.PurposeChat,
		Profile:  prof,
		UserText: planInstructions + "\n\nQuestion: " + question,
		History:  t.renderHistory(history),
	})
	if err != nil {
		return nil, fmt.Errorf("compose translation prompt: %w", err)
	}
	raw, err := t.model.Generate(ctx, promptText, prompt.PurposeChat)
	if err != nil {
		// There is no fallback path for chat translation; the gateway
		// failure is surfaced directly.
		return nil, err
	}
	payload := extractJSON(raw)
	if payload == "" {
		logger.Warn("query: model returned no JSON plan", "question", question)
		return nil, &UnresolvableError{Fragment: question, Reason: "model returned no structured plan"}
	}
	var proposal planProposal
	if err := json.Unmarshal([]byte(payload), &proposal); err != nil {
		logger.Warn("query: plan proposal unmarshal failed", "error", err)
		return nil, &UnresolvableError{Fragment: question, Reason: "model plan was not valid JSON"}
	}
	plan, err := t.resolve(&proposal, prof)
	if err != nil {
		return nil, err
	}
	plan.DeclaredOrder = declaredOrder(payload)
	if err := Validate(plan, prof); err != nil {
		logger.Warn("query: plan rejected by validation", "question", question, "error", err)
		return nil, err
	}
	logger.Info("query: question translated", "question", question, "steps", len(plan.Steps()))
	return plan, nil
}

func (t *Translator) renderHistory(history []TurnContext) []string {
	if len(history) > t.historyLimit {
		history = history[len(history)-t.historyLimit:]
	}
	out := make([]string, 0, len(history))
	for _, turn := range history {
		out = append(out, fmt.Sprintf("Q: %s\nA: %s", turn.Question, turn.Answer))
	}
	return out
}

// resolve maps every column reference of the proposal through ResolveColumn
// so near-miss names are corrected deterministically before validation.
func (t *Translator) resolve(proposal *planProposal, prof *profile.SchemaProfile) (*Plan, error) {
	plan := &Plan{}
	for _, f := range proposal.Filter {
		col, err := ResolveColumn(f.Column, prof)
		if err != nil {
			return nil, err
		}
		plan.Filters = append(plan.Filters, FilterStep{Column: col, Op: CompareOp(strings.ToLower(f.Op)), Value: f.Value})
	}
	if a := proposal.Aggregate; a != nil {
		step := &AggregateStep{Func: AggregateFunc(strings.ToLower(a.Func))}
		if a.Column != "" {
			col, err := ResolveColumn(a.Column, prof)
			if err != nil {
				return nil, err
			}
			step.Column = col
		}
		for _, g := range a.GroupBy {
			col, err := ResolveColumn(g, prof)
			if err != nil {
				return nil, err
			}
			step.GroupBy = append(step.GroupBy, col)
		}
		plan.Aggregate = step
	}
	if s := proposal.Sort; s != nil && s.Column != "" {
		col := s.Column
		// Sort may target an aggregate output column that does not exist in
		// the source schema; leave those untouched for Validate.
		if _, ok := prof.Column(col); !ok {
			if plan.Aggregate == nil || col != plan.Aggregate.OutputColumn() {
				resolved, err := ResolveColumn(col, prof)
				if err == nil {
					col = resolved
				}
			}
		}
		plan.Sort = &SortStep{Column: col, Descending: s.Descending}
	}
	if len(proposal.Project) > 0 {
		step := &ProjectStep{}
		for _, p := range proposal.Project {
			col := p
			if _, ok := prof.Column(col); !ok {
				if plan.Aggregate == nil || col != plan.Aggregate.OutputColumn() {
					resolved, err := ResolveColumn(col, prof)
					if err == nil {
						col = resolved
					}
				}
			}
			step.Columns = append(step.Columns, col)
		}
		plan.Project = step
	}
	return plan, nil
}

// extractJSON pulls the first JSON object out of a model response,
// tolerating code fences and surrounding prose.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "```"); idx >= 0 {
		raw = raw[idx+3:]
		raw = strings.TrimPrefix(raw, "json")
		if end := strings.Index(raw, "```"); end >= 0 {
			raw = raw[:end]
		}
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// declaredOrder recovers the order the steps appeared in the model's JSON,
// used by the executor to report reordering.
func declaredOrder(payload string) []StepKind {
	type hit struct {
		kind StepKind
		pos  int
	}
	var hits []hit
	for kind, key := range map[StepKind]string{
		StepFilter:    `"filter"`,
		StepAggregate: `"aggregate"`,
		StepSort:      `"sort"`,
		StepProject:   `"project"`,
	} {
		if pos := strings.Index(payload, key); pos >= 0 {
			hits = append(hits, hit{kind: kind, pos: pos})
		}
	}
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	out := make([]StepKind, len(hits))
	for i, h := range hits {
		out[i] = h.kind
	}
	return out
}
