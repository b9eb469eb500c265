package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/datasmith-ai/datasmith/internal/dataset"
	"github.com/datasmith-ai/datasmith/internal/profile"
)

// StepKind names one class of plan step. Execution always proceeds in the
// canonical order filter, aggregate, sort, project regardless of how the
// steps were declared.
type StepKind string

const (
	StepFilter    StepKind = "filter"
	StepAggregate StepKind = "aggregate"
	StepSort      StepKind = "sort"
	StepProject   StepKind = "project"
)

// CanonicalOrder is the fixed execution order of plan steps.
var CanonicalOrder = []StepKind{StepFilter, StepAggregate, StepSort, StepProject}

// CompareOp is a filter comparison operator.
type CompareOp string

const (
	OpEq       CompareOp = "eq"
	OpNeq      CompareOp = "neq"
	OpGt       CompareOp = "gt"
	OpGte      CompareOp = "gte"
	OpLt       CompareOp = "lt"
	OpLte      CompareOp = "lte"
	OpContains CompareOp = "contains"
)

func validOp(op CompareOp) bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpContains:
		return true
	}
	return false
}

// AggregateFunc is a supported aggregation.
type AggregateFunc string

const (
	AggAvg   AggregateFunc = "avg"
	AggSum   AggregateFunc = "sum"
	AggMin   AggregateFunc = "min"
	AggMax   AggregateFunc = "max"
	AggCount AggregateFunc = "count"
)

func validAgg(fn AggregateFunc) bool {
	switch fn {
	case AggAvg, AggSum, AggMin, AggMax, AggCount:
		return true
	}
	return false
}

// FilterStep keeps rows whose column compares true against the literal
// value. The literal is carried as text; the executor coerces it to the
// column type.
type FilterStep struct {
	Column string    `json:"column"`
	Op     CompareOp `json:"op"`
	Value  string    `json:"value"`
}

// AggregateStep reduces the table, optionally per group key.
type AggregateStep struct {
	Func    AggregateFunc `json:"func"`
	Column  string        `json:"column"`
	GroupBy []string      `json:"group_by,omitempty"`
}

// OutputColumn names the column the aggregate produces.
func (a *AggregateStep) OutputColumn() string {
	if a.Func == AggCount && a.Column == "" {
		return "count"
	}
	return fmt.Sprintf("%s_%s", a.Func, a.Column)
}

// SortStep orders the result by one column.
type SortStep struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending"`
}

// ProjectStep restricts the result to the named columns.
type ProjectStep struct {
	Columns []string `json:"columns"`
}

// Plan is a validated, ordered sequence of data operations. It is produced
// only by the Translator (or tests) after every column reference has been
// checked against the target schema; executors never see an unvalidated
// plan.
type Plan struct {
	Filters   []FilterStep   `json:"filters,omitempty"`
	Aggregate *AggregateStep `json:"aggregate,omitempty"`
	Sort      *SortStep      `json:"sort,omitempty"`
	Project   *ProjectStep   `json:"project,omitempty"`

	// DeclaredOrder records the step order as it appeared in the source
	// proposal, so the executor can report when it reorders.
	DeclaredOrder []StepKind `json:"declared_order,omitempty"`
}

// Steps returns the kinds present in the plan in canonical order.
func (p *Plan) Steps() []StepKind {
	var out []StepKind
	if len(p.Filters) > 0 {
		out = append(out, StepFilter)
	}
	if p.Aggregate != nil {
		out = append(out, StepAggregate)
	}
	if p.Sort != nil {
		out = append(out, StepSort)
	}
	if p.Project != nil {
		out = append(out, StepProject)
	}
	return out
}

// OutputColumns computes the schema of the plan's result before projection.
func (p *Plan) OutputColumns(prof *profile.SchemaProfile) []string {
	if p.Aggregate == nil {
		return prof.ColumnNames()
	}
	out := append([]string(nil), p.Aggregate.GroupBy...)
	return append(out, p.Aggregate.OutputColumn())
}

// Validate checks every column reference, operation and filter literal of
// the plan against the schema. Any invalid reference is reported with the
// offending field; nothing is silently coerced. A plan that passes Validate
// cannot produce a column-reference or literal-coercion failure during
// execution.
func Validate(p *Plan, prof *profile.SchemaProfile) error {
	for _, f := range p.Filters {
		col, ok := prof.Column(f.Column)
		if !ok {
			return &PlanValidationError{Column: f.Column, Reason: "unknown column in filter"}
		}
		if !validOp(f.Op) {
			return &PlanValidationError{Column: f.Column, Operation: string(f.Op), Reason: "unsupported filter operator"}
		}
		if f.Op == OpContains && col.Type != dataset.TypeText {
			return &PlanValidationError{Column: f.Column, Operation: string(f.Op), Reason: "contains requires a text column"}
		}
		// The literal must coerce to the column type here; execution never
		// sees a filter it cannot evaluate.
		switch col.Type {
		case dataset.TypeNumber:
			if _, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64); err != nil {
				return &PlanValidationError{
					Column:    f.Column,
					Operation: string(f.Op),
					Reason:    fmt.Sprintf("literal %q is not numeric", f.Value),
				}
			}
		case dataset.TypeTime:
			if _, ok := dataset.ParseTimeValue(f.Value); !ok {
				return &PlanValidationError{
					Column:    f.Column,
					Operation: string(f.Op),
					Reason:    fmt.Sprintf("literal %q is not a timestamp", f.Value),
				}
			}
		case dataset.TypeBool:
			if f.Op != OpEq && f.Op != OpNeq {
				return &PlanValidationError{
					Column:    f.Column,
					Operation: string(f.Op),
					Reason:    "bool columns support only eq and neq",
				}
			}
		}
	}
	if a := p.Aggregate; a != nil {
		if !validAgg(a.Func) {
			return &PlanValidationError{Operation: string(a.Func), Reason: "unsupported aggregate function"}
		}
		if a.Func != AggCount || a.Column != "" {
			col, ok := prof.Column(a.Column)
			if !ok {
				return &PlanValidationError{Column: a.Column, Reason: "unknown column in aggregate"}
			}
			if a.Func != AggCount && col.Type != dataset.TypeNumber {
				return &PlanValidationError{
					Column:    a.Column,
					Operation: string(a.Func),
					Reason:    fmt.Sprintf("aggregate %s requires a numeric column, got %s", a.Func, col.Type),
				}
			}
		}
		for _, g := range a.GroupBy {
			if _, ok := prof.Column(g); !ok {
				return &PlanValidationError{Column: g, Reason: "unknown column in group by"}
			}
		}
	}
	output := p.OutputColumns(prof)
	inOutput := func(name string) bool {
		for _, c := range output {
			if c == name {
				return true
			}
		}
		return false
	}
	if p.Sort != nil && !inOutput(p.Sort.Column) {
		return &PlanValidationError{Column: p.Sort.Column, Reason: "unknown column in sort"}
	}
	if p.Project != nil {
		if len(p.Project.Columns) == 0 {
			return &PlanValidationError{Reason: "projection selects no columns"}
		}
		for _, c := range p.Project.Columns {
			if !inOutput(c) {
				return &PlanValidationError{Column: c, Reason: "unknown column in projection"}
			}
		}
	}
	return nil
}
