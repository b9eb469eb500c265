// Package engine executes validated data-operation plans against a dataset
// snapshot. Execution semantics are fixed: filter, then aggregate, then
// sort, then project, whatever order the plan declared its steps in.
package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/datasmith-ai/datasmith/internal/common"
	"github.com/datasmith-ai/datasmith/internal/dataset"
	"github.com/datasmith-ai/datasmith/internal/query"
)

// LimitWarning reports a group-by whose cardinality exceeded the configured
// ceiling. The result it accompanies is a capped preview, not the full
// grouping.
type LimitWarning struct {
	Limit  int
	Actual int
}

func (w *LimitWarning) Error() string {
	return fmt.Sprintf("group cardinality %d exceeds ceiling %d; returning top %d groups by row count", w.Actual, w.Limit, w.Limit)
}

// Result is the outcome of executing a plan: a table (possibly a single
// scalar cell), a deterministic description of what was computed, and an
// optional cardinality warning.
type Result struct {
	Columns     []string      `json:"columns"`
	Rows        [][]any       `json:"rows"`
	Description string        `json:"description"`
	Warning     *LimitWarning `json:"warning,omitempty"`
}

// Scalar returns the single cell of a 1x1 result.
func (r *Result) Scalar() (any, bool) {
	if len(r.Rows) == 1 && len(r.Columns) == 1 {
		return r.Rows[0][0], true
	}
	return nil, false
}

// Executor runs plans. It is a pure computation; the only configuration is
// the group-by cardinality ceiling.
type Executor struct {
	groupCeiling int
}

// New constructs an Executor with the given cardinality ceiling.
func New(groupCeiling int) *Executor {
	return &Executor{groupCeiling: groupCeiling}
}

// Execute runs a validated plan against ds. Plans are expected to have
// passed query.Validate against the dataset's profile; a reference that
// still misses is an internal error, not a user-facing validation failure.
func (e *Executor) Execute(plan *query.Plan, ds *dataset.Dataset) (*Result, error) {
	logger := common.Logger()
	if plan == nil {
		return nil, fmt.Errorf("nil plan")
	}
	var parts []string

	cols := ds.Columns()
	names := make([]string, len(cols))
	types := make(map[string]dataset.Type, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		types[c.Name] = c.Type
	}
	rows := make([][]any, ds.RowCount())
	for i := 0; i < ds.RowCount(); i++ {
		rows[i] = ds.Row(i)
	}

	// Filter.
	if len(plan.Filters) > 0 {
		var err error
		rows, err = applyFilters(plan.Filters, names, types, rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fmt.Sprintf("filtered to %d rows where %s", len(rows), describeFilters(plan.Filters)))
	}

	result := &Result{Columns: names, Rows: rows}

	// Aggregate.
	if plan.Aggregate != nil {
		agg, warning, desc, err := applyAggregate(plan.Aggregate, names, types, rows, e.groupCeiling)
		if err != nil {
			return nil, err
		}
		result = agg
		result.Warning = warning
		parts = append(parts, desc)
	} else if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("returned the full dataset (%d rows)", len(rows)))
	}

	// Sort.
	if plan.Sort != nil {
		if err := applySort(plan.Sort, result); err != nil {
			return nil, err
		}
		direction := "ascending"
		if plan.Sort.Descending {
			direction = "descending"
		}
		parts = append(parts, fmt.Sprintf("then sorted by %s %s", plan.Sort.Column, direction))
	}

	// Project.
	if plan.Project != nil {
		if err := applyProject(plan.Project, result); err != nil {
			return nil, err
		}
		parts = append(parts, fmt.Sprintf("then selected columns %s", strings.Join(plan.Project.Columns, ", ")))
	}

	result.Description = strings.Join(parts, ", ")
	if reordered(plan) {
		result.Description += " (steps reordered to filter, aggregate, sort, project)"
	}
	if result.Warning != nil {
		logger.Warn("engine: group cardinality ceiling hit", "actual", result.Warning.Actual, "limit", result.Warning.Limit)
	}
	logger.Debug("engine: plan executed", "rows", len(result.Rows), "columns", len(result.Columns))
	return result, nil
}

// reordered reports whether the plan declared its steps in a different
// order than they were executed.
func reordered(plan *query.Plan) bool {
	if len(plan.DeclaredOrder) == 0 {
		return false
	}
	canonical := plan.Steps()
	declared := plan.DeclaredOrder
	if len(declared) != len(canonical) {
		// Declared order may mention absent steps; compare only present ones.
		var present []query.StepKind
		for _, k := range declared {
			for _, c := range canonical {
				if k == c {
					present = append(present, k)
					break
				}
			}
		}
		declared = present
	}
	for i := range declared {
		if i >= len(canonical) || declared[i] != canonical[i] {
			return true
		}
	}
	return false
}

func columnIndex(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func applyFilters(filters []query.FilterStep, names []string, types map[string]dataset.Type, rows [][]any) ([][]any, error) {
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		keep := true
		for _, f := range filters {
			idx := columnIndex(names, f.Column)
			if idx < 0 {
				return nil, fmt.Errorf("filter references missing column %q", f.Column)
			}
			match, err := matches(row[idx], types[f.Column], f)
			if err != nil {
				return nil, err
			}
			if !match {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

// matches evaluates one predicate against one cell. Null cells never match.
func matches(cell any, t dataset.Type, f query.FilterStep) (bool, error) {
	if cell == nil {
		return false, nil
	}
	switch t {
	case dataset.TypeNumber:
		want, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64)
		if err != nil {
			return false, fmt.Errorf("filter on %q: literal %q is not numeric", f.Column, f.Value)
		}
		return compareOrdered(cell.(float64), want, f.Op)
	case dataset.TypeBool:
		want := strings.EqualFold(strings.TrimSpace(f.Value), "true")
		got := cell.(bool)
		switch f.Op {
		case query.OpEq:
			return got == want, nil
		case query.OpNeq:
			return got != want, nil
		default:
			return false, fmt.Errorf("filter on %q: operator %s not supported for bool", f.Column, f.Op)
		}
	case dataset.TypeTime:
		want, ok := dataset.ParseTimeValue(f.Value)
		if !ok {
			return false, fmt.Errorf("filter on %q: literal %q is not a timestamp", f.Column, f.Value)
		}
		got := cell.(time.Time)
		switch f.Op {
		case query.OpEq:
			return got.Equal(want), nil
		case query.OpNeq:
			return !got.Equal(want), nil
		case query.OpGt:
			return got.After(want), nil
		case query.OpGte:
			return got.After(want) || got.Equal(want), nil
		case query.OpLt:
			return got.Before(want), nil
		case query.OpLte:
			return got.Before(want) || got.Equal(want), nil
		default:
			return false, fmt.Errorf("filter on %q: operator %s not supported for time", f.Column, f.Op)
		}
	default:
		got := cell.(string)
		want := f.Value
		switch f.Op {
		case query.OpEq:
			return strings.EqualFold(got, want), nil
		case query.OpNeq:
			return !strings.EqualFold(got, want), nil
		case query.OpContains:
			return strings.Contains(strings.ToLower(got), strings.ToLower(want)), nil
		case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
			return compareOrdered(got, want, f.Op)
		default:
			return false, fmt.Errorf("filter on %q: unsupported operator %s", f.Column, f.Op)
		}
	}
}

func compareOrdered[T float64 | string](got, want T, op query.CompareOp) (bool, error) {
	switch op {
	case query.OpEq:
		return got == want, nil
	case query.OpNeq:
		return got != want, nil
	case query.OpGt:
		return got > want, nil
	case query.OpGte:
		return got >= want, nil
	case query.OpLt:
		return got < want, nil
	case query.OpLte:
		return got <= want, nil
	default:
		return false, fmt.Errorf("unsupported operator %s", op)
	}
}

func describeFilters(filters []query.FilterStep) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = fmt.Sprintf("%s %s '%s'", f.Column, opWord(f.Op), f.Value)
	}
	return strings.Join(parts, " and ")
}

func opWord(op query.CompareOp) string {
	switch op {
	case query.OpEq:
		return "="
	case query.OpNeq:
		return "!="
	case query.OpGt:
		return ">"
	case query.OpGte:
		return ">="
	case query.OpLt:
		return "<"
	case query.OpLte:
		return "<="
	case query.OpContains:
		return "contains"
	}
	return string(op)
}

func aggWord(fn query.AggregateFunc, column string) string {
	switch fn {
	case query.AggAvg:
		return "averaged " + column
	case query.AggSum:
		return "summed " + column
	case query.AggMin:
		return "took the minimum of " + column
	case query.AggMax:
		return "took the maximum of " + column
	case query.AggCount:
		if column == "" {
			return "counted rows"
		}
		return "counted " + column
	}
	return string(fn)
}

func applyAggregate(step *query.AggregateStep, names []string, types map[string]dataset.Type, rows [][]any, ceiling int) (*Result, *LimitWarning, string, error) {
	colIdx := -1
	if step.Column != "" {
		colIdx = columnIndex(names, step.Column)
		if colIdx < 0 {
			return nil, nil, "", fmt.Errorf("aggregate references missing column %q", step.Column)
		}
		if step.Func != query.AggCount && types[step.Column] != dataset.TypeNumber {
			return nil, nil, "", &query.PlanValidationError{
				Column:    step.Column,
				Operation: string(step.Func),
				Reason:    "aggregate over non-numeric column",
			}
		}
	}

	if len(step.GroupBy) == 0 {
		value := reduce(step.Func, rows, colIdx)
		res := &Result{Columns: []string{step.OutputColumn()}, Rows: [][]any{{value}}}
		return res, nil, "then " + aggWord(step.Func, step.Column), nil
	}

	keyIdx := make([]int, len(step.GroupBy))
	for i, g := range step.GroupBy {
		keyIdx[i] = columnIndex(names, g)
		if keyIdx[i] < 0 {
			return nil, nil, "", fmt.Errorf("group by references missing column %q", g)
		}
	}

	type group struct {
		key   []any
		rows  [][]any
		order int
	}
	groups := make(map[string]*group)
	var ordered []*group
	for _, row := range rows {
		keyParts := make([]string, len(keyIdx))
		keyCells := make([]any, len(keyIdx))
		for i, idx := range keyIdx {
			keyCells[i] = row[idx]
			if row[idx] == nil {
				keyParts[i] = "\x00null"
			} else {
				keyParts[i] = fmt.Sprint(row[idx])
			}
		}
		key := strings.Join(keyParts, "\x1f")
		g, ok := groups[key]
		if !ok {
			g = &group{key: keyCells, order: len(ordered)}
			groups[key] = g
			ordered = append(ordered, g)
		}
		g.rows = append(g.rows, row)
	}

	var warning *LimitWarning
	if ceiling > 0 && len(ordered) > ceiling {
		warning = &LimitWarning{Limit: ceiling, Actual: len(ordered)}
		// Capped preview: keep the largest groups, ties broken by key so
		// the preview is stable.
		sort.SliceStable(ordered, func(i, j int) bool {
			if len(ordered[i].rows) != len(ordered[j].rows) {
				return len(ordered[i].rows) > len(ordered[j].rows)
			}
			return fmt.Sprint(ordered[i].key) < fmt.Sprint(ordered[j].key)
		})
		ordered = ordered[:ceiling]
	}

	outCols := append(append([]string(nil), step.GroupBy...), step.OutputColumn())
	outRows := make([][]any, 0, len(ordered))
	for _, g := range ordered {
		row := append(append([]any(nil), g.key...), reduce(step.Func, g.rows, colIdx))
		outRows = append(outRows, row)
	}
	desc := fmt.Sprintf("then grouped by %s and %s across %d groups",
		strings.Join(step.GroupBy, ", "), aggWord(step.Func, step.Column), len(ordered))
	if warning != nil {
		desc = fmt.Sprintf("%s (preview capped at top %d of %d groups by row count)", desc, warning.Limit, warning.Actual)
	}
	return &Result{Columns: outCols, Rows: outRows}, warning, desc, nil
}

// reduce computes one aggregate over the rows, ignoring nulls. An empty
// input yields a null cell for avg/min/max and zero for sum/count.
func reduce(fn query.AggregateFunc, rows [][]any, colIdx int) any {
	if fn == query.AggCount {
		if colIdx < 0 {
			return float64(len(rows))
		}
		n := 0
		for _, row := range rows {
			if row[colIdx] != nil {
				n++
			}
		}
		return float64(n)
	}
	var values []float64
	for _, row := range rows {
		if cell := row[colIdx]; cell != nil {
			values = append(values, cell.(float64))
		}
	}
	if len(values) == 0 {
		if fn == query.AggSum {
			return float64(0)
		}
		return nil
	}
	switch fn {
	case query.AggSum, query.AggAvg:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		if fn == query.AggSum {
			return sum
		}
		return sum / float64(len(values))
	case query.AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case query.AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	}
	return nil
}

func applySort(step *query.SortStep, result *Result) error {
	idx := columnIndex(result.Columns, step.Column)
	if idx < 0 {
		return fmt.Errorf("sort references missing column %q", step.Column)
	}
	sort.SliceStable(result.Rows, func(i, j int) bool {
		less := cellLess(result.Rows[i][idx], result.Rows[j][idx])
		if step.Descending {
			return cellLess(result.Rows[j][idx], result.Rows[i][idx])
		}
		return less
	})
	return nil
}

// cellLess orders cells of one column: nulls last, numbers numerically,
// everything else by string form.
func cellLess(a, b any) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func applyProject(step *query.ProjectStep, result *Result) error {
	idx := make([]int, len(step.Columns))
	for i, c := range step.Columns {
		idx[i] = columnIndex(result.Columns, c)
		if idx[i] < 0 {
			return fmt.Errorf("projection references missing column %q", c)
		}
	}
	rows := make([][]any, len(result.Rows))
	for r, row := range result.Rows {
		out := make([]any, len(idx))
		for i, j := range idx {
			out[i] = row[j]
		}
		rows[r] = out
	}
	result.Columns = append([]string(nil), step.Columns...)
	result.Rows = rows
	return nil
}
