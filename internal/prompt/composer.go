package prompt

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/datasmith-ai/datasmith/internal/dataset"
	"github.com/datasmith-ai/datasmith/internal/profile"
)

// Purpose tags what a composed prompt will be used for and selects the
// template and the model temperature downstream.
type Purpose string

const (
	PurposeAnalysis   Purpose = "analysis"
	PurposeEnrichment Purpose = "enrichment"
	PurposeChat       Purpose = "chat"
)

// Sample is a bounded preview of dataset rows included in a prompt.
type Sample struct {
	Headers []string
	Rows    [][]any
}

// SampleFromDataset builds a Sample from the first n rows of ds.
func SampleFromDataset(ds *dataset.Dataset, n int) Sample {
	cols := ds.Columns()
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Name
	}
	return Sample{Headers: headers, Rows: ds.Sample(n)}
}

// Request carries the inputs of one composition.
type Request struct {
	Purpose  Purpose
	Profile  *profile.SchemaProfile
	Sample   Sample
	UserText string
	History  []string
	External []string
}

// Composer renders bounded prompts. Output never exceeds the configured
// character ceiling; when the inputs are too large the row sample is
// truncated first, then the schema summary loses its per-column detail, and
// only as a last resort is the rendered text cut at the ceiling. The order
// is fixed so identical inputs always produce identical prompts.
type Composer struct {
	ceiling     int
	sampleLimit int
}

// NewComposer constructs a Composer with the given character ceiling and
// row-sample bound.
func NewComposer(ceiling, sampleLimit int) *Composer {
	return &Composer{ceiling: ceiling, sampleLimit: sampleLimit}
}

var analysisTemplate = prompts.NewPromptTemplate(
	`You are a data analyst reviewing an uploaded tabular dataset.

Schema:
{{.schema}}
{{.sample}}
Respond with:
1. Data Overview
2. Key Insights
3. Suggested next analyses

Ground every statement in the schema facts above; do not invent values.
{{.input}}`,
	[]string{"schema", "sample", "input"},
)

var enrichmentTemplate = prompts.NewPromptTemplate(
	`You are a data analyst proposing enrichment opportunities for a dataset.

Schema:
{{.schema}}
{{.sample}}{{.external}}Suggest additional enrichment opportunities not already covered below, one per
line, each starting with "- ". Do not repeat these known candidates:
{{.input}}`,
	[]string{"schema", "sample", "external", "input"},
)

var chatTemplate = prompts.NewPromptTemplate(
	`You are a data analyst answering questions about a tabular dataset.

Schema:
{{.schema}}
{{.sample}}{{.history}}{{.external}}{{.input}}`,
	[]string{"schema", "sample", "history", "external", "input"},
)

// Compose renders the prompt for req. It fails only when the purpose is
// unknown; over-long input is handled by truncation, never by an error.
func (c *Composer) Compose(req Request) (string, error) {
	rows := req.Sample.Rows
	if len(rows) > c.sampleLimit {
		rows = rows[:c.sampleLimit]
	}
	out, err := c.render(req, rows, true)
	if err != nil {
		return "", err
	}
	// Truncation order: sample rows first, then schema detail.
	for len(out) > c.ceiling && len(rows) > 0 {
		rows = rows[:len(rows)-1]
		if out, err = c.render(req, rows, true); err != nil {
			return "", err
		}
	}
	if len(out) > c.ceiling {
		if out, err = c.render(req, nil, false); err != nil {
			return "", err
		}
	}
	if len(out) > c.ceiling {
		out = out[:c.ceiling]
	}
	return out, nil
}

func (c *Composer) render(req Request, rows [][]any, detailed bool) (string, error) {
	values := map[string]any{
		"schema":   renderSchema(req.Profile, detailed),
		"sample":   renderSample(req.Sample.Headers, rows),
		"input":    strings.TrimSpace(req.UserText),
		"external": renderExternal(req.External),
		"history":  renderHistory(req.History),
	}
	switch req.Purpose {
	case PurposeAnalysis:
		return analysisTemplate.Format(values)
	case PurposeEnrichment:
		return enrichmentTemplate.Format(values)
	case PurposeChat:
		return chatTemplate.Format(values)
	default:
		return "", fmt.Errorf("unknown prompt purpose %q", req.Purpose)
	}
}

func renderSchema(prof *profile.SchemaProfile, detailed bool) string {
	if prof == nil || prof.Empty || len(prof.Columns) == 0 {
		return "(empty schema)"
	}
	if !detailed {
		parts := make([]string, len(prof.Columns))
		for i, col := range prof.Columns {
			parts[i] = fmt.Sprintf("%s:%s", col.Name, col.Type)
		}
		return fmt.Sprintf("%d rows; columns: %s", prof.RowCount, strings.Join(parts, ", "))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows, %d columns\n", prof.RowCount, len(prof.Columns))
	for _, col := range prof.Columns {
		fmt.Fprintf(&b, "- %s (%s): %d nulls, %d distinct", col.Name, col.Type, col.NullCount, col.Distinct)
		if col.Numeric != nil && col.Numeric.Count > 0 {
			fmt.Fprintf(&b, ", mean %.4g, min %.4g, max %.4g", col.Numeric.Mean, col.Numeric.Min, col.Numeric.Max)
		}
		if len(col.TopValues) > 0 {
			tops := make([]string, 0, 3)
			for i, tv := range col.TopValues {
				if i == 3 {
					break
				}
				tops = append(tops, fmt.Sprintf("%s(%d)", tv.Value, tv.Count))
			}
			fmt.Fprintf(&b, ", top: %s", strings.Join(tops, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSample(headers []string, rows [][]any) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nSample rows:\n")
	b.WriteString(strings.Join(headers, " | "))
	b.WriteString("\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if cell == nil {
				cells[i] = "null"
			} else {
				cells[i] = fmt.Sprint(cell)
			}
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	return b.String()
}

func renderHistory(history []string) string {
	if len(history) == 0 {
		return ""
	}
	return "\nPrevious turns:\n" + strings.Join(history, "\n") + "\n\n"
}

// renderExternal labels search-derived text so the provenance of anything
// the model echoes back stays traceable.
func renderExternal(external []string) string {
	if len(external) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nExternal sources (web search):\n")
	for _, e := range external {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	b.WriteString("\n")
	return b.String()
}
