package profile

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/datasmith-ai/datasmith/internal/dataset"
)

const topValueLimit = 10

// NumericSummary holds describe-style statistics over the non-null cells of
// a numeric column. Std is the sample standard deviation.
type NumericSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// ValueCount is one entry of a categorical top-values list.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ColumnProfile summarizes one column of a dataset version.
type ColumnProfile struct {
	Name      string          `json:"name"`
	Type      dataset.Type    `json:"type"`
	NullCount int             `json:"null_count"`
	NullRatio float64         `json:"null_ratio"`
	Distinct  int             `json:"distinct"`
	Numeric   *NumericSummary `json:"numeric,omitempty"`
	TopValues []ValueCount    `json:"top_values,omitempty"`
}

// SchemaProfile is the derived structural summary of one Dataset version.
// Building it is pure and deterministic: the same version always yields the
// same profile.
type SchemaProfile struct {
	DatasetVersion string          `json:"dataset_version"`
	RowCount       int             `json:"row_count"`
	Empty          bool            `json:"empty"`
	Columns        []ColumnProfile `json:"columns"`
}

// Column looks a column profile up by exact name.
func (p *SchemaProfile) Column(name string) (*ColumnProfile, bool) {
	for i := range p.Columns {
		if p.Columns[i].Name == name {
			return &p.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns the profiled column names in dataset order.
func (p *SchemaProfile) ColumnNames() []string {
	names := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		names[i] = c.Name
	}
	return names
}

// Build computes the SchemaProfile of a dataset version. It performs no I/O.
// A dataset with zero columns yields an explicit empty profile rather than
// an error.
func Build(ds *dataset.Dataset) *SchemaProfile {
	prof := &SchemaProfile{DatasetVersion: ds.Version(), RowCount: ds.RowCount()}
	cols := ds.Columns()
	if len(cols) == 0 {
		prof.Empty = true
		return prof
	}
	for idx, col := range cols {
		cp := ColumnProfile{Name: col.Name, Type: col.Type}
		counts := make(map[string]int)
		var numbers []float64
		for i := 0; i < ds.RowCount(); i++ {
			cell := ds.Row(i)[idx]
			if cell == nil {
				cp.NullCount++
				continue
			}
			key := cellKey(cell)
			counts[key]++
			if col.Type == dataset.TypeNumber {
				numbers = append(numbers, cell.(float64))
			}
		}
		cp.Distinct = len(counts)
		if ds.RowCount() > 0 {
			cp.NullRatio = float64(cp.NullCount) / float64(ds.RowCount())
		}
		if col.Type == dataset.TypeNumber {
			cp.Numeric = summarize(numbers)
		} else {
			cp.TopValues = topValues(counts, topValueLimit)
		}
		prof.Columns = append(prof.Columns, cp)
	}
	return prof
}

func cellKey(cell any) string {
	switch v := cell.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	case bool:
		return fmt.Sprintf("%t", v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

func summarize(values []float64) *NumericSummary {
	if len(values) == 0 {
		return &NumericSummary{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))
	variance := 0.0
	for _, v := range sorted {
		variance += (v - mean) * (v - mean)
	}
	std := 0.0
	if len(sorted) > 1 {
		std = math.Sqrt(variance / float64(len(sorted)-1))
	}
	return &NumericSummary{
		Count:  len(sorted),
		Mean:   mean,
		Std:    std,
		Min:    sorted[0],
		Q1:     quantile(sorted, 0.25),
		Median: quantile(sorted, 0.5),
		Q3:     quantile(sorted, 0.75),
		Max:    sorted[len(sorted)-1],
	}
}

// quantile interpolates linearly between closest ranks, matching the
// numpy/pandas default.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// topValues ranks by count descending, ties broken by value ascending so
// the output is deterministic.
func topValues(counts map[string]int, limit int) []ValueCount {
	out := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
