package dataset

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the declared type of a column, established at ingestion and
// consistent across all non-null cells.
type Type string

const (
	TypeNumber Type = "number"
	TypeText   Type = "text"
	TypeBool   Type = "bool"
	TypeTime   Type = "time"
)

// Column names one typed column of a Dataset.
type Column struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Dataset is an immutable tabular snapshot. Cells are float64, string, bool
// or time.Time according to the column type; nil marks a null. Every
// transformation produces a new version linked to its parent, never a
// mutation in place.
type Dataset struct {
	version   string
	parent    string
	name      string
	columns   []Column
	colIndex  map[string]int
	rows      [][]any
	createdAt time.Time
}

// SchemaViolationError reports a malformed dataset with the offending field.
type SchemaViolationError struct {
	Field  string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation on %q: %s", e.Field, e.Reason)
}

// New validates columns and rows and constructs the first version of a
// Dataset. Column names must be unique and non-empty, every row must have
// exactly one cell per column, and non-null cells must match the declared
// column type.
func New(name string, columns []Column, rows [][]any) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, &SchemaViolationError{Field: name, Reason: "dataset has no columns"}
	}
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if col.Name == "" {
			return nil, &SchemaViolationError{Field: fmt.Sprintf("column %d", i), Reason: "empty column name"}
		}
		if _, dup := index[col.Name]; dup {
			return nil, &SchemaViolationError{Field: col.Name, Reason: "duplicate column name"}
		}
		switch col.Type {
		case TypeNumber, TypeText, TypeBool, TypeTime:
		default:
			return nil, &SchemaViolationError{Field: col.Name, Reason: fmt.Sprintf("unknown column type %q", col.Type)}
		}
		index[col.Name] = i
	}
	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, &SchemaViolationError{
				Field:  fmt.Sprintf("row %d", r),
				Reason: fmt.Sprintf("has %d cells, want %d", len(row), len(columns)),
			}
		}
		for c, cell := range row {
			if cell == nil {
				continue
			}
			if err := checkCellType(cell, columns[c].Type); err != nil {
				return nil, &SchemaViolationError{
					Field:  columns[c].Name,
					Reason: fmt.Sprintf("row %d: %v", r, err),
				}
			}
		}
	}
	return &Dataset{
		version:   uuid.NewString(),
		name:      name,
		columns:   append([]Column(nil), columns...),
		colIndex:  index,
		rows:      rows,
		createdAt: time.Now().UTC(),
	}, nil
}

func checkCellType(cell any, t Type) error {
	switch t {
	case TypeNumber:
		if _, ok := cell.(float64); !ok {
			return fmt.Errorf("cell %v is not a number", cell)
		}
	case TypeText:
		if _, ok := cell.(string); !ok {
			return fmt.Errorf("cell %v is not text", cell)
		}
	case TypeBool:
		if _, ok := cell.(bool); !ok {
			return fmt.Errorf("cell %v is not a bool", cell)
		}
	case TypeTime:
		if _, ok := cell.(time.Time); !ok {
			return fmt.Errorf("cell %v is not a timestamp", cell)
		}
	}
	return nil
}

// Version returns the unique identifier of this snapshot.
func (d *Dataset) Version() string { return d.version }

// Parent returns the version this snapshot was derived from, or "" for an
// ingested root.
func (d *Dataset) Parent() string { return d.parent }

// Name returns the ingestion-time dataset name.
func (d *Dataset) Name() string { return d.name }

// CreatedAt returns when this version was materialized.
func (d *Dataset) CreatedAt() time.Time { return d.createdAt }

// Columns returns a copy of the column definitions in order.
func (d *Dataset) Columns() []Column {
	return append([]Column(nil), d.columns...)
}

// Column looks a column up by exact name.
func (d *Dataset) Column(name string) (Column, bool) {
	idx, ok := d.colIndex[name]
	if !ok {
		return Column{}, false
	}
	return d.columns[idx], true
}

// ColumnIndex returns the position of a column, or -1 when absent.
func (d *Dataset) ColumnIndex(name string) int {
	idx, ok := d.colIndex[name]
	if !ok {
		return -1
	}
	return idx
}

// RowCount returns the number of rows.
func (d *Dataset) RowCount() int { return len(d.rows) }

// Row returns row i. The returned slice must not be modified.
func (d *Dataset) Row(i int) []any { return d.rows[i] }

// Sample returns up to n leading rows as copies.
func (d *Dataset) Sample(n int) [][]any {
	if n > len(d.rows) {
		n = len(d.rows)
	}
	out := make([][]any, n)
	for i := 0; i < n; i++ {
		out[i] = append([]any(nil), d.rows[i]...)
	}
	return out
}

// WithColumn materializes a new Dataset version carrying one additional
// column. values must have one entry per row; nil entries stay null. The
// receiver is left untouched and becomes the parent of the new version.
func (d *Dataset) WithColumn(col Column, values []any) (*Dataset, error) {
	if _, exists := d.colIndex[col.Name]; exists {
		return nil, &SchemaViolationError{Field: col.Name, Reason: "column already exists"}
	}
	if len(values) != len(d.rows) {
		return nil, &SchemaViolationError{
			Field:  col.Name,
			Reason: fmt.Sprintf("got %d values for %d rows", len(values), len(d.rows)),
		}
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		if err := checkCellType(v, col.Type); err != nil {
			return nil, &SchemaViolationError{Field: col.Name, Reason: fmt.Sprintf("row %d: %v", i, err)}
		}
	}
	columns := append(d.Columns(), col)
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c.Name] = i
	}
	rows := make([][]any, len(d.rows))
	for i, row := range d.rows {
		next := make([]any, 0, len(row)+1)
		next = append(next, row...)
		next = append(next, values[i])
		rows[i] = next
	}
	return &Dataset{
		version:   uuid.NewString(),
		parent:    d.version,
		name:      d.name,
		columns:   columns,
		colIndex:  index,
		rows:      rows,
		createdAt: time.Now().UTC(),
	}, nil
}
