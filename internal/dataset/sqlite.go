package dataset

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// FromSQLiteTable loads one table of a SQLite database into a Dataset. The
// table name must be a plain identifier; it is quoted, never interpolated
// into free-form SQL. Integer and float cells map to number columns, text to
// text, and NULLs stay null; the column type is inferred from the scanned
// values the same way CSV ingestion does.
func FromSQLiteTable(ctx context.Context, path, table string) (*Dataset, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	rows, err := db.QueryxContext(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, table))
	if err != nil {
		return nil, fmt.Errorf("query table %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	var data [][]any
	for rows.Next() {
		record, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(data), err)
		}
		row := make([]any, len(record))
		for i, v := range record {
			row[i] = normalizeSQLValue(v)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table %s: %w", table, err)
	}

	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, Type: inferScannedType(data, i)}
	}
	for _, row := range data {
		for i := range row {
			cell, err := reconcileScanned(row[i], columns[i].Type)
			if err != nil {
				return nil, &SchemaViolationError{Field: columns[i].Name, Reason: err.Error()}
			}
			row[i] = cell
		}
	}
	name := strings.TrimSuffix(path[strings.LastIndex(path, "/")+1:], ".db") + "." + table
	return New(name, columns, data)
}

func normalizeSQLValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case int64:
		return float64(val)
	case float64:
		return val
	case bool:
		return val
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func inferScannedType(data [][]any, col int) Type {
	var t Type
	for _, row := range data {
		if row[col] == nil {
			continue
		}
		var cur Type
		switch row[col].(type) {
		case float64:
			cur = TypeNumber
		case bool:
			cur = TypeBool
		case time.Time:
			cur = TypeTime
		default:
			cur = TypeText
		}
		if t == "" {
			t = cur
			continue
		}
		if t != cur {
			return TypeText
		}
	}
	if t == "" {
		return TypeText
	}
	return t
}

func reconcileScanned(v any, t Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	if t != TypeText {
		return v, nil
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return fmt.Sprintf("%g", val), nil
	case bool:
		return fmt.Sprintf("%t", val), nil
	case time.Time:
		return val.Format(time.RFC3339), nil
	default:
		return fmt.Sprint(val), nil
	}
}
