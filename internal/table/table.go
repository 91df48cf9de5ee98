package table

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Table is a materialized result set. Rows are aligned with Columns.
type Table struct {
	// Name is the logical table name (SQLite table, file base name).
	Name    string
	Columns []string
	Rows    [][]any
}

// New returns an empty table with the given columns.
func New(name string, columns []string) *Table {
	return &Table{Name: name, Columns: columns}
}

// Append adds one row. The row must have len(Columns) cells.
func (t *Table) Append(row []any) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("table %q: row has %d cells, want %d", t.Name, len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of column name, or -1 if absent.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Require returns the position of column name or a SchemaMismatchError.
func (t *Table) Require(name string) (int, error) {
	if i := t.Index(name); i >= 0 {
		return i, nil
	}
	return -1, &SchemaMismatchError{Table: t.Name, Field: name}
}

// Float converts a cell to float64. The boolean result is false for null
// cells (nil, empty string, NaN). A non-null cell that is not numeric
// returns an error.
func Float(v any) (float64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		if math.IsNaN(x) {
			return 0, false, nil
		}
		return x, true, nil
	case float32:
		if math.IsNaN(float64(x)) {
			return 0, false, nil
		}
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case int32:
		return float64(x), true, nil
	case []byte:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	default:
		return 0, false, fmt.Errorf("unsupported type %T", v)
	}
}

func parseFloat(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if isNullText(s) {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(f) {
		return 0, false, nil
	}
	return f, true, nil
}

// timeLayouts are tried in order when a timestamp arrives as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Time converts a cell to a time.Time. Text is parsed with the layouts
// above (zone-less text is read as UTC); numbers are Unix epoch seconds.
// The boolean result is false for null cells.
func Time(v any) (time.Time, bool, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return x, true, nil
	case []byte:
		return parseTime(string(x))
	case string:
		return parseTime(x)
	default:
		f, ok, err := Float(v)
		if err != nil || !ok {
			return time.Time{}, ok, err
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true, nil
	}
}

func parseTime(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if isNullText(s) {
		return time.Time{}, false, nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true, nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Time(f)
	}
	return time.Time{}, false, fmt.Errorf("not a timestamp: %q", s)
}

// String renders a cell for pass-through metadata. Null cells render as "".
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		if isNullText(x) {
			return ""
		}
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// nullMarkers are the textual nulls written by CSV/JSON exporters.
var nullMarkers = []string{"", "NaN", "NA", "null", "NULL", "<nil>", "None"}

// NullMarkers returns the text values read as null.
func NullMarkers() []string { return slices.Clone(nullMarkers) }

func isNullText(s string) bool { return slices.Contains(nullMarkers, s) }
