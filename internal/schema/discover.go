// Package schema discovers stage-time columns in a table's column list and
// normalizes their names to stage labels.
//
// A raw column such as "ExecutionTime_07_MeasureObjectIntensity" yields the
// label "MeasureObjectIntensity": the prefix is stripped, then a leading run
// of digits followed by a separator. Two raw columns may normalize to the
// same label; callers aggregate them under that label.
package schema

import "strings"

// DefaultPrefix is the stage-time naming convention of the exporting tool.
const DefaultPrefix = "ExecutionTime_"

// StageTimeColumn pairs a raw column name with its normalized stage label.
type StageTimeColumn struct {
	Raw   string `json:"raw" yaml:"raw"`
	Label string `json:"label" yaml:"label"`
}

// Discover returns the stage-time columns in names, in input order.
// An empty prefix means DefaultPrefix. No match yields an empty, non-nil slice.
func Discover(names []string, prefix string) []StageTimeColumn {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	out := make([]StageTimeColumn, 0, len(names))
	for _, n := range names {
		if !strings.HasPrefix(n, prefix) {
			continue
		}
		out = append(out, StageTimeColumn{Raw: n, Label: Normalize(n, prefix)})
	}
	return out
}

// Normalize strips prefix and an optional leading ordering token from raw.
// A remainder made only of digits is returned unchanged, as is a raw name
// without the prefix.
func Normalize(raw, prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	rest, ok := strings.CutPrefix(raw, prefix)
	if !ok {
		return raw
	}
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 && i < len(rest)-1 && isSeparator(rest[i]) {
		return rest[i+1:]
	}
	return rest
}

func isSeparator(b byte) bool {
	switch b {
	case '_', '-', '.', ' ':
		return true
	}
	return false
}

// Labels returns the distinct labels of cols in first-appearance order.
func Labels(cols []StageTimeColumn) []string {
	seen := make(map[string]bool, len(cols))
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if seen[c.Label] {
			continue
		}
		seen[c.Label] = true
		out = append(out, c.Label)
	}
	return out
}

// Collisions returns, per label, the raw columns that share it. Only labels
// with more than one raw column are included.
func Collisions(cols []StageTimeColumn) map[string][]string {
	byLabel := make(map[string][]string)
	for _, c := range cols {
		byLabel[c.Label] = append(byLabel[c.Label], c.Raw)
	}
	for l, raws := range byLabel {
		if len(raws) < 2 {
			delete(byLabel, l)
		}
	}
	return byLabel
}
