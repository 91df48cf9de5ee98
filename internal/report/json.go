package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/broadinstitute/nightcafe/internal/compute"
)

// WriteJSON encodes res as indented JSON. NaN statistics are null. Equal
// results always encode to identical bytes.
func WriteJSON(w io.Writer, res *compute.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("report: write json: %w", err)
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
