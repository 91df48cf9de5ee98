package source

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/broadinstitute/nightcafe/internal/table"
)

// loadOptions read every cell as text; typing happens in the pipeline so
// a malformed value is reported with its row instead of silently becoming NaN.
func loadOptions() []dataframe.LoadOption {
	return []dataframe.LoadOption{
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(table.NullMarkers()),
	}
}

func readCSV(name string, data []byte) (*table.Table, error) {
	df := dataframe.ReadCSV(bytes.NewReader(data), loadOptions()...)
	if df.Err != nil {
		// A header with no rows is an empty dataset, not an error.
		if header, ok := csvHeaderOnly(data); ok {
			return table.New(name, header), nil
		}
		return nil, fmt.Errorf("source: parse csv %s: %w", name, df.Err)
	}
	return fromFrame(name, df)
}

func readJSON(name string, data []byte) (*table.Table, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("[]")) {
		return table.New(name, []string{}), nil
	}
	df := dataframe.ReadJSON(bytes.NewReader(data), loadOptions()...)
	if df.Err != nil {
		return nil, fmt.Errorf("source: parse json %s: %w", name, df.Err)
	}
	return fromFrame(name, df)
}

func csvHeaderOnly(data []byte) ([]string, bool) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil || len(records) != 1 {
		return nil, false
	}
	return records[0], true
}

// fromFrame copies a string-typed frame into a table; NA cells become nil.
func fromFrame(name string, df dataframe.DataFrame) (*table.Table, error) {
	cols := df.Names()
	t := table.New(name, cols)
	nrow, ncol := df.Dims()
	t.Rows = make([][]any, 0, nrow)
	for i := 0; i < nrow; i++ {
		row := make([]any, ncol)
		for j := 0; j < ncol; j++ {
			e := df.Elem(i, j)
			if e.IsNA() {
				continue
			}
			row[j] = e.String()
		}
		if err := t.Append(row); err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
	}
	return t, nil
}
