package source

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broadinstitute/nightcafe/internal/compute"
	"github.com/broadinstitute/nightcafe/internal/config"
	"github.com/broadinstitute/nightcafe/internal/table"
)

const timingsCSV = `plate,well,wall_clock_time,ExecutionTime_01LoadData,ExecutionTime_02Measure
P1,A01,2024-03-01 10:00:00,10,20
P1,A02,2024-03-01 10:00:30,5,NaN
P1,A03,2024-03-01 10:01:00,,
`

const timingsJSON = `[
  {"plate": "P1", "wall_clock_time": "2024-03-01T10:00:00Z", "ExecutionTime_01LoadData": 10, "ExecutionTime_02Measure": 20},
  {"plate": "P1", "wall_clock_time": "2024-03-01T10:00:30Z", "ExecutionTime_01LoadData": 5, "ExecutionTime_02Measure": null}
]`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func cell(t *testing.T, tb *table.Table, row int, col string) any {
	t.Helper()
	i := tb.Index(col)
	require.GreaterOrEqual(t, i, 0, "column %q", col)
	return tb.Rows[row][i]
}

func TestResolve(t *testing.T) {
	local := writeTemp(t, "timings.csv", timingsCSV)

	tests := []struct {
		name    string
		in      config.Input
		want    Location
		wantErr bool
	}{
		{"local wins", config.Input{Path: local, URL: "https://example.com/t.json"}, Location{Path: local, Format: FormatCSV}, false},
		{"remote fallback", config.Input{Path: "/does/not/exist.csv", URL: "https://example.com/runs/t.sqlite?x=1"}, Location{URL: "https://example.com/runs/t.sqlite?x=1", Format: FormatSQLite}, false},
		{"explicit format", config.Input{URL: "https://example.com/export", Format: "JSON"}, Location{URL: "https://example.com/export", Format: FormatJSON}, false},
		{"missing without url", config.Input{Path: "/does/not/exist.csv"}, Location{}, true},
		{"nothing configured", config.Input{}, Location{}, true},
		{"unknown extension", config.Input{URL: "https://example.com/t.parquet"}, Location{}, true},
		{"duckdb", config.Input{URL: "https://example.com/t.duckdb"}, Location{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolve_DuckDBUnsupported(t *testing.T) {
	_, err := Resolve(config.Input{URL: "https://example.com/t.duckdb"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Contains(t, err.Error(), "DuckDB")
}

func TestLoad_CSV(t *testing.T) {
	src, err := New(config.Input{Path: writeTemp(t, "timings.csv", timingsCSV)})
	require.NoError(t, err)

	tb, err := src.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "timings", tb.Name)
	assert.Equal(t, []string{"plate", "well", "wall_clock_time", "ExecutionTime_01LoadData", "ExecutionTime_02Measure"}, tb.Columns)
	require.Equal(t, 3, tb.Len())
	assert.Equal(t, "A01", cell(t, tb, 0, "well"))
	assert.Equal(t, "20", cell(t, tb, 0, "ExecutionTime_02Measure"))

	// NaN and empty cells are null.
	for _, v := range []any{cell(t, tb, 1, "ExecutionTime_02Measure"), cell(t, tb, 2, "ExecutionTime_01LoadData")} {
		_, ok, err := table.Float(v)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestLoad_CSVHeaderOnly(t *testing.T) {
	src, err := New(config.Input{Path: writeTemp(t, "empty.csv", "wall_clock_time,ExecutionTime_A\n")})
	require.NoError(t, err)

	tb, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, tb.Len())
	assert.Equal(t, []string{"wall_clock_time", "ExecutionTime_A"}, tb.Columns)
}

func TestLoad_JSON(t *testing.T) {
	src, err := New(config.Input{Path: writeTemp(t, "timings.json", timingsJSON)})
	require.NoError(t, err)

	tb, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, tb.Len())
	assert.ElementsMatch(t, []string{"plate", "wall_clock_time", "ExecutionTime_01LoadData", "ExecutionTime_02Measure"}, tb.Columns)

	v, ok, err := table.Float(cell(t, tb, 0, "ExecutionTime_02Measure"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 20.0, v)

	_, ok, err = table.Float(cell(t, tb, 1, "ExecutionTime_02Measure"))
	require.NoError(t, err)
	assert.False(t, ok, "json null must load as null")
}

func TestLoad_JSONEmptyArray(t *testing.T) {
	src, err := New(config.Input{Path: writeTemp(t, "empty.json", "[]\n")})
	require.NoError(t, err)

	tb, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, tb.Len())
}

// writeSQLite creates a database with an execution_data table at a temp path.
func writeSQLite(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "run.sqlite")
	db, err := sql.Open("sqlite", p)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE execution_data (
			plate TEXT, well TEXT, wall_clock_time TEXT,
			ExecutionTime_01LoadData REAL, ExecutionTime_02Measure REAL)`,
		`INSERT INTO execution_data VALUES ('P1', 'A01', '2024-03-01 10:00:00', 10, 20)`,
		`INSERT INTO execution_data VALUES ('P1', 'A02', '2024-03-01 10:00:30', 5, NULL)`,
		`INSERT INTO execution_data VALUES ('P1', 'A03', '2024-03-01 10:01:00', NULL, NULL)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
	return p
}

func TestSQLite_Load(t *testing.T) {
	s := &SQLite{Path: writeSQLite(t), Table: "execution_data"}

	tb, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "execution_data", tb.Name)
	assert.Equal(t, []string{"plate", "well", "wall_clock_time", "ExecutionTime_01LoadData", "ExecutionTime_02Measure"}, tb.Columns)
	require.Equal(t, 3, tb.Len())
	assert.Nil(t, cell(t, tb, 1, "ExecutionTime_02Measure"))

	v, ok, err := table.Float(cell(t, tb, 0, "ExecutionTime_01LoadData"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)
}

func TestSQLite_MissingTable(t *testing.T) {
	s := &SQLite{Path: writeSQLite(t), Table: "nope"}

	_, err := s.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, table.ErrSchemaMismatch))
}

func TestSQLite_QueryTotal(t *testing.T) {
	s := &SQLite{Path: writeSQLite(t), Table: "execution_data"}

	total, err := s.QueryTotal(context.Background(), []string{"ExecutionTime_01LoadData", "ExecutionTime_02Measure"})
	require.NoError(t, err)
	assert.Equal(t, 35.0, total)

	total, err = s.QueryTotal(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSQLite_ReadOnly(t *testing.T) {
	s := &SQLite{Path: writeSQLite(t), Table: "execution_data"}
	db, err := s.open(context.Background())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`DELETE FROM execution_data`)
	assert.Error(t, err, "writes must be rejected")
}

func TestNew_SQLiteIsTotalQuerier(t *testing.T) {
	src, err := New(config.Input{Path: writeSQLite(t), Table: "execution_data"})
	require.NoError(t, err)
	_, ok := src.(TotalQuerier)
	assert.True(t, ok)
}

func TestHTTPSource_CSVWithBearer(t *testing.T) {
	t.Setenv("TEST_EXPORT_TOKEN", "s3cret")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(timingsCSV))
	}))
	defer srv.Close()

	in := config.Default().Input
	in.URL = srv.URL + "/exports/timings.csv"
	in.Auth = config.AuthConfig{Mode: "bearer", TokenEnv: "TEST_EXPORT_TOKEN"}

	src, err := New(in)
	require.NoError(t, err)
	tb, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "timings", tb.Name)
	assert.Equal(t, 3, tb.Len())

	in.Auth.TokenEnv = ""
	src, err = New(in)
	require.NoError(t, err)
	_, err = src.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestHTTPSource_APIKeyAndBasic(t *testing.T) {
	t.Setenv("TEST_KEY", "k1")
	t.Setenv("TEST_PASS", "p1")
	var gotKey, gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Export-Key")
		gotUser, gotPass, _ = r.BasicAuth()
		_, _ = w.Write([]byte(timingsJSON))
	}))
	defer srv.Close()

	in := config.Default().Input
	in.URL = srv.URL + "/t.json"
	in.Auth = config.AuthConfig{Mode: "apikey", Header: "X-Export-Key", KeyEnv: "TEST_KEY"}
	src, err := New(in)
	require.NoError(t, err)
	_, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k1", gotKey)

	in.Auth = config.AuthConfig{Mode: "basic", Username: "analyst", PasswordEnv: "TEST_PASS"}
	src, err = New(in)
	require.NoError(t, err)
	_, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "analyst", gotUser)
	assert.Equal(t, "p1", gotPass)
}

func TestHTTPSource_SQLiteDownload(t *testing.T) {
	dbBytes, err := os.ReadFile(writeSQLite(t))
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(dbBytes)
	}))
	defer srv.Close()

	in := config.Default().Input
	in.URL = srv.URL + "/run.sqlite"
	src, err := New(in)
	require.NoError(t, err)

	tb, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, tb.Len())
}

func TestLoad_FeedsPipeline(t *testing.T) {
	src, err := New(config.Input{Path: writeTemp(t, "timings.csv", timingsCSV)})
	require.NoError(t, err)
	tb, err := src.Load(context.Background())
	require.NoError(t, err)

	res, err := compute.Run(tb, compute.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	assert.Equal(t, []float64{30, 5, 0}, compute.Totals(res.Records))
	assert.Equal(t, 60.0, res.Records[2].ElapsedSinceStart)
	require.Len(t, res.Stages, 2)
	assert.Equal(t, "02Measure", res.Stages[0].Label)
}
