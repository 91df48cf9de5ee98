package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/broadinstitute/nightcafe/internal/table"
)

// SQLite reads one table from a SQLite database file. The file is opened
// read-only, so a producer that is still writing is never blocked.
type SQLite struct {
	Path  string
	Table string
}

func (s *SQLite) open(ctx context.Context) (*sql.DB, error) {
	dsn := "file:" + s.Path + "?" + url.Values{"mode": {"ro"}}.Encode()
	// modernc.org/sqlite uses the "sqlite" driver name.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", s.Path, err)
	}
	// query_only is per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("source: open %s: %w", s.Path, err)
	}
	if err := s.checkTable(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (s *SQLite) checkTable(ctx context.Context, db *sql.DB) error {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT 1 FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?", s.Table).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("source: %w", &table.SchemaMismatchError{Table: s.Table})
	}
	if err != nil {
		return fmt.Errorf("source: lookup table %q: %w", s.Table, err)
	}
	return nil
}

// Load materializes every row of the table and closes the database.
func (s *SQLite) Load(ctx context.Context) (*table.Table, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(s.Table))
	if err != nil {
		return nil, fmt.Errorf("source: query %q: %w", s.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("source: columns %q: %w", s.Table, err)
	}
	t := table.New(s.Table, cols)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("source: scan %q row %d: %w", s.Table, t.Len(), err)
		}
		if err := t.Append(vals); err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: read %q: %w", s.Table, err)
	}

	slog.Debug("source: sqlite table loaded", "path", s.Path, "table", s.Table,
		"columns", len(cols), "rows", t.Len())
	return t, nil
}

// QueryTotal returns SUM(COALESCE(c, 0) + ...) over columns. No columns or
// no rows yields 0.
func (s *SQLite) QueryTotal(ctx context.Context, columns []string) (float64, error) {
	if len(columns) == 0 {
		return 0, nil
	}
	db, err := s.open(ctx)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	terms := make([]string, len(columns))
	for i, c := range columns {
		terms[i] = "COALESCE(" + quoteIdent(c) + ", 0)"
	}
	q := "SELECT SUM(" + strings.Join(terms, " + ") + ") FROM " + quoteIdent(s.Table)

	var total sql.NullFloat64
	if err := db.QueryRowContext(ctx, q).Scan(&total); err != nil {
		return 0, fmt.Errorf("source: total %q: %w", s.Table, err)
	}
	return total.Float64, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
