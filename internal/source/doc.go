// Package source materializes the execution-time table from a file or URL.
//
// Resolve(config.Input) picks the local path when it exists and otherwise
// the remote URL, then fixes the format from input.format or the extension
// (.csv, .json, .db/.sqlite/.sqlite3; .duckdb is rejected). New returns the
// matching Source:
//   - fileSource: local CSV/JSON parsed with gota dataframes (frame.go)
//   - SQLite: read-only SQLite via modernc.org/sqlite (sqlite.go); also a
//     TotalQuerier that sums stage columns in SQL as a cross-check
//   - httpSource: remote input fetched with the shared authRoundTripper
//     (apikey, bearer, basic); SQLite downloads go to a temp file removed
//     after Load
//
// Every cell is handed to the pipeline as text, a native SQLite value, or
// nil for nulls. Handles are opened and closed inside Load.
package source
