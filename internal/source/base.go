package source

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/broadinstitute/nightcafe/internal/config"
	"github.com/broadinstitute/nightcafe/internal/table"
)

// Format is the on-disk encoding of an execution-time table.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatSQLite Format = "sqlite"
)

// ErrUnsupportedFormat is returned for inputs no loader can read.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// Location is where the table is read from after local/remote resolution.
type Location struct {
	// Path is set for local inputs.
	Path string
	// URL is set for remote inputs.
	URL    string
	Format Format
}

// Remote reports whether the location is fetched over HTTP.
func (l Location) Remote() bool { return l.URL != "" }

func (l Location) String() string {
	if l.Remote() {
		return l.URL
	}
	return l.Path
}

// Source materializes one execution-time table. The underlying handle is
// opened and closed inside Load.
type Source interface {
	Load(ctx context.Context) (*table.Table, error)
}

// TotalQuerier is implemented by sources that can sum stage columns on the
// storage side. The result is a cross-check, never an input to the pipeline.
type TotalQuerier interface {
	QueryTotal(ctx context.Context, columns []string) (float64, error)
}

// Resolve picks the local path when it exists and falls back to the remote
// URL otherwise. No other fallback is attempted.
func Resolve(in config.Input) (Location, error) {
	var loc Location
	switch {
	case in.Path != "" && exists(in.Path):
		loc.Path = in.Path
	case in.URL != "":
		loc.URL = in.URL
	case in.Path != "":
		return Location{}, fmt.Errorf("source: %s does not exist and no url is configured", in.Path)
	default:
		return Location{}, fmt.Errorf("source: no input path or url configured")
	}

	f, err := detectFormat(in.Format, loc)
	if err != nil {
		return Location{}, err
	}
	loc.Format = f
	return loc, nil
}

// New resolves in and returns the matching Source. The HTTP client for
// remote inputs is built once here.
func New(in config.Input) (Source, error) {
	loc, err := Resolve(in)
	if err != nil {
		return nil, err
	}
	if loc.Remote() {
		client, err := buildHTTPClient(in)
		if err != nil {
			return nil, fmt.Errorf("source: build http client: %w", err)
		}
		return &httpSource{loc: loc, client: client, table: in.Table}, nil
	}
	if loc.Format == FormatSQLite {
		return &SQLite{Path: loc.Path, Table: in.Table}, nil
	}
	return &fileSource{loc: loc}, nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func detectFormat(explicit string, loc Location) (Format, error) {
	if explicit != "" {
		switch f := Format(strings.ToLower(explicit)); f {
		case FormatCSV, FormatJSON, FormatSQLite:
			return f, nil
		default:
			return "", fmt.Errorf("source: %w: %q", ErrUnsupportedFormat, explicit)
		}
	}
	ext := filepath.Ext(loc.Path)
	if loc.Remote() {
		u, err := url.Parse(loc.URL)
		if err != nil {
			return "", fmt.Errorf("source: parse url: %w", err)
		}
		ext = path.Ext(u.Path)
	}
	switch strings.ToLower(ext) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	case ".duckdb":
		return "", fmt.Errorf("source: %s: %w: convert DuckDB files to SQLite or CSV first", loc, ErrUnsupportedFormat)
	default:
		return "", fmt.Errorf("source: %s: %w: cannot infer format from %q, set input.format", loc, ErrUnsupportedFormat, ext)
	}
}

// baseName is the table name used for file inputs.
func baseName(loc Location) string {
	p := loc.Path
	if loc.Remote() {
		if u, err := url.Parse(loc.URL); err == nil {
			p = u.Path
		}
	}
	b := path.Base(filepath.ToSlash(p))
	return strings.TrimSuffix(b, path.Ext(b))
}

// fileSource reads a local CSV or JSON file.
type fileSource struct {
	loc Location
}

func (s *fileSource) Load(_ context.Context) (*table.Table, error) {
	data, err := os.ReadFile(s.loc.Path)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", s.loc.Path, err)
	}
	return decode(baseName(s.loc), s.loc.Format, data)
}

func decode(name string, f Format, data []byte) (*table.Table, error) {
	switch f {
	case FormatCSV:
		return readCSV(name, data)
	case FormatJSON:
		return readJSON(name, data)
	default:
		return nil, fmt.Errorf("source: %w: %q", ErrUnsupportedFormat, f)
	}
}

// httpSource fetches the table from a URL.
type httpSource struct {
	loc    Location
	client *http.Client
	table  string
}

func (s *httpSource) Load(ctx context.Context) (*table.Table, error) {
	body, err := fetch(ctx, s.client, s.loc.URL)
	if err != nil {
		return nil, fmt.Errorf("source: fetch %s: %w", s.loc.URL, err)
	}
	defer body.Close()

	if s.loc.Format != FormatSQLite {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("source: read %s: %w", s.loc.URL, err)
		}
		return decode(baseName(s.loc), s.loc.Format, data)
	}

	// SQLite needs a seekable file; the download lives only for this call.
	tmp, err := os.CreateTemp("", "exectime-*.sqlite")
	if err != nil {
		return nil, fmt.Errorf("source: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("source: download %s: %w", s.loc.URL, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("source: temp file: %w", err)
	}
	return (&SQLite{Path: tmp.Name(), Table: s.table}).Load(ctx)
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the input's auth and TLS settings.
func buildHTTPClient(in config.Input) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: in.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if in.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(in.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs found in ca file %q", in.TLS.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment},
			auth: in.Auth,
		},
		Timeout: timeout,
	}, nil
}

// fetch performs an HTTP GET to rawURL and returns the response body.
// The caller closes it.
func fetch(ctx context.Context, client *http.Client, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
