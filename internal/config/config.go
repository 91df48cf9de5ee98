package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/broadinstitute/nightcafe/internal/compute"
	"github.com/broadinstitute/nightcafe/internal/schema"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPath          = "exectime.yaml"
	DefaultTable         = "execution_data"
	DefaultPreviewRows   = 20
	DefaultChartFormat   = "png"
	DefaultOutputFormat  = "text"
	DefaultFetchTimeout  = 60 * time.Second
	DefaultWatchDebounce = 2 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultAPIKeyHeader  = "X-API-Key"
)

// Config is the top-level configuration. Fields map 1:1 to exectime.example.yaml.
type Config struct {
	Input    Input    `yaml:"input"`
	Analysis Analysis `yaml:"analysis"`
	Output   Output   `yaml:"output"`
	Gates    Gates    `yaml:"gates"`
	Watch    Watching `yaml:"watch"`
	Logging  Logging  `yaml:"logging"`
}

// Input describes where the execution-time table lives.
type Input struct {
	// Path is the local file. It wins when it exists.
	Path string `yaml:"path"`

	// URL is the remote fallback used when Path does not exist.
	URL string `yaml:"url"`

	// Format is csv | json | sqlite. Empty means detect from the extension.
	Format string `yaml:"format" validate:"omitempty,oneof=csv json sqlite"`

	// Table is the SQLite table holding one row per image.
	Table string `yaml:"table"`

	// TimestampColumn holds each record's wall-clock instant.
	TimestampColumn string `yaml:"timestamp_column"`

	// IDColumns identify an image in errors and previews.
	IDColumns []string `yaml:"id_columns"`

	// Timeout bounds a remote fetch.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// Auth configures how remote fetches authenticate.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options for remote fetches.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for remote fetches.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode" validate:"omitempty,oneof=apikey bearer basic none"`

	// Header is the HTTP header name the API key is sent in.
	Header string `yaml:"header" validate:"required_if=Mode apikey"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return env(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return env(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return env(a.PasswordEnv) }

// TLSConfig holds TLS dial options for remote fetches.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
	// CAFile adds a PEM bundle to the trusted roots.
	CAFile string `yaml:"ca_file"`
}

// Analysis holds the pipeline parameters.
type Analysis struct {
	StagePrefix     string  `yaml:"stage_prefix"`
	ElapsedUnit     string  `yaml:"elapsed_unit"`
	ThresholdOffset float64 `yaml:"threshold_offset"`
	Band            float64 `yaml:"band" validate:"gte=0"`
	TopK            int     `yaml:"top_k" validate:"gte=0"`
}

// Output controls how results are rendered.
type Output struct {
	// Format is text | json | prometheus | markdown | html | pdf.
	Format string `yaml:"format" validate:"oneof=text json prometheus markdown html pdf"`
	// File receives the rendered report; empty means stdout.
	File string `yaml:"file"`
	// PreviewRows limits the text report's data preview.
	PreviewRows int `yaml:"preview_rows" validate:"gte=0"`
	// ChartDir receives timeline and stage charts; empty disables charts.
	ChartDir string `yaml:"chart_dir"`
	// ChartFormat is png | svg.
	ChartFormat string `yaml:"chart_format" validate:"oneof=png svg"`
}

// Gates holds the pass/fail rules evaluated after each run.
type Gates struct {
	Rules    []GateRule      `yaml:"rules" validate:"dive"`
	Webhooks []WebhookConfig `yaml:"webhooks" validate:"dive"`
}

// GateRule fails a run when Condition holds.
type GateRule struct {
	// Name is the human-readable rule identifier.
	Name string `yaml:"name" validate:"required"`

	// Condition is an expression like "outlier_candidates > 0" or
	// "max_total >= 3600".
	Condition string `yaml:"condition" validate:"required"`

	// Severity is one of: critical | warning | info. Only critical gates
	// change the exit status.
	Severity string `yaml:"severity" validate:"omitempty,oneof=critical warning info"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type" validate:"oneof=teams slack http"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return env(w.URLEnv) }

// Watching configures the watch command.
type Watching struct {
	// Debounce coalesces bursts of write events into one re-run.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`

	// Schedule is an optional five-field cron expression. When set, watch
	// also re-runs on schedule, which makes remote inputs watchable.
	Schedule string `yaml:"schedule"`
}

// Logging configures the slog handler.
type Logging struct {
	// Level is debug | info | warn | error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	// Format is json | text.
	Format string `yaml:"format" validate:"oneof=json text"`
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default() when path does not
// exist, so the CLI works with flags alone.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Input: Input{
			Table:           DefaultTable,
			TimestampColumn: compute.DefaultTimestampColumn,
			IDColumns:       append([]string(nil), compute.DefaultIDColumns...),
			Timeout:         DefaultFetchTimeout,
			Auth:            AuthConfig{Header: DefaultAPIKeyHeader},
		},
		Analysis: Analysis{
			StagePrefix:     schema.DefaultPrefix,
			ElapsedUnit:     string(compute.UnitSeconds),
			ThresholdOffset: compute.DefaultThresholdOffset,
			Band:            compute.DefaultBand,
		},
		Output: Output{
			Format:      DefaultOutputFormat,
			PreviewRows: DefaultPreviewRows,
			ChartFormat: DefaultChartFormat,
		},
		Watch:   Watching{Debounce: DefaultWatchDebounce},
		Logging: Logging{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// Validate checks required fields and structural constraints.
func (cfg *Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fieldError(err)
	}
	if _, err := compute.ParseUnit(cfg.Analysis.ElapsedUnit); err != nil {
		return fmt.Errorf("analysis.elapsed_unit: %w", err)
	}
	if cfg.Watch.Schedule != "" {
		if _, err := ParseSchedule(cfg.Watch.Schedule); err != nil {
			return fmt.Errorf("watch.schedule: %w", err)
		}
	}
	return nil
}

// ParseSchedule parses a standard five-field cron expression.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return scheduleParser.Parse(spec)
}

var (
	scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	validate       = newValidator()
)

// newValidator reports fields by their yaml keys.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldError turns the first validation failure into a config-path error
// such as `output.format: unknown value "xml"`.
func fieldError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	path := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("%s: unknown value %q, want one of: %s", path, fe.Value(), fe.Param())
	case "required", "required_if":
		return fmt.Errorf("%s is required", path)
	case "gt":
		return fmt.Errorf("%s must be > %s", path, fe.Param())
	case "gte":
		return fmt.Errorf("%s must be >= %s", path, fe.Param())
	default:
		return fmt.Errorf("%s: failed %s", path, fe.Tag())
	}
}

// Options converts the analysis section into pipeline options.
func (cfg *Config) Options() compute.Options {
	unit, _ := compute.ParseUnit(cfg.Analysis.ElapsedUnit)
	return compute.Options{
		StagePrefix: cfg.Analysis.StagePrefix,
		Derive: compute.DeriveOptions{
			TimestampColumn: cfg.Input.TimestampColumn,
			IDColumns:       cfg.Input.IDColumns,
			Unit:            unit,
		},
		Outliers: compute.OutlierOptions{
			ThresholdOffset: cfg.Analysis.ThresholdOffset,
			Band:            cfg.Analysis.Band,
		},
		TopK: cfg.Analysis.TopK,
	}
}
