// Package config loads and watches the analysis configuration file
// (exectime.yaml).
//
// Top-level types:
//   - Config{Input, Analysis, Output, Gates, Watch, Logging}: the tree parsed from YAML
//   - Input: path, url, format (csv|json|sqlite), table, timestamp_column,
//     id_columns, timeout, auth, tls
//   - AuthConfig: mode (apikey|bearer|basic|none), header, key_env,
//     token_env, username, password_env; Key(), Token() and Password()
//     resolve from environment variables
//   - Analysis: stage_prefix, elapsed_unit, threshold_offset, band, top_k
//   - Output: format (text|json|prometheus|markdown|html|pdf), file, preview_rows, chart_dir,
//     chart_format
//   - Gates: rules [] and webhooks [] evaluated after each run
//   - Watching: debounce and an optional cron schedule
//
// Load(path) starts from Default() (prefix ExecutionTime_, seconds, offset
// 400, band 50, table execution_data), overlays the YAML file, then
// validates enums and ranges through go-playground/validator struct tags.
// Options() maps the result onto compute.Options.
//
// Watch(ctx, path, onChange) uses fsnotify to reload the config on change.
// WatchFiles(ctx, paths, debounce, onChange) is the debounced primitive the
// watch command uses for the input table.
package config
