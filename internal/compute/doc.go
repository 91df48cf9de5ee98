// Package compute derives execution-time metrics from a materialized table
// of per-image processing records.
//
// derive.go is the row aggregator: Derive sums the stage-time columns of
// every record (null counts as 0) into TotalExecutionTime and computes
// ElapsedSinceStart relative to the earliest timestamp, in seconds or
// minutes. Output is sorted by timestamp, stable on ties.
//
// outliers.go flags records above the line total = elapsed + threshold,
// describes the distribution of total−elapsed among them and narrows them
// to a band around the mean difference.
//
// stages.go averages each stage label across all records (same-label
// columns are summed per record first) and ranks labels descending.
//
// overview.go summarizes the dataset (count, duration, mean/median/min/max).
//
// pipeline.go wires the steps together: Run(table, Options) returns a
// Result or a *StageError naming the step that failed.
//
// Every function here is pure. An empty table is valid input: slices come
// back empty and statistics come back NaN, never 0.
package compute
