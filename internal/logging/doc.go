// Package logging assembles structured slog loggers and formatting helpers used
// across Courtside.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so upload and polling code can tag log
// lines with job IDs, upload phases, and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
