// Package config loads, normalizes, and validates Courtside configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// COURTSIDE_API_TOKEN. The Config type centralizes every knob the CLI needs,
// from the pipeline endpoint to polling retry budgets, so they are resolved in
// one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
