// Package services defines shared utilities consumed by the upload, polling,
// and playback packages.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, upload phases, and correlation
//     identifiers for logging and request tracing.
//   - Sentinel error kinds, the RemoteError type, and the Wrap helper so every
//     failure can be classified with errors.Is.
//   - UserMessage, which turns any of those errors into an actionable line for
//     the CLI.
package services
