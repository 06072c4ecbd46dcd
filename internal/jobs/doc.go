// Package jobs tracks remote analysis jobs for the current session.
//
// Store is the single owner of cached job records. Refresh coalesces
// concurrent fetches of the same job, and every update passes through one
// merge rule: a job that reached completed or failed never moves back.
// Subscribe turns polling into a cancellable iterator with a bounded retry
// budget per cycle, so a flaky network surfaces as a FetchError instead of a
// silently stale status.
package jobs
