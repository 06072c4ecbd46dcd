// Package notifications delivers job lifecycle milestones via ntfy.
//
// The default implementation publishes to the ntfy topic URL configured in
// config.toml and degrades to a no-op when no topic is set. Per-milestone
// toggles (uploads, completions, failures) are honoured by the ntfy
// implementation; callers depend only on the Service interface.
package notifications
