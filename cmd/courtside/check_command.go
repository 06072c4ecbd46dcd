package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"courtside/internal/notifications"
	"courtside/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check pipeline access and local prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				for _, line := range renderSectionHeader("Preflight", colorize) {
					fmt.Fprintln(out, line)
				}
				results := preflight.RunAll(cmd.Context(), s.cfg, s.client)
				for _, result := range results {
					fmt.Fprintln(out, renderResultLine(result, colorize))
				}

				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Integrations", colorize) {
					fmt.Fprintln(out, line)
				}
				if notifications.IsEnabled(s.notifier) {
					fmt.Fprintln(out, renderStatusLine("Notifications", statusOK, s.cfg.Notifications.NtfyTopic, colorize))
				} else {
					fmt.Fprintln(out, renderStatusLine("Notifications", statusInfo, "Disabled (notifications.ntfy_topic not set)", colorize))
				}
				switch {
				case s.publisher != nil && s.cfg.Events.NATSURL != "":
					fmt.Fprintln(out, renderStatusLine("Events", statusOK, fmt.Sprintf("%s on %s.*", s.cfg.Events.NATSURL, s.cfg.Events.Subject), colorize))
				case s.cfg.Events.NATSURL != "":
					fmt.Fprintln(out, renderStatusLine("Events", statusWarn, "Unreachable "+s.cfg.Events.NATSURL, colorize))
				default:
					fmt.Fprintln(out, renderStatusLine("Events", statusInfo, "Disabled (events.nats_url not set)", colorize))
				}
				if s.cache != nil {
					fmt.Fprintln(out, renderStatusLine("Job cache", statusOK, s.cache.Path(), colorize))
				} else {
					fmt.Fprintln(out, renderStatusLine("Job cache", statusInfo, "Disabled", colorize))
				}

				if preflight.Failed(results) {
					return errors.New("preflight checks failed")
				}
				return nil
			})
		},
	}
}

func renderResultLine(result preflight.Result, colorize bool) string {
	switch {
	case result.Passed:
		return renderStatusLine(result.Name, statusOK, result.Detail, colorize)
	case result.Optional:
		return renderStatusLine(result.Name, statusWarn, result.Detail, colorize)
	default:
		return renderStatusLine(result.Name, statusError, result.Detail, colorize)
	}
}
