package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courtside/internal/jobs"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOut bool
	var cachedOnly bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				var list []jobs.Job
				if cachedOnly {
					if s.cache == nil {
						return fmt.Errorf("--cached requires cache.enabled = true")
					}
					list = s.store.ListAll()
				} else {
					synced, err := s.store.Sync(cmd.Context())
					if err != nil {
						return err
					}
					list = synced
				}

				list, err := filterByStatus(list, statuses)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, newJobViews(list, s.client))
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs found")
					return nil
				}
				fmt.Fprintln(out, renderJobTable(list))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show jobs with these statuses (queued, processing, completed, failed)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print jobs as JSON")
	cmd.Flags().BoolVar(&cachedOnly, "cached", false, "Show the local job cache without contacting the pipeline")
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var cachedOnly bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize jobs by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				if !cachedOnly {
					if _, err := s.store.Sync(cmd.Context()); err != nil {
						return err
					}
				}
				stats := s.store.Stats()
				if jsonOut {
					return writeJSON(cmd, map[string]int{
						"total":      stats.Total,
						"queued":     stats.Queued,
						"processing": stats.Processing,
						"completed":  stats.Completed,
						"failed":     stats.Failed,
					})
				}
				rows := [][]string{
					{"Total Videos", fmt.Sprint(stats.Total)},
					{jobs.StatusCompleted.Label(), fmt.Sprint(stats.Completed)},
					{jobs.StatusProcessing.Label(), fmt.Sprint(stats.Processing)},
					{jobs.StatusQueued.Label(), fmt.Sprint(stats.Queued)},
					{jobs.StatusFailed.Label(), fmt.Sprint(stats.Failed)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print counts as JSON")
	cmd.Flags().BoolVar(&cachedOnly, "cached", false, "Count cached jobs without contacting the pipeline")
	return cmd
}
