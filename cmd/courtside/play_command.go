package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"courtside/internal/playback"
	"courtside/internal/services"
)

func newPlayCommand(ctx *commandContext) *cobra.Command {
	var at float64
	var dryRun bool
	var player string

	cmd := &cobra.Command{
		Use:   "play <id>",
		Short: "Play the analyzed video of a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				job, err := s.store.Refresh(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				controller, err := playback.New(job,
					playback.FFprobeProber{Binary: s.cfg.Playback.FFprobeBinary},
					playback.WithSource(s.client.ArtifactURL(job.ArtifactRef)),
					playback.WithLogger(s.logger),
				)
				if err != nil {
					return err
				}
				if err := <-controller.Probe(cmd.Context()); err != nil {
					return err
				}
				state := controller.Seek(at)

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %s / %s\n", job.DisplayTitle(), playback.FormatTime(state.Position().Seconds()), playback.FormatTime(state.DurationSeconds))

				name := strings.TrimSpace(player)
				if name == "" {
					name = s.cfg.Playback.Player
				}
				if dryRun {
					fmt.Fprintln(out, strings.Join(controller.PlayerCommand(cmd.Context(), name).Args, " "))
					return nil
				}
				return runPlayer(cmd, controller, name)
			})
		},
	}

	cmd.Flags().Float64Var(&at, "at", 0, "Start position as a fraction of the duration (0-1)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the player command instead of running it")
	cmd.Flags().StringVar(&player, "player", "", "Player executable (default playback.player)")
	return cmd
}

// runPlayer plays from the current position and advances the controller from
// wall-clock time until the player exits.
func runPlayer(cmd *cobra.Command, controller *playback.Controller, player string) error {
	state := controller.TogglePlay()
	startFraction := state.PositionFraction
	duration := state.DurationSeconds

	proc := controller.PlayerCommand(cmd.Context(), player)
	proc.Stdout = cmd.ErrOrStderr()
	proc.Stderr = cmd.ErrOrStderr()
	if err := proc.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "play", "start "+player, err)
	}

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	started := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var waitErr error
loop:
	for {
		select {
		case <-ticker.C:
			elapsed := time.Since(started).Seconds()
			controller.OnProgress(startFraction + elapsed/duration)
		case waitErr = <-done:
			break loop
		}
	}

	final := controller.State()
	if final.Playing {
		final = controller.TogglePlay()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stopped at %s / %s\n",
		playback.FormatTime(math.Min(final.Position().Seconds(), duration)),
		playback.FormatTime(duration),
	)

	if waitErr != nil && !errors.Is(cmd.Context().Err(), context.Canceled) {
		return services.Wrap(services.ErrExternalTool, "play", player+" exited", waitErr)
	}
	return nil
}
