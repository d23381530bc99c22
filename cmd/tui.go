package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/desertthunder/jukebox/internal/tasks"
	"github.com/desertthunder/jukebox/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for voting and adding songs.
//
// The manual tick key is enabled when a playback device can be reached. With --loop the reconciler also runs in
// this process and its results stream into the status line.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	jb, err := r.newJukebox(ctx, cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := ui.Options{ClientID: cmd.String("client-id")}

	var updates chan tasks.TickResult
	if cmd.Bool("loop") {
		updates = make(chan tasks.TickResult, 8)
	}

	rec, err := r.newReconciler(ctx, cmd, updates)
	switch {
	case err != nil && cmd.Bool("loop"):
		return err
	case err != nil:
		r.logger.Warn("manual ticks disabled", "error", err)
	default:
		opts.Ticker = rec
	}

	if updates != nil {
		opts.Updates = updates
		go rec.Run(ctx)
	}

	return ui.Run(ctx, jb, opts)
}
