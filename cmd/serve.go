package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/jukebox/internal/server"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/desertthunder/jukebox/internal/tasks"
	"github.com/urfave/cli/v3"
)

// shutdownTimeout bounds graceful shutdown of the API server.
const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP API and the reconciliation loop under one supervisor until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := r.configure(cmd)
	if err != nil {
		return err
	}

	jb, err := r.newJukebox(ctx, cmd)
	if err != nil {
		return err
	}

	opts := server.Options{
		Host:               config.Server.Host,
		Port:               config.Server.Port,
		CORSOrigins:        config.Server.CORSOrigins,
		RateLimitPerMinute: config.Server.RateLimitPerMinute,
		Logger:             shared.WithLogger(r.logger, "component", "api"),
	}
	if host := cmd.String("host"); host != "" {
		opts.Host = host
	}
	if port := int(cmd.Int("port")); port > 0 {
		opts.Port = port
	}
	api := server.New(jb, opts)

	sup := tasks.NewSupervisor(shared.SlogLogger(r.logger), tasks.SupervisorConfig{ShutdownTimeout: shutdownTimeout})
	sup.Add(tasks.NewHTTPServerService(api.HTTPServer(), shutdownTimeout))

	if cmd.Bool("no-loop") {
		r.logger.Warn("reconciliation loop disabled, songs will not reach the device")
	} else {
		rec, err := r.newReconciler(ctx, cmd, nil)
		if err != nil {
			return err
		}
		sup.Add(tasks.NewReconcileService(rec))
	}

	r.writePlain("→ Serving the queue on http://%s\n", api.Addr())
	r.logger.Info("jukebox started", "addr", api.Addr(), "tick_interval", config.Jukebox.TickInterval)

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor stopped: %w", err)
	}

	r.logger.Info("jukebox stopped")
	return nil
}
