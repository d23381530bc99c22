// submodule cmd contains command definitions
package main

import (
	"fmt"
	"strings"

	"github.com/desertthunder/jukebox/internal/formatter"
	"github.com/urfave/cli/v3"
)

// formatUsage lists the accepted --format values.
func formatUsage() string {
	names := make([]string, len(formatter.Formats))
	for i, f := range formatter.Formats {
		names[i] = string(f)
	}
	return fmt.Sprintf("Output format (%s)", strings.Join(names, ", "))
}

// setupCommand prepares the local database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Create the database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration",
					},
					&cli.BoolFlag{
						Name:  "status",
						Usage: "Show applied and pending migrations",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// spotifyCommand handles Spotify account and device operations
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify account and device operations",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Authenticate with Spotify using OAuth2",
				Action: r.SpotifyAuth,
			},
			{
				Name:  "me",
				Usage: "Show the authenticated Spotify account",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SpotifyProfile,
			},
			{
				Name:  "peek",
				Usage: "Show what the active device is playing and has queued",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SpotifyPeek,
			},
		},
	}
}

// serveCommand runs the HTTP API and the reconciliation loop
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the queue API and keep the device's queue filled",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides server.port)",
			},
			&cli.BoolFlag{
				Name:  "no-loop",
				Usage: "Serve the API without the reconciliation loop",
			},
		},
		Action: r.Serve,
	}
}

func clientIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "client-id",
		Usage: "Identity votes are recorded under",
		Value: "cli",
	}
}

// queueCommand manages the ranked queue
func queueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "queue",
		Aliases: []string{"q"},
		Usage:   "Ranked queue operations",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List the queue in play order",
				Flags: []cli.Flag{
					clientIDFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   formatUsage(),
						Value:   string(formatter.FormatText),
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.QueueList,
			},
			{
				Name:  "add",
				Usage: "Add a song by Spotify link, URI or id",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "link",
					},
				},
				Action: r.QueueAdd,
			},
			{
				Name:      "vote",
				Usage:     "Vote on a queued song (up, down, clear or an integer)",
				ArgsUsage: "<song-id> <value>",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "song-id",
					},
					&cli.StringArg{
						Name: "value",
					},
				},
				Flags:  []cli.Flag{clientIDFlag()},
				Action: r.QueueVote,
			},
			{
				Name:  "votes",
				Usage: "Show every vote cast on a queued song",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "link",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.QueueVotes,
			},
			{
				Name:    "remove",
				Aliases: []string{"rm"},
				Usage:   "Remove a song and its votes from the queue",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "link",
					},
				},
				Action: r.QueueRemove,
			},
			{
				Name:  "tick",
				Usage: "Run one reconciliation tick now",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.QueueTick,
			},
		},
	}
}

// ledgerCommand shows injection history
func ledgerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Injection history",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List recently injected songs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of entries",
						Value:   20,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   formatUsage(),
						Value:   string(formatter.FormatText),
					},
				},
				Action: r.LedgerList,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for the interactive queue.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for voting and adding songs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "client-id",
				Usage: "Identity votes are recorded under (random when empty)",
			},
			&cli.BoolFlag{
				Name:  "loop",
				Usage: "Run the reconciliation loop inside the TUI process",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where logs go while the TUI owns the terminal",
				Value: "./tmp/jukebox-tui.log",
			},
		},
		Action: r.TUI,
	}
}
