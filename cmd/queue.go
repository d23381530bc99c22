package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/jukebox/internal/formatter"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/urfave/cli/v3"
)

// QueueList prints the ranked queue in play order.
func (r *Runner) QueueList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	jb, err := r.newJukebox(ctx, cmd)
	if err != nil {
		return err
	}

	rows, err := jb.Queue(ctx, cmd.String("client-id"))
	if err != nil {
		return err
	}

	data, err := formatter.ExportQueue(format, rows)
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteFile(path, format, data)
		if err != nil {
			return err
		}
		r.logger.Info("queue exported", "path", written, "songs", len(rows))
		return r.writePlain("✓ Queue written to %s\n", written)
	}

	if len(rows) == 0 && format == formatter.FormatText {
		return r.writePlain("The queue is empty\n")
	}
	return formatter.Write(r.output, data)
}

// QueueAdd admits a song by link, URI or bare id.
func (r *Runner) QueueAdd(ctx context.Context, cmd *cli.Command) error {
	link := strings.TrimSpace(cmd.StringArg("link"))
	if link == "" {
		return fmt.Errorf("%w: a Spotify track link is required", shared.ErrMissingArgument)
	}

	jb, err := r.newJukebox(ctx, cmd)
	if err != nil {
		return err
	}

	added, err := jb.AdmitLink(ctx, link)
	if err != nil {
		return err
	}
	if !added {
		return r.writePlain("⚠ Already queued or played in the last %s\n", r.config.Jukebox.ReplayWindow)
	}
	return r.writePlain("✓ Added to the queue\n")
}

// QueueVote records a vote from --client-id.
func (r *Runner) QueueVote(ctx context.Context, cmd *cli.Command) error {
	songID := strings.TrimSpace(cmd.StringArg("song-id"))
	if songID == "" {
		return fmt.Errorf("%w: song id is required", shared.ErrMissingArgument)
	}

	value, err := parseVote(cmd.StringArg("value"))
	if err != nil {
		return err
	}

	jb, err := r.newJukebox(ctx, cmd)
	if err != nil {
		return err
	}

	ok, err := jb.Vote(ctx, songID, cmd.String("client-id"), value)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrNotQueued, songID)
	}
	return r.writePlain("✓ Voted %+d on %s\n", value, songID)
}

// QueueVotes prints the entry for a queued song and each client's vote on it.
func (r *Runner) QueueVotes(ctx context.Context, cmd *cli.Command) error {
	link := strings.TrimSpace(cmd.StringArg("link"))
	if link == "" {
		return fmt.Errorf("%w: a Spotify track link is required", shared.ErrMissingArgument)
	}

	songID, err := shared.ExtractTrackID(link)
	if err != nil {
		return err
	}

	jb, err := r.newJukebox(ctx, cmd)
	if err != nil {
		return err
	}

	entry, votes, err := jb.Ballot(ctx, songID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"entry": entry, "votes": votes}, true)
	}

	sum := 0
	for _, v := range votes {
		sum += v.Value
	}

	r.writePlainHeader(fmt.Sprintf("Votes on %s (#%d)", songID, entry.Ordinal))
	for _, v := range votes {
		r.writePlain("%+4d  %s\n", v.Value, v.ClientID)
	}
	return r.writePlainln("%d vote(s), sum %+d", len(votes), sum)
}

// QueueRemove deletes a song's entry by hand. This is how an entry left behind by a failed dequeue is cleared.
func (r *Runner) QueueRemove(ctx context.Context, cmd *cli.Command) error {
	link := strings.TrimSpace(cmd.StringArg("link"))
	if link == "" {
		return fmt.Errorf("%w: a Spotify track link is required", shared.ErrMissingArgument)
	}

	jb, err := r.newJukebox(ctx, cmd)
	if err != nil {
		return err
	}

	songID, err := jb.RemoveLink(ctx, link)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Removed %s from the queue\n", songID)
}

// parseVote accepts up/down/clear or any integer. Negative numbers must follow "--" on the command line.
func parseVote(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, fmt.Errorf("%w: vote value is required", shared.ErrMissingArgument)
	case "up", "+":
		return 1, nil
	case "down", "-":
		return -1, nil
	case "clear", "none":
		return 0, nil
	}

	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: vote must be up, down, clear or an integer, got %q", shared.ErrInvalidArgument, s)
	}
	return v, nil
}

// QueueTick runs one reconciliation tick and reports its outcome.
func (r *Runner) QueueTick(ctx context.Context, cmd *cli.Command) error {
	rec, err := r.newReconciler(ctx, cmd, nil)
	if err != nil {
		return err
	}

	result := rec.Tick(ctx)

	if cmd.Bool("json") {
		out := map[string]any{"outcome": result.Outcome.String()}
		if result.Song != nil {
			out["song"] = result.Song
			out["at"] = result.At
		}
		if result.Err != nil {
			out["error"] = result.Err.Error()
		}
		if len(result.Errors) > 0 {
			msgs := make([]string, len(result.Errors))
			for i, e := range result.Errors {
				msgs[i] = e.Error()
			}
			out["warnings"] = msgs
		}
		return r.writeJSON(out, true)
	}

	r.writePlain("%s\n", result.String())
	if result.Err != nil {
		r.writePlain("  reason: %v\n", result.Err)
	}
	for _, e := range result.Errors {
		r.writePlain("  warning: %v\n", e)
	}
	return nil
}

// LedgerList prints recent injections joined with their songs.
func (r *Runner) LedgerList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	limit := int(cmd.Int("limit"))
	if limit <= 0 {
		return fmt.Errorf("%w: --limit must be positive", shared.ErrInvalidArgument)
	}

	store, err := r.openStore(cmd)
	if err != nil {
		return err
	}

	injections, err := store.Ledger.Recent(ctx, limit)
	if err != nil {
		return err
	}

	entries := make([]formatter.LedgerEntry, 0, len(injections))
	for _, inj := range injections {
		entry := formatter.LedgerEntry{Injection: inj}
		if song, err := store.Songs.Get(ctx, inj.SongID); err == nil {
			entry.Song = song
		} else {
			r.logger.Debug("ledger song lookup failed", "song_id", inj.SongID, "error", err)
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 && format == formatter.FormatText {
		return r.writePlain("Nothing has been injected yet\n")
	}

	data, err := formatter.ExportLedger(format, entries)
	if err != nil {
		return err
	}
	return formatter.Write(r.output, data)
}
