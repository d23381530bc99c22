package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/metrics"
	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/repositories"
	"github.com/desertthunder/jukebox/internal/services"
	"github.com/desertthunder/jukebox/internal/shared"
)

// DefaultReplayWindow is how long a song stays ineligible for admission after it was injected.
const DefaultReplayWindow = 30 * time.Minute

// JukeboxOptions configures a [Jukebox]. Zero values select defaults.
type JukeboxOptions struct {
	ReplayWindow time.Duration
	Clock        func() time.Time
	Logger       *log.Logger
}

// Jukebox implements the client-facing operations: admission, voting and listing.
//
// It holds no locks. Concurrent admissions of the same song are settled by the queue's UNIQUE constraint and
// concurrent votes by the vote upsert.
type Jukebox struct {
	store        *repositories.Store
	catalog      services.Catalog
	replayWindow time.Duration
	now          func() time.Time
	logger       *log.Logger
}

// NewJukebox creates a Jukebox. catalog may be nil, in which case only songs already in the catalog can be admitted.
func NewJukebox(store *repositories.Store, catalog services.Catalog, opts JukeboxOptions) *Jukebox {
	if opts.ReplayWindow <= 0 {
		opts.ReplayWindow = DefaultReplayWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Jukebox{
		store:        store,
		catalog:      catalog,
		replayWindow: opts.ReplayWindow,
		now:          opts.Clock,
		logger:       opts.Logger,
	}
}

// Admit adds songID to the ranked queue.
//
// Returns false without error when the song is already queued or was injected less than the replay window ago.
// An id missing from the catalog is resolved through the [services.Catalog] first; an unknown track returns
// [shared.ErrTrackNotFound].
func (j *Jukebox) Admit(ctx context.Context, songID string) (bool, error) {
	if songID == "" {
		return false, fmt.Errorf("%w: song id is required", shared.ErrInvalidInput)
	}

	song, err := j.ensureSong(ctx, songID)
	if err != nil {
		metrics.RecordAdmission("error")
		return false, err
	}

	queued, err := j.store.Queue.Contains(ctx, songID)
	if err != nil {
		metrics.RecordAdmission("error")
		return false, fmt.Errorf("failed to admit song: %w", err)
	}
	if queued {
		metrics.RecordAdmission("duplicate")
		j.logger.Debug("song already queued", "song", songID)
		return false, nil
	}

	if song.PlayedWithin(j.now(), j.replayWindow) {
		metrics.RecordAdmission("recently_played")
		j.logger.Debug("song played too recently", "song", songID, "last_played", song.LastPlayed)
		return false, nil
	}

	if _, err := j.store.Queue.Admit(ctx, songID); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			metrics.RecordAdmission("duplicate")
			return false, nil
		}
		metrics.RecordAdmission("error")
		return false, fmt.Errorf("failed to admit song: %w", err)
	}

	metrics.RecordAdmission("admitted")
	j.logger.Info("song admitted", "song", songID, "title", song.String())
	return true, nil
}

// AdmitLink parses a Spotify link, URI or bare id and admits the track. See [shared.ExtractTrackID].
func (j *Jukebox) AdmitLink(ctx context.Context, link string) (bool, error) {
	id, err := shared.ExtractTrackID(link)
	if err != nil {
		return false, err
	}
	return j.Admit(ctx, id)
}

// ensureSong returns the catalog row for songID, resolving and inserting it when absent.
func (j *Jukebox) ensureSong(ctx context.Context, songID string) (*models.Song, error) {
	song, err := j.store.Songs.Get(ctx, songID)
	if err == nil {
		return song, nil
	}
	if !errors.Is(err, shared.ErrTrackNotFound) {
		return nil, fmt.Errorf("failed to load song: %w", err)
	}
	if j.catalog == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, songID)
	}

	resolved, err := j.catalog.ResolveTrack(ctx, songID)
	if err != nil {
		return nil, err
	}
	resolved.ID = songID

	song, err = j.store.Songs.Ensure(ctx, *resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to store song: %w", err)
	}
	return song, nil
}

// Vote records clientID's vote on songID, replacing the client's earlier vote.
//
// Returns false without error when the song is not queued. Any integer is accepted.
func (j *Jukebox) Vote(ctx context.Context, songID, clientID string, value int) (bool, error) {
	if clientID == "" {
		return false, shared.ErrMissingClientID
	}
	if songID == "" {
		return false, fmt.Errorf("%w: song id is required", shared.ErrInvalidInput)
	}

	if err := j.store.Queue.Vote(ctx, songID, clientID, value); err != nil {
		if errors.Is(err, shared.ErrNotQueued) {
			metrics.RecordVote("not_queued")
			return false, nil
		}
		metrics.RecordVote("error")
		return false, fmt.Errorf("failed to vote: %w", err)
	}

	metrics.RecordVote("recorded")
	j.logger.Debug("vote recorded", "song", songID, "client", clientID, "vote", value)
	return true, nil
}

// Queue lists the ranked queue as seen by clientID (vote sum descending, then admission order).
func (j *Jukebox) Queue(ctx context.Context, clientID string) ([]models.RankedSong, error) {
	rows, err := j.store.Queue.Ranked(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	metrics.SetQueueLength(len(rows))
	return rows, nil
}

// Next returns the song the next injection would pick, or nil when nothing is eligible. Entries whose song was
// injected within the replay window are skipped, as the reconciler skips them.
func (j *Jukebox) Next(ctx context.Context) (*models.Song, error) {
	now := j.now()
	next, err := SelectNext(ctx, j.store.Queue, func(row models.RankedSong) bool {
		return !row.PlayedWithin(now, j.replayWindow)
	})
	if err != nil || next == nil {
		return nil, err
	}
	return &next.Song, nil
}

// Remove deletes songID's queue entry and its votes. It is how an operator clears an entry the reconciler
// injected but could not dequeue. Returns [shared.ErrNotQueued] when the song has no entry.
func (j *Jukebox) Remove(ctx context.Context, songID string) error {
	if err := j.store.Queue.Remove(ctx, songID); err != nil {
		return fmt.Errorf("failed to remove song: %w", err)
	}

	if n, err := j.store.Queue.Len(ctx); err == nil {
		metrics.SetQueueLength(n)
	}
	j.logger.Info("song removed", "song", songID)
	return nil
}

// RemoveLink parses a Spotify link, URI or bare id and removes the track's entry.
func (j *Jukebox) RemoveLink(ctx context.Context, link string) (string, error) {
	id, err := shared.ExtractTrackID(link)
	if err != nil {
		return "", err
	}
	return id, j.Remove(ctx, id)
}

// Ballot returns songID's queue entry with every vote cast on it, ordered by client id.
func (j *Jukebox) Ballot(ctx context.Context, songID string) (*models.QueueEntry, []models.Vote, error) {
	entry, err := j.store.Queue.Entry(ctx, songID)
	if err != nil {
		return nil, nil, err
	}

	votes, err := j.store.Queue.Votes(ctx, songID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list votes: %w", err)
	}
	return entry, votes, nil
}
