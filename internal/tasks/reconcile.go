package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/metrics"
	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/repositories"
	"github.com/desertthunder/jukebox/internal/services"
	"github.com/desertthunder/jukebox/internal/shared"
)

const (
	DefaultTickInterval = 10 * time.Second
	DefaultTickTimeout  = 8 * time.Second
	DefaultLedgerKeep   = 50
)

// ReconcilerOptions configures a [Reconciler]. Zero values select defaults.
type ReconcilerOptions struct {
	Interval   time.Duration
	Timeout    time.Duration // Per-tick deadline
	LedgerKeep int           // Ledger records kept after each injection
	// ReplayWindow keeps a queued song out of selection while its last injection is this recent. It only
	// matters for entries a failed commit left behind, since admission already refuses such songs.
	ReplayWindow time.Duration
	Clock      func() time.Time
	Logger     *log.Logger

	// Updates receives every tick result. Sends never block; results are dropped when the channel is full.
	Updates chan<- TickResult
}

// Reconciler keeps the device's next slot filled from the ranked queue.
//
// Ticks never overlap: [Reconciler.Run] drives them from one goroutine and [Reconciler.Tick] holds a mutex, so a
// manual tick waits for a scheduled one.
type Reconciler struct {
	store  *repositories.Store
	player services.Player
	opts   ReconcilerOptions
	logger *log.Logger

	mu sync.Mutex
	// stranded holds the ordinals of entries that were injected but could not be removed. They are never
	// picked again and are forgotten once the entry leaves the queue. Guarded by mu.
	stranded map[int64]string
}

// NewReconciler creates a Reconciler over store and player.
func NewReconciler(store *repositories.Store, player services.Player, opts ReconcilerOptions) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultTickInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTickTimeout
	}
	if opts.LedgerKeep <= 0 {
		opts.LedgerKeep = DefaultLedgerKeep
	}
	if opts.ReplayWindow <= 0 {
		opts.ReplayWindow = DefaultReplayWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Reconciler{
		store:    store,
		player:   player,
		opts:     opts,
		logger:   opts.Logger,
		stranded: make(map[int64]string),
	}
}

// Run ticks immediately and then every interval until ctx is cancelled.
//
// Cancellation is observed between ticks; a tick in flight runs to completion under its own timeout.
// A panicking tick is logged and the loop continues. Run only returns ctx.Err().
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.opts.Interval)
	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("reconciler stopped")
			return err
		}

		r.safeTick(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) safeTick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("reconciliation tick panicked", "panic", rec)
			metrics.RecordTick(OutcomeError.String(), 0, time.Time{})
		}
	}()
	r.Tick(ctx)
}

// Tick runs one reconciliation step and reports what it did. It never returns an error: failures are logged and
// expressed through [TickResult.Outcome].
func (r *Reconciler) Tick(ctx context.Context) TickResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	result := r.tick(ctx)
	metrics.RecordTick(result.Outcome.String(), time.Since(start), result.injectedAt())

	switch result.Outcome {
	case OutcomeInjected:
		r.logger.Info("injected song", "song", result.Song.ID, "title", result.Song.String(), "errors", len(result.Errors))
	case OutcomeSlotFilled, OutcomeQueueEmpty:
		r.logger.Debug("no action", "outcome", result.Outcome)
	case OutcomeNoDevice:
		r.logger.Warn("no active device; start playback on any device of the account", "song", result.Song.ID)
	default:
		r.logger.Warn("tick took no action", "outcome", result.Outcome, "error", result.Err)
	}

	r.publish(result)
	return result
}

func (r *Reconciler) tick(ctx context.Context) TickResult {
	snapshot, err := r.player.PeekQueue(ctx)
	if err != nil {
		return TickResult{Outcome: OutcomeDeviceUnknown, Err: fmt.Errorf("failed to read device queue: %w", err)}
	}

	recent, err := r.store.Ledger.RecentSongIDs(ctx, pendingWindow)
	if err != nil {
		return TickResult{Outcome: OutcomeError, Err: err}
	}

	if NextSlotFilled(snapshot, recent) {
		return TickResult{Outcome: OutcomeSlotFilled}
	}

	next, err := r.selectNext(ctx)
	if err != nil {
		return TickResult{Outcome: OutcomeError, Err: err}
	}
	if next == nil {
		return TickResult{Outcome: OutcomeQueueEmpty}
	}
	song := &next.Song

	if err := r.player.Push(ctx, *song); err != nil {
		outcome := OutcomePushFailed
		if errors.Is(err, shared.ErrNoActiveDevice) {
			outcome = OutcomeNoDevice
		}
		return TickResult{Outcome: outcome, Song: song, Err: fmt.Errorf("failed to push %s: %w", song.ID, err)}
	}

	at := r.opts.Clock().UTC()
	errs := r.commit(ctx, next, at)

	played := at
	song.LastPlayed = &played
	return TickResult{Outcome: OutcomeInjected, Song: song, At: at, Errors: errs}
}

// selectNext picks among the queued entries that are neither stranded nor recently injected. Stranded ordinals
// that no longer appear in the queue are dropped.
func (r *Reconciler) selectNext(ctx context.Context) (*models.RankedSong, error) {
	now := r.opts.Clock()
	seen := make(map[int64]bool, len(r.stranded))

	next, err := SelectNext(ctx, r.store.Queue, func(row models.RankedSong) bool {
		if _, ok := r.stranded[row.Ordinal]; ok {
			seen[row.Ordinal] = true
			return false
		}
		return !row.PlayedWithin(now, r.opts.ReplayWindow)
	})
	if err != nil {
		return nil, err
	}

	for ordinal, songID := range r.stranded {
		if !seen[ordinal] {
			delete(r.stranded, ordinal)
			r.logger.Info("stranded queue entry resolved", "song", songID, "ordinal", ordinal)
		}
	}
	return next, nil
}

// commit records a successful push. Each step runs even when an earlier one fails, and failures are only
// collected. A failed queue removal leaves the entry and its votes in place; the entry is marked stranded and
// is not picked again until it is removed by hand.
func (r *Reconciler) commit(ctx context.Context, next *models.RankedSong, at time.Time) []error {
	var errs []error
	song := &next.Song

	if _, err := r.store.Ledger.Append(ctx, song.ID, at); err != nil {
		r.logger.Error("failed to record injection", "song", song.ID, "error", err)
		errs = append(errs, err)
	}

	if err := r.store.Queue.Remove(ctx, song.ID); err != nil {
		r.logger.Error("failed to remove injected song from queue; remove it by hand", "song", song.ID, "error", err)
		r.stranded[next.Ordinal] = song.ID
		errs = append(errs, err)
	}

	if err := r.store.Songs.SetLastPlayed(ctx, song.ID, at); err != nil {
		r.logger.Error("failed to update last_played", "song", song.ID, "error", err)
		errs = append(errs, err)
	}

	if removed, err := r.store.Ledger.Prune(ctx, r.opts.LedgerKeep); err != nil {
		r.logger.Warn("failed to prune injection ledger", "error", err)
		errs = append(errs, err)
	} else if removed > 0 {
		r.logger.Debug("pruned injection ledger", "removed", removed)
	}

	if n, err := r.store.Queue.Len(ctx); err == nil {
		metrics.SetQueueLength(n)
	}
	return errs
}

// publish sends result on the updates channel without blocking.
func (r *Reconciler) publish(result TickResult) {
	if r.opts.Updates == nil {
		return
	}
	select {
	case r.opts.Updates <- result:
	default:
	}
}

func (r TickResult) injectedAt() time.Time {
	if r.Outcome != OutcomeInjected {
		return time.Time{}
	}
	return r.At
}
