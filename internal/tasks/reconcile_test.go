package tasks

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/repositories"
	"github.com/desertthunder/jukebox/internal/shared"
	tu "github.com/desertthunder/jukebox/internal/testing"
)

// funcPlayer adapts plain functions to [services.Player].
type funcPlayer struct {
	peek func(ctx context.Context) (models.Snapshot, error)
	push func(ctx context.Context, song models.Song) error
}

func (f funcPlayer) PeekQueue(ctx context.Context) (models.Snapshot, error) { return f.peek(ctx) }
func (f funcPlayer) Push(ctx context.Context, song models.Song) error       { return f.push(ctx, song) }

func newTestReconciler(t *testing.T, store *repositories.Store, player *tu.MockPlayer) *Reconciler {
	t.Helper()
	return NewReconciler(store, player, ReconcilerOptions{
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
		Clock:    func() time.Time { return testNow },
		Logger:   log.New(io.Discard),
	})
}

func admitAll(t *testing.T, store *repositories.Store, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		if _, err := store.Songs.Ensure(ctx, models.NewSong(id, "Song "+id, "Artist "+id)); err != nil {
			t.Fatalf("failed to seed %s: %v", id, err)
		}
		if _, err := store.Queue.Admit(ctx, id); err != nil {
			t.Fatalf("failed to admit %s: %v", id, err)
		}
	}
}

func TestReconcilerTick(t *testing.T) {
	ctx := context.Background()

	t.Run("injects highest voted song and commits", func(t *testing.T) {
		_, store := tu.MustOpenStore(t)
		player := &tu.MockPlayer{}
		r := newTestReconciler(t, store, player)

		admitAll(t, store, "A")
		store.Queue.Vote(ctx, "A", "c1", 1)
		store.Queue.Vote(ctx, "A", "c2", 5)
		admitAll(t, store, "B")
		store.Queue.Vote(ctx, "B", "c1", -1)

		rows, _ := store.Queue.Ranked(ctx, "")
		if rows[0].ID != "A" || rows[0].VoteSum != 6 {
			t.Fatalf("expected A with vote sum 6 first, got %+v", rows[0])
		}

		result := r.Tick(ctx)
		if result.Outcome != OutcomeInjected || result.Song.ID != "A" {
			t.Fatalf("expected injection of A, got %v (%v)", result, result.Err)
		}
		if len(result.Errors) != 0 {
			t.Errorf("expected no commit errors, got %v", result.Errors)
		}
		if !result.At.Equal(testNow) {
			t.Errorf("expected tick time %v, got %v", testNow, result.At)
		}

		if got := player.PushedIDs(); len(got) != 1 || got[0] != "A" {
			t.Errorf("expected [A] pushed, got %v", got)
		}

		rows, _ = store.Queue.Ranked(ctx, "")
		if len(rows) != 1 || rows[0].ID != "B" {
			t.Errorf("expected only B queued, got %+v", rows)
		}

		recent, _ := store.Ledger.RecentSongIDs(ctx, 10)
		if len(recent) != 1 || recent[0] != "A" {
			t.Errorf("expected ledger [A], got %v", recent)
		}

		song, err := store.Songs.Get(ctx, "A")
		if err != nil {
			t.Fatalf("failed to load A: %v", err)
		}
		if song.LastPlayed == nil || !song.LastPlayed.Equal(testNow) {
			t.Errorf("expected last_played %v, got %v", testNow, song.LastPlayed)
		}
	})

	t.Run("fills the slot then waits", func(t *testing.T) {
		_, store := tu.MustOpenStore(t)
		player := &tu.MockPlayer{}
		r := newTestReconciler(t, store, player)
		admitAll(t, store, "A", "B", "C")

		first := r.Tick(ctx)
		second := r.Tick(ctx)
		third := r.Tick(ctx)

		if first.Outcome != OutcomeInjected || first.Song.ID != "A" {
			t.Errorf("expected A injected first, got %v", first)
		}
		if second.Outcome != OutcomeInjected || second.Song.ID != "B" {
			t.Errorf("expected B injected second, got %v", second)
		}
		if third.Outcome != OutcomeSlotFilled {
			t.Errorf("expected slot filled, got %v", third)
		}

		player.Advance()
		fourth := r.Tick(ctx)
		if fourth.Outcome != OutcomeInjected || fourth.Song.ID != "C" {
			t.Errorf("expected C injected once A finished, got %v", fourth)
		}
	})

	t.Run("queue empty", func(t *testing.T) {
		_, store := tu.MustOpenStore(t)
		player := &tu.MockPlayer{}
		r := newTestReconciler(t, store, player)

		result := r.Tick(ctx)
		if result.Outcome != OutcomeQueueEmpty {
			t.Errorf("expected queue empty, got %v", result)
		}
		if len(player.PushedIDs()) != 0 {
			t.Error("expected nothing pushed")
		}
	})

	// An unreadable device queue is treated as unknown rather than empty: pushing blind could double-inject a
	// song that is already pending.
	t.Run("peek failure takes no action", func(t *testing.T) {
		_, store := tu.MustOpenStore(t)
		player := &tu.MockPlayer{PeekErr: shared.ErrServiceUnavailable}
		r := newTestReconciler(t, store, player)
		admitAll(t, store, "A")

		result := r.Tick(ctx)
		if result.Outcome != OutcomeDeviceUnknown {
			t.Errorf("expected device unknown, got %v", result)
		}
		if !errors.Is(result.Err, shared.ErrServiceUnavailable) {
			t.Errorf("expected wrapped ErrServiceUnavailable, got %v", result.Err)
		}
		if n, _ := store.Queue.Len(ctx); n != 1 {
			t.Errorf("expected queue untouched, got %d entries", n)
		}
	})

	pushFailures := []struct {
		name    string
		err     error
		outcome Outcome
	}{
		{name: "no active device", err: shared.ErrNoActiveDevice, outcome: OutcomeNoDevice},
		{name: "service unavailable", err: shared.ErrServiceUnavailable, outcome: OutcomePushFailed},
		{name: "api error", err: shared.ErrAPIRequest, outcome: OutcomePushFailed},
	}

	for _, tt := range pushFailures {
		t.Run("push failure "+tt.name, func(t *testing.T) {
			_, store := tu.MustOpenStore(t)
			player := &tu.MockPlayer{PushErr: tt.err}
			r := newTestReconciler(t, store, player)
			admitAll(t, store, "A")
			store.Queue.Vote(ctx, "A", "c1", 3)

			result := r.Tick(ctx)
			if result.Outcome != tt.outcome {
				t.Errorf("expected %v, got %v", tt.outcome, result.Outcome)
			}
			if result.Song == nil || result.Song.ID != "A" {
				t.Errorf("expected selected song A on the result, got %v", result.Song)
			}

			entry, err := store.Queue.Entry(ctx, "A")
			if err != nil || entry == nil {
				t.Fatalf("expected A still queued: %v", err)
			}
			votes, _ := store.Queue.Votes(ctx, "A")
			if len(votes) != 1 {
				t.Errorf("expected votes kept, got %d", len(votes))
			}
			if recent, _ := store.Ledger.RecentSongIDs(ctx, 10); len(recent) != 0 {
				t.Errorf("expected empty ledger, got %v", recent)
			}
			if song, _ := store.Songs.Get(ctx, "A"); song.LastPlayed != nil {
				t.Errorf("expected last_played unset, got %v", song.LastPlayed)
			}
		})
	}

	t.Run("commit failures do not change the outcome", func(t *testing.T) {
		db, store := tu.MustOpenStore(t)
		admitAll(t, store, "A")

		player := funcPlayer{
			peek: func(context.Context) (models.Snapshot, error) { return nil, nil },
			push: func(context.Context, models.Song) error { return db.Close() },
		}
		r := NewReconciler(store, player, ReconcilerOptions{Logger: log.New(io.Discard)})

		result := r.Tick(ctx)
		if result.Outcome != OutcomeInjected {
			t.Fatalf("expected injected, got %v (%v)", result.Outcome, result.Err)
		}
		if len(result.Errors) != 4 {
			t.Errorf("expected 4 commit errors, got %d: %v", len(result.Errors), result.Errors)
		}
	})

	t.Run("entry that cannot be dequeued is not picked again", func(t *testing.T) {
		db, store := tu.MustOpenStore(t)
		player := &tu.MockPlayer{}
		r := newTestReconciler(t, store, player)
		admitAll(t, store, "A", "B")

		if _, err := db.ExecContext(ctx, `
			CREATE TRIGGER hold_a BEFORE DELETE ON app_queue
			WHEN OLD.song_id = 'A'
			BEGIN SELECT RAISE(ABORT, 'locked'); END
		`); err != nil {
			t.Fatalf("failed to create trigger: %v", err)
		}

		first := r.Tick(ctx)
		if first.Outcome != OutcomeInjected || first.Song.ID != "A" {
			t.Fatalf("expected A injected, got %v (%v)", first, first.Err)
		}
		if len(first.Errors) != 1 {
			t.Fatalf("expected one commit error, got %v", first.Errors)
		}
		if n, _ := store.Queue.Len(ctx); n != 2 {
			t.Fatalf("expected A left in the queue, got %d entries", n)
		}

		second := r.Tick(ctx)
		if second.Outcome != OutcomeInjected || second.Song.ID != "B" {
			t.Fatalf("expected B injected next, got %v (%v)", second, second.Err)
		}

		player.Advance()
		player.Advance()
		third := r.Tick(ctx)
		if third.Outcome != OutcomeQueueEmpty {
			t.Errorf("expected nothing eligible, got %v", third)
		}
		if got := player.PushedIDs(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
			t.Errorf("expected [A B] pushed, got %v", got)
		}

		restarted := newTestReconciler(t, store, player)
		if got := restarted.Tick(ctx); got.Outcome != OutcomeQueueEmpty {
			t.Errorf("expected A held back by its replay window after restart, got %v", got)
		}

		if _, err := db.ExecContext(ctx, `DROP TRIGGER hold_a`); err != nil {
			t.Fatalf("failed to drop trigger: %v", err)
		}
		if err := store.Queue.Remove(ctx, "A"); err != nil {
			t.Fatalf("failed to remove A by hand: %v", err)
		}
		if got := r.Tick(ctx); got.Outcome != OutcomeQueueEmpty {
			t.Errorf("expected empty queue after manual removal, got %v", got)
		}
		if len(r.stranded) != 0 {
			t.Errorf("expected stranded entries forgotten, got %v", r.stranded)
		}
	})

	t.Run("songs inside the replay window are skipped", func(t *testing.T) {
		_, store := tu.MustOpenStore(t)
		player := &tu.MockPlayer{}
		now := testNow
		r := NewReconciler(store, player, ReconcilerOptions{
			Clock:  func() time.Time { return now },
			Logger: log.New(io.Discard),
		})
		admitAll(t, store, "A", "B")
		store.Queue.Vote(ctx, "A", "c1", 2)

		if err := store.Songs.SetLastPlayed(ctx, "A", testNow.Add(-29*time.Minute)); err != nil {
			t.Fatalf("failed to stamp A: %v", err)
		}
		if got := r.Tick(ctx); got.Outcome != OutcomeInjected || got.Song.ID != "B" {
			t.Fatalf("expected B while A is inside the window, got %v", got)
		}

		now = testNow.Add(time.Minute)
		player.Advance()
		if got := r.Tick(ctx); got.Outcome != OutcomeInjected || got.Song.ID != "A" {
			t.Errorf("expected A once the window has passed, got %v", got)
		}
	})

	t.Run("publishes results without blocking", func(t *testing.T) {
		_, store := tu.MustOpenStore(t)
		updates := make(chan TickResult, 1)
		r := NewReconciler(store, &tu.MockPlayer{}, ReconcilerOptions{
			Logger:  log.New(io.Discard),
			Updates: updates,
		})

		r.Tick(ctx)
		r.Tick(ctx)

		got := <-updates
		if got.Outcome != OutcomeQueueEmpty {
			t.Errorf("expected queue empty update, got %v", got)
		}
		select {
		case extra := <-updates:
			t.Errorf("expected second update to be dropped, got %v", extra)
		default:
		}
	})
}

func TestReconcilerRun(t *testing.T) {
	t.Run("ticks until cancelled", func(t *testing.T) {
		_, store := tu.MustOpenStore(t)
		admitAll(t, store, "A")

		updates := make(chan TickResult, 8)
		player := &tu.MockPlayer{}
		r := NewReconciler(store, player, ReconcilerOptions{
			Interval: 10 * time.Millisecond,
			Logger:   log.New(io.Discard),
			Updates:  updates,
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()

		select {
		case first := <-updates:
			if first.Outcome != OutcomeInjected {
				t.Errorf("expected immediate injection, got %v", first)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("expected a tick right after start")
		}

		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("expected Run to return after cancellation")
		}
	})

	t.Run("recovers from a panicking tick", func(t *testing.T) {
		_, store := tu.MustOpenStore(t)
		calls := make(chan struct{}, 8)
		player := funcPlayer{
			peek: func(context.Context) (models.Snapshot, error) {
				select {
				case calls <- struct{}{}:
				default:
				}
				panic("device exploded")
			},
			push: func(context.Context, models.Song) error { return nil },
		}
		r := NewReconciler(store, player, ReconcilerOptions{
			Interval: 5 * time.Millisecond,
			Logger:   log.New(io.Discard),
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()

		for range 2 {
			select {
			case <-calls:
			case <-time.After(2 * time.Second):
				t.Fatal("expected the loop to keep ticking after a panic")
			}
		}

		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("returns immediately on a cancelled context", func(t *testing.T) {
		_, store := tu.MustOpenStore(t)
		player := &tu.MockPlayer{}
		r := newTestReconciler(t, store, player)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if player.Peeks != 0 {
			t.Errorf("expected no ticks, got %d", player.Peeks)
		}
	})
}

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeError, "error"},
		{OutcomeDeviceUnknown, "device_unknown"},
		{OutcomeSlotFilled, "slot_filled"},
		{OutcomeQueueEmpty, "queue_empty"},
		{OutcomeNoDevice, "no_device"},
		{OutcomePushFailed, "push_failed"},
		{OutcomeInjected, "injected"},
		{Outcome(99), ""},
	}

	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}

func TestTickResult(t *testing.T) {
	song := models.NewSong("a", "Alpha", "X")

	injected := TickResult{Outcome: OutcomeInjected, Song: &song}
	if !injected.Acted() {
		t.Error("expected injected result to have acted")
	}
	if got := injected.String(); got != "injected: X - Alpha" {
		t.Errorf("unexpected string %q", got)
	}

	idle := TickResult{Outcome: OutcomeSlotFilled}
	if idle.Acted() || idle.String() != "slot_filled" {
		t.Errorf("unexpected idle result %v", idle)
	}
}
