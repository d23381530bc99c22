package repositories

import (
	"context"
	"testing"
	"time"
)

func TestLedgerRepository(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

	t.Run("Recent returns newest first", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		songs, ledger := NewSongRepository(db), NewLedgerRepository(db)

		for i, id := range []string{"a", "b", "c"} {
			seedSong(t, songs, id)
			if _, err := ledger.Append(ctx, id, base.Add(time.Duration(i)*time.Minute)); err != nil {
				t.Fatalf("failed to append %s: %v", id, err)
			}
		}

		ids, err := ledger.RecentSongIDs(ctx, 2)
		if err != nil {
			t.Fatalf("failed to read ledger: %v", err)
		}
		if len(ids) != 2 || ids[0] != "c" || ids[1] != "b" {
			t.Errorf("expected [c b], got %v", ids)
		}

		records, err := ledger.Recent(ctx, 1)
		if err != nil {
			t.Fatalf("failed to read ledger: %v", err)
		}
		if !records[0].InjectedAt.Equal(base.Add(2 * time.Minute)) {
			t.Errorf("unexpected injected_at %v", records[0].InjectedAt)
		}
	})

	t.Run("Recent on empty ledger", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		ids, err := NewLedgerRepository(db).RecentSongIDs(ctx, 2)
		if err != nil {
			t.Fatalf("failed to read ledger: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("expected no ids, got %v", ids)
		}
	})

	t.Run("same song may appear twice", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		songs, ledger := NewSongRepository(db), NewLedgerRepository(db)
		seedSong(t, songs, "a")

		for range 2 {
			if _, err := ledger.Append(ctx, "a", base); err != nil {
				t.Fatalf("failed to append: %v", err)
			}
		}
		ids, _ := ledger.RecentSongIDs(ctx, 2)
		if len(ids) != 2 {
			t.Errorf("expected 2 records, got %d", len(ids))
		}
	})

	t.Run("Prune keeps newest and never below two", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		songs, ledger := NewSongRepository(db), NewLedgerRepository(db)

		for i, id := range []string{"a", "b", "c", "d", "e"} {
			seedSong(t, songs, id)
			if _, err := ledger.Append(ctx, id, base.Add(time.Duration(i)*time.Minute)); err != nil {
				t.Fatalf("failed to append: %v", err)
			}
		}

		removed, err := ledger.Prune(ctx, 0)
		if err != nil {
			t.Fatalf("failed to prune: %v", err)
		}
		if removed != 3 {
			t.Errorf("expected 3 removed, got %d", removed)
		}

		ids, _ := ledger.RecentSongIDs(ctx, 10)
		if len(ids) != 2 || ids[0] != "e" || ids[1] != "d" {
			t.Errorf("expected [e d], got %v", ids)
		}
	})
}
