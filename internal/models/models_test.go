package models

import (
	"testing"
	"time"
)

func TestSong(t *testing.T) {
	t.Run("NewSong joins artists", func(t *testing.T) {
		s := NewSong("id1", "Song", "A", " ", "B")
		if s.Artist != "A, B" {
			t.Errorf("expected artist 'A, B', got %q", s.Artist)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name    string
			song    Song
			wantErr bool
		}{
			{"valid", Song{ID: "x", Name: "n", Artist: "a"}, false},
			{"missing id", Song{Name: "n", Artist: "a"}, true},
			{"missing name", Song{ID: "x", Artist: "a"}, true},
			{"missing artist", Song{ID: "x", Name: "n"}, true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := tt.song.Validate(); (err != nil) != tt.wantErr {
					t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("PlayedWithin", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		at := func(d time.Duration) *time.Time {
			ts := now.Add(-d)
			return &ts
		}

		tests := []struct {
			name       string
			lastPlayed *time.Time
			want       bool
		}{
			{"never played", nil, false},
			{"29 minutes ago", at(29 * time.Minute), true},
			{"exactly 30 minutes ago", at(30 * time.Minute), false},
			{"31 minutes ago", at(31 * time.Minute), false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s := Song{ID: "x", LastPlayed: tt.lastPlayed}
				if got := s.PlayedWithin(now, 30*time.Minute); got != tt.want {
					t.Errorf("PlayedWithin() = %v, want %v", got, tt.want)
				}
			})
		}
	})
}

func TestSnapshot(t *testing.T) {
	snap := Snapshot{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	if got := snap.Head(2).IDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Head(2).IDs() = %v", got)
	}
	if got := (Snapshot{{ID: "a"}}).Head(2); len(got) != 1 {
		t.Errorf("Head on short snapshot returned %d items", len(got))
	}
	if got := Snapshot(nil).IDs(); len(got) != 0 {
		t.Errorf("expected empty ids, got %v", got)
	}
}
