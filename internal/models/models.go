// package models defines the data model for the party queue
package models

import (
	"fmt"
	"strings"
	"time"
)

// Song is a catalog entry keyed by its Spotify track id.
//
// LastPlayed is nil until the track is first injected into the device queue.
type Song struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Artist     string     `json:"artist"`
	LastPlayed *time.Time `json:"last_played,omitempty"`
}

// NewSong builds a Song, joining multiple artist names with ", ".
func NewSong(id, name string, artists ...string) Song {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a = strings.TrimSpace(a); a != "" {
			names = append(names, a)
		}
	}
	return Song{ID: id, Name: name, Artist: strings.Join(names, ", ")}
}

// Validate checks the fields the catalog requires.
func (s Song) Validate() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("song id is required")
	case s.Name == "":
		return fmt.Errorf("song name is required")
	case s.Artist == "":
		return fmt.Errorf("song artist is required")
	}
	return nil
}

// PlayedWithin reports whether the song was injected less than window before now.
//
// A song last played exactly window ago is eligible again.
func (s Song) PlayedWithin(now time.Time, window time.Duration) bool {
	if s.LastPlayed == nil {
		return false
	}
	return now.Sub(*s.LastPlayed) < window
}

func (s Song) String() string {
	return fmt.Sprintf("%s - %s", s.Artist, s.Name)
}

// QueueEntry is a song's place in the ranked queue.
//
// Ordinal is assigned at admission, strictly increasing and never reused. It breaks vote ties.
type QueueEntry struct {
	Ordinal   int64     `json:"ordinal"`
	SongID    string    `json:"song_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Vote is one client's opinion on a queue entry. Values are not clamped.
type Vote struct {
	Ordinal  int64  `json:"ordinal" db:"ordinal"`
	ClientID string `json:"client_id" db:"client_id"`
	Value    int    `json:"vote" db:"vote"`
}

// RankedSong is a queue row as shown to clients.
type RankedSong struct {
	Song
	Ordinal    int64 `json:"ordinal"`
	VoteSum    int   `json:"vote_sum"`
	ClientVote int   `json:"client_vote"`
}

// Injection records a successful push to the playback device.
type Injection struct {
	ID         int64     `json:"id"`
	SongID     string    `json:"song_id"`
	InjectedAt time.Time `json:"injected_at"`
}

// Snapshot is what the device reports: the currently playing track followed by its upcoming queue.
type Snapshot []Song

// Head returns at most the first n tracks.
func (s Snapshot) Head(n int) Snapshot {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// IDs lists the track ids in order.
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s))
	for i, song := range s {
		ids[i] = song.ID
	}
	return ids
}
