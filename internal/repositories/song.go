package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/shared"
)

// SongRepository is the catalog: every track ever referenced, with its replay timestamp.
//
// Songs are created on first reference and never deleted.
type SongRepository struct {
	db *sql.DB
}

// NewSongRepository creates a new SongRepository with the given database connection
func NewSongRepository(db *sql.DB) *SongRepository {
	return &SongRepository{db: db}
}

// Ensure inserts song if its id is unknown and returns the stored row.
//
// An existing row is left untouched, so its last_played survives re-submission.
func (r *SongRepository) Ensure(ctx context.Context, song models.Song) (*models.Song, error) {
	if err := song.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO songs (id, name, artist, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, song.ID, song.Name, song.Artist, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to insert song: %w", err)
	}

	return r.Get(ctx, song.ID)
}

// Get retrieves a song by track id.
func (r *SongRepository) Get(ctx context.Context, id string) (*models.Song, error) {
	query := `SELECT id, name, artist, last_played FROM songs WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// SetLastPlayed stamps the song's replay timestamp, stored in UTC.
//
// The timestamp never moves backwards: an at earlier than the stored value leaves the row untouched.
func (r *SongRepository) SetLastPlayed(ctx context.Context, id string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT last_played FROM songs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read last_played: %w", err)
	}

	at = at.UTC()
	if current.Valid && current.Time.After(at) {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE songs SET last_played = ? WHERE id = ?`, at, id); err != nil {
		return fmt.Errorf("failed to update last_played: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit last_played: %w", err)
	}
	return nil
}

// scanOne scans a single [sql.Row] into a [models.Song]
func (r *SongRepository) scanOne(row *sql.Row) (*models.Song, error) {
	var (
		song       models.Song
		lastPlayed sql.NullTime
	)

	err := row.Scan(&song.ID, &song.Name, &song.Artist, &lastPlayed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan song: %w", err)
	}

	song.LastPlayed = nullTime(lastPlayed)
	return &song, nil
}
