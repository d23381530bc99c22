package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/jukebox/internal/models"
)

// MinLedgerKeep is the number of newest records the pending-next check reads; pruning never goes below it.
const MinLedgerKeep = 2

// LedgerRepository is the append-only record of tracks pushed to the playback device.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository creates a new LedgerRepository with the given database connection
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append records an injection of songID at the given time.
func (r *LedgerRepository) Append(ctx context.Context, songID string, at time.Time) (*models.Injection, error) {
	at = at.UTC()

	result, err := r.db.ExecContext(ctx, `INSERT INTO injections (song_id, injected_at) VALUES (?, ?)`, songID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to append injection: %w", constraintError(err, songID))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get injection id: %w", err)
	}

	return &models.Injection{ID: id, SongID: songID, InjectedAt: at}, nil
}

// Recent returns up to n records, newest first.
func (r *LedgerRepository) Recent(ctx context.Context, n int) ([]models.Injection, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, song_id, injected_at
		FROM injections
		ORDER BY id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query injections: %w", err)
	}
	defer rows.Close()

	var records []models.Injection
	for rows.Next() {
		var rec models.Injection
		if err := rows.Scan(&rec.ID, &rec.SongID, &rec.InjectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan injection: %w", err)
		}
		rec.InjectedAt = rec.InjectedAt.UTC()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// RecentSongIDs returns the song ids of the newest n records, newest first.
func (r *LedgerRepository) RecentSongIDs(ctx context.Context, n int) ([]string, error) {
	records, err := r.Recent(ctx, n)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.SongID
	}
	return ids, nil
}

// Prune deletes all but the newest keep records and returns how many were removed.
//
// keep is raised to [MinLedgerKeep] so pruning cannot change the pending-next decision.
func (r *LedgerRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < MinLedgerKeep {
		keep = MinLedgerKeep
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM injections
		WHERE id NOT IN (SELECT id FROM injections ORDER BY id DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune injections: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}
