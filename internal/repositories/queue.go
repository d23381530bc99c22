package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/jmoiron/sqlx"
)

// QueueRepository stores the ranked queue and its votes.
//
// A song has at most one entry (UNIQUE song_id). Entry ids are AUTOINCREMENT so ordinals are never reused,
// and deleting an entry cascades to its votes.
type QueueRepository struct {
	db  *sql.DB
	dbx *sqlx.DB
}

// rankedRow is the [sqlx] scan target for [QueueRepository.Ranked].
type rankedRow struct {
	Ordinal    int64        `db:"ordinal"`
	SongID     string       `db:"song_id"`
	Name       string       `db:"name"`
	Artist     string       `db:"artist"`
	LastPlayed sql.NullTime `db:"last_played"`
	VoteSum    int          `db:"vote_sum"`
	ClientVote int          `db:"client_vote"`
}

// NewQueueRepository creates a new QueueRepository with the given database connection
func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db, dbx: sqlx.NewDb(db, "sqlite3")}
}

// Admit appends songID to the queue.
//
// Returns an error matching [shared.ErrDuplicate] when the song is already queued, including when a concurrent
// admission wins the UNIQUE race. The song must exist in the catalog.
func (r *QueueRepository) Admit(ctx context.Context, songID string) (*models.QueueEntry, error) {
	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `INSERT INTO app_queue (song_id, created_at) VALUES (?, ?)`, songID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert queue entry: %w", constraintError(err, songID))
	}

	ordinal, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue ordinal: %w", err)
	}

	return &models.QueueEntry{Ordinal: ordinal, SongID: songID, CreatedAt: now}, nil
}

// Entry returns the active queue entry for songID or [shared.ErrNotQueued].
func (r *QueueRepository) Entry(ctx context.Context, songID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := r.db.QueryRowContext(ctx, `SELECT id, song_id, created_at FROM app_queue WHERE song_id = ?`, songID).
		Scan(&entry.Ordinal, &entry.SongID, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotQueued
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue entry: %w", err)
	}
	return &entry, nil
}

// Contains reports whether songID currently has a queue entry.
func (r *QueueRepository) Contains(ctx context.Context, songID string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM app_queue WHERE song_id = ?)`, songID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check queue: %w", err)
	}
	return exists, nil
}

// Vote records clientID's vote on songID's entry, replacing any earlier vote from the same client.
//
// Lookup and upsert run as one statement, so a vote never lands on an entry removed in between.
// Returns [shared.ErrNotQueued] when the song has no entry.
func (r *QueueRepository) Vote(ctx context.Context, songID, clientID string, value int) error {
	query := `
		INSERT INTO votes (app_queue_id, client_id, vote, updated_at)
		SELECT id, ?, ?, ? FROM app_queue WHERE song_id = ?
		ON CONFLICT(app_queue_id, client_id) DO UPDATE SET vote = excluded.vote, updated_at = excluded.updated_at
	`

	result, err := r.db.ExecContext(ctx, query, clientID, value, time.Now().UTC(), songID)
	if err != nil {
		return fmt.Errorf("failed to upsert vote: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrNotQueued, songID)
	}
	return nil
}

// Votes lists every vote cast on songID's entry.
func (r *QueueRepository) Votes(ctx context.Context, songID string) ([]models.Vote, error) {
	var votes []models.Vote
	err := r.dbx.SelectContext(ctx, &votes, `
		SELECT v.app_queue_id AS ordinal, v.client_id AS client_id, v.vote AS vote
		FROM votes v
		JOIN app_queue q ON q.id = v.app_queue_id
		WHERE q.song_id = ?
		ORDER BY v.client_id
	`, songID)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	return votes, nil
}

// Remove deletes songID's entry and, through the cascade, its votes.
func (r *QueueRepository) Remove(ctx context.Context, songID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM app_queue WHERE song_id = ?`, songID)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrNotQueued, songID)
	}
	return nil
}

// HasVotes reports whether any vote exists anywhere in the queue.
func (r *QueueRepository) HasVotes(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM votes)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check votes: %w", err)
	}
	return exists, nil
}

// Len returns the number of queued songs.
func (r *QueueRepository) Len(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

// Ranked lists the queue by vote sum (highest first), then by ordinal (earliest first).
//
// ClientVote carries clientID's own vote, or 0 when that client has not voted on the entry.
func (r *QueueRepository) Ranked(ctx context.Context, clientID string) ([]models.RankedSong, error) {
	query := `
		SELECT
			q.id AS ordinal,
			s.id AS song_id,
			s.name AS name,
			s.artist AS artist,
			s.last_played AS last_played,
			COALESCE(SUM(v.vote), 0) AS vote_sum,
			COALESCE(MAX(CASE WHEN v.client_id = ? THEN v.vote END), 0) AS client_vote
		FROM app_queue q
		JOIN songs s ON s.id = q.song_id
		LEFT JOIN votes v ON v.app_queue_id = q.id
		GROUP BY q.id
		ORDER BY vote_sum DESC, q.id ASC
	`

	var rows []rankedRow
	if err := r.dbx.SelectContext(ctx, &rows, query, clientID); err != nil {
		return nil, fmt.Errorf("failed to query ranked queue: %w", err)
	}

	ranked := make([]models.RankedSong, 0, len(rows))
	for _, row := range rows {
		ranked = append(ranked, models.RankedSong{
			Song: models.Song{
				ID:         row.SongID,
				Name:       row.Name,
				Artist:     row.Artist,
				LastPlayed: nullTime(row.LastPlayed),
			},
			Ordinal:    row.Ordinal,
			VoteSum:    row.VoteSum,
			ClientVote: row.ClientVote,
		})
	}
	return ranked, nil
}
