package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/mattn/go-sqlite3"
)

// Store bundles the repositories that share one database handle.
type Store struct {
	Songs  *SongRepository
	Queue  *QueueRepository
	Ledger *LedgerRepository
}

// NewStore creates every repository over db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		Songs:  NewSongRepository(db),
		Queue:  NewQueueRepository(db),
		Ledger: NewLedgerRepository(db),
	}
}

// constraintError maps SQLite constraint failures onto the shared error taxonomy.
//
// UNIQUE and PRIMARY KEY violations become [shared.ErrConstraint] (also matching [shared.ErrDuplicate]).
// FOREIGN KEY violations become [shared.ErrTrackNotFound]. Anything else is returned unchanged.
func constraintError(err error, subject string) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return err
	}

	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %w: %s", shared.ErrDuplicate, shared.ErrConstraint, subject)
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, subject)
	default:
		return fmt.Errorf("%w: %s: %v", shared.ErrConstraint, subject, err)
	}
}

// nullTime converts a nullable column into an optional UTC timestamp.
func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
