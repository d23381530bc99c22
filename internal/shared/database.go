package shared

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultBusyTimeoutMS is how long a connection waits on a locked database before failing.
const DefaultBusyTimeoutMS = 10000

// NewDatabase opens a connection to a SQLite database at the specified path.
// The path can be ":memory:" for an in-memory database.
// Returns an open database connection or an error if connection fails.
func NewDatabase(path string) (*sql.DB, error) {
	return OpenDatabase(path, DefaultBusyTimeoutMS)
}

// OpenDatabase is [NewDatabase] with an explicit busy timeout.
//
// Every connection enforces foreign keys so vote rows cascade with their queue entry.
// File databases run in WAL mode with synchronous=NORMAL.
func OpenDatabase(path string, busyTimeoutMS int) (*sql.DB, error) {
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")

	db, err := sql.Open("sqlite3", databaseDSN(path, busyTimeoutMS, memory))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// each new connection to :memory: would see an empty database
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func databaseDSN(path string, busyTimeoutMS int, memory bool) string {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = DefaultBusyTimeoutMS
	}

	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", strconv.Itoa(busyTimeoutMS))
	if !memory {
		params.Set("_journal_mode", "WAL")
		params.Set("_synchronous", "NORMAL")
	}

	if path == ":memory:" {
		return "file::memory:?" + params.Encode()
	}
	if strings.Contains(path, "?") {
		return path + "&" + params.Encode()
	}
	return "file:" + path + "?" + params.Encode()
}

// ConfigureDatabase sets connection pool settings for the database.
// Recommended for production use to limit connections and improve performance.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
}
