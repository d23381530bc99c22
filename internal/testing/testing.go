// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/repositories"
	"github.com/desertthunder/jukebox/internal/shared"
)

// MockPlayer is an in-memory playback device for [services.Player].
//
// Push appends to Queue, so a test sees its own injections on the next PeekQueue. Advance simulates the current
// track finishing.
type MockPlayer struct {
	mu      sync.Mutex
	Queue   models.Snapshot
	Pushed  []models.Song
	PeekErr error
	PushErr error
	Peeks   int
}

func (m *MockPlayer) PeekQueue(ctx context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Peeks++
	if m.PeekErr != nil {
		return nil, m.PeekErr
	}
	return append(models.Snapshot(nil), m.Queue...), nil
}

func (m *MockPlayer) Push(ctx context.Context, song models.Song) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PushErr != nil {
		return m.PushErr
	}
	m.Pushed = append(m.Pushed, song)
	m.Queue = append(m.Queue, song)
	return nil
}

// Advance drops the currently playing track.
func (m *MockPlayer) Advance() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Queue) > 0 {
		m.Queue = m.Queue[1:]
	}
}

// SetQueue replaces the device state.
func (m *MockPlayer) SetQueue(songs ...models.Song) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queue = songs
}

// PushedIDs lists pushed track ids in order.
func (m *MockPlayer) PushedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.Snapshot(m.Pushed).IDs()
}

// MockCatalog is a map-backed [services.Catalog].
type MockCatalog struct {
	mu    sync.Mutex
	Songs map[string]models.Song
	Err   error
	Calls int
}

func NewMockCatalog(songs ...models.Song) *MockCatalog {
	m := &MockCatalog{Songs: make(map[string]models.Song, len(songs))}
	for _, s := range songs {
		m.Songs[s.ID] = s
	}
	return m
}

func (m *MockCatalog) ResolveTrack(ctx context.Context, trackID string) (*models.Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	song, ok := m.Songs[trackID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, trackID)
	}
	return &song, nil
}

// MustOpenStore returns a migrated in-memory database and its repositories, closed when the test ends.
func MustOpenStore(t *testing.T) (*sql.DB, *repositories.Store) {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db, repositories.NewStore(db)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
