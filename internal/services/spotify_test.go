package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/shared"
	"golang.org/x/oauth2"
)

var testCredentials = map[string]string{
	"client_id":     "test_client_id",
	"client_secret": "test_client_secret",
	"redirect_uri":  "http://127.0.0.1:3000/callback",
}

// fakeSpotify serves /api/token and /v1/* from a single httptest server.
type fakeSpotify struct {
	*httptest.Server

	api          http.HandlerFunc
	tokenCalls   atomic.Int32
	apiCalls     atomic.Int32
	issuedToken  string
	tokenStatus  int
	mu           sync.Mutex
	lastTokenReq string
}

func newFakeSpotify(t *testing.T, api http.HandlerFunc) *fakeSpotify {
	t.Helper()

	f := &fakeSpotify{api: api, issuedToken: "fresh", tokenStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lastTokenReq = string(body)
		f.mu.Unlock()

		if f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":3600}`, f.issuedToken)
	})
	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		f.api(w, r)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeSpotify) options() SpotifyOptions {
	return SpotifyOptions{
		BaseURL:           f.URL + "/v1",
		AuthURL:           f.URL + "/authorize",
		TokenURL:          f.URL + "/api/token",
		HTTPClient:        f.Client(),
		RequestsPerSecond: 1000,
		MaxRetryWait:      time.Second,
		BreakerFailures:   3,
		BreakerTimeout:    time.Minute,
		Logger:            log.New(io.Discard),
	}
}

// newTestService returns a service holding a non-expired "valid" access token and refresh token "refresh-1".
func newTestService(t *testing.T, f *fakeSpotify, opts SpotifyOptions) *SpotifyService {
	t.Helper()

	srv, err := NewSpotifyService(testCredentials, opts)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	srv.SetToken(&oauth2.Token{
		AccessToken:  "valid",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	})
	return srv
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			srv, err := NewSpotifyService(testCredentials, SpotifyOptions{})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.opts.BaseURL != spotifyBaseURL {
				t.Errorf("expected default base URL, got %s", srv.opts.BaseURL)
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_secret": "s"}, SpotifyOptions{})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_id": "c"}, SpotifyOptions{})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Default Redirect URI", func(t *testing.T) {
			srv, err := NewSpotifyService(map[string]string{"client_id": "c", "client_secret": "s"}, SpotifyOptions{})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.config.RedirectURL != "http://127.0.0.1:3000/callback" {
				t.Errorf("expected default redirect URI, got %s", srv.config.RedirectURL)
			}
		})
	})

	t.Run("Get AuthURL", func(t *testing.T) {
		srv, err := NewSpotifyService(testCredentials, SpotifyOptions{})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		authURL := srv.GetAuthURL("test_state")
		for _, want := range []string{"accounts.spotify.com", "test_client_id", "test_state", "user-modify-playback-state"} {
			if !strings.Contains(authURL, want) {
				t.Errorf("auth URL %q should contain %q", authURL, want)
			}
		}
	})

	t.Run("Authenticate", func(t *testing.T) {
		srv, err := NewSpotifyService(testCredentials, SpotifyOptions{Logger: log.New(io.Discard)})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		t.Run("WithAccessToken", func(t *testing.T) {
			if err := srv.Authenticate(context.Background(), map[string]string{"access_token": "test_access_token"}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tok := srv.Token(); tok == nil || tok.AccessToken != "test_access_token" {
				t.Errorf("expected access token to be installed, got %+v", tok)
			}
		})

		t.Run("WithStoredExpiry", func(t *testing.T) {
			err := srv.Authenticate(context.Background(), map[string]string{
				"access_token":  "stored",
				"refresh_token": "refresh",
				"expiry":        "2026-05-01T21:00:00Z",
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			want := time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)
			if tok := srv.Token(); tok == nil || !tok.Expiry.Equal(want) || tok.RefreshToken != "refresh" {
				t.Errorf("expected stored token with expiry %v, got %+v", want, tok)
			}
		})

		t.Run("BadExpiry", func(t *testing.T) {
			err := srv.Authenticate(context.Background(), map[string]string{"refresh_token": "r", "expiry": "tomorrow"})
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("Missing Credentials", func(t *testing.T) {
			err := srv.Authenticate(context.Background(), map[string]string{})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("WithAuthCode", func(t *testing.T) {
			f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {})
			var persisted *oauth2.Token
			opts := f.options()
			opts.OnToken = func(tok *oauth2.Token) { persisted = tok }

			srv, err := NewSpotifyService(testCredentials, opts)
			if err != nil {
				t.Fatalf("failed to create service: %v", err)
			}
			if err := srv.Authenticate(context.Background(), map[string]string{"auth_code": "code-123"}); err != nil {
				t.Fatalf("failed to exchange: %v", err)
			}

			if persisted == nil || persisted.AccessToken != "fresh" {
				t.Errorf("expected OnToken with fresh token, got %+v", persisted)
			}
			if !strings.Contains(f.lastTokenReq, "code=code-123") {
				t.Errorf("expected code in token request, got %s", f.lastTokenReq)
			}
		})
	})

	t.Run("Not authenticated", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {})
		srv, err := NewSpotifyService(testCredentials, f.options())
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		_, err = srv.PeekQueue(context.Background())
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
		if f.apiCalls.Load() != 0 {
			t.Error("expected no API call without a token")
		}
	})
}

func TestSpotifyPeekQueue(t *testing.T) {
	t.Run("current track then queue, skipping episodes and incomplete items", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != "/v1/me/player/queue" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer valid" {
				t.Errorf("unexpected Authorization %q", got)
			}
			writeJSON(w, http.StatusOK, `{
				"currently_playing": {"id": "cur", "name": "Current", "type": "track", "artists": [{"name": "A"}, {"name": "B"}]},
				"queue": [
					{"id": "ep1", "name": "Podcast", "type": "episode"},
					{"id": "q1", "name": "Next", "type": "track", "artists": [{"name": "C"}]},
					{"id": "", "name": "Broken", "type": "track", "artists": [{"name": "D"}]},
					{"id": "q2", "name": "Nameless Artist", "type": "track", "artists": []},
					{"id": "q3", "name": "Later", "type": "track", "artists": [{"name": "E"}]}
				]
			}`)
		})
		srv := newTestService(t, f, f.options())

		snapshot, err := srv.PeekQueue(context.Background())
		if err != nil {
			t.Fatalf("failed to peek: %v", err)
		}

		want := []string{"cur", "q1", "q3"}
		got := snapshot.IDs()
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("expected %v, got %v", want, got)
		}
		if snapshot[0].Artist != "A, B" {
			t.Errorf("expected joined artists, got %q", snapshot[0].Artist)
		}
	})

	t.Run("nothing playing", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"currently_playing": null, "queue": []}`)
		})
		srv := newTestService(t, f, f.options())

		snapshot, err := srv.PeekQueue(context.Background())
		if err != nil {
			t.Fatalf("failed to peek: %v", err)
		}
		if len(snapshot) != 0 {
			t.Errorf("expected empty snapshot, got %v", snapshot.IDs())
		}
	})

	t.Run("no content", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		srv := newTestService(t, f, f.options())

		snapshot, err := srv.PeekQueue(context.Background())
		if err != nil {
			t.Fatalf("failed to peek: %v", err)
		}
		if len(snapshot) != 0 {
			t.Errorf("expected empty snapshot, got %v", snapshot.IDs())
		}
	})

	t.Run("server error is reported", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadGateway, `{"error":{"status":502}}`)
		})
		srv := newTestService(t, f, f.options())

		_, err := srv.PeekQueue(context.Background())
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestSpotifyPush(t *testing.T) {
	t.Run("queues track uri", func(t *testing.T) {
		var gotURI string
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			gotURI = r.URL.Query().Get("uri")
			w.WriteHeader(http.StatusNoContent)
		})
		srv := newTestService(t, f, f.options())

		if err := srv.Push(context.Background(), models.NewSong("abc", "Song", "Artist")); err != nil {
			t.Fatalf("failed to push: %v", err)
		}
		if gotURI != "spotify:track:abc" {
			t.Errorf("expected spotify:track:abc, got %s", gotURI)
		}
	})

	t.Run("no active device", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, `{"error":{"status":404,"message":"Player command failed: No active device found","reason":"NO_ACTIVE_DEVICE"}}`)
		})
		srv := newTestService(t, f, f.options())

		err := srv.Push(context.Background(), models.NewSong("abc", "Song", "Artist"))
		if !errors.Is(err, shared.ErrNoActiveDevice) {
			t.Errorf("expected ErrNoActiveDevice, got %v", err)
		}
	})

	t.Run("no active device does not trip the breaker", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, `{"error":{"reason":"NO_ACTIVE_DEVICE"}}`)
		})
		srv := newTestService(t, f, f.options())

		for range 5 {
			_ = srv.Push(context.Background(), models.NewSong("abc", "Song", "Artist"))
		}
		if got := f.apiCalls.Load(); got != 5 {
			t.Errorf("expected every push to reach the API, got %d calls", got)
		}
	})

	t.Run("empty id", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {})
		srv := newTestService(t, f, f.options())

		if err := srv.Push(context.Background(), models.Song{}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestSpotifyResolveTrack(t *testing.T) {
	t.Run("joins artists", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/tracks/4uLU6hMCjMI75M1A2tKUQC" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			writeJSON(w, http.StatusOK, `{"id":"4uLU6hMCjMI75M1A2tKUQC","name":"Never Gonna Give You Up","type":"track","artists":[{"name":"Rick Astley"},{"name":"Guest"}]}`)
		})
		srv := newTestService(t, f, f.options())

		song, err := srv.ResolveTrack(context.Background(), "4uLU6hMCjMI75M1A2tKUQC")
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if song.Name != "Never Gonna Give You Up" || song.Artist != "Rick Astley, Guest" {
			t.Errorf("unexpected song %+v", song)
		}
	})

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"error":{"status":404}}`},
		{name: "invalid id", status: http.StatusBadRequest, body: `{"error":{"status":400,"message":"invalid id"}}`},
		{name: "incomplete metadata", status: http.StatusOK, body: `{"id":"x","name":"","artists":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			srv := newTestService(t, f, f.options())

			_, err := srv.ResolveTrack(context.Background(), "x")
			if !errors.Is(err, shared.ErrTrackNotFound) {
				t.Errorf("expected ErrTrackNotFound, got %v", err)
			}
		})
	}
}

func TestSpotifyRetries(t *testing.T) {
	t.Run("401 refreshes once and retries", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer fresh" {
				writeJSON(w, http.StatusUnauthorized, `{"error":{"status":401,"message":"The access token expired"}}`)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		var persisted []*oauth2.Token
		opts := f.options()
		opts.OnToken = func(tok *oauth2.Token) { persisted = append(persisted, tok) }
		srv := newTestService(t, f, opts)

		if err := srv.Push(context.Background(), models.NewSong("abc", "Song", "Artist")); err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if f.tokenCalls.Load() != 1 {
			t.Errorf("expected one refresh, got %d", f.tokenCalls.Load())
		}
		if f.apiCalls.Load() != 2 {
			t.Errorf("expected two API calls, got %d", f.apiCalls.Load())
		}
		if !strings.Contains(f.lastTokenReq, "refresh_token=refresh-1") {
			t.Errorf("expected refresh grant, got %s", f.lastTokenReq)
		}
		if len(persisted) != 1 || persisted[0].AccessToken != "fresh" {
			t.Fatalf("expected fresh token to be persisted, got %+v", persisted)
		}
		if persisted[0].RefreshToken != "refresh-1" {
			t.Errorf("expected refresh token to be kept, got %q", persisted[0].RefreshToken)
		}
	})

	t.Run("401 with failing refresh", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, `{}`)
		})
		f.tokenStatus = http.StatusBadRequest
		srv := newTestService(t, f, f.options())

		_, err := srv.PeekQueue(context.Background())
		if !errors.Is(err, shared.ErrAuthFailed) || !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrAuthFailed wrapping ErrRefreshFailed, got %v", err)
		}
	})

	t.Run("401 without refresh token", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, `{}`)
		})
		srv, err := NewSpotifyService(testCredentials, f.options())
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		srv.SetToken(&oauth2.Token{AccessToken: "static"})

		_, err = srv.PeekQueue(context.Background())
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("429 honours Retry-After and retries once", func(t *testing.T) {
		var calls atomic.Int32
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			writeJSON(w, http.StatusOK, `{"queue":[]}`)
		})
		srv := newTestService(t, f, f.options())

		if _, err := srv.PeekQueue(context.Background()); err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}
	})

	t.Run("429 twice is rate limited", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		})
		srv := newTestService(t, f, f.options())

		_, err := srv.PeekQueue(context.Background())
		if !errors.Is(err, shared.ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
		if f.apiCalls.Load() != 2 {
			t.Errorf("expected exactly one retry, got %d calls", f.apiCalls.Load())
		}
	})

	t.Run("429 wait respects cancellation", func(t *testing.T) {
		f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		})
		opts := f.options()
		opts.MaxRetryWait = time.Minute
		srv := newTestService(t, f, opts)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := srv.PeekQueue(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestSpotifyCircuitBreaker(t *testing.T) {
	f := newFakeSpotify(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := newTestService(t, f, f.options())

	for range 3 {
		if _, err := srv.PeekQueue(context.Background()); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Fatalf("expected ErrServiceUnavailable, got %v", err)
		}
	}
	before := f.apiCalls.Load()

	_, err := srv.PeekQueue(context.Background())
	if !errors.Is(err, shared.ErrServiceUnavailable) {
		t.Errorf("expected open circuit to report ErrServiceUnavailable, got %v", err)
	}
	if f.apiCalls.Load() != before {
		t.Error("expected open circuit to short-circuit the request")
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		limit  time.Duration
		want   time.Duration
	}{
		{header: "", limit: time.Minute, want: time.Second},
		{header: "3", limit: time.Minute, want: 3 * time.Second},
		{header: " 2 ", limit: time.Minute, want: 2 * time.Second},
		{header: "0", limit: time.Minute, want: 0},
		{header: "soon", limit: time.Minute, want: time.Second},
		{header: "-4", limit: time.Minute, want: time.Second},
		{header: "120", limit: 30 * time.Second, want: 30 * time.Second},
		{header: "120", limit: 0, want: 120 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.header), func(t *testing.T) {
			if got := retryAfter(tt.header, tt.limit); got != tt.want {
				t.Errorf("retryAfter(%q, %v) = %v, want %v", tt.header, tt.limit, got, tt.want)
			}
		})
	}
}

func TestSpotifyOptionsFromConfig(t *testing.T) {
	opts := SpotifyOptionsFromConfig(shared.SpotifyClientConfig{RequestsPerSecond: 2, BreakerFailures: 9})
	if opts.RequestsPerSecond != 2 || opts.BreakerFailures != 9 {
		t.Errorf("expected config values to apply, got %+v", opts)
	}
	if opts.BreakerTimeout != time.Minute || opts.BaseURL != spotifyBaseURL {
		t.Errorf("expected defaults to be kept, got %+v", opts)
	}
}

func TestSpotifyTrackSong(t *testing.T) {
	track := SpotifyTrack{ID: "a", Name: "n", Artists: []SpotifyArtist{{Name: "x"}, {Name: ""}, {Name: "y"}}}
	song, ok := track.Song()
	if !ok || song.Artist != "x, y" {
		t.Errorf("expected joined artists, got %+v ok=%v", song, ok)
	}

	if _, ok := (SpotifyTrack{ID: "a", Name: "n"}).Song(); ok {
		t.Error("expected track without artists to be rejected")
	}
}

var (
	_ Player  = (*SpotifyService)(nil)
	_ Catalog = (*SpotifyService)(nil)
)
