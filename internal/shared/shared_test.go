package shared

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestExtractTrackID(t *testing.T) {
	tc := []struct {
		name    string
		link    string
		want    string
		wantErr bool
	}{
		{name: "share link", link: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", want: "4uLU6hMCjMI75M1A2tKUQC"},
		{name: "share link with query", link: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=1f2e3d", want: "4uLU6hMCjMI75M1A2tKUQC"},
		{name: "localized share link", link: "https://open.spotify.com/intl-de/track/4uLU6hMCjMI75M1A2tKUQC", want: "4uLU6hMCjMI75M1A2tKUQC"},
		{name: "track uri", link: "spotify:track:4uLU6hMCjMI75M1A2tKUQC", want: "4uLU6hMCjMI75M1A2tKUQC"},
		{name: "bare id", link: "  4uLU6hMCjMI75M1A2tKUQC ", want: "4uLU6hMCjMI75M1A2tKUQC"},
		{name: "album link", link: "https://open.spotify.com/album/1DFixLWuPkv3KT3TnV35m3", wantErr: true},
		{name: "garbage", link: "not a link", wantErr: true},
		{name: "empty", link: "", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTrackID(tt.link)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLink) {
					t.Errorf("expected ErrInvalidLink, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractTrackID() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("TrackURI", func(t *testing.T) {
		if got := TrackURI("abc"); got != "spotify:track:abc" {
			t.Errorf("TrackURI() = %s", got)
		}
	})
}

func TestLogger(t *testing.T) {
	t.Run("NewLogger writes to writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		WithLogger(logger, "component", "test").Info("hello")

		out := buf.String()
		if !strings.Contains(out, "hello") || !strings.Contains(out, "component=test") {
			t.Errorf("unexpected log output: %s", out)
		}
	})

	t.Run("ParseLevel", func(t *testing.T) {
		tests := []struct {
			in   string
			want log.Level
		}{
			{"debug", log.DebugLevel},
			{" WARN ", log.WarnLevel},
			{"error", log.ErrorLevel},
			{"", log.InfoLevel},
			{"chatty", log.InfoLevel},
		}
		for _, tt := range tests {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		}
	})

	t.Run("SlogLogger shares the handler", func(t *testing.T) {
		var buf bytes.Buffer
		SlogLogger(NewLogger(&buf)).Info("via slog", "key", "value")
		if !strings.Contains(buf.String(), "via slog") {
			t.Errorf("expected slog output, got %s", buf.String())
		}
	})

	t.Run("NewFileLogger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "jukebox.log")
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("failed to create file logger: %v", err)
		}
		logger.Info("to file")
	})
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := GenerateState()
	if a == b {
		t.Error("expected distinct state tokens")
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
}

func TestBrowserCommand(t *testing.T) {
	withRuntime := func(t *testing.T, goos string) {
		t.Helper()
		orig := getRuntime
		getRuntime = func() string { return goos }
		t.Cleanup(func() { getRuntime = orig })
	}

	t.Run("BROWSER overrides the platform", func(t *testing.T) {
		t.Setenv("BROWSER", "w3m")
		withRuntime(t, "plan9")

		cmd, err := browserCommand("https://example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cmd.Args[0] != "w3m" {
			t.Errorf("expected w3m, got %v", cmd.Args)
		}
	})

	t.Run("platform defaults", func(t *testing.T) {
		t.Setenv("BROWSER", "")
		t.Setenv("DISPLAY", ":0")

		tests := map[string]string{"darwin": "open", "linux": "xdg-open", "windows": "rundll32"}
		for goos, want := range tests {
			withRuntime(t, goos)
			cmd, err := browserCommand("https://example.com")
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", goos, err)
			}
			if cmd.Args[0] != want || cmd.Args[len(cmd.Args)-1] != "https://example.com" {
				t.Errorf("%s: unexpected command %v", goos, cmd.Args)
			}
		}
	})

	t.Run("headless linux", func(t *testing.T) {
		t.Setenv("BROWSER", "")
		t.Setenv("DISPLAY", "")
		t.Setenv("WAYLAND_DISPLAY", "")
		withRuntime(t, "linux")

		if _, err := browserCommand("https://example.com"); err == nil {
			t.Error("expected an error without a display")
		}
	})

	t.Run("unsupported platform", func(t *testing.T) {
		t.Setenv("BROWSER", "")
		withRuntime(t, "plan9")

		if err := OpenBrowser("https://example.com"); err == nil || !strings.Contains(err.Error(), "unsupported platform") {
			t.Errorf("expected unsupported platform error, got %v", err)
		}
	})
}
