package shared

import (
	"fmt"
	"regexp"
	"strings"
)

const TrackURIPrefix = "spotify:track:"

var (
	trackLinkPattern = regexp.MustCompile(`spotify:track:([A-Za-z0-9]+)|open\.spotify\.com/(?:intl-[a-z]{2}/)?track/([A-Za-z0-9]+)`)
	bareTrackID      = regexp.MustCompile(`^[A-Za-z0-9]{22}$`)
)

// ExtractTrackID pulls the Spotify track id out of a share link, a track URI or a bare id.
//
//	https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc -> 4uLU6hMCjMI75M1A2tKUQC
//	spotify:track:4uLU6hMCjMI75M1A2tKUQC                        -> 4uLU6hMCjMI75M1A2tKUQC
func ExtractTrackID(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", fmt.Errorf("%w: empty link", ErrInvalidLink)
	}

	if bareTrackID.MatchString(link) {
		return link, nil
	}

	m := trackLinkPattern.FindStringSubmatch(link)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidLink, link)
	}
	if m[1] != "" {
		return m[1], nil
	}
	return m[2], nil
}

// TrackURI returns the playback URI for a track id.
func TrackURI(id string) string {
	return TrackURIPrefix + id
}
