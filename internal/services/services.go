package services

import (
	"context"

	"github.com/desertthunder/jukebox/internal/models"
)

// Player is the playback device the reconciler keeps supplied with tracks.
type Player interface {
	// PeekQueue returns the currently playing track followed by the device's upcoming queue.
	// Non-track items are omitted. An error means the device state is unknown.
	PeekQueue(ctx context.Context) (models.Snapshot, error)

	// Push appends song to the end of the device queue.
	Push(ctx context.Context, song models.Song) error
}

// Catalog resolves track ids to display metadata.
type Catalog interface {
	// ResolveTrack looks up a track. Returns [shared.ErrTrackNotFound] for unknown ids.
	ResolveTrack(ctx context.Context, trackID string) (*models.Song, error)
}
