package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed     = fmt.Errorf("authentication failed")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")
	ErrTimeout        = fmt.Errorf("operation timed out")

	// Playback adapter errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrNoActiveDevice     = fmt.Errorf("no active playback device")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Queue errors
	ErrDuplicate       = fmt.Errorf("song already queued")
	ErrReplayGuard     = fmt.Errorf("song played too recently")
	ErrNotQueued       = fmt.Errorf("song not queued")
	ErrConstraint      = fmt.Errorf("constraint violation")
	ErrMissingClientID = fmt.Errorf("missing client id")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrInvalidLink     = fmt.Errorf("invalid track link")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
