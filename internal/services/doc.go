// Package services adapts external streaming APIs to the jukebox's [Player] and [Catalog] interfaces.
//
// [SpotifyService] talks to the Spotify Web API with OAuth2 refresh-token auth. Every call goes through a token
// bucket rate limiter and a circuit breaker. A 401 triggers one forced token refresh and retry, a 429 waits for
// Retry-After and retries once, and a 404 carrying NO_ACTIVE_DEVICE is reported as [shared.ErrNoActiveDevice].
package services
