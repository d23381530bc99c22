// Package server exposes the party queue over HTTP and handles the Spotify OAuth callback.
//
// # Endpoints
//
//	GET  /queue    ranked queue; X-Client-Id (optional) fills client_vote
//	POST /queue    {"song_link": "..."} -> true|false
//	POST /vote     {"song_id": "...", "vote": n} with X-Client-Id -> true|false
//	GET  /health   {"status":"ok"}
//	GET  /metrics  Prometheus exposition
//
// Admission and voting answer false for expected rejections (already queued, played too recently, not
// queued). Errors are reported as {"error": "..."}: an unparsable link or missing field is a 400 and an
// unknown track a 404.
//
// # Middleware
//
// [Server] uses a chi router with request ids, real client IPs, panic recovery, [RequestLogger],
// [CORS] and per-IP [RateLimit] on the queue endpoints. Middleware wraps handlers in reverse order
// (last added executes first).
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the authorization code callback. It validates the state parameter,
// exchanges the code through an [Exchanger] and sends the result through a channel. Only the first
// callback is processed. `jukebox spotify auth` serves it from a temporary server built with
// [NewCallbackRouter] and shuts the server down once a token arrives.
package server
