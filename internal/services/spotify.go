// Spotify Web API implementation of [Player] and [Catalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/metrics"
	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// tokenExpirySkew refreshes access tokens this long before they expire.
	tokenExpirySkew = 30 * time.Second

	breakerName = "spotify-api"
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	Product     string `json:"product"` // premium, free, etc.
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a playable item. Type is "track" or "episode".
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Artists []SpotifyArtist `json:"artists"`
	URI     string          `json:"uri"`
}

// SpotifyQueue is the response of GET /me/player/queue.
type SpotifyQueue struct {
	CurrentlyPlaying *SpotifyTrack  `json:"currently_playing"`
	Queue            []SpotifyTrack `json:"queue"`
}

// Song converts t into a [models.Song]. Reports false when the id, name or every artist name is missing.
func (t SpotifyTrack) Song() (models.Song, bool) {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}

	song := models.NewSong(t.ID, t.Name, names...)
	if song.Validate() != nil {
		return models.Song{}, false
	}
	return song, true
}

// APIError is a non-2xx response from the Web API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API error: status %d: %s", e.Status, e.Body)
}

// Unwrap classifies server-side failures as [shared.ErrServiceUnavailable] and everything else as [shared.ErrAPIRequest].
func (e *APIError) Unwrap() error {
	if e.Status >= http.StatusInternalServerError {
		return shared.ErrServiceUnavailable
	}
	return shared.ErrAPIRequest
}

// SpotifyOptions tunes the HTTP behaviour of [SpotifyService].
type SpotifyOptions struct {
	BaseURL           string
	AuthURL           string
	TokenURL          string
	HTTPClient        *http.Client
	RequestsPerSecond float64
	MaxRetryWait      time.Duration
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
	Logger            *log.Logger

	// OnToken is called whenever a new access token is issued, so callers can persist it.
	// It runs with the token lock held and must not call back into the service.
	OnToken func(*oauth2.Token)
}

// DefaultSpotifyOptions returns options pointing at the production Spotify endpoints.
func DefaultSpotifyOptions() SpotifyOptions {
	return SpotifyOptions{
		BaseURL:           spotifyBaseURL,
		AuthURL:           spotifyAuthURL,
		TokenURL:          spotifyTokenURL,
		HTTPClient:        &http.Client{Timeout: 20 * time.Second},
		RequestsPerSecond: 5,
		MaxRetryWait:      30 * time.Second,
		BreakerFailures:   5,
		BreakerTimeout:    time.Minute,
	}
}

// SpotifyOptionsFromConfig applies the [spotify] config section over [DefaultSpotifyOptions].
func SpotifyOptionsFromConfig(cfg shared.SpotifyClientConfig) SpotifyOptions {
	opts := DefaultSpotifyOptions()
	if cfg.RequestsPerSecond > 0 {
		opts.RequestsPerSecond = cfg.RequestsPerSecond
	}
	if cfg.MaxRetryWait > 0 {
		opts.MaxRetryWait = cfg.MaxRetryWait
	}
	if cfg.BreakerFailures > 0 {
		opts.BreakerFailures = cfg.BreakerFailures
	}
	if cfg.BreakerTimeout > 0 {
		opts.BreakerTimeout = cfg.BreakerTimeout
	}
	return opts
}

// SpotifyService implements [Player] and [Catalog] for the Spotify Web API.
// Uses [oauth2] for authentication, [rate.Limiter] for pacing and [gobreaker.CircuitBreaker] for outage protection.
type SpotifyService struct {
	config     *oauth2.Config
	opts       SpotifyOptions
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[any]
	logger     *log.Logger

	mu     sync.Mutex
	token  *oauth2.Token
	source oauth2.TokenSource
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
//
// Recognised keys are client_id, client_secret and redirect_uri (see [shared.SpotifyConfig.Map]).
func NewSpotifyService(credentials map[string]string, opts SpotifyOptions) (*SpotifyService, error) {
	clientID := credentials["client_id"]
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret := credentials["client_secret"]
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	defaults := DefaultSpotifyOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = defaults.BaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = defaults.AuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = defaults.TokenURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = defaults.HTTPClient
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = defaults.BreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = defaults.BreakerTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"user-read-playback-state",
			"user-read-currently-playing",
			"user-modify-playback-state",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:   opts.AuthURL,
			TokenURL:  opts.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	s := &SpotifyService{
		config:     config,
		opts:       opts,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		logger:     opts.Logger,
	}
	s.breaker = newBreaker(opts, s.logger)
	return s, nil
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Authenticate installs a token from credentials.
//
// Accepts either an "auth_code" to exchange, or an "access_token" and/or "refresh_token" pair from a previous login.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if code := credentials["auth_code"]; code != "" {
		_, err := s.Exchange(ctx, code)
		return err
	}

	access, refresh := credentials["access_token"], credentials["refresh_token"]
	if access == "" && refresh == "" {
		return fmt.Errorf("%w: missing access_token or refresh_token", shared.ErrMissingCredentials)
	}

	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}
	if exp := credentials["expiry"]; exp != "" {
		t, err := time.Parse(time.RFC3339, exp)
		if err != nil {
			return fmt.Errorf("%w: bad token expiry %q", shared.ErrInvalidConfig, exp)
		}
		tok.Expiry = t
	}
	s.SetToken(tok)
	return nil
}

// Exchange trades an authorization code for a token and installs it.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	s.SetToken(tok)
	s.notify(tok)
	return tok, nil
}

// SetToken installs tok. A token without a refresh token is used until it is rejected.
func (s *SpotifyService) SetToken(tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(tok)
}

// Token returns a copy of the current token, or nil before authentication.
func (s *SpotifyService) Token() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil
	}
	tok := *s.token
	return &tok
}

// install replaces the token source. Callers hold s.mu.
func (s *SpotifyService) install(tok *oauth2.Token) {
	s.token = tok
	if tok.RefreshToken == "" {
		s.source = oauth2.StaticTokenSource(tok)
		return
	}
	refresher := s.config.TokenSource(s.oauthContext(context.Background()), tok)
	s.source = oauth2.ReuseTokenSourceWithExpiry(tok, refresher, tokenExpirySkew)
}

// oauthContext routes token endpoint calls through the service's HTTP client.
func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func (s *SpotifyService) notify(tok *oauth2.Token) {
	if s.opts.OnToken != nil {
		s.opts.OnToken(tok)
	}
}

// accessToken returns a valid access token, refreshing ahead of expiry.
func (s *SpotifyService) accessToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return "", fmt.Errorf("%w: not authenticated", shared.ErrMissingCredentials)
	}

	tok, err := s.source.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	if s.token == nil || tok.AccessToken != s.token.AccessToken {
		s.logger.Debug("obtained new spotify access token", "expiry", tok.Expiry)
		s.token = tok
		s.notify(tok)
	}
	return tok.AccessToken, nil
}

// forceRefresh discards the current access token and requests a new one with the refresh token.
func (s *SpotifyService) forceRefresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil || s.token.RefreshToken == "" {
		return shared.ErrNoRefreshToken
	}

	stale := &oauth2.Token{RefreshToken: s.token.RefreshToken}
	fresh, err := s.config.TokenSource(s.oauthContext(ctx), stale).Token()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	s.install(fresh)
	s.notify(fresh)
	return nil
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, "profile", http.MethodGet, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// PeekQueue implements [Player]: the currently playing track followed by the upcoming queue.
//
// Episodes and items missing an id, name or artist are skipped.
func (s *SpotifyService) PeekQueue(ctx context.Context) (models.Snapshot, error) {
	var resp SpotifyQueue
	if err := s.doRequest(ctx, "peek", http.MethodGet, "/me/player/queue", &resp); err != nil {
		return nil, err
	}

	items := make([]SpotifyTrack, 0, len(resp.Queue)+1)
	if resp.CurrentlyPlaying != nil {
		items = append(items, *resp.CurrentlyPlaying)
	}
	items = append(items, resp.Queue...)

	snapshot := make(models.Snapshot, 0, len(items))
	for _, item := range items {
		if item.Type != "track" {
			continue
		}
		if song, ok := item.Song(); ok {
			snapshot = append(snapshot, song)
		}
	}
	return snapshot, nil
}

// Push implements [Player] by appending song to the active device's queue.
func (s *SpotifyService) Push(ctx context.Context, song models.Song) error {
	if song.ID == "" {
		return fmt.Errorf("%w: song id is required", shared.ErrInvalidInput)
	}

	endpoint := "/me/player/queue?uri=" + url.QueryEscape(shared.TrackURI(song.ID))
	return s.doRequest(ctx, "push", http.MethodPost, endpoint, nil)
}

// ResolveTrack implements [Catalog] with GET /tracks/{id}.
func (s *SpotifyService) ResolveTrack(ctx context.Context, trackID string) (*models.Song, error) {
	if trackID == "" {
		return nil, fmt.Errorf("%w: track id is required", shared.ErrInvalidInput)
	}

	var track SpotifyTrack
	err := s.doRequest(ctx, "resolve", http.MethodGet, "/tracks/"+url.PathEscape(trackID), &track)

	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusBadRequest) {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, trackID)
	}
	if err != nil {
		return nil, err
	}

	song, ok := track.Song()
	if !ok {
		return nil, fmt.Errorf("%w: %s has incomplete metadata", shared.ErrTrackNotFound, trackID)
	}
	return &song, nil
}

// apiResponse is a fully read HTTP response.
type apiResponse struct {
	status int
	header http.Header
	body   []byte
}

// doRequest performs an authenticated request through the circuit breaker and decodes a JSON body into result.
func (s *SpotifyService) doRequest(ctx context.Context, op, method, endpoint string, result any) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.doWithRetry(ctx, op, method, endpoint, result)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
		s.logger.Warn("spotify request rejected", "op", op, "error", err)
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	case err != nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		return err
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
		return nil
	}
}

// doWithRetry sends the request, retrying once after a forced token refresh (401) or a Retry-After wait (429).
func (s *SpotifyService) doWithRetry(ctx context.Context, op, method, endpoint string, result any) error {
	resp, err := s.send(ctx, op, method, endpoint)
	if err != nil {
		return err
	}

	switch resp.status {
	case http.StatusUnauthorized:
		s.logger.Info("401 from spotify, refreshing token", "op", op)
		if err := s.forceRefresh(ctx); err != nil {
			return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
		}
		if resp, err = s.send(ctx, op, method, endpoint); err != nil {
			return err
		}
	case http.StatusTooManyRequests:
		wait := retryAfter(resp.header.Get("Retry-After"), s.opts.MaxRetryWait)
		s.logger.Warn("rate limited by spotify, retrying once", "op", op, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if resp, err = s.send(ctx, op, method, endpoint); err != nil {
			return err
		}
	}

	return s.decode(op, resp, result)
}

// send waits for the rate limiter and performs a single request.
func (s *SpotifyService) send(ctx context.Context, op, method, endpoint string) (*apiResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	token, err := s.accessToken()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, s.opts.BaseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.RecordSpotifyRequest(op, 0, time.Since(start))
		return nil, fmt.Errorf("%w: request failed: %w", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordSpotifyRequest(op, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", shared.ErrAPIRequest, err)
	}

	return &apiResponse{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// decode maps the final response onto an error or a decoded result.
func (s *SpotifyService) decode(op string, resp *apiResponse, result any) error {
	switch {
	case resp.status == http.StatusUnauthorized:
		return fmt.Errorf("%w: spotify rejected refreshed token", shared.ErrAuthFailed)
	case resp.status == http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case resp.status == http.StatusNotFound && bytes.Contains(resp.body, []byte("NO_ACTIVE_DEVICE")):
		s.logger.Warn("no active spotify device, start playback on any device of the account", "op", op)
		return shared.ErrNoActiveDevice
	case resp.status < 200 || resp.status >= 300:
		s.logger.Error("spotify API error", "op", op, "status", resp.status)
		return &APIError{Status: resp.status, Body: strings.TrimSpace(string(resp.body))}
	}

	if result == nil || resp.status == http.StatusNoContent || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// retryAfter parses a Retry-After header holding whole seconds. Missing or malformed values wait one second.
func retryAfter(v string, limit time.Duration) time.Duration {
	wait := time.Second
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		wait = time.Duration(secs) * time.Second
	}
	if limit > 0 && wait > limit {
		wait = limit
	}
	return wait
}
