package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/jukebox/internal/server"
	"github.com/desertthunder/jukebox/internal/services"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// authTimeout bounds how long `spotify auth` waits for the browser callback.
const authTimeout = 2 * time.Minute

// SpotifyAuth performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
// The token is written to the config file by the service's token hook.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	config, err := r.configure(cmd)
	if err != nil {
		return err
	}

	if config.Credentials.Spotify.ClientID == "" || config.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	spotifyService, err := r.spotifyService(ctx, cmd)
	if err != nil {
		return err
	}

	if _, err := r.doOAuth(ctx, config.Credentials.Spotify.RedirectURI, spotifyService); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n", r.configPath)

	if user, err := spotifyService.UserProfile(ctx); err == nil {
		r.writePlain("Signed in as %s (%s)\n", user.DisplayName, user.Product)
		if user.Product != "premium" {
			r.writePlain("⚠ Queueing songs requires Spotify Premium\n")
		}
	}

	r.writePlain("\nYou can now run: jukebox serve\n")
	return nil
}

// SpotifyProfile prints the authenticated account.
func (r *Runner) SpotifyProfile(ctx context.Context, cmd *cli.Command) error {
	spotifyService, err := r.spotifyService(ctx, cmd)
	if err != nil {
		return err
	}

	user, err := spotifyService.UserProfile(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, true)
	}

	r.writePlain("ID:       %s\n", user.ID)
	r.writePlain("Name:     %s\n", user.DisplayName)
	r.writePlain("Country:  %s\n", user.Country)
	r.writePlain("Product:  %s\n", user.Product)
	return nil
}

// SpotifyPeek prints the device's current track and upcoming queue, as the reconciler sees it.
func (r *Runner) SpotifyPeek(ctx context.Context, cmd *cli.Command) error {
	player, err := r.playerService(ctx, cmd)
	if err != nil {
		return err
	}

	snapshot, err := player.PeekQueue(ctx)
	if err != nil {
		return fmt.Errorf("failed to read device queue: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(snapshot, true)
	}

	if len(snapshot) == 0 {
		return r.writePlain("Nothing is playing\n")
	}

	r.writePlainHeader("Device Queue")
	for i, song := range snapshot {
		marker := fmt.Sprintf("%2d.", i)
		if i == 0 {
			marker = " ▶ "
		}
		r.writePlain("%s %s  [%s]\n", marker, song.String(), song.ID)
	}
	return nil
}

// doOAuth runs the authorization code flow against a callback server bound to the redirect URI's host and port.
func (r *Runner) doOAuth(ctx context.Context, redirectURI string, srv *services.SpotifyService) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	redirect, err := url.Parse(redirectURI)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("%w: invalid redirect_uri %q", shared.ErrInvalidConfig, redirectURI)
	}
	if redirect.Path != server.CallbackPath {
		r.logger.Warn("redirect_uri path differs from the callback route", "path", redirect.Path, "route", server.CallbackPath)
	}

	authURL := srv.GetAuthURL(state)
	oauthHandler := server.NewOAuthHandler(srv, state)

	httpServer := &http.Server{
		Addr:              redirect.Host,
		Handler:           server.NewCallbackRouter(oauthHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server at %v", redirect.Host)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}
