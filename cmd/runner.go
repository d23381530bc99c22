package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/repositories"
	"github.com/desertthunder/jukebox/internal/services"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/desertthunder/jukebox/internal/tasks"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Dependencies are opened lazily so that commands like `setup database` work without Spotify credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	clock      func() time.Time
	httpClient *http.Client

	db      *sql.DB
	store   *repositories.Store
	spotify *services.SpotifyService
	player  services.Player
	catalog services.Catalog
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	DB         *sql.DB
	Player     services.Player
	Catalog    services.Catalog
	HTTPClient *http.Client // Used by the Spotify client; its own default when nil
	Logger     *log.Logger
	Output     io.Writer
	Clock      func() time.Time
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		clock:      opts.Clock,
		httpClient: opts.HTTPClient,
		db:         opts.DB,
		player:     opts.Player,
		catalog:    opts.Catalog,
	}
	if opts.DB != nil {
		r.store = repositories.NewStore(opts.DB)
	}
	return r
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, spotifyCommand, serveCommand, queueCommand, ledgerCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger for every dependency opened afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the database handle, if one was opened.
func (r *Runner) Close() {
	if r.db == nil {
		return
	}
	if err := r.db.Close(); err != nil {
		r.logger.Warn("failed to close database", "error", err)
	}
	r.db = nil
	r.store = nil
}

// configure loads the config named by --config once per process.
func (r *Runner) configure(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	path := cmd.String("config")
	if path == "" {
		path = "config.toml"
	}

	config, err := shared.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	r.config = config
	r.configPath = path
	shared.SetLogLevel(r.logger, shared.ParseLevel(config.Log.Level))
	r.logger.Debug("configuration loaded", "path", path)
	return config, nil
}

// openStore opens the database and brings its schema up to date.
func (r *Runner) openStore(cmd *cli.Command) (*repositories.Store, error) {
	if r.store != nil {
		return r.store, nil
	}

	config, err := r.configure(cmd)
	if err != nil {
		return nil, err
	}

	db, err := shared.OpenDatabase(config.Database.Path, config.Database.BusyTimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db = db
	r.store = repositories.NewStore(db)
	r.logger.Debug("database ready", "path", config.Database.Path)
	return r.store, nil
}

// spotifyService builds the Spotify client from the configured credentials and stored token.
// Refreshed tokens are written back to the config file.
func (r *Runner) spotifyService(ctx context.Context, cmd *cli.Command) (*services.SpotifyService, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	config, err := r.configure(cmd)
	if err != nil {
		return nil, err
	}

	opts := services.SpotifyOptionsFromConfig(config.Spotify)
	opts.Logger = shared.WithLogger(r.logger, "service", "spotify")
	opts.OnToken = r.persistToken
	if r.httpClient != nil {
		opts.HTTPClient = r.httpClient
	}

	credentials := config.Credentials.Spotify.Map()
	srv, err := services.NewSpotifyService(credentials, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}

	// A config without a stored token is still usable for `spotify auth`.
	if err := srv.Authenticate(ctx, credentials); err != nil && !errors.Is(err, shared.ErrMissingCredentials) {
		return nil, fmt.Errorf("failed to install stored token: %w", err)
	}

	r.spotify = srv
	return srv, nil
}

// saveTokens records tok in the config and writes it to the config path, when there is one.
func (r *Runner) saveTokens(tok *oauth2.Token) error {
	if r.config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrMissingConfig)
	}
	if err := r.config.Credentials.Spotify.Update(tok); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}
	if r.configPath == "" {
		return nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	r.logger.Debug("spotify token saved", "path", r.configPath)
	return nil
}

// persistToken is the Spotify client's token hook. Failures are logged, not returned: the token is already in
// use and the next refresh will try again.
func (r *Runner) persistToken(tok *oauth2.Token) {
	if err := r.saveTokens(tok); err != nil {
		r.logger.Warn("failed to persist spotify token", "error", err)
	}
}

// playerService returns the injected player or the Spotify client.
func (r *Runner) playerService(ctx context.Context, cmd *cli.Command) (services.Player, error) {
	if r.player != nil {
		return r.player, nil
	}
	srv, err := r.spotifyService(ctx, cmd)
	if err != nil {
		return nil, err
	}
	r.player = srv
	return srv, nil
}

// catalogService returns the injected catalog or the Spotify client. Without credentials it returns nil, which
// limits admission to songs already stored.
func (r *Runner) catalogService(ctx context.Context, cmd *cli.Command) services.Catalog {
	if r.catalog != nil {
		return r.catalog
	}
	srv, err := r.spotifyService(ctx, cmd)
	if err != nil {
		if errors.Is(err, shared.ErrMissingCredentials) {
			r.logger.Warn("spotify credentials missing, only known songs can be added")
		} else {
			r.logger.Warn("spotify catalog unavailable", "error", err)
		}
		return nil
	}
	r.catalog = srv
	return srv
}

func (r *Runner) newJukebox(ctx context.Context, cmd *cli.Command) (*tasks.Jukebox, error) {
	config, err := r.configure(cmd)
	if err != nil {
		return nil, err
	}

	store, err := r.openStore(cmd)
	if err != nil {
		return nil, err
	}

	return tasks.NewJukebox(store, r.catalogService(ctx, cmd), tasks.JukeboxOptions{
		ReplayWindow: config.Jukebox.ReplayWindow,
		Clock:        r.clock,
		Logger:       shared.WithLogger(r.logger, "component", "jukebox"),
	}), nil
}

func (r *Runner) newReconciler(ctx context.Context, cmd *cli.Command, updates chan<- tasks.TickResult) (*tasks.Reconciler, error) {
	config, err := r.configure(cmd)
	if err != nil {
		return nil, err
	}

	store, err := r.openStore(cmd)
	if err != nil {
		return nil, err
	}

	player, err := r.playerService(ctx, cmd)
	if err != nil {
		return nil, err
	}

	return tasks.NewReconciler(store, player, tasks.ReconcilerOptions{
		Interval:     config.Jukebox.TickInterval,
		Timeout:      config.Jukebox.TickTimeout,
		LedgerKeep:   config.Jukebox.LedgerKeep,
		ReplayWindow: config.Jukebox.ReplayWindow,
		Clock:        r.clock,
		Logger:       shared.WithLogger(r.logger, "component", "reconciler"),
		Updates:      updates,
	}), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
