package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix marks environment variables that override config values.
//
// Nested keys are separated by a double underscore: JUKEBOX_SERVER__PORT -> server.port
const EnvPrefix = "JUKEBOX_"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig   `toml:"credentials" koanf:"credentials"`
	Database    DatabaseConfig      `toml:"database" koanf:"database"`
	Server      ServerConfig        `toml:"server" koanf:"server"`
	Jukebox     JukeboxConfig       `toml:"jukebox" koanf:"jukebox"`
	Spotify     SpotifyClientConfig `toml:"spotify" koanf:"spotify"`
	Log         LogConfig           `toml:"log" koanf:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify" koanf:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and the last known token pair.
type SpotifyConfig struct {
	ClientID     string    `toml:"client_id" koanf:"client_id"`
	ClientSecret string    `toml:"client_secret" koanf:"client_secret"`
	RedirectURI  string    `toml:"redirect_uri" koanf:"redirect_uri"`
	AccessToken  string    `toml:"access_token" koanf:"access_token"`
	RefreshToken string    `toml:"refresh_token" koanf:"refresh_token"`
	Expiry       time.Time `toml:"expiry,omitempty" koanf:"expiry,omitnested"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path          string `toml:"path" koanf:"path" validate:"required"`
	MaxOpenConns  int    `toml:"max_open_conns" koanf:"max_open_conns" validate:"gte=0"`
	MaxIdleConns  int    `toml:"max_idle_conns" koanf:"max_idle_conns" validate:"gte=0"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms" koanf:"busy_timeout_ms" validate:"gte=0"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host               string   `toml:"host" koanf:"host"`
	Port               int      `toml:"port" koanf:"port" validate:"gt=0,lte=65535"`
	CORSOrigins        []string `toml:"cors_origins" koanf:"cors_origins"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute" koanf:"rate_limit_per_minute" validate:"gte=0"`
}

// JukeboxConfig tunes the queue and the reconciliation loop.
type JukeboxConfig struct {
	TickInterval time.Duration `toml:"tick_interval" koanf:"tick_interval" validate:"gt=0"`
	TickTimeout  time.Duration `toml:"tick_timeout" koanf:"tick_timeout" validate:"gt=0"`
	ReplayWindow time.Duration `toml:"replay_window" koanf:"replay_window" validate:"gte=0"`
	LedgerKeep   int           `toml:"ledger_keep" koanf:"ledger_keep" validate:"gte=0"`
}

// SpotifyClientConfig tunes the Spotify Web API client.
type SpotifyClientConfig struct {
	RequestsPerSecond float64       `toml:"requests_per_second" koanf:"requests_per_second" validate:"gt=0"`
	MaxRetryWait      time.Duration `toml:"max_retry_wait" koanf:"max_retry_wait" validate:"gte=0"`
	BreakerFailures   uint32        `toml:"breaker_failures" koanf:"breaker_failures" validate:"gt=0"`
	BreakerTimeout    time.Duration `toml:"breaker_timeout" koanf:"breaker_timeout" validate:"gt=0"`
}

// LogConfig sets the logger level (debug, info, warn, error).
type LogConfig struct {
	Level string `toml:"level" koanf:"level" validate:"omitempty,oneof=debug info warn error fatal"`
}

// Map returns the Spotify credentials as a flat map, keyed like the TOML file. Expiry is RFC 3339 and omitted
// when unset.
func (s SpotifyConfig) Map() map[string]string {
	m := map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
		"access_token":  s.AccessToken,
		"refresh_token": s.RefreshToken,
	}
	if !s.Expiry.IsZero() {
		m["expiry"] = s.Expiry.UTC().Format(time.RFC3339)
	}
	return m
}

// Update stores a freshly issued token, keeping the old refresh token when the provider did not rotate it.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("%w: nil token", ErrInvalidInput)
	}
	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	s.Expiry = token.Expiry.UTC()
	return nil
}

// Validate checks value ranges with [validator.Validate].
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file fall back to the embedded defaults. Environment variables prefixed with [EnvPrefix] win over both.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config, err = ApplyEnv(config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadOrDefault loads path when it exists and falls back to [DefaultConfig] with env overrides otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadConfig(path)
	}
	return ApplyEnv(DefaultConfig())
}

// ApplyEnv layers JUKEBOX_* environment variables over base using [koanf.Koanf].
func ApplyEnv(base *Config) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(base, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load config defaults: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var out Config
	if err := k.Unmarshal("", &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return &out, nil
}

// envKey maps JUKEBOX_CREDENTIALS__SPOTIFY__CLIENT_ID onto credentials.spotify.client_id
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path as TOML, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
