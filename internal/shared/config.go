package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix is the prefix of every environment override, e.g. SPLITIFY_LASTFM_API_KEY.
const EnvPrefix = "splitify"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	Enrichment  EnrichmentConfig  `toml:"enrichment"`
	Loader      LoaderConfig      `toml:"loader"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	LastFM  LastFMConfig  `toml:"lastfm"`
}

// SpotifyConfig contains Spotify API credentials and the last issued token.
type SpotifyConfig struct {
	ClientID     string    `toml:"client_id"`
	ClientSecret string    `toml:"client_secret"`
	RedirectURI  string    `toml:"redirect_uri"`
	AccessToken  string    `toml:"access_token,omitempty"`
	RefreshToken string    `toml:"refresh_token,omitempty"`
	Expiry       time.Time `toml:"expiry,omitempty"`
}

// Map flattens the credentials into the map accepted by services.Service.Authenticate.
func (c SpotifyConfig) Map() map[string]string {
	m := map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"redirect_uri":  c.RedirectURI,
	}
	if c.AccessToken != "" {
		m["access_token"] = c.AccessToken
	}
	if c.RefreshToken != "" {
		m["refresh_token"] = c.RefreshToken
	}
	if !c.Expiry.IsZero() {
		m["expiry"] = c.Expiry.Format(time.RFC3339)
	}
	return m
}

// Token returns the stored token, or nil when no token has been saved.
func (c SpotifyConfig) Token() *oauth2.Token {
	if c.AccessToken == "" && c.RefreshToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.Expiry,
	}
}

// Update stores tok, keeping the existing refresh token when tok has none.
func (c *SpotifyConfig) Update(tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredentials)
	}
	c.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	c.Expiry = tok.Expiry
	return nil
}

// LastFMConfig contains Last.fm API credentials.
type LastFMConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// ServerConfig contains the OAuth callback server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// EnrichmentConfig tunes the genre enrichment pipeline. Durations are milliseconds.
type EnrichmentConfig struct {
	TrackTags         bool    `toml:"track_tags"`
	ArtistTags        bool    `toml:"artist_tags"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	MaxConcurrent     int     `toml:"max_concurrent"`
	MinRelevance      int     `toml:"min_relevance"`
	TopN              int     `toml:"top_n"`
	ArtistBatchSize   int     `toml:"artist_batch_size"`
	ArtistBatchDelay  int     `toml:"artist_batch_delay_ms"`
	Debounce          int     `toml:"debounce_ms"`
	MaxRetries        int     `toml:"max_retries"`
	RetryBase         int     `toml:"retry_base_ms"`
	RetryMax          int     `toml:"retry_max_ms"`
}

func (e EnrichmentConfig) BatchDelay() time.Duration    { return ms(e.ArtistBatchDelay) }
func (e EnrichmentConfig) DebounceDelay() time.Duration { return ms(e.Debounce) }
func (e EnrichmentConfig) RetryBaseDelay() time.Duration {
	return ms(e.RetryBase)
}
func (e EnrichmentConfig) RetryMaxDelay() time.Duration { return ms(e.RetryMax) }

// LoaderConfig controls playlist paging.
type LoaderConfig struct {
	PageSize  int `toml:"page_size"`
	PageDelay int `toml:"page_delay_ms"`
}

func (l LoaderConfig) Delay() time.Duration { return ms(l.PageDelay) }

// LogConfig sets the log level and optional log file.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// envOverrides lists the settings that may come from the environment (or a .env file).
type envOverrides struct {
	SpotifyClientID     string  `envconfig:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string  `envconfig:"SPOTIFY_CLIENT_SECRET"`
	SpotifyRedirectURI  string  `envconfig:"SPOTIFY_REDIRECT_URI"`
	LastFMAPIKey        string  `envconfig:"LASTFM_API_KEY"`
	RequestsPerSecond   float64 `envconfig:"REQUESTS_PER_SECOND"`
	MaxConcurrent       int     `envconfig:"MAX_CONCURRENT"`
	LogLevel            string  `envconfig:"LOG_LEVEL"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file fall back to the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %w", ErrMissingConfig, path, err)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// LoadConfigWithEnv loads path (or the defaults when it does not exist), then applies a .env file and SPLITIFY_* variables on top.
func LoadConfigWithEnv(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		config = DefaultConfig()
	} else if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides config values with SPLITIFY_* environment variables that are set.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&c.Credentials.Spotify.ClientID, env.SpotifyClientID)
	setString(&c.Credentials.Spotify.ClientSecret, env.SpotifyClientSecret)
	setString(&c.Credentials.Spotify.RedirectURI, env.SpotifyRedirectURI)
	setString(&c.Credentials.LastFM.APIKey, env.LastFMAPIKey)
	setString(&c.Log.Level, env.LogLevel)
	if env.RequestsPerSecond > 0 {
		c.Enrichment.RequestsPerSecond = env.RequestsPerSecond
	}
	if env.MaxConcurrent > 0 {
		c.Enrichment.MaxConcurrent = env.MaxConcurrent
	}
	return nil
}

// Validate reports the first setting that would make the pipeline misbehave.
func (c *Config) Validate() error {
	e := c.Enrichment
	switch {
	case e.RequestsPerSecond <= 0:
		return fmt.Errorf("%w: enrichment.requests_per_second must be positive", ErrInvalidConfig)
	case e.MaxConcurrent < 1:
		return fmt.Errorf("%w: enrichment.max_concurrent must be at least 1", ErrInvalidConfig)
	case e.MinRelevance < 0 || e.MinRelevance > 100:
		return fmt.Errorf("%w: enrichment.min_relevance must be within [0,100]", ErrInvalidConfig)
	case e.TopN < 1:
		return fmt.Errorf("%w: enrichment.top_n must be at least 1", ErrInvalidConfig)
	case e.ArtistBatchSize < 1 || e.ArtistBatchSize > 50:
		return fmt.Errorf("%w: enrichment.artist_batch_size must be within [1,50]", ErrInvalidConfig)
	case e.ArtistBatchDelay < 0 || e.Debounce < 0 || e.RetryBase < 0 || e.RetryMax < 0:
		return fmt.Errorf("%w: enrichment delays must not be negative", ErrInvalidConfig)
	case e.MaxRetries < 1:
		return fmt.Errorf("%w: enrichment.max_retries must be at least 1", ErrInvalidConfig)
	case c.Loader.PageSize < 1 || c.Loader.PageSize > 100:
		return fmt.Errorf("%w: loader.page_size must be within [1,100]", ErrInvalidConfig)
	case c.Loader.PageDelay < 0:
		return fmt.Errorf("%w: loader.page_delay_ms must not be negative", ErrInvalidConfig)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
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

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path as TOML, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
