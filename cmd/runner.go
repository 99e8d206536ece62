package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/splitify/internal/enrich"
	"github.com/desertthunder/splitify/internal/services"
	"github.com/desertthunder/splitify/internal/shared"
	"github.com/desertthunder/splitify/internal/store"
	"github.com/desertthunder/splitify/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	spotify    services.Service
	tags       services.TagSource
	logger     *log.Logger
	output     io.Writer
	engine     *tasks.PlaylistEngine
	logFile    io.Closer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Spotify    services.Service
	Tags       services.TagSource
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		spotify:    opts.Spotify,
		tags:       opts.Tags,
		logger:     opts.Logger,
		output:     opts.Output,
	}
	r.engine = tasks.NewPlaylistEngine(r.writer(), r.logger)
	return r
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		configCommand, authCommand, playlistsCommand, enrichCommand, splitCommand, exportCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Setup loads the configuration named by --config and builds whichever services it has credentials for.
//
// Services injected through [RunnerOpts] are kept.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	config, err := shared.LoadConfigWithEnv(path)
	if err != nil {
		return ctx, err
	}
	if err := config.Validate(); err != nil {
		return ctx, err
	}
	r.config, r.configPath = config, path

	level, _ := shared.ParseLogLevel(config.Log.Level)
	if cmd.Bool("debug") {
		level = log.DebugLevel
	}
	if config.Log.File != "" {
		logger, f, err := shared.NewFileLogger(config.Log.File)
		if err != nil {
			return ctx, err
		}
		r.logger, r.logFile = logger, f
	}
	shared.SetLogLevel(r.logger, level)

	if r.spotify == nil {
		r.spotify = r.newSpotify(ctx)
	}
	if r.tags == nil {
		r.tags = r.newLastFM()
	}
	r.engine = tasks.NewPlaylistEngine(r.writer(), r.logger)
	return ctx, nil
}

// Teardown persists a refreshed Spotify token and closes the log file.
func (r *Runner) Teardown(ctx context.Context, cmd *cli.Command) error {
	if err := r.saveToken(); err != nil {
		r.logger.Warn("failed to save refreshed token", "err", err)
	}
	if r.logFile != nil {
		return r.logFile.Close()
	}
	return nil
}

func (r *Runner) newSpotify(ctx context.Context) services.Service {
	creds := r.config.Credentials.Spotify
	svc, err := services.NewSpotifyService(creds.Map())
	if err != nil {
		r.logger.Debug("spotify not configured", "err", err)
		return nil
	}
	svc.WithPageSize(r.config.Loader.PageSize)

	if creds.Token() != nil {
		if err := svc.Authenticate(ctx, creds.Map()); err != nil {
			r.logger.Warn("stored spotify token rejected", "err", err)
		}
	}
	return svc
}

func (r *Runner) newLastFM() services.TagSource {
	lf := r.config.Credentials.LastFM
	e := r.config.Enrichment
	svc, err := services.NewLastFMService(services.LastFMOptions{
		APIKey:     lf.APIKey,
		BaseURL:    lf.BaseURL,
		MaxRetries: e.MaxRetries,
		RetryBase:  e.RetryBaseDelay(),
		RetryMax:   e.RetryMaxDelay(),
		Logger:     r.logger,
	})
	if err != nil {
		r.logger.Debug("last.fm not configured", "err", err)
		return nil
	}
	return svc
}

// writer returns the Spotify service as a [tasks.PlaylistWriter], or nil so the engine reports it as unavailable.
func (r *Runner) writer() tasks.PlaylistWriter {
	if r.spotify == nil {
		return nil
	}
	return r.spotify
}

func (r *Runner) requireSpotify() error {
	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify service not initialized, set credentials.spotify in %s", shared.ErrServiceUnavailable, r.configPath)
	}
	return nil
}

// sessionOptions tunes the enrichment sources for this run. Tag sources are turned off when Last.fm is not configured.
type sessionOptions struct {
	noTrackTags  bool
	noArtistTags bool
}

func (r *Runner) newSession(so sessionOptions) (*tasks.Session, error) {
	if err := r.requireSpotify(); err != nil {
		return nil, err
	}

	opts := enrich.OptionsFromConfig(r.config.Enrichment, r.logger)
	if so.noTrackTags {
		opts.TrackTags = false
	}
	if so.noArtistTags {
		opts.ArtistTags = false
	}
	if r.tags == nil && (opts.TrackTags || opts.ArtistTags) {
		r.logger.Warn("last.fm api_key not set, using Spotify artist genres only")
		opts.TrackTags, opts.ArtistTags = false, false
	}

	return tasks.NewSession(r.spotify, r.tags, tasks.SessionOptions{
		Enrich:    opts,
		PageDelay: r.config.Loader.Delay(),
		Logger:    r.logger,
	})
}

// load runs a session over the playlist named by the "playlist" argument, logging progress as it goes.
func (r *Runner) load(ctx context.Context, cmd *cli.Command, so sessionOptions) (*tasks.Session, error) {
	playlistID, err := shared.ExtractPlaylistID(cmd.StringArg("playlist"))
	if err != nil {
		return nil, err
	}

	session, err := r.newSession(so)
	if err != nil {
		return nil, err
	}

	unsubscribe := session.Store().Subscribe(r.progressLogger(2 * time.Second))
	defer unsubscribe()

	if err := session.Load(ctx, playlistID); err != nil {
		return nil, err
	}
	return session, nil
}

// progressLogger returns a store subscriber that logs loading progress at most once per interval.
func (r *Runner) progressLogger(interval time.Duration) func(store.State) {
	var last time.Time
	return func(s store.State) {
		if !s.Loading.Active || time.Since(last) < interval {
			return
		}
		last = time.Now()

		kv := []any{"loaded", fmt.Sprintf("%d/%d", s.Loading.Loaded, s.Loading.Total), "enriched", store.Completed(s)}
		if eta, ok := store.ETA(s); ok {
			kv = append(kv, "eta", shared.FormatETA(eta))
		}
		r.logger.Info("enriching "+s.PlaylistName, kv...)
	}
}

// SetLogger replaces the runner's logger and rebuilds the engine with it.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
	r.engine = tasks.NewPlaylistEngine(r.writer(), logger)
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
