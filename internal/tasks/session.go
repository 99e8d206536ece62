package tasks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/splitify/internal/enrich"
	"github.com/desertthunder/splitify/internal/models"
	"github.com/desertthunder/splitify/internal/services"
	"github.com/desertthunder/splitify/internal/shared"
	"github.com/desertthunder/splitify/internal/store"
	"golang.org/x/sync/errgroup"
)

// PlaylistSource is what a [Session] needs from Spotify.
type PlaylistSource interface {
	GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error)
	services.PageSource
	services.ArtistGenreSource
}

// SessionOptions configures a [Session].
type SessionOptions struct {
	Enrich    enrich.Options
	PageDelay time.Duration
	Logger    *log.Logger
}

// Session loads one playlist at a time into a [store.Store], enriching tracks while pages stream in.
type Session struct {
	source PlaylistSource
	orch   *enrich.Orchestrator
	store  *store.Store
	loader *Loader
	logger *log.Logger

	mu     sync.Mutex
	active *load

	// eventsMu guards the channel feeding the store, separately from mu so store subscribers may call Active.
	eventsMu    sync.Mutex
	events      chan store.Action
	eventsToken *enrich.Token
}

type load struct {
	id    string
	token *enrich.Token
}

// NewSession wires the loader and the enrichment orchestrator to a fresh store. tags may be nil when both tag
// sources are disabled.
func NewSession(source PlaylistSource, tags services.TagSource, opts SessionOptions) (*Session, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: playlist source is required", shared.ErrServiceUnavailable)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	s := &Session{
		source: source,
		store:  store.New(store.State{}),
		logger: shared.WithLogger(logger, "component", "session"),
	}
	s.loader = NewLoader(source, opts.PageDelay, logger)

	eopts := opts.Enrich
	if eopts.Logger == nil {
		eopts.Logger = logger
	}
	orch, err := enrich.New(tags, source, eopts, enrich.Callbacks{
		OnTrackTagProgress:    s.publishProgress,
		OnArtistTagProgress:   s.publishProgress,
		OnArtistGenreProgress: s.publishProgress,
		OnTrackUpdate:         func(u models.TrackUpdate) { s.publish(store.UpdateTrack{Update: u}) },
		OnBatchUpdate:         func(us []models.TrackUpdate) { s.publish(store.UpdateTracks{Updates: us}) },
	})
	if err != nil {
		return nil, err
	}
	s.orch = orch
	return s, nil
}

// Store returns the state the session writes to.
func (s *Session) Store() *store.Store {
	return s.store
}

// Progress returns the orchestrator's per-source counters.
func (s *Session) Progress() enrich.SourceProgress {
	return s.orch.Progress()
}

// Active reports whether a load is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Load replaces the store's contents with playlistID and blocks until every track is enriched.
//
// Fatal errors (missing playlist, authentication, a failed page) clear the store, record the error and are returned.
// A load stopped by [Session.Cancel] or by ctx clears the store and returns [shared.ErrCancelled].
// Only one load runs at a time; a second call returns [shared.ErrLoadActive].
func (s *Session) Load(ctx context.Context, playlistID string) error {
	l, events, err := s.begin(ctx)
	if err != nil {
		return err
	}
	logger := shared.WithLogger(s.logger, "load", l.id, "playlist", playlistID)
	started := time.Now()

	s.orch.Clear()
	s.store.Dispatch(store.ClearTracks{}, store.SetLoading{Active: true})

	g, gctx := errgroup.WithContext(l.token.Context())
	g.Go(func() error {
		for a := range events {
			s.store.Dispatch(a)
		}
		return nil
	})
	g.Go(func() error {
		defer s.closeEvents()
		return s.run(gctx, playlistID, logger)
	})
	err = g.Wait()

	cancelled := l.token.Cancelled()
	s.finish()

	switch {
	case err == nil && !cancelled:
		s.store.Dispatch(store.SetLoading{Active: false})
		state := s.store.State()
		logger.Info("load complete", "tracks", len(state.Tracks), "genres", len(store.Genres(state)), "elapsed", time.Since(started).Round(time.Millisecond))
		return nil
	case cancelled:
		s.orch.Cancel()
		s.store.Dispatch(store.ClearTracks{})
		logger.Info("load cancelled")
		return shared.ErrCancelled
	default:
		s.orch.Cancel()
		s.store.Dispatch(store.ClearTracks{}, store.SetError{Err: err})
		logger.Error("load failed", "err", err)
		return err
	}
}

// run fetches metadata, streams pages into the orchestrator, then waits for enrichment to drain.
func (s *Session) run(ctx context.Context, playlistID string, logger *log.Logger) error {
	meta, err := s.source.GetPlaylist(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("failed to fetch playlist %s: %w", playlistID, err)
	}
	s.publish(store.SetPlaylistInfo{ID: meta.ID, Name: meta.Name, Total: meta.TrackCount})
	logger.Info("loading playlist", "name", meta.Name, "tracks", meta.TrackCount)

	// Lookups already started finish after a cancel.
	jobCtx := context.WithoutCancel(ctx)
	if _, err := s.loader.Stream(ctx, playlistID, func(p Page) error {
		s.publish(store.AddTracks{Tracks: p.Tracks})
		s.publish(store.SetPlaylistProgress{Loaded: p.Loaded, Total: p.Total})
		s.orch.EnqueueTracks(jobCtx, p.Tracks)
		return nil
	}); err != nil {
		return err
	}

	return s.orch.WaitForCompletion(ctx)
}

// Cancel stops the running load, if any. Lookups already in flight finish but their results are dropped.
func (s *Session) Cancel() {
	s.mu.Lock()
	l := s.active
	s.mu.Unlock()
	if l == nil {
		return
	}
	l.token.Cancel()
	s.orch.Cancel()
}

func (s *Session) begin(ctx context.Context) (*load, <-chan store.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, nil, shared.ErrLoadActive
	}
	l := &load{id: shared.GenerateID(), token: enrich.NewToken(ctx)}
	s.active = l

	events := make(chan store.Action, 64)
	s.eventsMu.Lock()
	s.events, s.eventsToken = events, l.token
	s.eventsMu.Unlock()
	return l, events, nil
}

func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.token.Cancel()
	s.active = nil
}

func (s *Session) closeEvents() {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.events != nil {
		close(s.events)
		s.events, s.eventsToken = nil, nil
	}
}

// publish queues a for the store unless the load is over or cancelled.
func (s *Session) publish(a store.Action) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.events == nil || s.eventsToken.Cancelled() {
		return
	}
	s.events <- a
}

func (s *Session) publishProgress(p enrich.Progress) {
	s.publish(store.SetSourceProgress{Progress: p})
}

// Snapshot returns the current tracks as an export filtered by the store's genre selection.
func (s *Session) Snapshot() *models.PlaylistExport {
	state := s.store.State()
	return &models.PlaylistExport{
		Playlist: models.Playlist{ID: state.PlaylistID, Name: state.PlaylistName, TrackCount: len(state.Tracks)},
		Genres:   state.Filters.Selected,
		Tracks:   store.Filtered(state),
	}
}
