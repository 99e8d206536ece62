package enrich

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/splitify/internal/models"
	"github.com/desertthunder/splitify/internal/queue"
	"github.com/desertthunder/splitify/internal/services"
	"github.com/desertthunder/splitify/internal/shared"
)

// Source identifies one of the three genre providers.
type Source int

const (
	SourceTrackTags Source = iota
	SourceArtistTags
	SourceArtistGenres
)

func (s Source) String() string {
	switch s {
	case SourceTrackTags:
		return "track tags"
	case SourceArtistTags:
		return "artist tags"
	case SourceArtistGenres:
		return "artist genres"
	default:
		return "unknown"
	}
}

// Progress counts lookups for one source. AverageTime is zero until the queue has enough samples.
type Progress struct {
	Source      Source
	Completed   int
	Total       int
	AverageTime time.Duration
}

// ETA estimates the time left from the observed throughput.
func (p Progress) ETA() (time.Duration, bool) {
	if p.AverageTime <= 0 || p.Completed >= p.Total {
		return 0, false
	}
	return time.Duration(p.Total-p.Completed) * p.AverageTime, true
}

// SourceProgress is a snapshot of all three sources.
type SourceProgress struct {
	TrackTags    Progress
	ArtistTags   Progress
	ArtistGenres Progress
}

// Callbacks receive progress and merged track state. Any of them may be nil.
//
// They are called one at a time, in the order the updates were computed, and must not call
// [Orchestrator.EnqueueTracks], [Orchestrator.Cancel] or [Orchestrator.Clear].
type Callbacks struct {
	OnTrackTagProgress    func(Progress)
	OnArtistTagProgress   func(Progress)
	OnArtistGenreProgress func(Progress)
	OnTrackUpdate         func(models.TrackUpdate)
	OnBatchUpdate         func([]models.TrackUpdate)
}

// Options tunes an [Orchestrator].
type Options struct {
	TrackTags        bool
	ArtistTags       bool
	MinRelevance     int
	TopN             int
	ArtistBatchSize  int
	ArtistBatchDelay time.Duration
	Debounce         time.Duration
	Queue            queue.Config
	Logger           *log.Logger
}

// DefaultOptions enables every source with the Last.fm and Spotify limits splitify ships with.
func DefaultOptions() Options {
	return Options{
		TrackTags:        true,
		ArtistTags:       true,
		MinRelevance:     30,
		TopN:             5,
		ArtistBatchSize:  services.MaxArtistsPerRequest,
		ArtistBatchDelay: 150 * time.Millisecond,
		Debounce:         time.Second,
		Queue:            queue.Config{RequestsPerSecond: 3, MaxConcurrent: 3},
	}
}

// OptionsFromConfig maps the [enrichment] config section onto Options.
func OptionsFromConfig(c shared.EnrichmentConfig, logger *log.Logger) Options {
	return Options{
		TrackTags:        c.TrackTags,
		ArtistTags:       c.ArtistTags,
		MinRelevance:     c.MinRelevance,
		TopN:             c.TopN,
		ArtistBatchSize:  c.ArtistBatchSize,
		ArtistBatchDelay: c.BatchDelay(),
		Debounce:         c.DebounceDelay(),
		Queue:            queue.Config{RequestsPerSecond: c.RequestsPerSecond, MaxConcurrent: c.MaxConcurrent},
		Logger:           logger,
	}
}

func (o Options) validate() error {
	switch {
	case o.MinRelevance < 0 || o.MinRelevance > 100:
		return fmt.Errorf("%w: min relevance %d outside [0,100]", shared.ErrInvalidConfig, o.MinRelevance)
	case o.TopN < 1:
		return fmt.Errorf("%w: top n must be at least 1", shared.ErrInvalidConfig)
	case o.ArtistBatchSize < 1 || o.ArtistBatchSize > services.MaxArtistsPerRequest:
		return fmt.Errorf("%w: artist batch size %d outside [1,%d]", shared.ErrInvalidConfig, o.ArtistBatchSize, services.MaxArtistsPerRequest)
	case o.ArtistBatchDelay < 0 || o.Debounce < 0:
		return fmt.Errorf("%w: negative delay", shared.ErrInvalidConfig)
	}
	return nil
}

type trackState struct {
	id             string
	key            string
	artist         string
	artistIDs      []string
	wantTrackTags  bool
	wantArtistTags bool
}

// hasLookups reports whether any source was scheduled for the track when it was registered.
func (ts *trackState) hasLookups() bool {
	return ts.wantTrackTags || ts.wantArtistTags || len(ts.artistIDs) > 0
}

// Orchestrator enriches tracks with genres from Last.fm tags and Spotify artist genres.
type Orchestrator struct {
	tags   services.TagSource
	genres services.ArtistGenreSource
	queue  *queue.Queue[[]string]
	opts   Options
	cb     Callbacks
	logger *log.Logger

	// emitMu is held from computing updates until their callbacks return, so callbacks observe updates in order.
	emitMu sync.Mutex
	// batchMu allows one artist-genre fetch at a time.
	batchMu sync.Mutex

	mu           sync.Mutex
	token        *Token
	generation   uint64
	runCtx       context.Context
	tracks       map[string]*trackState
	order        []string
	byTrackKey   map[string][]string
	byArtist     map[string][]string
	byArtistID   map[string][]string
	trackTags    map[string][]string
	artistTags   map[string][]string
	artistGenres map[string][]string
	queuedTracks map[string]struct{}
	queuedArtist map[string]struct{}
	seenIDs      map[string]struct{}
	pendingIDs   []string
	batching     int
	timer        *time.Timer
	progress     SourceProgress
	genreElapsed time.Duration
}

// New validates opts and returns an idle orchestrator. tags may be nil when both tag sources are disabled.
func New(tags services.TagSource, genres services.ArtistGenreSource, opts Options, cb Callbacks) (*Orchestrator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if genres == nil {
		return nil, fmt.Errorf("%w: artist genre source is required", shared.ErrInvalidArgument)
	}
	if tags == nil && (opts.TrackTags || opts.ArtistTags) {
		return nil, fmt.Errorf("%w: tag source is required when tag lookups are enabled", shared.ErrInvalidArgument)
	}

	q, err := queue.New[[]string](opts.Queue)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	o := &Orchestrator{
		tags:   tags,
		genres: genres,
		queue:  q,
		opts:   opts,
		cb:     cb,
		logger: shared.WithLogger(logger, "component", "enrich"),
	}
	o.resetLocked()
	return o, nil
}

// resetLocked installs fresh caches and a live token.
func (o *Orchestrator) resetLocked() {
	o.token = NewToken(context.Background())
	o.runCtx = context.Background()
	o.tracks = make(map[string]*trackState)
	o.order = nil
	o.byTrackKey = make(map[string][]string)
	o.byArtist = make(map[string][]string)
	o.byArtistID = make(map[string][]string)
	o.trackTags = make(map[string][]string)
	o.artistTags = make(map[string][]string)
	o.artistGenres = make(map[string][]string)
	o.queuedTracks = make(map[string]struct{})
	o.queuedArtist = make(map[string]struct{})
	o.seenIDs = make(map[string]struct{})
	o.pendingIDs = nil
	o.genreElapsed = 0
	o.progress = SourceProgress{
		TrackTags:    Progress{Source: SourceTrackTags},
		ArtistTags:   Progress{Source: SourceArtistTags},
		ArtistGenres: Progress{Source: SourceArtistGenres},
	}
}

// EnqueueTracks registers tracks and schedules their lookups, returning how many were new.
//
// Tracks without an ID or name are skipped. Each new track is reported once through the batch callback with whatever
// the caches already know about it. An ID already registered schedules nothing but is reported again, so a repeat
// of the track later in the playlist picks up its current genres. Lookups run with ctx.
func (o *Orchestrator) EnqueueTracks(ctx context.Context, tracks []models.Track) int {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	token, gen := o.token, o.generation
	if token.Cancelled() {
		o.mu.Unlock()
		return 0
	}
	o.runCtx = ctx

	var updates []models.TrackUpdate
	added := 0
	reported := make(map[string]struct{}, len(tracks))
	queuedTrack, queuedArtist, queuedGenres := false, false, false
	for _, t := range tracks {
		if t.ID == "" || strings.TrimSpace(t.Name) == "" {
			o.logger.Debug("skipping track without id or name", "id", t.ID, "position", t.Position)
			continue
		}
		if ts, ok := o.tracks[t.ID]; ok {
			if _, done := reported[t.ID]; !done {
				reported[t.ID] = struct{}{}
				updates = append(updates, o.mergeLocked(ts))
			}
			continue
		}
		added++
		reported[t.ID] = struct{}{}

		ts := &trackState{id: t.ID}
		if primary := t.PrimaryArtist(); primary.Name != models.UnknownArtist {
			ts.artist = primary.Name
		}
		for _, id := range t.ArtistIDs() {
			if !slices.Contains(ts.artistIDs, id) {
				ts.artistIDs = append(ts.artistIDs, id)
			}
		}
		ts.key = TrackKey(t.Name, ts.artist)
		ts.wantTrackTags = o.opts.TrackTags && ts.artist != ""
		ts.wantArtistTags = o.opts.ArtistTags && ts.artist != ""

		o.tracks[t.ID] = ts
		o.order = append(o.order, t.ID)
		o.byTrackKey[ts.key] = append(o.byTrackKey[ts.key], t.ID)
		if ts.artist != "" {
			o.byArtist[ts.artist] = append(o.byArtist[ts.artist], t.ID)
		}
		for _, id := range ts.artistIDs {
			o.byArtistID[id] = append(o.byArtistID[id], t.ID)
			if _, seen := o.seenIDs[id]; !seen {
				o.seenIDs[id] = struct{}{}
				o.pendingIDs = append(o.pendingIDs, id)
				o.progress.ArtistGenres.Total++
				queuedGenres = true
			}
		}

		if ts.wantTrackTags {
			if _, ok := o.queuedTracks[ts.key]; !ok {
				o.queuedTracks[ts.key] = struct{}{}
				o.progress.TrackTags.Total++
				o.queue.Enqueue(ctx, "track::"+ts.key, o.trackTagJob(gen, token, ts.key, t.Name, ts.artist))
				queuedTrack = true
			}
		}
		if ts.wantArtistTags {
			if _, ok := o.queuedArtist[ts.artist]; !ok {
				o.queuedArtist[ts.artist] = struct{}{}
				o.progress.ArtistTags.Total++
				o.queue.Enqueue(ctx, "artist::"+ts.artist, o.artistTagJob(gen, token, ts.artist))
				queuedArtist = true
			}
		}

		updates = append(updates, o.mergeLocked(ts))
	}

	if len(o.pendingIDs) > 0 {
		o.armTimerLocked(gen)
	}
	progress := o.progress
	o.mu.Unlock()

	if len(updates) > 0 && o.cb.OnBatchUpdate != nil {
		o.cb.OnBatchUpdate(updates)
	} else if o.cb.OnTrackUpdate != nil {
		for _, u := range updates {
			o.cb.OnTrackUpdate(u)
		}
	}
	if queuedTrack && o.cb.OnTrackTagProgress != nil {
		o.cb.OnTrackTagProgress(progress.TrackTags)
	}
	if queuedArtist && o.cb.OnArtistTagProgress != nil {
		o.cb.OnArtistTagProgress(progress.ArtistTags)
	}
	if queuedGenres && o.cb.OnArtistGenreProgress != nil {
		o.cb.OnArtistGenreProgress(progress.ArtistGenres)
	}

	o.logger.Debug("tracks enqueued", "new", added, "repeated", len(updates)-added, "track_lookups", progress.TrackTags.Total, "artist_lookups", progress.ArtistTags.Total)
	return added
}

func (o *Orchestrator) trackTagJob(gen uint64, token *Token, key, name, artist string) queue.Job[[]string] {
	return func(ctx context.Context) ([]string, error) {
		var tags []string
		if !token.Cancelled() {
			tags = o.lookup(SourceTrackTags, func() ([]services.Tag, error) {
				return o.tags.TrackTags(ctx, name, artist)
			}, "track", name, "artist", artist)
		}
		o.resolveTags(gen, token, SourceTrackTags, key, tags)
		return tags, nil
	}
}

func (o *Orchestrator) artistTagJob(gen uint64, token *Token, artist string) queue.Job[[]string] {
	return func(ctx context.Context) ([]string, error) {
		var tags []string
		if !token.Cancelled() {
			tags = o.lookup(SourceArtistTags, func() ([]services.Tag, error) {
				return o.tags.ArtistTags(ctx, artist)
			}, "artist", artist)
		}
		o.resolveTags(gen, token, SourceArtistTags, artist, tags)
		return tags, nil
	}
}

// lookup runs fetch and applies the relevance rules. Failures become an empty result.
func (o *Orchestrator) lookup(src Source, fetch func() ([]services.Tag, error), kv ...any) []string {
	tags, err := fetch()
	if err != nil {
		o.logger.Warn("lookup failed", append([]any{"source", src.String(), "err", err}, kv...)...)
		return []string{}
	}
	return Relevant(tags, o.opts.MinRelevance, o.opts.TopN)
}

// resolveTags caches a tag lookup and re-merges the tracks it affects.
func (o *Orchestrator) resolveTags(gen uint64, token *Token, src Source, key string, tags []string) {
	if tags == nil {
		tags = []string{}
	}

	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return
	}

	var affected []string
	var progress Progress
	avg, _ := o.queue.AverageRequestTime()
	switch src {
	case SourceTrackTags:
		o.trackTags[key] = tags
		affected = o.byTrackKey[key]
		o.progress.TrackTags.Completed++
		o.progress.TrackTags.AverageTime = avg
		progress = o.progress.TrackTags
	case SourceArtistTags:
		o.artistTags[key] = tags
		affected = o.byArtist[key]
		o.progress.ArtistTags.Completed++
		o.progress.ArtistTags.AverageTime = avg
		progress = o.progress.ArtistTags
	}
	updates := o.mergeIDsLocked(affected)
	o.mu.Unlock()

	if token.Cancelled() {
		return
	}
	if o.logger.GetLevel() <= log.DebugLevel {
		latency, _ := o.queue.AverageLatency()
		o.logger.Debug("lookup resolved", "source", src.String(), "key", key, "tags", len(tags),
			"completed", progress.Completed, "total", progress.Total, "throughput", avg, "latency", latency)
	}
	o.emit(updates)

	switch src {
	case SourceTrackTags:
		if o.cb.OnTrackTagProgress != nil {
			o.cb.OnTrackTagProgress(progress)
		}
	case SourceArtistTags:
		if o.cb.OnArtistTagProgress != nil {
			o.cb.OnArtistTagProgress(progress)
		}
	}
}

// emit delivers a single update through OnTrackUpdate and fan-outs through OnBatchUpdate, falling back to whichever is set.
func (o *Orchestrator) emit(updates []models.TrackUpdate) {
	switch {
	case len(updates) == 0:
	case len(updates) == 1 && o.cb.OnTrackUpdate != nil:
		o.cb.OnTrackUpdate(updates[0])
	case o.cb.OnBatchUpdate != nil:
		o.cb.OnBatchUpdate(updates)
	case o.cb.OnTrackUpdate != nil:
		for _, u := range updates {
			o.cb.OnTrackUpdate(u)
		}
	}
}

// WaitForCompletion waits for the tag queue to drain, then flushes the pending artist batch immediately.
//
// It repeats until no work is left, so tracks enqueued meanwhile are covered. A cancelled orchestrator returns at once.
func (o *Orchestrator) WaitForCompletion(ctx context.Context) error {
	for {
		if o.currentToken().Cancelled() {
			return nil
		}
		if err := o.queue.WaitForCompletion(ctx); err != nil {
			return err
		}
		if o.currentToken().Cancelled() {
			return nil
		}

		o.mu.Lock()
		if o.timer != nil {
			o.timer.Stop()
			o.timer = nil
		}
		gen := o.generation
		o.mu.Unlock()

		o.flushArtistGenres(gen)

		if o.drained() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// drained reports whether no artist IDs wait for a batch, no batch is being fetched and the queue is idle.
func (o *Orchestrator) drained() bool {
	o.mu.Lock()
	busy := len(o.pendingIDs) > 0 || o.batching > 0
	o.mu.Unlock()
	return !busy && o.queue.Idle()
}

func (o *Orchestrator) currentToken() *Token {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.token
}

// Cancel stops future work: queued lookups are dropped and the pending artist batch is discarded.
// Lookups already running finish, but their results are not reported.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	token := o.token
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.pendingIDs = nil
	o.mu.Unlock()

	token.Cancel()
	o.queue.Clear()
	o.logger.Debug("enrichment cancelled")
}

// Clear resets caches, counters and timers so the orchestrator can serve a new load.
func (o *Orchestrator) Clear() {
	o.queue.Clear()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.token.Cancel()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.generation++
	o.resetLocked()
}

// Record returns the merged state of one track.
func (o *Orchestrator) Record(trackID string) (models.TrackUpdate, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ts, ok := o.tracks[trackID]
	if !ok {
		return models.TrackUpdate{}, false
	}
	return o.mergeLocked(ts), true
}

// Records returns the merged state of every registered track in registration order.
func (o *Orchestrator) Records() []models.TrackUpdate {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mergeIDsLocked(o.order)
}

// Progress returns the per-source counters.
func (o *Orchestrator) Progress() SourceProgress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// Cancelled reports whether [Orchestrator.Cancel] was called since the last [Orchestrator.Clear].
func (o *Orchestrator) Cancelled() bool {
	return o.currentToken().Cancelled()
}
