package enrich

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/splitify/internal/models"
	"github.com/desertthunder/splitify/internal/queue"
	"github.com/desertthunder/splitify/internal/services"
	"github.com/desertthunder/splitify/internal/shared"
	tu "github.com/desertthunder/splitify/internal/testing"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Debounce = 10 * time.Millisecond
	opts.ArtistBatchDelay = time.Millisecond
	opts.Queue = queue.Config{RequestsPerSecond: 100, MaxConcurrent: 5}
	return opts
}

type recorder struct {
	mu       sync.Mutex
	updates  []models.TrackUpdate
	batches  int
	progress map[Source][]Progress
}

func (r *recorder) callbacks() Callbacks {
	r.progress = make(map[Source][]Progress)
	onProgress := func(p Progress) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.progress[p.Source] = append(r.progress[p.Source], p)
	}
	return Callbacks{
		OnTrackTagProgress:    onProgress,
		OnArtistTagProgress:   onProgress,
		OnArtistGenreProgress: onProgress,
		OnTrackUpdate: func(u models.TrackUpdate) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.updates = append(r.updates, u)
		},
		OnBatchUpdate: func(us []models.TrackUpdate) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.batches++
			r.updates = append(r.updates, us...)
		},
	}
}

func (r *recorder) events() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.updates)
	for _, ps := range r.progress {
		n += len(ps)
	}
	return n
}

// gatedGenres blocks every lookup until release is closed.
type gatedGenres struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedGenres) ArtistsGenres(ctx context.Context, ids []string) (map[string][]string, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string][]string{"a1": {"rock"}}, nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

// last returns the most recent update for a track.
func (r *recorder) last(trackID string) (models.TrackUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.updates) - 1; i >= 0; i-- {
		if r.updates[i].TrackID == trackID {
			return r.updates[i], true
		}
	}
	return models.TrackUpdate{}, false
}

func newTestOrchestrator(t *testing.T, tags services.TagSource, genres services.ArtistGenreSource, opts Options) (*Orchestrator, *recorder) {
	t.Helper()
	rec := &recorder{}
	o, err := New(tags, genres, opts, rec.callbacks())
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}
	t.Cleanup(o.Clear)
	return o, rec
}

func track(id, name string, artists ...string) models.Track {
	return *tu.Track(id, name, 0, artists...)
}

func wait(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.WaitForCompletion(ctx); err != nil {
		t.Fatalf("WaitForCompletion failed: %v", err)
	}
}

func TestNew(t *testing.T) {
	tags := &tu.FakeTagSource{}
	genres := &tu.FakeGenreSource{}

	tc := []struct {
		name   string
		tags   services.TagSource
		genres services.ArtistGenreSource
		modify func(*Options)
		want   error
	}{
		{"defaults", tags, genres, func(*Options) {}, nil},
		{"relevance above 100", tags, genres, func(o *Options) { o.MinRelevance = 101 }, shared.ErrInvalidConfig},
		{"zero top n", tags, genres, func(o *Options) { o.TopN = 0 }, shared.ErrInvalidConfig},
		{"oversized batch", tags, genres, func(o *Options) { o.ArtistBatchSize = 51 }, shared.ErrInvalidConfig},
		{"negative debounce", tags, genres, func(o *Options) { o.Debounce = -time.Second }, shared.ErrInvalidConfig},
		{"bad queue config", tags, genres, func(o *Options) { o.Queue.RequestsPerSecond = 0 }, queue.ErrInvalidConfig},
		{"missing genre source", tags, nil, func(*Options) {}, shared.ErrInvalidArgument},
		{"missing tag source", nil, genres, func(*Options) {}, shared.ErrInvalidArgument},
		{"tag source optional when tags disabled", nil, genres, func(o *Options) {
			o.TrackTags = false
			o.ArtistTags = false
		}, nil},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.modify(&opts)
			o, err := New(tt.tags, tt.genres, opts, Callbacks{})
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				o.Clear()
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestOrchestrator(t *testing.T) {
	t.Run("unions every source", func(t *testing.T) {
		tags := &tu.FakeTagSource{
			Track:  map[string][]services.Tag{"Song::Artist": tu.Tags("rock", 100)},
			Artist: map[string][]services.Tag{"Artist": tu.Tags("indie", 80)},
		}
		genres := &tu.FakeGenreSource{Genres: map[string][]string{"a1": {"alternative"}}}
		o, _ := newTestOrchestrator(t, tags, genres, testOptions())

		o.EnqueueTracks(context.Background(), []models.Track{track("t1", "Song", "a1", "Artist")})
		wait(t, o)

		rec, ok := o.Record("t1")
		if !ok {
			t.Fatal("expected record for t1")
		}
		if rec.Status != models.StatusComplete {
			t.Errorf("expected complete, got %s", rec.Status)
		}
		want := []string{"rock", "indie", "alternative"}
		if !reflect.DeepEqual(rec.AllGenres, want) {
			t.Errorf("expected %v, got %v", want, rec.AllGenres)
		}
		if !reflect.DeepEqual(rec.Sources.ArtistGenres, []string{"alternative"}) {
			t.Errorf("expected artist genres [alternative], got %v", rec.Sources.ArtistGenres)
		}
	})

	t.Run("each track keeps its own genres", func(t *testing.T) {
		tags := &tu.FakeTagSource{
			Track: map[string][]services.Tag{
				"A::Rock Artist": tu.Tags("rock", 90),
				"B::Jazz Artist": tu.Tags("jazz", 90),
			},
		}
		genres := &tu.FakeGenreSource{}
		o, rec := newTestOrchestrator(t, tags, genres, testOptions())

		o.EnqueueTracks(context.Background(), []models.Track{
			track("ta", "A", "r1", "Rock Artist"),
			track("tb", "B", "j1", "Jazz Artist"),
		})
		wait(t, o)

		for id, want := range map[string][]string{"ta": {"rock"}, "tb": {"jazz"}} {
			got, _ := o.Record(id)
			if got.Status != models.StatusComplete {
				t.Errorf("%s: expected complete, got %s", id, got.Status)
			}
			if !reflect.DeepEqual(got.AllGenres, want) {
				t.Errorf("%s: expected %v, got %v", id, want, got.AllGenres)
			}
			last, ok := rec.last(id)
			if !ok || !reflect.DeepEqual(last, got) {
				t.Errorf("%s: expected last callback %v, got %v", id, got, last)
			}
		}
	})

	t.Run("shared artist is looked up once and fans out", func(t *testing.T) {
		tags := &tu.FakeTagSource{Artist: map[string][]services.Tag{"Rock Artist": tu.Tags("rock", 100)}}
		genres := &tu.FakeGenreSource{}
		o, _ := newTestOrchestrator(t, tags, genres, testOptions())

		o.EnqueueTracks(context.Background(), []models.Track{
			track("t1", "One", "r1", "Rock Artist"),
			track("t2", "Two", "r1", "Rock Artist"),
		})
		wait(t, o)

		if n := tags.ArtistCalls("Rock Artist"); n != 1 {
			t.Errorf("expected 1 artist lookup, got %d", n)
		}
		for _, id := range []string{"t1", "t2"} {
			got, _ := o.Record(id)
			if !reflect.DeepEqual(got.AllGenres, []string{"rock"}) {
				t.Errorf("%s: expected [rock], got %v", id, got.AllGenres)
			}
		}
		if batches := genres.Batches(); len(batches) != 1 || !reflect.DeepEqual(batches[0], []string{"r1"}) {
			t.Errorf("expected one batch [r1], got %v", batches)
		}
	})

	t.Run("applies relevance threshold and top n", func(t *testing.T) {
		tags := &tu.FakeTagSource{
			Track: map[string][]services.Tag{"Song::Artist": tu.Tags(
				"weak", 10, "rock", 40, "pop", 100, "indie", 60, "folk", 55, "soul", 50, "blues", 45,
			)},
		}
		opts := testOptions()
		opts.ArtistTags = false
		o, _ := newTestOrchestrator(t, tags, &tu.FakeGenreSource{}, opts)

		o.EnqueueTracks(context.Background(), []models.Track{track("t1", "Song", "a1", "Artist")})
		wait(t, o)

		got, _ := o.Record("t1")
		want := []string{"pop", "indie", "folk", "soul", "blues"}
		if !reflect.DeepEqual(got.AllGenres, want) {
			t.Errorf("expected %v, got %v", want, got.AllGenres)
		}
		if tags.ArtistCalls("Artist") != 0 {
			t.Error("expected artist tags to be disabled")
		}
	})

	t.Run("failing sources complete with no genres", func(t *testing.T) {
		tags := &tu.FakeTagSource{Err: shared.ErrRateLimited}
		genres := &tu.FakeGenreSource{Err: shared.ErrTransient}
		o, _ := newTestOrchestrator(t, tags, genres, testOptions())

		o.EnqueueTracks(context.Background(), []models.Track{track("t1", "Song", "a1", "Artist")})
		wait(t, o)

		got, _ := o.Record("t1")
		if got.Status != models.StatusComplete {
			t.Errorf("expected complete, got %s", got.Status)
		}
		if len(got.AllGenres) != 0 {
			t.Errorf("expected no genres, got %v", got.AllGenres)
		}
		p := o.Progress()
		if p.TrackTags.Completed != 1 || p.ArtistTags.Completed != 1 || p.ArtistGenres.Completed != 1 {
			t.Errorf("expected every source counted, got %+v", p)
		}
	})

	t.Run("batches artist ids", func(t *testing.T) {
		genres := &tu.FakeGenreSource{Genres: map[string][]string{"a1": {"rock"}, "a5": {"jazz"}}}
		opts := testOptions()
		opts.TrackTags, opts.ArtistTags = false, false
		opts.ArtistBatchSize = 2
		o, rec := newTestOrchestrator(t, nil, genres, opts)

		o.EnqueueTracks(context.Background(), []models.Track{
			track("t1", "One", "a1", "A1", "a2", "A2"),
			track("t2", "Two", "a3", "A3"),
		})
		o.EnqueueTracks(context.Background(), []models.Track{
			track("t3", "Three", "a4", "A4", "a1", "A1"),
			track("t4", "Four", "a5", "A5"),
		})
		wait(t, o)

		var sizes []int
		for _, b := range genres.Batches() {
			sizes = append(sizes, len(b))
		}
		if !reflect.DeepEqual(sizes, []int{2, 2, 1}) {
			t.Errorf("expected batch sizes [2 2 1], got %v", sizes)
		}

		got, _ := o.Record("t3")
		if !reflect.DeepEqual(got.AllGenres, []string{"rock"}) || got.Status != models.StatusComplete {
			t.Errorf("expected complete [rock] for t3, got %+v", got)
		}

		p := o.Progress().ArtistGenres
		if p.Completed != 5 || p.Total != 5 {
			t.Errorf("expected 5/5 artists, got %d/%d", p.Completed, p.Total)
		}
		rec.mu.Lock()
		final := rec.progress[SourceArtistGenres][len(rec.progress[SourceArtistGenres])-1]
		rec.mu.Unlock()
		if final.Completed != final.Total {
			t.Errorf("expected final genre progress complete, got %+v", final)
		}
	})

	t.Run("debounce flushes without waiting", func(t *testing.T) {
		genres := &tu.FakeGenreSource{Genres: map[string][]string{"a1": {"rock"}}}
		opts := testOptions()
		opts.TrackTags, opts.ArtistTags = false, false
		o, rec := newTestOrchestrator(t, nil, genres, opts)

		o.EnqueueTracks(context.Background(), []models.Track{track("t1", "One", "a1", "A1")})
		tu.Eventually(t, time.Second, func() bool {
			u, ok := rec.last("t1")
			return ok && u.Status == models.StatusComplete
		}, "artist genres after debounce")
	})

	t.Run("tracks without an artist skip tag lookups", func(t *testing.T) {
		tags := &tu.FakeTagSource{}
		o, rec := newTestOrchestrator(t, tags, &tu.FakeGenreSource{}, testOptions())

		n := o.EnqueueTracks(context.Background(), []models.Track{{ID: "t1", Name: "Field Recording"}})
		if n != 1 {
			t.Fatalf("expected 1 new track, got %d", n)
		}
		got, ok := rec.last("t1")
		if !ok || got.Status != models.StatusComplete {
			t.Errorf("expected immediate complete update, got %+v", got)
		}
		wait(t, o)
		if tags.TotalCalls() != 0 {
			t.Errorf("expected no tag lookups, got %d", tags.TotalCalls())
		}
	})

	t.Run("skips invalid and duplicate tracks", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, &tu.FakeTagSource{}, &tu.FakeGenreSource{}, testOptions())

		n := o.EnqueueTracks(context.Background(), []models.Track{
			track("t1", "One", "a1", "A1"),
			track("", "No ID", "a1", "A1"),
			track("t2", " ", "a1", "A1"),
			track("t1", "One", "a1", "A1"),
		})
		if n != 1 {
			t.Errorf("expected 1 new track, got %d", n)
		}
		if n := o.EnqueueTracks(context.Background(), []models.Track{track("t1", "One", "a1", "A1")}); n != 0 {
			t.Errorf("expected re-enqueue to be ignored, got %d", n)
		}
		wait(t, o)
		if got := len(o.Records()); got != 1 {
			t.Errorf("expected 1 record, got %d", got)
		}
	})

	t.Run("repeated ids report the current record", func(t *testing.T) {
		tags := &tu.FakeTagSource{Artist: map[string][]services.Tag{"Artist": tu.Tags("rock", 70)}}
		o, rec := newTestOrchestrator(t, tags, &tu.FakeGenreSource{}, testOptions())

		o.EnqueueTracks(context.Background(), []models.Track{track("t1", "One", "a1", "Artist")})
		wait(t, o)
		before := rec.count()

		if n := o.EnqueueTracks(context.Background(), []models.Track{
			track("t1", "One", "a1", "Artist"),
			track("t1", "One", "a1", "Artist"),
		}); n != 0 {
			t.Errorf("expected no new tracks, got %d", n)
		}
		if got := rec.count() - before; got != 1 {
			t.Fatalf("expected one update for the repeated id, got %d", got)
		}
		u, _ := rec.last("t1")
		if u.Status != models.StatusComplete || !reflect.DeepEqual(u.AllGenres, []string{"rock"}) {
			t.Errorf("expected the completed record, got %+v", u)
		}
		if n := tags.TotalCalls(); n != 2 {
			t.Errorf("expected no extra lookups, got %d", n)
		}
	})

	t.Run("scheduled tracks start enriching", func(t *testing.T) {
		tags := &tu.FakeTagSource{Delay: 100 * time.Millisecond}
		o, rec := newTestOrchestrator(t, tags, &tu.FakeGenreSource{}, testOptions())

		o.EnqueueTracks(context.Background(), []models.Track{track("t1", "One", "a1", "Artist")})
		first, ok := rec.last("t1")
		if !ok || first.Status != models.StatusEnriching {
			t.Errorf("expected enriching before any source resolves, got %+v", first)
		}
		if len(first.AllGenres) != 0 {
			t.Errorf("expected no genres yet, got %v", first.AllGenres)
		}
		wait(t, o)
	})

	t.Run("debug log reports both request averages", func(t *testing.T) {
		var out lockedBuffer
		logger := log.New(&out)
		logger.SetLevel(log.DebugLevel)
		opts := testOptions()
		opts.Logger = logger

		tags := &tu.FakeTagSource{Artist: map[string][]services.Tag{"Artist": tu.Tags("rock", 70)}}
		o, _ := newTestOrchestrator(t, tags, &tu.FakeGenreSource{}, opts)
		o.EnqueueTracks(context.Background(), []models.Track{track("t1", "One", "a1", "Artist")})
		wait(t, o)

		logged := out.String()
		for _, want := range []string{"lookup resolved", "throughput=", "latency=", "artist tags"} {
			if !strings.Contains(logged, want) {
				t.Errorf("expected log to contain %q, got %s", want, logged)
			}
		}
	})

	t.Run("an artist batch in flight keeps the wait open", func(t *testing.T) {
		genres := &gatedGenres{started: make(chan struct{}, 1), release: make(chan struct{})}
		opts := testOptions()
		opts.TrackTags, opts.ArtistTags = false, false
		opts.Debounce = time.Millisecond
		o, _ := newTestOrchestrator(t, nil, genres, opts)

		o.EnqueueTracks(context.Background(), []models.Track{track("t1", "One", "a1", "Artist")})
		select {
		case <-genres.started:
		case <-time.After(2 * time.Second):
			t.Fatal("expected the debounced batch to start")
		}
		if o.drained() {
			t.Error("expected a batch in flight to count as outstanding work")
		}

		done := make(chan error, 1)
		go func() { done <- o.WaitForCompletion(context.Background()) }()
		select {
		case err := <-done:
			t.Fatalf("expected wait to block on the batch, returned %v", err)
		case <-time.After(50 * time.Millisecond):
		}

		close(genres.release)
		if err := <-done; err != nil {
			t.Fatalf("WaitForCompletion failed: %v", err)
		}
		if rec, _ := o.Record("t1"); rec.Status != models.StatusComplete {
			t.Errorf("expected complete after the batch, got %s", rec.Status)
		}
		if !o.drained() {
			t.Error("expected nothing outstanding after the wait")
		}
	})

	t.Run("new tracks reuse resolved caches", func(t *testing.T) {
		tags := &tu.FakeTagSource{Artist: map[string][]services.Tag{"Artist": tu.Tags("shoegaze", 70)}}
		o, rec := newTestOrchestrator(t, tags, &tu.FakeGenreSource{}, testOptions())

		o.EnqueueTracks(context.Background(), []models.Track{track("t1", "One", "a1", "Artist")})
		wait(t, o)
		o.EnqueueTracks(context.Background(), []models.Track{track("t2", "Two", "a1", "Artist")})

		first, ok := rec.last("t2")
		if !ok || !reflect.DeepEqual(first.AllGenres, []string{"shoegaze"}) {
			t.Errorf("expected cached genres on arrival, got %+v", first)
		}
		if first.Status != models.StatusEnriching {
			t.Errorf("expected enriching while track tags are pending, got %s", first.Status)
		}
		wait(t, o)
		if tags.ArtistCalls("Artist") != 1 {
			t.Errorf("expected 1 artist lookup, got %d", tags.ArtistCalls("Artist"))
		}
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		tags := &tu.FakeTagSource{Artist: map[string][]services.Tag{"Artist": tu.Tags("rock", 70)}}
		o, _ := newTestOrchestrator(t, tags, &tu.FakeGenreSource{}, testOptions())
		o.EnqueueTracks(context.Background(), []models.Track{track("t1", "One", "a1", "Artist")})
		wait(t, o)

		a, _ := o.Record("t1")
		b, _ := o.Record("t1")
		if !reflect.DeepEqual(a, b) {
			t.Errorf("expected identical merges, got %+v and %+v", a, b)
		}
	})

	t.Run("cancel drops queued work", func(t *testing.T) {
		tags := &tu.FakeTagSource{Delay: 50 * time.Millisecond}
		genres := &tu.FakeGenreSource{}
		opts := testOptions()
		opts.Queue = queue.Config{RequestsPerSecond: 1, MaxConcurrent: 1}
		opts.Debounce = time.Hour
		o, rec := newTestOrchestrator(t, tags, genres, opts)

		o.EnqueueTracks(context.Background(), []models.Track{
			track("t1", "One", "a1", "A1"),
			track("t2", "Two", "a2", "A2"),
			track("t3", "Three", "a3", "A3"),
		})
		o.Cancel()
		before := rec.events()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := o.WaitForCompletion(ctx); err != nil {
			t.Fatalf("expected wait to succeed after cancel, got %v", err)
		}
		time.Sleep(100 * time.Millisecond)

		if after := rec.events(); after != before {
			t.Errorf("expected no callbacks after cancel, got %d more", after-before)
		}
		if n := tags.TotalCalls(); n > 1 {
			t.Errorf("expected at most the in-flight lookup to run, got %d", n)
		}
		if len(genres.Batches()) != 0 {
			t.Errorf("expected pending artist batch to be dropped, got %v", genres.Batches())
		}
		if !o.Cancelled() {
			t.Error("expected orchestrator to report cancelled")
		}
		if n := o.EnqueueTracks(context.Background(), []models.Track{track("t4", "Four", "a4", "A4")}); n != 0 {
			t.Errorf("expected enqueue after cancel to be ignored, got %d", n)
		}
	})

	t.Run("clear makes the orchestrator reusable", func(t *testing.T) {
		tags := &tu.FakeTagSource{Track: map[string][]services.Tag{"One::A1": tu.Tags("rock", 70)}}
		o, _ := newTestOrchestrator(t, tags, &tu.FakeGenreSource{}, testOptions())

		o.EnqueueTracks(context.Background(), []models.Track{track("t1", "One", "a1", "A1")})
		wait(t, o)
		o.Cancel()
		o.Clear()

		if o.Cancelled() {
			t.Error("expected clear to reset cancellation")
		}
		if len(o.Records()) != 0 {
			t.Errorf("expected no records, got %v", o.Records())
		}
		if p := o.Progress(); p.TrackTags.Total != 0 || p.ArtistGenres.Completed != 0 {
			t.Errorf("expected zeroed progress, got %+v", p)
		}

		o.EnqueueTracks(context.Background(), []models.Track{track("t1", "One", "a1", "A1")})
		wait(t, o)
		if n := tags.TrackCalls("One", "A1"); n != 2 {
			t.Errorf("expected lookup to run again after clear, got %d calls", n)
		}
		got, _ := o.Record("t1")
		if got.Status != models.StatusComplete || !reflect.DeepEqual(got.AllGenres, []string{"rock"}) {
			t.Errorf("expected complete [rock], got %+v", got)
		}
	})

	t.Run("progress counts are consistent", func(t *testing.T) {
		tags := &tu.FakeTagSource{}
		o, rec := newTestOrchestrator(t, tags, &tu.FakeGenreSource{}, testOptions())

		o.EnqueueTracks(context.Background(), []models.Track{
			track("t1", "One", "a1", "A1"),
			track("t2", "Two", "a1", "A1"),
			track("t3", "Three", "a2", "A2"),
		})
		wait(t, o)

		p := o.Progress()
		if p.TrackTags.Total != 3 || p.TrackTags.Completed != 3 {
			t.Errorf("expected 3/3 track lookups, got %d/%d", p.TrackTags.Completed, p.TrackTags.Total)
		}
		if p.ArtistTags.Total != 2 || p.ArtistTags.Completed != 2 {
			t.Errorf("expected 2/2 artist lookups, got %d/%d", p.ArtistTags.Completed, p.ArtistTags.Total)
		}

		rec.mu.Lock()
		defer rec.mu.Unlock()
		for src, events := range rec.progress {
			prev := -1
			for _, e := range events {
				if e.Completed < prev || e.Completed > e.Total {
					t.Errorf("%s: non-monotonic progress %+v after %d", src, e, prev)
				}
				prev = e.Completed
			}
		}
	})
}

func TestRelevant(t *testing.T) {
	tc := []struct {
		name string
		tags []services.Tag
		min  int
		topN int
		want []string
	}{
		{"empty", nil, 30, 5, []string{}},
		{"drops weak tags", tu.Tags("rock", 29, "pop", 30), 30, 5, []string{"pop"}},
		{"orders by weight", tu.Tags("a", 40, "b", 90, "c", 60), 0, 5, []string{"b", "c", "a"}},
		{"stable for ties", tu.Tags("x", 50, "y", 50), 0, 5, []string{"x", "y"}},
		{"caps at top n", tu.Tags("a", 90, "b", 80, "c", 70), 0, 2, []string{"a", "b"}},
		{"drops empty names", tu.Tags("", 100, "rock", 50), 0, 5, []string{"rock"}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := Relevant(tt.tags, tt.min, tt.topN)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	sources, all := Merge(RawSources{
		TrackTags:    []string{"Rock", "seen live", "2014"},
		ArtistTags:   []string{"Indie", "Radiohead", "rock"},
		ArtistGenres: []string{"alternative", "90s"},
	}, "Radiohead")

	if !reflect.DeepEqual(sources.TrackTags, []string{"rock"}) {
		t.Errorf("expected track tags [rock], got %v", sources.TrackTags)
	}
	if !reflect.DeepEqual(sources.ArtistTags, []string{"indie", "rock"}) {
		t.Errorf("expected artist tags [indie rock], got %v", sources.ArtistTags)
	}
	want := []string{"rock", "indie", "alternative", "90s"}
	if !reflect.DeepEqual(all, want) {
		t.Errorf("expected %v, got %v", want, all)
	}
}

func TestProgressETA(t *testing.T) {
	p := Progress{Completed: 2, Total: 5, AverageTime: 100 * time.Millisecond}
	if eta, ok := p.ETA(); !ok || eta != 300*time.Millisecond {
		t.Errorf("expected 300ms, got %v (%v)", eta, ok)
	}
	if _, ok := (Progress{Completed: 1, Total: 5}).ETA(); ok {
		t.Error("expected no ETA without an average")
	}
	if _, ok := (Progress{Completed: 5, Total: 5, AverageTime: time.Second}).ETA(); ok {
		t.Error("expected no ETA when finished")
	}
}

func TestToken(t *testing.T) {
	tok := NewToken(context.Background())
	if tok.Cancelled() {
		t.Fatal("expected live token")
	}
	tok.Cancel()
	tok.Cancel()
	if !tok.Cancelled() {
		t.Error("expected cancelled token")
	}
	select {
	case <-tok.Done():
	default:
		t.Error("expected Done to be closed")
	}
	if !errors.Is(tok.Context().Err(), context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", tok.Context().Err())
	}
}
