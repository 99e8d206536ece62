package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultWindow       = 5 * time.Minute
	DefaultWindowRatio  = 0.9
	DefaultPollInterval = 100 * time.Millisecond
	sampleSize          = 100
)

var (
	// ErrCleared settles the futures of jobs dropped by [Queue.Clear] before they started.
	ErrCleared = errors.New("queue cleared before job started")
	// ErrInvalidConfig is returned by [New] for a non-positive rate or concurrency.
	ErrInvalidConfig = errors.New("invalid queue config")
)

// Job is the unit of work executed by the queue.
type Job[T any] func(ctx context.Context) (T, error)

// Config tunes a [Queue]. Zero durations take their defaults.
type Config struct {
	RequestsPerSecond float64       // Token refill rate. Required.
	MaxConcurrent     int           // In-flight cap. Required.
	Interval          time.Duration // Admission tick; defaults to 1s / RequestsPerSecond.
	PollInterval      time.Duration // WaitForCompletion poll period; defaults to 100ms.
	Window            time.Duration // Sliding window span; defaults to 5m.
	WindowRatio       float64       // Fraction of RequestsPerSecond allowed over the window; defaults to 0.9.
}

func (c Config) withDefaults() (Config, error) {
	if c.RequestsPerSecond <= 0 || math.IsInf(c.RequestsPerSecond, 0) || math.IsNaN(c.RequestsPerSecond) {
		return c, fmt.Errorf("%w: requests per second must be positive, got %v", ErrInvalidConfig, c.RequestsPerSecond)
	}
	if c.MaxConcurrent < 1 {
		return c, fmt.Errorf("%w: max concurrent must be at least 1, got %d", ErrInvalidConfig, c.MaxConcurrent)
	}
	if c.Interval <= 0 {
		c.Interval = time.Duration(float64(time.Second) / c.RequestsPerSecond)
		if c.Interval < time.Millisecond {
			c.Interval = time.Millisecond
		}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.WindowRatio <= 0 || c.WindowRatio > 1 {
		c.WindowRatio = DefaultWindowRatio
	}
	return c, nil
}

// burst is the token bucket capacity. It never exceeds the configured rate.
func (c Config) burst() int {
	return max(1, int(math.Floor(c.RequestsPerSecond)))
}

// Progress is a consistent snapshot of the queue counters.
//
// Total is always Completed + InFlight + Queued.
type Progress struct {
	Completed   int
	Total       int
	InFlight    int
	Queued      int
	AverageTime time.Duration
	HasAverage  bool
}

type item[T any] struct {
	ctx    context.Context
	key    string
	job    Job[T]
	future *Future[T]
}

// Queue is a rate-limited, deduplicating job queue.
type Queue[T any] struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	pending     []*item[T]
	keys        map[string]struct{}
	inFlight    int
	completed   int
	generation  uint64
	limiter     *rate.Limiter
	window      slidingWindow
	completions samples[time.Time]
	durations   samples[time.Duration]
	stop        chan struct{}
	onProgress  func(Progress)
}

// New validates cfg and returns an idle queue.
func New[T any](cfg Config) (*Queue[T], error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	q := &Queue[T]{
		cfg:         cfg,
		now:         time.Now,
		keys:        make(map[string]struct{}),
		window:      slidingWindow{span: cfg.Window},
		completions: samples[time.Time]{size: sampleSize},
		durations:   samples[time.Duration]{size: sampleSize},
	}
	q.limiter = q.newLimiter()
	return q, nil
}

// newLimiter returns a bucket holding a single token so the first ticks cannot burst.
func (q *Queue[T]) newLimiter() *rate.Limiter {
	burst := q.cfg.burst()
	l := rate.NewLimiter(rate.Limit(q.cfg.RequestsPerSecond), burst)
	l.AllowN(q.now(), burst-1)
	return l
}

// OnProgress registers fn to be called on every admission and completion.
//
// fn runs with the queue locked and must not call back into the queue.
func (q *Queue[T]) OnProgress(fn func(Progress)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onProgress = fn
}

// Enqueue schedules job under key and returns its future without blocking.
//
// A key already seen since the last [Queue.Clear] yields a future that is already settled with the zero value and reports [Future.Skipped].
// The job runs with ctx once admitted.
func (q *Queue[T]) Enqueue(ctx context.Context, key string, job Job[T]) *Future[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, seen := q.keys[key]; seen {
		return skippedFuture[T]()
	}
	q.keys[key] = struct{}{}

	it := &item[T]{ctx: ctx, key: key, job: job, future: newFuture[T]()}
	q.pending = append(q.pending, it)

	q.startLocked()
	q.processLocked()
	return it.future
}

// startLocked launches the admission ticker if it is not running.
func (q *Queue[T]) startLocked() {
	if q.stop != nil {
		return
	}
	stop := make(chan struct{})
	q.stop = stop
	go q.loop(stop)
}

func (q *Queue[T]) stopLocked() {
	if q.stop == nil {
		return
	}
	close(q.stop)
	q.stop = nil
}

func (q *Queue[T]) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(q.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			q.mu.Lock()
			q.processLocked()
			q.mu.Unlock()
		}
	}
}

// processLocked admits pending jobs in FIFO order while a slot, a token and window headroom are all available.
func (q *Queue[T]) processLocked() {
	for len(q.pending) > 0 && q.inFlight < q.cfg.MaxConcurrent {
		now := q.now()
		if !q.window.allow(now, q.cfg.RequestsPerSecond*q.cfg.WindowRatio) {
			return
		}
		if !q.limiter.AllowN(now, 1) {
			return
		}

		it := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.window.record(now)
		q.inFlight++
		q.emitLocked()

		go q.run(it, q.generation, now)
	}

	if len(q.pending) == 0 && q.inFlight == 0 {
		q.stopLocked()
	}
}

func (q *Queue[T]) run(it *item[T], gen uint64, started time.Time) {
	val, err := call(it.ctx, it.job)

	q.mu.Lock()
	if gen == q.generation {
		now := q.now()
		q.durations.add(now.Sub(started))
		q.completions.add(now)
		q.inFlight--
		q.completed++
		q.emitLocked()
		q.processLocked()
	}
	q.mu.Unlock()

	it.future.settle(val, err)
}

// call runs job, converting a panic into an error so the queue's bookkeeping survives it.
func call[T any](ctx context.Context, job Job[T]) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue job panicked: %v", r)
		}
	}()
	return job(ctx)
}

func (q *Queue[T]) emitLocked() {
	if q.onProgress != nil {
		q.onProgress(q.statusLocked())
	}
}

func (q *Queue[T]) statusLocked() Progress {
	avg, ok := q.averageRequestTimeLocked()
	queued := len(q.pending)
	return Progress{
		Completed:   q.completed,
		Total:       q.completed + q.inFlight + queued,
		InFlight:    q.inFlight,
		Queued:      queued,
		AverageTime: avg,
		HasAverage:  ok,
	}
}

// Status returns the current counters.
func (q *Queue[T]) Status() Progress {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusLocked()
}

// AverageRequestTime is the mean spacing between recent completions.
//
// It reports false until at least two jobs have completed.
func (q *Queue[T]) AverageRequestTime() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.averageRequestTimeLocked()
}

func (q *Queue[T]) averageRequestTimeLocked() (time.Duration, bool) {
	n := q.completions.len()
	if n < 2 {
		return 0, false
	}
	span := q.completions.vals[n-1].Sub(q.completions.vals[0])
	return span / time.Duration(n-1), true
}

// AverageLatency is the mean duration of recent jobs, excluding time spent queued.
func (q *Queue[T]) AverageLatency() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.durations.len()
	if n == 0 {
		return 0, false
	}
	var total time.Duration
	for _, d := range q.durations.vals {
		total += d
	}
	return total / time.Duration(n), true
}

// Idle reports whether nothing is queued or in flight.
func (q *Queue[T]) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && q.inFlight == 0
}

// WaitForCompletion blocks until nothing is queued or in flight, including jobs enqueued while waiting.
func (q *Queue[T]) WaitForCompletion(ctx context.Context) error {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if q.Idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Clear drops every pending job, resets keys, counters and samples, and stops the ticker.
//
// Dropped futures settle with [ErrCleared]. Jobs already running finish, but no longer touch the counters.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	q.keys = make(map[string]struct{})
	q.inFlight = 0
	q.completed = 0
	q.generation++
	q.window.reset()
	q.completions.reset()
	q.durations.reset()
	q.limiter = q.newLimiter()
	q.stopLocked()
	q.mu.Unlock()

	var zero T
	for _, it := range dropped {
		it.future.settle(zero, ErrCleared)
	}
}
