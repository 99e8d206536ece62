package queue

import "time"

// slidingWindow records admission times over a trailing span.
type slidingWindow struct {
	span   time.Duration
	stamps []time.Time
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// allow reports whether one more admission keeps the windowed average below limit requests per second.
//
// Elapsed time is floored at one second so a cold window cannot admit a burst.
func (w *slidingWindow) allow(now time.Time, limit float64) bool {
	w.prune(now)
	if len(w.stamps) == 0 {
		return true
	}
	elapsed := now.Sub(w.stamps[0]).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	return float64(len(w.stamps))/elapsed < limit
}

func (w *slidingWindow) record(now time.Time) {
	w.stamps = append(w.stamps, now)
}

func (w *slidingWindow) reset() {
	w.stamps = nil
}

// samples is a bounded rolling sample, oldest first.
type samples[T any] struct {
	size int
	vals []T
}

func (s *samples[T]) add(v T) {
	s.vals = append(s.vals, v)
	if len(s.vals) > s.size {
		s.vals = append(s.vals[:0], s.vals[len(s.vals)-s.size:]...)
	}
}

func (s *samples[T]) reset() {
	s.vals = nil
}

func (s *samples[T]) len() int {
	return len(s.vals)
}
