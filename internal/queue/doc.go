// Package queue implements a generic rate-limited job queue.
//
// A [Queue] admits jobs under three simultaneous constraints:
//
//  1. A bounded number of in-flight jobs.
//  2. A token bucket ([rate.Limiter]) refilled at the configured requests per second.
//  3. A five minute sliding window that keeps the observed average below 90% of the nominal rate.
//
// Jobs are deduplicated by key for the lifetime of the queue (until [Queue.Clear]).
// Admission is FIFO and runs on a ticker that starts lazily on [Queue.Enqueue] and stops once nothing is queued or in flight.
//
// Two timing series are kept. Completion timestamps give the observed throughput reported by [Queue.AverageRequestTime],
// which includes time spent waiting on the limiter and is what ETA estimates should use.
// Per-job durations give the raw service latency reported by [Queue.AverageLatency].
package queue
