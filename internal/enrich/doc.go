// Package enrich resolves genres for playlist tracks from three independent sources and merges them as each one answers.
//
// # Sources
//
//  1. Track tags: one Last.fm lookup per distinct (track name, primary artist) pair.
//  2. Artist tags: one Last.fm lookup per distinct primary artist name, fanned out to every track by that artist.
//  3. Artist genres: Spotify artist IDs accumulate while tracks arrive and are fetched in batches once arrivals pause.
//
// Sources 1 and 2 share one rate-limited [queue.Queue]. Source 3 goes straight to Spotify with its own batch delay.
//
// # Merging
//
// Whenever a source resolves, every affected track is recomputed from the caches: each source's raw tags are normalized
// with the track's primary artist as context and the results are unioned. A track is complete once every enabled source has
// an answer for it, and the artist-genre source only counts once all of the track's artist IDs have one.
//
// Lookup failures are logged and treated as "no genres from this source".
//
// # Lifecycle
//
// [Orchestrator.Cancel] stops future work, [Orchestrator.WaitForCompletion] drains the queue and flushes the pending
// artist batch, and [Orchestrator.Clear] resets everything for the next load.
package enrich
