package enrich

import (
	"context"
	"time"
)

// armTimerLocked (re)starts the debounce for the pending artist batch. Caller holds o.mu.
func (o *Orchestrator) armTimerLocked(gen uint64) {
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.opts.Debounce, func() {
		o.flushArtistGenres(gen)
	})
}

// flushArtistGenres drains the pending artist IDs in chunks of ArtistBatchSize, pausing ArtistBatchDelay between
// chunks. It stops early if gen is stale or the orchestrator is cancelled.
func (o *Orchestrator) flushArtistGenres(gen uint64) {
	o.batchMu.Lock()
	defer o.batchMu.Unlock()

	for first := true; ; first = false {
		o.mu.Lock()
		if gen != o.generation || o.token.Cancelled() || len(o.pendingIDs) == 0 {
			o.mu.Unlock()
			return
		}
		token, ctx := o.token, o.runCtx
		n := min(len(o.pendingIDs), o.opts.ArtistBatchSize)
		chunk := append([]string(nil), o.pendingIDs[:n]...)
		o.pendingIDs = o.pendingIDs[n:]
		o.batching++
		o.mu.Unlock()

		if !o.fetchArtistGenres(ctx, gen, token, chunk, first) {
			return
		}
	}
}

// fetchArtistGenres looks up one chunk taken from pendingIDs and reports false if the wait before it was cancelled.
func (o *Orchestrator) fetchArtistGenres(ctx context.Context, gen uint64, token *Token, chunk []string, first bool) bool {
	defer func() {
		o.mu.Lock()
		o.batching--
		o.mu.Unlock()
	}()

	if !first && o.opts.ArtistBatchDelay > 0 {
		select {
		case <-token.Done():
			return false
		case <-time.After(o.opts.ArtistBatchDelay):
		}
	}

	started := time.Now()
	found, err := o.genres.ArtistsGenres(ctx, chunk)
	if err != nil {
		o.logger.Warn("artist genre lookup failed", "artists", len(chunk), "err", err)
		found = nil
	}
	o.resolveArtistGenres(gen, token, chunk, found, time.Since(started))
	return true
}

// resolveArtistGenres caches a batch result. IDs missing from found resolve to no genres.
func (o *Orchestrator) resolveArtistGenres(gen uint64, token *Token, ids []string, found map[string][]string, elapsed time.Duration) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return
	}

	var affected []string
	seen := make(map[string]struct{})
	for _, id := range ids {
		g := found[id]
		if g == nil {
			g = []string{}
		}
		o.artistGenres[id] = g
		for _, trackID := range o.byArtistID[id] {
			if _, ok := seen[trackID]; !ok {
				seen[trackID] = struct{}{}
				affected = append(affected, trackID)
			}
		}
	}

	o.genreElapsed += elapsed
	o.progress.ArtistGenres.Completed += len(ids)
	o.progress.ArtistGenres.AverageTime = o.genreElapsed / time.Duration(o.progress.ArtistGenres.Completed)
	progress := o.progress.ArtistGenres
	updates := o.mergeIDsLocked(affected)
	o.mu.Unlock()

	if token.Cancelled() {
		return
	}
	o.emit(updates)
	if o.cb.OnArtistGenreProgress != nil {
		o.cb.OnArtistGenreProgress(progress)
	}
	o.logger.Debug("artist genres resolved", "artists", len(ids), "tracks", len(updates))
}
