package enrich

import (
	"sort"

	"github.com/desertthunder/splitify/internal/genres"
	"github.com/desertthunder/splitify/internal/models"
	"github.com/desertthunder/splitify/internal/services"
)

// RawSources holds one track's unnormalized tags per source.
type RawSources struct {
	TrackTags    []string
	ArtistTags   []string
	ArtistGenres []string
}

// Merge normalizes each source with artist as context and unions the results.
//
// The result depends only on its inputs, so recomputing a track is always safe.
func Merge(raw RawSources, artist string) (models.GenreSources, []string) {
	sources := models.GenreSources{
		TrackTags:    genres.NormalizeAll(raw.TrackTags, artist),
		ArtistTags:   genres.NormalizeAll(raw.ArtistTags, artist),
		ArtistGenres: genres.NormalizeAll(raw.ArtistGenres, artist),
	}
	return sources, genres.Union(sources.TrackTags, sources.ArtistTags, sources.ArtistGenres)
}

// Relevant keeps the names of tags weighted at least minCount, strongest first, capped at topN.
func Relevant(tags []services.Tag, minCount, topN int) []string {
	kept := make([]services.Tag, 0, len(tags))
	for _, t := range tags {
		if t.Count >= minCount && t.Name != "" {
			kept = append(kept, t)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Count > kept[j].Count })
	if len(kept) > topN {
		kept = kept[:topN]
	}

	names := make([]string, len(kept))
	for i, t := range kept {
		names[i] = t.Name
	}
	return names
}

// TrackKey identifies a recording for the track-tag cache.
func TrackKey(name, artist string) string {
	return name + "::" + artist
}

// mergeLocked recomputes one track from the caches. Caller holds o.mu.
func (o *Orchestrator) mergeLocked(ts *trackState) models.TrackUpdate {
	var raw RawSources
	resolved := 0

	trackDone := !ts.wantTrackTags
	if ts.wantTrackTags {
		if tags, ok := o.trackTags[ts.key]; ok {
			raw.TrackTags = tags
			trackDone = true
			resolved++
		}
	}

	artistDone := !ts.wantArtistTags
	if ts.wantArtistTags {
		if tags, ok := o.artistTags[ts.artist]; ok {
			raw.ArtistTags = tags
			artistDone = true
			resolved++
		}
	}

	genresDone := true
	for _, id := range ts.artistIDs {
		g, ok := o.artistGenres[id]
		if !ok {
			genresDone = false
			continue
		}
		raw.ArtistGenres = append(raw.ArtistGenres, g...)
		resolved++
	}

	sources, all := Merge(raw, ts.artist)

	status := models.StatusPending
	switch {
	case trackDone && artistDone && genresDone:
		status = models.StatusComplete
	case resolved > 0 || ts.hasLookups():
		status = models.StatusEnriching
	}

	return models.TrackUpdate{TrackID: ts.id, AllGenres: all, Sources: sources, Status: status}
}

func (o *Orchestrator) mergeIDsLocked(ids []string) []models.TrackUpdate {
	updates := make([]models.TrackUpdate, 0, len(ids))
	for _, id := range ids {
		if ts, ok := o.tracks[id]; ok {
			updates = append(updates, o.mergeLocked(ts))
		}
	}
	return updates
}
