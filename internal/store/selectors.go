package store

import (
	"time"

	"github.com/desertthunder/splitify/internal/enrich"
	"github.com/desertthunder/splitify/internal/genres"
	"github.com/desertthunder/splitify/internal/models"
)

// Filtered returns the tracks matching the genre selection in playlist order.
func Filtered(s State) []models.EnrichedTrack {
	if len(s.Filters.Selected) == 0 {
		return s.Tracks
	}
	out := make([]models.EnrichedTrack, 0, len(s.Tracks))
	for _, t := range s.Tracks {
		if genres.Matches(t.AllGenres, s.Filters.Selected) {
			out = append(out, t)
		}
	}
	return out
}

// Genres returns every genre found so far, sorted.
func Genres(s State) []string {
	return genres.Collect(trackGenres(s.Tracks)...)
}

// Histogram counts tracks per genre.
func Histogram(s State) []genres.Count {
	return genres.Histogram(trackGenres(s.Tracks)...)
}

func trackGenres(tracks []models.EnrichedTrack) [][]string {
	sets := make([][]string, len(tracks))
	for i, t := range tracks {
		sets[i] = t.AllGenres
	}
	return sets
}

// Completed counts tracks whose enrichment is complete.
func Completed(s State) int {
	n := 0
	for _, t := range s.Tracks {
		if t.Status == models.StatusComplete {
			n++
		}
	}
	return n
}

// URIs returns the distinct track URIs of tracks in order.
func URIs(tracks []models.EnrichedTrack) []string {
	seen := make(map[string]struct{}, len(tracks))
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if t.URI == "" {
			continue
		}
		if _, ok := seen[t.URI]; ok {
			continue
		}
		seen[t.URI] = struct{}{}
		out = append(out, t.URI)
	}
	return out
}

// TrackIDs returns the distinct track IDs of tracks in order.
func TrackIDs(tracks []models.EnrichedTrack) []string {
	seen := make(map[string]struct{}, len(tracks))
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if _, ok := seen[t.ID]; ok || t.ID == "" {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t.ID)
	}
	return out
}

// ETA is the longest remaining estimate across the enrichment sources.
func ETA(s State) (time.Duration, bool) {
	var longest time.Duration
	found := false
	for _, p := range []enrich.Progress{s.Loading.Sources.TrackTags, s.Loading.Sources.ArtistTags, s.Loading.Sources.ArtistGenres} {
		if eta, ok := p.ETA(); ok && eta > longest {
			longest, found = eta, true
		}
	}
	return longest, found
}
