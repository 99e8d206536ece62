package genres

import (
	"slices"
	"sort"
)

// Matches reports whether a track with trackGenres passes a filter selecting any of selected.
//
// An empty selection matches everything.
func Matches(trackGenres, selected []string) bool {
	if len(selected) == 0 {
		return true
	}
	for _, g := range trackGenres {
		if slices.Contains(selected, g) {
			return true
		}
	}
	return false
}

// Collect returns the sorted, distinct genres across sets.
func Collect(sets ...[]string) []string {
	out := Union(sets...)
	sort.Strings(out)
	return out
}

// Count is the number of tracks tagged with a genre.
type Count struct {
	Genre  string `json:"genre"`
	Tracks int    `json:"tracks"`
}

// Histogram counts tracks per genre, most common first with ties broken by name.
func Histogram(sets ...[]string) []Count {
	counts := make(map[string]int)
	for _, set := range sets {
		for _, g := range Union(set) {
			counts[g]++
		}
	}

	out := make([]Count, 0, len(counts))
	for g, n := range counts {
		out = append(out, Count{Genre: g, Tracks: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tracks != out[j].Tracks {
			return out[i].Tracks > out[j].Tracks
		}
		return out[i].Genre < out[j].Genre
	})
	return out
}
