// Package genres turns free-text tags into genre names and filters tracks by genre.
package genres

import (
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

const minLength = 3

// nonGenres are listening-context and mood tags that say nothing about style.
var nonGenres = map[string]struct{}{
	"seen live": {}, "favorites": {}, "favourite": {}, "favorite": {},
	"love": {}, "loved": {}, "beautiful": {}, "awesome": {},
	"chill": {}, "relax": {}, "party": {}, "workout": {}, "study": {}, "sleep": {},
	"energetic": {}, "sad": {}, "happy": {}, "angry": {}, "calm": {},
}

// Normalize folds tag to lower case and reports whether it names a genre.
//
// Rejected: non-genre tags, anything shorter than three characters, the artist's own name, and specific years such as "2014".
// Decades ("1980", "70s", "2010s") are kept.
func Normalize(tag, artist string) (string, bool) {
	g := strings.ToLower(strings.TrimSpace(tag))
	if _, ok := nonGenres[g]; ok {
		return "", false
	}
	if utf8.RuneCountInString(g) < minLength {
		return "", false
	}
	if a := strings.ToLower(strings.TrimSpace(artist)); a != "" && g == a {
		return "", false
	}
	if IsSpecificYear(g) {
		return "", false
	}
	return g, true
}

// IsSpecificYear reports whether s is a four digit year in [1950, 2030] that is not a decade.
func IsSpecificYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	year, err := strconv.Atoi(s)
	if err != nil || s[0] == '+' || s[0] == '-' {
		return false
	}
	return year >= 1950 && year <= 2030 && year%10 != 0
}

// NormalizeAll normalizes tags in order, dropping rejects and duplicates.
func NormalizeAll(tags []string, artist string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if g, ok := Normalize(t, artist); ok && !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	return out
}

// Union merges lists in order of first appearance.
func Union(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, l := range lists {
		for _, g := range l {
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	return out
}
