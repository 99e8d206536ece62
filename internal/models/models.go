package models

import "strings"

// UnknownArtist is the placeholder name used when a track has no artist.
const UnknownArtist = "Unknown Artist"

// Playlist is playlist metadata as reported by Spotify.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
	URL         string `json:"url,omitempty"`
}

// Artist is a reference to a Spotify artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Track is a playlist entry. Position is the zero-based index of the entry in the source playlist and is assigned once by the loader.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	Artists    []Artist `json:"artists"`
	Album      string   `json:"album,omitempty"`
	Popularity int      `json:"popularity,omitempty"`
	AddedAt    string   `json:"added_at,omitempty"`
	Position   int      `json:"position"`
}

// PrimaryArtist returns the first credited artist, or [UnknownArtist] when none is credited.
func (t Track) PrimaryArtist() Artist {
	if len(t.Artists) == 0 || strings.TrimSpace(t.Artists[0].Name) == "" {
		return Artist{Name: UnknownArtist}
	}
	return t.Artists[0]
}

// ArtistIDs returns the non-empty IDs of every credited artist, in credit order.
func (t Track) ArtistIDs() []string {
	ids := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.ID != "" {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// ArtistNames joins the credited artist names with the given separator.
func (t Track) ArtistNames(sep string) string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	if len(names) == 0 {
		return UnknownArtist
	}
	return strings.Join(names, sep)
}

// EnrichmentStatus describes how far a track has progressed through enrichment.
type EnrichmentStatus string

const (
	StatusPending   EnrichmentStatus = "pending"
	StatusEnriching EnrichmentStatus = "enriching"
	StatusComplete  EnrichmentStatus = "complete"
)

// GenreSources is the normalized genre list contributed by each source.
type GenreSources struct {
	TrackTags    []string `json:"track_tags,omitempty"`
	ArtistTags   []string `json:"artist_tags,omitempty"`
	ArtistGenres []string `json:"artist_genres,omitempty"`
}

// TrackUpdate carries the merged enrichment state of one track.
//
// Updates are values: the receiver owns the slices and producers never mutate them after emitting.
type TrackUpdate struct {
	TrackID   string           `json:"track_id"`
	AllGenres []string         `json:"all_genres"`
	Sources   GenreSources     `json:"sources"`
	Status    EnrichmentStatus `json:"status"`
}

// EnrichedTrack is a [Track] together with its enrichment state.
type EnrichedTrack struct {
	Track
	AllGenres []string         `json:"all_genres"`
	Sources   GenreSources     `json:"sources"`
	Status    EnrichmentStatus `json:"status"`
}

// NewEnrichedTrack wraps t in a pending record with no genres.
func NewEnrichedTrack(t Track) EnrichedTrack {
	return EnrichedTrack{Track: t, AllGenres: []string{}, Status: StatusPending}
}

// Apply returns a copy of e with the update's genres and status.
func (e EnrichedTrack) Apply(u TrackUpdate) EnrichedTrack {
	e.AllGenres = u.AllGenres
	e.Sources = u.Sources
	e.Status = u.Status
	return e
}

// PlaylistExport is a playlist with its enriched track listing.
type PlaylistExport struct {
	Playlist Playlist        `json:"playlist"`
	Genres   []string        `json:"genres,omitempty"`
	Tracks   []EnrichedTrack `json:"tracks"`
}
