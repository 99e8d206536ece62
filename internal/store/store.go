// Package store holds the state of one playlist load as an immutable value that changes only through actions.
//
// Producers (the loader and the enrichment callbacks) send [Action] values to [Store.Dispatch]; each dispatch applies its
// actions with [Reduce] as a single step, so updates arriving together are never lost. Readers take snapshots with
// [Store.State] or [Store.Subscribe] and derive views with the selectors in this package.
package store

import (
	"slices"
	"sync"

	"github.com/desertthunder/splitify/internal/enrich"
	"github.com/desertthunder/splitify/internal/models"
)

// State is a snapshot. Values returned by the store must be treated as read-only.
type State struct {
	PlaylistID   string
	PlaylistName string
	Tracks       []models.EnrichedTrack
	Loading      Loading
	Filters      Filters
}

// Loading describes an in-progress load.
type Loading struct {
	Active  bool
	Loaded  int // Playlist items fetched so far, including unavailable ones.
	Total   int
	Sources enrich.SourceProgress
	Err     error
}

// Filters is the genre selection. An empty selection shows every track.
type Filters struct {
	Selected []string
}

// Store serializes actions against one [State].
type Store struct {
	// dispatchMu orders subscriber notifications with dispatches.
	dispatchMu sync.Mutex

	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// New returns a store holding initial.
func New(initial State) *Store {
	return &Store{state: initial, subs: make(map[int]func(State))}
}

// Dispatch applies actions in order and notifies subscribers once with the result.
//
// Subscribers run synchronously and must not call Dispatch.
func (s *Store) Dispatch(actions ...Action) State {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	next := s.state
	for _, a := range actions {
		next = Reduce(next, a)
	}
	s.state = next
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn to receive every new state and returns a function that removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Reduce returns the state after a. It never modifies s.
func Reduce(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.apply(s)
}

// Action is a state transition.
type Action interface {
	apply(State) State
}

// SetPlaylistInfo starts describing a playlist. Total is the number of playlist items reported by the source.
type SetPlaylistInfo struct {
	ID    string
	Name  string
	Total int
}

func (a SetPlaylistInfo) apply(s State) State {
	s.PlaylistID = a.ID
	s.PlaylistName = a.Name
	s.Loading.Total = a.Total
	return s
}

// AddTracks appends pending records for tracks.
type AddTracks struct {
	Tracks []models.Track
}

func (a AddTracks) apply(s State) State {
	if len(a.Tracks) == 0 {
		return s
	}
	tracks := make([]models.EnrichedTrack, len(s.Tracks), len(s.Tracks)+len(a.Tracks))
	copy(tracks, s.Tracks)
	for _, t := range a.Tracks {
		tracks = append(tracks, models.NewEnrichedTrack(t))
	}
	s.Tracks = tracks
	return s
}

// UpdateTrack applies one enrichment update.
type UpdateTrack struct {
	Update models.TrackUpdate
}

func (a UpdateTrack) apply(s State) State {
	return UpdateTracks{Updates: []models.TrackUpdate{a.Update}}.apply(s)
}

// UpdateTracks applies enrichment updates to every record with a matching track ID. Unknown IDs are ignored.
type UpdateTracks struct {
	Updates []models.TrackUpdate
}

func (a UpdateTracks) apply(s State) State {
	if len(a.Updates) == 0 || len(s.Tracks) == 0 {
		return s
	}
	byID := make(map[string]models.TrackUpdate, len(a.Updates))
	for _, u := range a.Updates {
		byID[u.TrackID] = u
	}

	var tracks []models.EnrichedTrack
	for i, t := range s.Tracks {
		u, ok := byID[t.ID]
		if !ok {
			continue
		}
		if tracks == nil {
			tracks = slices.Clone(s.Tracks)
		}
		tracks[i] = t.Apply(u)
	}
	if tracks == nil {
		return s
	}
	s.Tracks = tracks
	return s
}

// SetLoading marks a load as started or finished. Starting a load clears any previous error.
type SetLoading struct {
	Active bool
}

func (a SetLoading) apply(s State) State {
	s.Loading.Active = a.Active
	if a.Active {
		s.Loading.Err = nil
	}
	return s
}

// SetPlaylistProgress records how many playlist items have been fetched.
type SetPlaylistProgress struct {
	Loaded int
	Total  int
}

func (a SetPlaylistProgress) apply(s State) State {
	s.Loading.Loaded = a.Loaded
	s.Loading.Total = a.Total
	return s
}

// SetSourceProgress records progress for one enrichment source.
type SetSourceProgress struct {
	Progress enrich.Progress
}

func (a SetSourceProgress) apply(s State) State {
	switch a.Progress.Source {
	case enrich.SourceTrackTags:
		s.Loading.Sources.TrackTags = a.Progress
	case enrich.SourceArtistTags:
		s.Loading.Sources.ArtistTags = a.Progress
	case enrich.SourceArtistGenres:
		s.Loading.Sources.ArtistGenres = a.Progress
	}
	return s
}

// SetError ends the load with a fatal error.
type SetError struct {
	Err error
}

func (a SetError) apply(s State) State {
	s.Loading.Active = false
	s.Loading.Err = a.Err
	return s
}

// ToggleGenre adds genre to the selection, or removes it if already selected.
type ToggleGenre struct {
	Genre string
}

func (a ToggleGenre) apply(s State) State {
	if a.Genre == "" {
		return s
	}
	selected := slices.Clone(s.Filters.Selected)
	if i := slices.Index(selected, a.Genre); i >= 0 {
		selected = slices.Delete(selected, i, i+1)
	} else {
		selected = append(selected, a.Genre)
	}
	if len(selected) == 0 {
		selected = nil
	}
	s.Filters.Selected = selected
	return s
}

// SetSelectedGenres replaces the selection.
type SetSelectedGenres struct {
	Genres []string
}

func (a SetSelectedGenres) apply(s State) State {
	var selected []string
	for _, g := range a.Genres {
		if g != "" && !slices.Contains(selected, g) {
			selected = append(selected, g)
		}
	}
	s.Filters.Selected = selected
	return s
}

// ResetFilters clears the selection.
type ResetFilters struct{}

func (ResetFilters) apply(s State) State {
	s.Filters = Filters{}
	return s
}

// ClearTracks drops the playlist, its tracks, loading progress and filters.
type ClearTracks struct{}

func (ClearTracks) apply(State) State {
	return State{}
}
