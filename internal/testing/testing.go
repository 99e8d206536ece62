// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/splitify/internal/models"
	"github.com/desertthunder/splitify/internal/services"
	"github.com/desertthunder/splitify/internal/shared"
)

// MockService is an in-memory [services.Service].
//
// Tracks are served in pages of PageSize (default 2); PageErr fails the page with that zero-based index.
type MockService struct {
	Playlist  *models.Playlist
	Playlists []models.Playlist
	Tracks    []*models.Track
	PageSize  int
	PageErr   map[int]error
	Genres    map[string][]string
	AuthErr   error
	CreateErr error
	AddErr    error

	mu         sync.Mutex
	pageCalls  int
	genreCalls [][]string
	created    []models.Playlist
	added      map[string][]string
	addCalls   int
}

func (m *MockService) Authenticate(ctx context.Context, credentials map[string]string) error {
	return m.AuthErr
}

func (m *MockService) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	if m.Playlists == nil {
		return []models.Playlist{}, nil
	}
	return m.Playlists, nil
}

func (m *MockService) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	if m.Playlist == nil || m.Playlist.ID != playlistID {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	p := *m.Playlist
	return &p, nil
}

func (m *MockService) TracksPage(ctx context.Context, playlistID, pageToken string) (*services.TracksPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Playlist == nil || m.Playlist.ID != playlistID {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}

	size := m.PageSize
	if size < 1 {
		size = 2
	}
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("%w: page token %q", shared.ErrInvalidArgument, pageToken)
		}
		offset = n
	}

	m.mu.Lock()
	m.pageCalls++
	m.mu.Unlock()

	if err, ok := m.PageErr[offset/size]; ok {
		return nil, err
	}

	end := min(offset+size, len(m.Tracks))
	page := &services.TracksPage{Tracks: slices.Clone(m.Tracks[offset:end]), Total: len(m.Tracks)}
	if end < len(m.Tracks) {
		page.Next = strconv.Itoa(end)
	}
	return page, nil
}

func (m *MockService) ArtistsGenres(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	m.mu.Lock()
	m.genreCalls = append(m.genreCalls, slices.Clone(artistIDs))
	m.mu.Unlock()

	out := make(map[string][]string, len(artistIDs))
	for _, id := range artistIDs {
		if g, ok := m.Genres[id]; ok {
			out[id] = g
		}
	}
	return out, nil
}

func (m *MockService) CreatePlaylist(ctx context.Context, name, description string, public bool) (*models.Playlist, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := models.Playlist{ID: fmt.Sprintf("created%d", len(m.created)+1), Name: name, Description: description, Public: public}
	m.created = append(m.created, p)
	return &p, nil
}

func (m *MockService) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if m.AddErr != nil {
		return m.AddErr
	}
	if len(trackIDs) > services.MaxTracksPerAdd {
		return fmt.Errorf("%w: %d tracks in one request", shared.ErrInvalidArgument, len(trackIDs))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.added == nil {
		m.added = make(map[string][]string)
	}
	m.added[playlistID] = append(m.added[playlistID], trackIDs...)
	m.addCalls++
	return nil
}

func (m *MockService) Name() string { return "mock" }

// PageCalls is the number of pages served.
func (m *MockService) PageCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageCalls
}

// GenreCalls returns the ID batches passed to ArtistsGenres.
func (m *MockService) GenreCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.genreCalls)
}

// Created returns the playlists made through CreatePlaylist.
func (m *MockService) Created() []models.Playlist {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.created)
}

// Added returns the track IDs added to playlistID and the number of AddTracks calls overall.
func (m *MockService) Added(playlistID string) ([]string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.added[playlistID]), m.addCalls
}

// FakeTagSource is a [services.TagSource] backed by maps. Track tags are keyed by "name::artist".
type FakeTagSource struct {
	Track  map[string][]services.Tag
	Artist map[string][]services.Tag
	Err    error
	Delay  time.Duration

	mu          sync.Mutex
	trackCalls  map[string]int
	artistCalls map[string]int
}

func (f *FakeTagSource) TrackTags(ctx context.Context, track, artist string) ([]services.Tag, error) {
	key := track + "::" + artist
	f.count(&f.trackCalls, key)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Track[key], nil
}

func (f *FakeTagSource) ArtistTags(ctx context.Context, artist string) ([]services.Tag, error) {
	f.count(&f.artistCalls, artist)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Artist[artist], nil
}

func (f *FakeTagSource) count(m *map[string]int, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *m == nil {
		*m = make(map[string]int)
	}
	(*m)[key]++
}

func (f *FakeTagSource) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.Delay):
		return nil
	}
}

// TrackCalls is the number of TrackTags calls for a track.
func (f *FakeTagSource) TrackCalls(track, artist string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trackCalls[track+"::"+artist]
}

// ArtistCalls is the number of ArtistTags calls for an artist.
func (f *FakeTagSource) ArtistCalls(artist string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.artistCalls[artist]
}

// TotalCalls is the number of lookups of either kind.
func (f *FakeTagSource) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.trackCalls {
		n += c
	}
	for _, c := range f.artistCalls {
		n += c
	}
	return n
}

// FakeGenreSource is a [services.ArtistGenreSource] that records each batch.
type FakeGenreSource struct {
	Genres map[string][]string
	Err    error

	mu      sync.Mutex
	batches [][]string
}

func (f *FakeGenreSource) ArtistsGenres(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	f.mu.Lock()
	f.batches = append(f.batches, slices.Clone(artistIDs))
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	out := make(map[string][]string)
	for _, id := range artistIDs {
		if g, ok := f.Genres[id]; ok {
			out[id] = g
		}
	}
	return out, nil
}

// Batches returns the ID batches requested so far.
func (f *FakeGenreSource) Batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.batches)
}

// Tags builds tags from alternating name and count arguments.
func Tags(pairs ...any) []services.Tag {
	tags := make([]services.Tag, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		tags = append(tags, services.Tag{Name: pairs[i].(string), Count: pairs[i+1].(int)})
	}
	return tags
}

// Track builds a track credited to artists given as alternating ID and name.
func Track(id, name string, position int, artists ...string) *models.Track {
	t := &models.Track{ID: id, Name: name, URI: "spotify:track:" + id, Position: position}
	for i := 0; i+1 < len(artists); i += 2 {
		t.Artists = append(t.Artists, models.Artist{ID: artists[i], Name: artists[i+1]})
	}
	return t
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// Eventually polls cond until it holds or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting: %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
