package services

import (
	"context"

	"github.com/desertthunder/splitify/internal/models"
	"golang.org/x/oauth2"
)

// Service defines the Spotify operations used by splitify.
type Service interface {
	// Authenticate configures the client from stored tokens ("access_token", "refresh_token", "expiry")
	// or by exchanging an "auth_code" (with an optional "code_verifier").
	Authenticate(ctx context.Context, credentials map[string]string) error

	// GetPlaylists retrieves all playlists for the authenticated user.
	GetPlaylists(ctx context.Context) ([]models.Playlist, error)

	// GetPlaylist retrieves a specific playlist's metadata by ID.
	GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error)

	PageSource
	ArtistGenreSource

	// CreatePlaylist creates an empty playlist owned by the current user.
	CreatePlaylist(ctx context.Context, name, description string, public bool) (*models.Playlist, error)

	// AddTracks appends up to [MaxTracksPerAdd] tracks to a playlist.
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) error

	// Name returns the name of the service
	Name() string
}

// OAuthService extends [Service] with the OAuth2 authorization code flow.
type OAuthService interface {
	Service
	GetAuthURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
	// Token returns the current token, refreshed if it had expired.
	Token() (*oauth2.Token, error)
}

// TracksPage is one page of playlist items.
//
// Tracks holds one entry per playlist item in order; unavailable items (local files, episodes, removed tracks) are nil
// so positions stay aligned with the source playlist.
type TracksPage struct {
	Tracks []*models.Track
	Next   string // Empty on the last page.
	Total  int
}

// PageSource lists a playlist one page at a time. An empty pageToken requests the first page.
type PageSource interface {
	TracksPage(ctx context.Context, playlistID, pageToken string) (*TracksPage, error)
}

// ArtistGenreSource returns curated genres per artist ID for a single batch of IDs.
type ArtistGenreSource interface {
	ArtistsGenres(ctx context.Context, artistIDs []string) (map[string][]string, error)
}

// Tag is a crowd-sourced tag with its relevance weight (0-100).
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TagSource looks up crowd-sourced tags.
type TagSource interface {
	TrackTags(ctx context.Context, track, artist string) ([]Tag, error)
	ArtistTags(ctx context.Context, artist string) ([]Tag, error)
}
