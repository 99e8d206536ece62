// Spotify Web API implementation of [Service]
//
// Built on github.com/zmb3/spotify/v2; endpoints documented at https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/splitify/internal/models"
	"github.com/desertthunder/splitify/internal/shared"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const (
	// MaxArtistsPerRequest is the Spotify limit for GET /artists.
	MaxArtistsPerRequest = 50
	// MaxTracksPerAdd is the Spotify limit for POST /playlists/{id}/tracks.
	MaxTracksPerAdd = 100

	defaultPageSize    = 50
	defaultRedirectURI = "http://127.0.0.1:3000/callback"
)

// SpotifyService implements the Service interface for Spotify API interactions.
// Uses [oauth2] for authentication and the zmb3 client for requests.
type SpotifyService struct {
	config      *oauth2.Config
	tokens      oauth2.TokenSource
	client      *spotify.Client
	baseURL     string
	pageSize    int
	credentials map[string]string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
//
// An optional "api_url" entry points the client at another base URL.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = defaultRedirectURI
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			spotifyauth.ScopeUserReadPrivate,
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		},
	}

	baseURL := credentials["api_url"]
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &SpotifyService{
		config:      config,
		baseURL:     baseURL,
		pageSize:    defaultPageSize,
		credentials: credentials,
	}, nil
}

// WithPageSize sets the number of playlist items requested per page (1-100).
func (s *SpotifyService) WithPageSize(n int) *SpotifyService {
	if n > 0 && n <= 100 {
		s.pageSize = n
	}
	return s
}

// Authenticate performs OAuth2 authentication with Spotify. Expects either an "access_token" or "auth_code" in credentials.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken := credentials["access_token"]; accessToken != "" || credentials["refresh_token"] != "" {
		token := &oauth2.Token{
			AccessToken:  accessToken,
			RefreshToken: credentials["refresh_token"],
			TokenType:    "Bearer",
		}
		if exp := credentials["expiry"]; exp != "" {
			t, err := time.Parse(time.RFC3339, exp)
			if err != nil {
				return fmt.Errorf("%w: expiry %q", shared.ErrInvalidCredentials, exp)
			}
			token.Expiry = t
		}
		if token.RefreshToken == "" && !token.Expiry.IsZero() && time.Now().After(token.Expiry) {
			return fmt.Errorf("%w: %w, run splitify auth", shared.ErrTokenExpired, shared.ErrNoRefreshToken)
		}
		s.useToken(ctx, token)
		return nil
	}

	if authCode := credentials["auth_code"]; authCode != "" {
		var opts []oauth2.AuthCodeOption
		if v := credentials["code_verifier"]; v != "" {
			opts = append(opts, oauth2.VerifierOption(v))
		}
		token, err := s.Exchange(ctx, authCode, opts...)
		if err != nil {
			return err
		}
		s.useToken(ctx, token)
		return nil
	}

	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

func (s *SpotifyService) useToken(ctx context.Context, token *oauth2.Token) {
	s.tokens = s.config.TokenSource(context.WithoutCancel(ctx), token)
	httpClient := oauth2.NewClient(context.WithoutCancel(ctx), s.tokens)

	opts := []spotify.ClientOption{spotify.WithRetry(true)}
	if s.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(s.baseURL))
	}
	s.client = spotify.New(httpClient, opts...)
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string, opts ...oauth2.AuthCodeOption) string {
	return s.config.AuthCodeURL(state, append([]oauth2.AuthCodeOption{oauth2.AccessTypeOffline}, opts...)...)
}

// Exchange trades an authorization code for a token.
func (s *SpotifyService) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Token returns the current token, refreshing it first if it has expired.
func (s *SpotifyService) Token() (*oauth2.Token, error) {
	if s.tokens == nil {
		return nil, shared.ErrNotAuthenticated
	}
	token, err := s.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return token, nil
}

func (s *SpotifyService) ready() error {
	if s.client == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}
	return nil
}

// GetPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var playlists []models.Playlist
	limit, offset := 50, 0
	for {
		page, err := s.client.CurrentUsersPlaylists(ctx, spotify.Limit(limit), spotify.Offset(offset))
		if err != nil {
			return nil, spotifyError(err, "list playlists")
		}

		for _, sp := range page.Playlists {
			playlists = append(playlists, models.Playlist{
				ID:          string(sp.ID),
				Name:        sp.Name,
				Description: sp.Description,
				Owner:       sp.Owner.DisplayName,
				TrackCount:  int(sp.Tracks.Total),
				Public:      sp.IsPublic,
				URL:         sp.ExternalURLs["spotify"],
			})
		}

		if page.Next == "" || len(page.Playlists) == 0 {
			break
		}
		offset += len(page.Playlists)
	}

	return playlists, nil
}

// GetPlaylist retrieves a specific playlist by ID.
func (s *SpotifyService) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	sp, err := s.client.GetPlaylist(ctx, spotify.ID(playlistID))
	if err != nil {
		return nil, playlistError(err, playlistID)
	}

	return &models.Playlist{
		ID:          string(sp.ID),
		Name:        sp.Name,
		Description: sp.Description,
		Owner:       sp.Owner.DisplayName,
		TrackCount:  int(sp.Tracks.Total),
		Public:      sp.IsPublic,
		URL:         sp.ExternalURLs["spotify"],
	}, nil
}

// TracksPage fetches one page of playlist items. The page token is the item offset.
func (s *SpotifyService) TracksPage(ctx context.Context, playlistID, pageToken string) (*TracksPage, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: page token %q", shared.ErrInvalidArgument, pageToken)
		}
		offset = n
	}

	page, err := s.client.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(s.pageSize), spotify.Offset(offset))
	if err != nil {
		return nil, playlistError(err, playlistID)
	}

	result := &TracksPage{Tracks: make([]*models.Track, 0, len(page.Items)), Total: int(page.Total)}
	for _, item := range page.Items {
		ft := item.Track.Track
		if ft == nil || ft.ID == "" || item.IsLocal {
			result.Tracks = append(result.Tracks, nil)
			continue
		}
		track := toTrack(ft, item.AddedAt)
		result.Tracks = append(result.Tracks, &track)
	}

	if page.Next != "" && len(page.Items) > 0 {
		result.Next = strconv.Itoa(offset + len(page.Items))
	}
	return result, nil
}

func toTrack(ft *spotify.FullTrack, addedAt string) models.Track {
	artists := make([]models.Artist, 0, len(ft.Artists))
	for _, a := range ft.Artists {
		artists = append(artists, models.Artist{ID: string(a.ID), Name: a.Name})
	}
	return models.Track{
		ID:         string(ft.ID),
		Name:       ft.Name,
		URI:        string(ft.URI),
		Artists:    artists,
		Album:      ft.Album.Name,
		Popularity: int(ft.Popularity),
		AddedAt:    addedAt,
	}
}

// ArtistsGenres fetches genres for up to [MaxArtistsPerRequest] artists in one request.
//
// Every requested ID present in the response gets an entry, with an empty slice for artists without genres.
func (s *SpotifyService) ArtistsGenres(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(artistIDs) == 0 {
		return map[string][]string{}, nil
	}
	if len(artistIDs) > MaxArtistsPerRequest {
		return nil, fmt.Errorf("%w: at most %d artist IDs per request, got %d", shared.ErrInvalidArgument, MaxArtistsPerRequest, len(artistIDs))
	}

	ids := make([]spotify.ID, len(artistIDs))
	for i, id := range artistIDs {
		ids[i] = spotify.ID(id)
	}

	artists, err := s.client.GetArtists(ctx, ids...)
	if err != nil {
		return nil, spotifyError(err, "get artists")
	}

	genres := make(map[string][]string, len(artists))
	for _, a := range artists {
		if a == nil || a.ID == "" {
			continue
		}
		g := a.Genres
		if g == nil {
			g = []string{}
		}
		genres[string(a.ID)] = g
	}
	return genres, nil
}

// CreatePlaylist creates an empty playlist for the current user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name, description string, public bool) (*models.Playlist, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		return nil, spotifyError(err, "current user")
	}

	pl, err := s.client.CreatePlaylistForUser(ctx, user.ID, name, description, public, false)
	if err != nil {
		return nil, spotifyError(err, "create playlist")
	}

	return &models.Playlist{
		ID:          string(pl.ID),
		Name:        pl.Name,
		Description: pl.Description,
		Owner:       user.DisplayName,
		Public:      public,
		URL:         pl.ExternalURLs["spotify"],
	}, nil
}

// AddTracks appends tracks to a playlist in a single request.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(trackIDs) > MaxTracksPerAdd {
		return fmt.Errorf("%w: at most %d tracks per request, got %d", shared.ErrInvalidArgument, MaxTracksPerAdd, len(trackIDs))
	}
	if len(trackIDs) == 0 {
		return nil
	}

	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}

	if _, err := s.client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids...); err != nil {
		return playlistError(err, playlistID)
	}
	return nil
}

// spotifyStatus extracts the HTTP status from a zmb3 error, or 0.
func spotifyStatus(err error) int {
	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status
	}
	var sp *spotify.Error
	if errors.As(err, &sp) && sp != nil {
		return sp.Status
	}
	return 0
}

func spotifyError(err error, op string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return fmt.Errorf("%w: %s: %v", shared.ErrAuthFailed, op, err)
	}

	status := spotifyStatus(err)
	switch status {
	case 0:
		return fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, op, err)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s: %v", shared.ErrNotAuthenticated, op, err)
	}
	return fmt.Errorf("%s: %w", op, &APIError{Service: "Spotify", Status: status, Body: err.Error()})
}

func playlistError(err error, playlistID string) error {
	if spotifyStatus(err) == http.StatusNotFound {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	return spotifyError(err, "playlist "+playlistID)
}
