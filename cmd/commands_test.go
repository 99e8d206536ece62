package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/desertthunder/splitify/internal/models"
	"github.com/desertthunder/splitify/internal/services"
	"github.com/desertthunder/splitify/internal/shared"
	tu "github.com/desertthunder/splitify/internal/testing"
	"golang.org/x/oauth2"
)

const testPlaylistID = "37i9dQZF1DXcBWIGoYBM5M"

func fixture() (*tu.MockService, *tu.FakeTagSource) {
	svc := &tu.MockService{
		Playlist: &models.Playlist{ID: testPlaylistID, Name: "Mix", TrackCount: 3},
		Playlists: []models.Playlist{
			{ID: testPlaylistID, Name: "Mix", TrackCount: 3, Public: true},
			{ID: "other", Name: "Other", Description: "old stuff", TrackCount: 10},
		},
		Tracks: []*models.Track{
			tu.Track("t1", "One", 0, "r1", "Rock Artist"),
			tu.Track("t2", "Two", 0, "r1", "Rock Artist"),
			tu.Track("t3", "Three", 0, "j1", "Jazz Artist"),
		},
	}
	tags := &tu.FakeTagSource{Artist: map[string][]services.Tag{
		"Rock Artist": tu.Tags("rock", 100),
		"Jazz Artist": tu.Tags("jazz", 100),
	}}
	return svc, tags
}

// writeConfig saves a config tuned for fast loads and returns its path.
func writeConfig(t *testing.T, mutate func(*shared.Config)) string {
	t.Helper()
	cfg := shared.DefaultConfig()
	cfg.Enrichment.RequestsPerSecond = 200
	cfg.Enrichment.MaxConcurrent = 5
	cfg.Enrichment.Debounce = 1
	cfg.Enrichment.ArtistBatchDelay = 0
	cfg.Loader.PageDelay = 0
	if mutate != nil {
		mutate(cfg)
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := shared.SaveConfig(path, cfg); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func newTestRunner(svc services.Service, tags services.TagSource) (*Runner, *bytes.Buffer) {
	out := &bytes.Buffer{}
	r := NewRunner(RunnerOpts{
		Spotify: svc,
		Tags:    tags,
		Logger:  shared.NewLogger(io.Discard),
		Output:  out,
	})
	return r, out
}

func run(r *Runner, config string, args ...string) error {
	return newApp(r).Run(context.Background(), append([]string{"splitify", "--config", config}, args...))
}

func TestPlaylistsCommand(t *testing.T) {
	config := writeConfig(t, nil)

	t.Run("plain", func(t *testing.T) {
		svc, tags := fixture()
		r, out := newTestRunner(svc, tags)
		if err := run(r, config, "playlists"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := out.String()
		for _, want := range []string{"Found 2 playlists", "1. Mix", "Visibility: Public", "Description: old stuff"} {
			if !strings.Contains(got, want) {
				t.Errorf("expected output to contain %q, got %q", want, got)
			}
		}
	})

	t.Run("json with limit", func(t *testing.T) {
		svc, tags := fixture()
		r, out := newTestRunner(svc, tags)
		if err := run(r, config, "playlists", "--json", "--limit", "1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got []models.Playlist
		if err := json.Unmarshal(out.Bytes(), &got); err != nil {
			t.Fatalf("expected JSON output, got %v", err)
		}
		if len(got) != 1 || got[0].ID != testPlaylistID {
			t.Errorf("expected only the first playlist, got %+v", got)
		}
	})

	t.Run("without spotify credentials", func(t *testing.T) {
		config := writeConfig(t, func(c *shared.Config) { c.Credentials.Spotify.ClientID = "" })
		r, _ := newTestRunner(nil, nil)
		if err := run(r, config, "playlists"); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestEnrichCommand(t *testing.T) {
	config := writeConfig(t, nil)

	t.Run("prints the genre breakdown", func(t *testing.T) {
		svc, tags := fixture()
		r, out := newTestRunner(svc, tags)
		if err := run(r, config, "enrich", testPlaylistID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := out.String()
		if !strings.Contains(got, "Tracks: 3") || !strings.Contains(got, "Genres: 2") {
			t.Errorf("expected counts in output, got %q", got)
		}
		if strings.Index(got, "rock") > strings.Index(got, "jazz") {
			t.Errorf("expected rock (2 tracks) before jazz, got %q", got)
		}
	})

	t.Run("json", func(t *testing.T) {
		svc, tags := fixture()
		r, out := newTestRunner(svc, tags)
		if err := run(r, config, "enrich", "--json", "spotify:playlist:"+testPlaylistID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var export models.PlaylistExport
		if err := json.Unmarshal(out.Bytes(), &export); err != nil {
			t.Fatalf("expected JSON output, got %v", err)
		}
		if !slices.Equal(export.Genres, []string{"jazz", "rock"}) {
			t.Errorf("expected [jazz rock], got %v", export.Genres)
		}
		if len(export.Tracks) != 3 || export.Tracks[2].Status != models.StatusComplete {
			t.Errorf("expected 3 enriched tracks, got %+v", export.Tracks)
		}
	})

	t.Run("artist genres only without last.fm", func(t *testing.T) {
		svc, _ := fixture()
		svc.Genres = map[string][]string{"r1": {"Classic Rock"}}
		r, out := newTestRunner(svc, nil)
		config := writeConfig(t, func(c *shared.Config) { c.Credentials.LastFM.APIKey = "" })
		if err := run(r, config, "enrich", testPlaylistID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "classic rock") {
			t.Errorf("expected Spotify genres, got %q", out.String())
		}
	})

	t.Run("invalid playlist", func(t *testing.T) {
		svc, tags := fixture()
		r, _ := newTestRunner(svc, tags)
		if err := run(r, config, "enrich", "not a playlist"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("unknown playlist", func(t *testing.T) {
		svc, tags := fixture()
		r, _ := newTestRunner(svc, tags)
		if err := run(r, config, "enrich", "0000000000000000000000"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})
}

func TestSplitCommand(t *testing.T) {
	config := writeConfig(t, nil)

	t.Run("creates the playlist", func(t *testing.T) {
		svc, tags := fixture()
		r, out := newTestRunner(svc, tags)
		if err := run(r, config, "split", "--genre", "Rock", testPlaylistID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		created := svc.Created()
		if len(created) != 1 || created[0].Name != "Mix (rock)" || created[0].Public {
			t.Fatalf("expected a private 'Mix (rock)', got %+v", created)
		}
		added, _ := svc.Added("created1")
		if !slices.Equal(added, []string{"t1", "t2"}) {
			t.Errorf("expected [t1 t2], got %v", added)
		}
		if !strings.Contains(out.String(), "✓ Created Mix (rock)") {
			t.Errorf("expected confirmation, got %q", out.String())
		}
	})

	t.Run("name and several genres", func(t *testing.T) {
		svc, tags := fixture()
		r, _ := newTestRunner(svc, tags)
		if err := run(r, config, "split", "-g", "rock, jazz", "--name", "Everything", "--public", testPlaylistID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		created := svc.Created()
		if len(created) != 1 || created[0].Name != "Everything" || !created[0].Public {
			t.Fatalf("expected a public 'Everything', got %+v", created)
		}
		if added, _ := svc.Added("created1"); len(added) != 3 {
			t.Errorf("expected 3 tracks, got %v", added)
		}
	})

	t.Run("dry run", func(t *testing.T) {
		svc, tags := fixture()
		r, out := newTestRunner(svc, tags)
		if err := run(r, config, "split", "--genre", "jazz", "--dry-run", testPlaylistID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(svc.Created()) != 0 {
			t.Error("expected nothing created")
		}
		if !strings.Contains(out.String(), "Jazz Artist - Three [jazz]") {
			t.Errorf("expected the matching track, got %q", out.String())
		}
	})

	t.Run("missing genre", func(t *testing.T) {
		svc, tags := fixture()
		r, _ := newTestRunner(svc, tags)
		if err := run(r, config, "split", testPlaylistID); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("no matching tracks", func(t *testing.T) {
		svc, tags := fixture()
		r, _ := newTestRunner(svc, tags)
		if err := run(r, config, "split", "--genre", "polka", testPlaylistID); !errors.Is(err, shared.ErrNoTracks) {
			t.Errorf("expected ErrNoTracks, got %v", err)
		}
		if len(svc.Created()) != 0 {
			t.Error("expected nothing created")
		}
	})

	t.Run("add fails after create", func(t *testing.T) {
		svc, tags := fixture()
		svc.AddErr = shared.ErrRateLimited
		r, out := newTestRunner(svc, tags)
		if err := run(r, config, "split", "--genre", "rock", testPlaylistID); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
		if !strings.Contains(out.String(), "was created with 0 of 2 tracks") {
			t.Errorf("expected a partial result notice, got %q", out.String())
		}
	})
}

func TestExportCommand(t *testing.T) {
	config := writeConfig(t, nil)

	t.Run("single file", func(t *testing.T) {
		svc, tags := fixture()
		r, _ := newTestRunner(svc, tags)
		dir := t.TempDir()
		if err := run(r, config, "export", "-o", dir, "--genre", "rock", testPlaylistID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		path := filepath.Join(dir, testPlaylistID+".json")
		tu.AssertFileExists(t, path)
		var export models.PlaylistExport
		if err := json.Unmarshal([]byte(tu.MustReadFile(t, path)), &export); err != nil {
			t.Fatalf("expected JSON export, got %v", err)
		}
		if len(export.Tracks) != 2 || !slices.Equal(export.Genres, []string{"rock"}) {
			t.Errorf("expected the 2 rock tracks, got %d tracks %v", len(export.Tracks), export.Genres)
		}
	})

	t.Run("per genre", func(t *testing.T) {
		svc, tags := fixture()
		r, out := newTestRunner(svc, tags)
		dir := filepath.Join(t.TempDir(), "genres")
		if err := run(r, config, "export", "--per-genre", "-f", "csv", "-o", dir, testPlaylistID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(dir, "export_manifest.json"))
		if !strings.Contains(out.String(), "Exported 2 genres") {
			t.Errorf("expected 2 genres exported, got %q", out.String())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		svc, tags := fixture()
		r, _ := newTestRunner(svc, tags)
		if err := run(r, config, "export", "-f", "xml", testPlaylistID); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})
}

func TestConfigCommands(t *testing.T) {
	t.Run("init", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		r, out := newTestRunner(nil, nil)
		if err := run(r, path, "config", "init"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(out.String(), "Config written") {
			t.Errorf("expected confirmation, got %q", out.String())
		}

		out.Reset()
		if err := run(r, path, "config", "init"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "already exists") {
			t.Errorf("expected existing file to be kept, got %q", out.String())
		}
	})

	t.Run("show masks secrets", func(t *testing.T) {
		path := writeConfig(t, func(c *shared.Config) {
			c.Credentials.Spotify.ClientSecret = "supersecret9876"
			c.Credentials.LastFM.APIKey = "lastfmkey1234"
		})
		r, out := newTestRunner(nil, nil)
		if err := run(r, path, "config", "show"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := out.String()
		if strings.Contains(got, "supersecret") || strings.Contains(got, "lastfmkey") {
			t.Errorf("expected secrets masked, got %q", got)
		}
		if !strings.Contains(got, "****9876") || !strings.Contains(got, "****1234") {
			t.Errorf("expected masked suffixes, got %q", got)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		path := writeConfig(t, func(c *shared.Config) { c.Enrichment.MaxConcurrent = 0 })
		r, _ := newTestRunner(nil, nil)
		if err := run(r, path, "config", "show"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

// oauthService is a MockService whose token source has refreshed.
type oauthService struct {
	*tu.MockService
	token *oauth2.Token
}

func (o *oauthService) GetAuthURL(state string, opts ...oauth2.AuthCodeOption) string { return "" }

func (o *oauthService) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	return o.token, nil
}

func (o *oauthService) Token() (*oauth2.Token, error) { return o.token, nil }

func TestTeardownSavesRefreshedToken(t *testing.T) {
	path := writeConfig(t, func(c *shared.Config) {
		c.Credentials.Spotify.AccessToken = "old-access"
		c.Credentials.Spotify.RefreshToken = "refresh"
	})
	svc, tags := fixture()
	spotify := &oauthService{MockService: svc, token: &oauth2.Token{AccessToken: "new-access"}}
	r, _ := newTestRunner(spotify, tags)

	if err := run(r, path, "playlists"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, err := shared.LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to reload config: %v", err)
	}
	if saved.Credentials.Spotify.AccessToken != "new-access" {
		t.Errorf("expected the refreshed access token, got %q", saved.Credentials.Spotify.AccessToken)
	}
	if saved.Credentials.Spotify.RefreshToken != "refresh" {
		t.Errorf("expected the refresh token kept, got %q", saved.Credentials.Spotify.RefreshToken)
	}
}
