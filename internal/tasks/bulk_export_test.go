package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/desertthunder/splitify/internal/formatter"
	"github.com/desertthunder/splitify/internal/models"
	tu "github.com/desertthunder/splitify/internal/testing"
)

func genreExport() *models.PlaylistExport {
	export := &models.PlaylistExport{Playlist: models.Playlist{ID: "src", Name: "Mixed"}}
	add := func(id string, genres ...string) {
		tr := models.NewEnrichedTrack(*tu.Track(id, "Song "+id, len(export.Tracks), "a1", "Artist"))
		tr.AllGenres = genres
		tr.Status = models.StatusComplete
		export.Tracks = append(export.Tracks, tr)
	}
	add("t1", "rock", "hard rock")
	add("t2", "jazz")
	add("t3", "rock")
	add("t4", "r&b / soul")
	return export
}

func TestBulkExport(t *testing.T) {
	tests := []struct {
		name      string
		format    formatter.Format
		genres    []string
		wantFiles map[string][]string
	}{
		{
			name:   "json for every genre",
			format: formatter.JSON,
			wantFiles: map[string][]string{
				"hard rock":  {"hard-rock.json"},
				"jazz":       {"jazz.json"},
				"r&b / soul": {"r-b-soul.json"},
				"rock":       {"rock.json"},
			},
		},
		{
			name:   "csv for selected genres",
			format: formatter.CSV,
			genres: []string{"rock", "jazz"},
			wantFiles: map[string][]string{
				"rock": {"rock_tracks.csv", "rock_metadata.json"},
				"jazz": {"jazz_tracks.csv", "jazz_metadata.json"},
			},
		},
		{
			name:   "text",
			format: formatter.Text,
			genres: []string{"jazz"},
			wantFiles: map[string][]string{
				"jazz": {"jazz_tracks.txt"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			engine := NewPlaylistEngine(nil, nil)
			progress := make(chan ProgressUpdate, 32)

			res, err := engine.BulkExport(context.Background(), progress, genreExport(), BulkExportOpts{
				Format:     tt.format,
				OutputDir:  dir,
				NumWorkers: 2,
				Genres:     tt.genres,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.SuccessfulExports != len(tt.wantFiles) || res.FailedExports != 0 {
				t.Errorf("expected %d successful exports, got %d (%d failed)", len(tt.wantFiles), res.SuccessfulExports, res.FailedExports)
			}

			for _, r := range res.Results {
				want, ok := tt.wantFiles[r.Genre]
				if !ok {
					t.Errorf("unexpected genre %q", r.Genre)
					continue
				}
				if len(r.Files) != len(want) {
					t.Errorf("expected %d files for %s, got %v", len(want), r.Genre, r.Files)
				}
				for _, f := range want {
					tu.AssertFileExists(t, filepath.Join(dir, f))
				}
			}

			if tt.genres != nil {
				var order []string
				for _, r := range res.Results {
					order = append(order, r.Genre)
				}
				if !slices.Equal(order, tt.genres) {
					t.Errorf("expected results ordered as %v, got %v", tt.genres, order)
				}
			}

			tu.AssertFileExists(t, res.ManifestPath)
			var m formatter.Manifest
			if err := json.Unmarshal([]byte(tu.MustReadFile(t, res.ManifestPath)), &m); err != nil {
				t.Fatalf("failed to parse manifest: %v", err)
			}
			if m.TotalExports != len(tt.wantFiles) || m.Format != tt.format {
				t.Errorf("expected %d %s exports in manifest, got %d %s", len(tt.wantFiles), tt.format, m.TotalExports, m.Format)
			}

			close(progress)
			n := 0
			for u := range progress {
				if u.Phase != ExportPlaylist {
					t.Errorf("expected export phase, got %v", u.Phase)
				}
				n++
			}
			if n != 2*len(tt.wantFiles) {
				t.Errorf("expected %d progress updates, got %d", 2*len(tt.wantFiles), n)
			}
		})
	}
}

func TestBulkExport_GenreContents(t *testing.T) {
	dir := t.TempDir()
	res, err := NewPlaylistEngine(nil, nil).BulkExport(context.Background(), nil, genreExport(), BulkExportOpts{
		OutputDir: dir,
		Genres:    []string{"rock"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Results[0].Tracks != 2 {
		t.Errorf("expected 2 rock tracks, got %d", res.Results[0].Tracks)
	}

	var export models.PlaylistExport
	if err := json.Unmarshal([]byte(tu.MustReadFile(t, filepath.Join(dir, "rock.json"))), &export); err != nil {
		t.Fatalf("failed to parse export: %v", err)
	}
	if export.Playlist.Name != "Mixed (rock)" || export.Playlist.TrackCount != 2 {
		t.Errorf("unexpected playlist %+v", export.Playlist)
	}
	var ids []string
	for _, tr := range export.Tracks {
		ids = append(ids, tr.ID)
	}
	if !slices.Equal(ids, []string{"t1", "t3"}) {
		t.Errorf("expected [t1 t3], got %v", ids)
	}
}

func TestBulkExport_Errors(t *testing.T) {
	t.Run("no genres", func(t *testing.T) {
		export := genreExport()
		for i := range export.Tracks {
			export.Tracks[i].AllGenres = nil
		}
		if _, err := NewPlaylistEngine(nil, nil).BulkExport(context.Background(), nil, export, BulkExportOpts{OutputDir: t.TempDir()}); err == nil {
			t.Error("expected error without genres")
		}
	})

	t.Run("invalid output directory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := NewPlaylistEngine(nil, nil).BulkExport(context.Background(), nil, genreExport(), BulkExportOpts{OutputDir: filepath.Join(file, "sub")})
		if err == nil {
			t.Error("expected error for an unusable output directory")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := NewPlaylistEngine(nil, nil).BulkExport(ctx, nil, genreExport(), BulkExportOpts{OutputDir: t.TempDir()})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if res == nil || res.FailedExports != 4 || res.ManifestPath != "" {
			t.Errorf("expected every genre failed and no manifest, got %+v", res)
		}
	})
}

func TestFileBase(t *testing.T) {
	tests := []struct {
		genre string
		want  string
	}{
		{"rock", "rock"},
		{"Hard Rock", "hard-rock"},
		{"r&b / soul", "r-b-soul"},
		{"80s", "80s"},
		{"!!!", "genre"},
	}
	for _, tt := range tests {
		if got := fileBase(tt.genre); got != tt.want {
			t.Errorf("fileBase(%q): expected %q, got %q", tt.genre, tt.want, got)
		}
	}
}
