package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/splitify/internal/formatter"
	"github.com/desertthunder/splitify/internal/models"
	"github.com/desertthunder/splitify/internal/shared"
	"github.com/desertthunder/splitify/internal/store"
	"github.com/desertthunder/splitify/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Playlists lists the user's Spotify playlists.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")

	if err := r.requireSpotify(); err != nil {
		return err
	}

	r.logger.Info("fetching spotify playlists")
	playlists, err := r.spotify.GetPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	if limit > 0 && len(playlists) > limit {
		playlists = playlists[:limit]
	}

	if useJSON {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		r.writePlain("   Visibility: %s\n", shared.VisibilityString(p.Public))
		r.writePlain("\n")
	}

	return nil
}

func sessionFlags(cmd *cli.Command) sessionOptions {
	return sessionOptions{noTrackTags: cmd.Bool("no-track-tags"), noArtistTags: cmd.Bool("no-artist-tags")}
}

// Enrich loads a playlist, tags every track with genres and prints the genre breakdown.
func (r *Runner) Enrich(ctx context.Context, cmd *cli.Command) error {
	session, err := r.load(ctx, cmd, sessionFlags(cmd))
	if err != nil {
		return err
	}

	state := session.Store().State()
	if cmd.Bool("json") {
		export := session.Snapshot()
		export.Genres = store.Genres(state)
		return r.writeJSON(export, cmd.Bool("pretty"))
	}

	hist := store.Histogram(state)
	untagged := 0
	for _, t := range state.Tracks {
		if len(t.AllGenres) == 0 {
			untagged++
		}
	}

	r.writePlainHeader(state.PlaylistName)
	r.writePlain("Tracks: %d\n", len(state.Tracks))
	r.writePlain("Genres: %d\n", len(hist))
	if untagged > 0 {
		r.writePlain("Without genres: %d\n", untagged)
	}
	r.writePlain("\n")

	top := cmd.Int("top")
	if top > 0 && len(hist) > top {
		hist = hist[:top]
	}
	for _, c := range hist {
		r.writePlain("%-32s %d\n", c.Genre, c.Tracks)
	}
	return nil
}

// Split creates a playlist holding the tracks that carry any of the --genre values.
func (r *Runner) Split(ctx context.Context, cmd *cli.Command) error {
	selected := genreFlags(cmd)
	if len(selected) == 0 {
		return fmt.Errorf("%w: at least one --genre is required", shared.ErrMissingArgument)
	}

	session, err := r.load(ctx, cmd, sessionFlags(cmd))
	if err != nil {
		return err
	}
	session.Store().Dispatch(store.SetSelectedGenres{Genres: selected})
	export := session.Snapshot()
	if len(export.Tracks) == 0 {
		return fmt.Errorf("%w: %s", shared.ErrNoTracks, strings.Join(selected, ", "))
	}

	name := cmd.String("name")
	if name == "" {
		name = fmt.Sprintf("%s (%s)", export.Playlist.Name, strings.Join(selected, ", "))
	}

	if cmd.Bool("dry-run") {
		r.writePlain("Would create %q with %d tracks:\n\n", name, len(export.Tracks))
		for i, t := range export.Tracks {
			r.writePlain("%d. %s - %s [%s]\n", i+1, t.ArtistNames(", "), t.Name, strings.Join(t.AllGenres, ", "))
		}
		return nil
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	done := r.logProgress(progress)
	result, err := r.engine.Split(ctx, progress, export, tasks.SplitOptions{
		Name:        name,
		Description: cmd.String("description"),
		Public:      cmd.Bool("public"),
		BatchDelay:  r.config.Enrichment.BatchDelay(),
	})
	close(progress)
	<-done

	if result != nil && err != nil {
		r.writePlain("⚠ %s was created with %d of %d tracks\n", result.Playlist.Name, result.Added, result.Total)
	}
	if err != nil {
		return err
	}

	r.writePlain("✓ Created %s\n", result.Playlist.Name)
	r.writePlain("  Tracks: %d\n", result.Added)
	r.writePlain("  Visibility: %s\n", shared.VisibilityString(result.Playlist.Public))
	if result.Playlist.URL != "" {
		r.writePlain("  URL: %s\n", result.Playlist.URL)
	}
	return nil
}

// Export writes the enriched playlist to disk, optionally restricted to --genre, or one file set per genre with --per-genre.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	session, err := r.load(ctx, cmd, sessionFlags(cmd))
	if err != nil {
		return err
	}

	selected := genreFlags(cmd)
	if cmd.Bool("per-genre") {
		return r.exportPerGenre(ctx, cmd, session.Snapshot(), format, selected)
	}

	session.Store().Dispatch(store.SetSelectedGenres{Genres: selected})
	export := session.Snapshot()
	if len(export.Tracks) == 0 {
		return shared.ErrNoTracks
	}
	if len(selected) == 0 {
		export.Genres = store.Genres(session.Store().State())
	}

	dir := cmd.String("output")
	if dir == "" {
		dir = "."
	}
	files, err := formatter.Write(export, format, dir, cmd.String("name"))
	if err != nil {
		return err
	}

	r.logger.Infof("playlist exported with %v tracks", len(export.Tracks))
	r.writePlain("✓ Exported %s (%d tracks)\n", export.Playlist.Name, len(export.Tracks))
	for _, f := range files {
		r.writePlain("  %s\n", f)
	}
	return nil
}

func (r *Runner) exportPerGenre(ctx context.Context, cmd *cli.Command, export *models.PlaylistExport, format formatter.Format, selected []string) error {
	progress := make(chan tasks.ProgressUpdate, 16)
	done := r.logProgress(progress)
	result, err := r.engine.BulkExport(ctx, progress, export, tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
		Genres:     selected,
	})
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlain("✓ Exported %d genres to %s\n", result.SuccessfulExports, result.OutputDirectory)
	for _, res := range result.Results {
		if res.Err != nil {
			r.writePlain("  ✗ %s: %v\n", res.Genre, res.Err)
			continue
		}
		r.writePlain("  %-32s %d tracks\n", res.Genre, res.Tracks)
	}
	if result.FailedExports > 0 {
		return fmt.Errorf("%d of %d genre exports failed", result.FailedExports, len(result.Results))
	}
	r.writePlain("  Manifest: %s\n", result.ManifestPath)
	return nil
}

// logProgress logs updates from progress until it is closed, then closes the returned channel.
func (r *Runner) logProgress(progress <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range progress {
			r.logger.Info(u.Message, "phase", u.Phase, "step", u.Step, "total", u.Total)
		}
	}()
	return done
}

// genreFlags returns the --genre values folded the way enrichment folds tags.
func genreFlags(cmd *cli.Command) []string {
	var out []string
	for _, g := range cmd.StringSlice("genre") {
		for _, part := range strings.Split(g, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
