package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/splitify/internal/formatter"
	"github.com/desertthunder/splitify/internal/genres"
	"github.com/desertthunder/splitify/internal/models"
)

// BulkExportOpts contains configuration for per-genre exports.
type BulkExportOpts struct {
	Format     formatter.Format // Export format: json, csv, markdown, txt
	OutputDir  string           // Base output directory (default: splitify_export_{epoch})
	NumWorkers int              // Concurrent workers (default: 4)
	Genres     []string         // Genres to export; all genres found when empty.
}

// GenreExportResult is the outcome of exporting one genre.
type GenreExportResult struct {
	Genre  string
	Tracks int
	Files  []string
	Err    error
}

// BulkExportResult summarizes a per-genre export.
type BulkExportResult struct {
	OutputDirectory   string
	ManifestPath      string
	Results           []GenreExportResult
	SuccessfulExports int
	FailedExports     int
}

type genreExportJob struct {
	genre  string
	export *models.PlaylistExport
}

// BulkExport writes one export per genre with a pool of workers, then a manifest describing them.
//
// A failing genre does not stop the others. Results are ordered like opts.Genres.
func (e *PlaylistEngine) BulkExport(ctx context.Context, prog chan<- ProgressUpdate, src *models.PlaylistExport, opts BulkExportOpts) (*BulkExportResult, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("splitify_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.Format == "" {
		opts.Format = formatter.JSON
	}

	selected := opts.Genres
	if len(selected) == 0 {
		sets := make([][]string, len(src.Tracks))
		for i, t := range src.Tracks {
			sets[i] = t.AllGenres
		}
		selected = genres.Collect(sets...)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no genres to export")
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	jobs := make(chan genreExportJob, len(selected))
	results := make(chan GenreExportResult, len(selected))

	var wg sync.WaitGroup
	for range min(opts.NumWorkers, len(selected)) {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	for i, g := range selected {
		jobs <- genreExportJob{genre: g, export: genreSubset(src, g)}
		sendProgress(prog, exportingGenreUpdate(i+1, len(selected), g))
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	result := &BulkExportResult{OutputDirectory: opts.OutputDir}
	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)
		if res.Err == nil {
			result.SuccessfulExports++
			sendProgress(prog, exportCompletedUpdate(completed, len(selected), res.Genre, len(res.Files)))
		} else {
			result.FailedExports++
			sendProgress(prog, exportFailedUpdate(completed, len(selected), res.Genre, res.Err))
		}
	}
	slices.SortFunc(result.Results, func(a, b GenreExportResult) int {
		return slices.Index(selected, a.Genre) - slices.Index(selected, b.Genre)
	})

	if err := ctx.Err(); err != nil {
		return result, err
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(manifest(src.Playlist, opts, result), manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

// exportWorker exports genres from the jobs channel until it closes.
func (e *PlaylistEngine) exportWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan genreExportJob, results chan<- GenreExportResult, opts BulkExportOpts) {
	defer wg.Done()

	for job := range jobs {
		res := GenreExportResult{Genre: job.genre, Tracks: len(job.export.Tracks)}
		if err := ctx.Err(); err != nil {
			res.Err = err
			results <- res
			continue
		}

		files, err := formatter.Write(job.export, opts.Format, opts.OutputDir, fileBase(job.genre))
		if err != nil {
			e.logger.Warn("genre export failed", "genre", job.genre, "err", err)
		}
		res.Files, res.Err = files, err
		results <- res
	}
}

func genreSubset(src *models.PlaylistExport, genre string) *models.PlaylistExport {
	out := &models.PlaylistExport{
		Playlist: src.Playlist,
		Genres:   []string{genre},
	}
	out.Playlist.Name = fmt.Sprintf("%s (%s)", src.Playlist.Name, genre)
	for _, t := range src.Tracks {
		if slices.Contains(t.AllGenres, genre) {
			out.Tracks = append(out.Tracks, t)
		}
	}
	out.Playlist.TrackCount = len(out.Tracks)
	return out
}

// fileBase turns a genre into a file name stem.
func fileBase(genre string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(genre) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '&', r == '/':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
				b.WriteByte('-')
			}
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "genre"
	}
	return s
}

func manifest(pl models.Playlist, opts BulkExportOpts, res *BulkExportResult) formatter.Manifest {
	m := formatter.Manifest{
		Playlist:          pl,
		Format:            opts.Format,
		ExportedAt:        time.Now().UTC(),
		OutputDirectory:   opts.OutputDir,
		TotalExports:      len(res.Results),
		SuccessfulExports: res.SuccessfulExports,
		FailedExports:     res.FailedExports,
	}
	for _, r := range res.Results {
		entry := formatter.ManifestEntry{Genre: r.Genre, Tracks: r.Tracks, Status: "success", Files: r.Files}
		if r.Err != nil {
			entry.Status = "failed"
			entry.Error = r.Err.Error()
		}
		m.Exports = append(m.Exports, entry)
	}
	return m
}
