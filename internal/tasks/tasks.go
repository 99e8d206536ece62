package tasks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/splitify/internal/models"
	"github.com/desertthunder/splitify/internal/services"
	"github.com/desertthunder/splitify/internal/shared"
	"github.com/desertthunder/splitify/internal/store"
)

// PlaylistWriter creates playlists and fills them.
type PlaylistWriter interface {
	CreatePlaylist(ctx context.Context, name, description string, public bool) (*models.Playlist, error)
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) error
}

// SplitOptions describes the playlist to create.
type SplitOptions struct {
	Name        string
	Description string // Defaults to a summary of the source playlist and genres.
	Public      bool
	BatchDelay  time.Duration // Pause between AddTracks requests.
}

// SplitResult is the outcome of [PlaylistEngine.Split].
type SplitResult struct {
	Playlist *models.Playlist
	Added    int
	Total    int
}

// PlaylistEngine writes filtered track selections back to Spotify.
type PlaylistEngine struct {
	writer PlaylistWriter
	logger *log.Logger
}

// NewPlaylistEngine creates a new PlaylistEngine with the provided writer.
func NewPlaylistEngine(writer PlaylistWriter, logger *log.Logger) *PlaylistEngine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &PlaylistEngine{writer: writer, logger: shared.WithLogger(logger, "component", "engine")}
}

// Split creates a playlist holding export's tracks in order.
//
// Tracks are added in batches of [services.MaxTracksPerAdd]. If adding fails after the playlist was created, the
// partial result is returned alongside the error.
func (e *PlaylistEngine) Split(ctx context.Context, progress chan<- ProgressUpdate, export *models.PlaylistExport, opts SplitOptions) (*SplitResult, error) {
	if e.writer == nil {
		return nil, fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}
	if strings.TrimSpace(opts.Name) == "" {
		return nil, fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	ids := store.TrackIDs(export.Tracks)
	if len(ids) == 0 {
		return nil, shared.ErrNoTracks
	}
	if opts.Description == "" {
		opts.Description = splitDescription(export)
	}

	sendProgress(progress, createPlaylistUpdate(opts.Name))
	pl, err := e.writer.CreatePlaylist(ctx, opts.Name, opts.Description, opts.Public)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create playlist: %v", shared.ErrAPIRequest, err)
	}
	sendProgress(progress, createdPlaylistUpdate(pl))
	e.logger.Info("playlist created", "id", pl.ID, "name", pl.Name, "tracks", len(ids))

	result := &SplitResult{Playlist: pl, Total: len(ids)}
	for start := 0; start < len(ids); start += services.MaxTracksPerAdd {
		if start > 0 && opts.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(opts.BatchDelay):
			}
		}

		end := min(start+services.MaxTracksPerAdd, len(ids))
		if err := e.writer.AddTracks(ctx, pl.ID, ids[start:end]); err != nil {
			return result, fmt.Errorf("%w: failed to add tracks %d-%d: %v", shared.ErrAPIRequest, start+1, end, err)
		}
		result.Added = end
		sendProgress(progress, addTracksUpdate(result.Added, result.Total))
	}

	pl.TrackCount = result.Added
	return result, nil
}

func splitDescription(export *models.PlaylistExport) string {
	src := export.Playlist.Name
	if src == "" {
		src = "a playlist"
	}
	if len(export.Genres) == 0 {
		return fmt.Sprintf("Split from %s", src)
	}
	return fmt.Sprintf("Split from %s: %s", src, strings.Join(export.Genres, ", "))
}
