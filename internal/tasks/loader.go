package tasks

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/splitify/internal/models"
	"github.com/desertthunder/splitify/internal/services"
	"github.com/desertthunder/splitify/internal/shared"
)

// Page is one fetched page of a playlist.
type Page struct {
	Tracks []models.Track // Available tracks with their playlist positions.
	Loaded int           // Playlist items fetched so far, including unavailable ones.
	Total  int
}

// Loader streams a playlist page by page.
type Loader struct {
	source services.PageSource
	delay  time.Duration
	logger *log.Logger
}

// NewLoader returns a loader that waits delay between page requests.
func NewLoader(source services.PageSource, delay time.Duration, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Loader{source: source, delay: delay, logger: shared.WithLogger(logger, "component", "loader")}
}

// Stream fetches every page of playlistID and hands each to onPage as soon as it arrives.
//
// Track positions are the item's index in the playlist, counting unavailable items, so they match the source even
// though those items are left out. Stream stops at the first error from the source, onPage, or ctx.
func (l *Loader) Stream(ctx context.Context, playlistID string, onPage func(Page) error) (int, error) {
	token := ""
	offset := 0
	for pageNum := 0; ; pageNum++ {
		if pageNum > 0 && l.delay > 0 {
			select {
			case <-ctx.Done():
				return offset, ctx.Err()
			case <-time.After(l.delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return offset, err
		}

		page, err := l.source.TracksPage(ctx, playlistID, token)
		if err != nil {
			if ctx.Err() != nil {
				return offset, ctx.Err()
			}
			return offset, fmt.Errorf("failed to fetch page %d of %s: %w", pageNum+1, playlistID, err)
		}

		tracks := make([]models.Track, 0, len(page.Tracks))
		for i, t := range page.Tracks {
			if t == nil {
				continue
			}
			track := *t
			track.Position = offset + i
			tracks = append(tracks, track)
		}
		offset += len(page.Tracks)

		l.logger.Debug("page loaded", "playlist", playlistID, "page", pageNum+1, "tracks", len(tracks), "loaded", offset, "total", page.Total)
		if err := onPage(Page{Tracks: tracks, Loaded: offset, Total: page.Total}); err != nil {
			return offset, err
		}

		if page.Next == "" || len(page.Tracks) == 0 {
			return offset, nil
		}
		token = page.Next
	}
}
