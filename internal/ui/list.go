package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/splitify/internal/models"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = genreItem{}
)

// playlistItem wraps [models.Playlist] to implement [list.Item].
type playlistItem struct {
	playlist models.Playlist
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string       { return i.playlist.Name }
func (i playlistItem) Description() string {
	desc := fmt.Sprintf("%d tracks", i.playlist.TrackCount)
	if i.playlist.Owner != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.playlist.Owner)
	}
	return desc
}

// genreItem is one row of the genre picker.
type genreItem struct {
	genre    string
	tracks   int
	selected bool
}

func (i genreItem) FilterValue() string { return i.genre }
func (i genreItem) Title() string {
	if i.selected {
		return styles.selected.Render("[x] " + i.genre)
	}
	return "[ ] " + i.genre
}
func (i genreItem) Description() string {
	if i.tracks == 1 {
		return "1 track"
	}
	return fmt.Sprintf("%d tracks", i.tracks)
}
