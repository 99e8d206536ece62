package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/splitify/internal/models"
	"github.com/desertthunder/splitify/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgPlaylistsFetched MsgKind = iota
	MsgStateChanged
	MsgLoadDone
	MsgProgressUpdate
	MsgSplitComplete
)

type playlistsFetched struct {
	playlists []models.Playlist
	err       error
}

type splitComplete struct {
	result *tasks.SplitResult
	err    error
}

// playlistsFetchedMsg is the constructor for [MsgPlaylistsFetched]
func playlistsFetchedMsg(playlists []models.Playlist, err error) Msg {
	return Msg{kind: MsgPlaylistsFetched, data: playlistsFetched{playlists, err}}
}

// stateChangedMsg is the constructor for [MsgStateChanged]. The model reads the store itself.
func stateChangedMsg() Msg {
	return Msg{kind: MsgStateChanged}
}

// loadDoneMsg is the constructor for [MsgLoadDone]
func loadDoneMsg(err error) Msg {
	return Msg{kind: MsgLoadDone, data: err}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// splitCompleteMsg is the constructor for [MsgSplitComplete]
func splitCompleteMsg(result *tasks.SplitResult, err error) Msg {
	return Msg{kind: MsgSplitComplete, data: splitComplete{result, err}}
}
