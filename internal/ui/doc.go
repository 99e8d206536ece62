// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks through one split:
//  1. [PlaylistListView] : Browse and select Spotify playlists
//  2. [LoadingView] : Watch the playlist stream in, with a progress bar and ETA per enrichment source
//  3. [GenreView] : Toggle genres; the track count follows the selection while enrichment continues
//  4. [NameView] : Name the playlist to create
//  5. [CreatingView] : Monitor playlist creation
//  6. [ResultView] : Show the created playlist
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Loading state lives in the session's store; the model subscribes to it and re-reads the state on each change, so
// bursts of enrichment updates collapse into a single redraw.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, space, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
