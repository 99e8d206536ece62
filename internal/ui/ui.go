package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/splitify/internal/models"
	"github.com/desertthunder/splitify/internal/services"
	"github.com/desertthunder/splitify/internal/shared"
	"github.com/desertthunder/splitify/internal/store"
	"github.com/desertthunder/splitify/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	LoadingView
	GenreView
	NameView
	CreatingView
	ResultView
)

// Options are the dependencies of a [Model].
type Options struct {
	Spotify    services.Service
	Session    *tasks.Session
	Engine     *tasks.PlaylistEngine
	BatchDelay time.Duration // Pause between AddTracks requests when creating a playlist.
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	view    ViewState
	spotify services.Service
	session *tasks.Session
	engine  *tasks.PlaylistEngine
	delay   time.Duration

	width        int
	height       int
	playlistList list.Model
	genreList    list.Model
	nameInput    textinput.Model
	spinner      spinner.Model
	bar          progress.Model
	help         help.Model
	keys         keyMap

	state        store.State
	changes      chan struct{}
	unsubscribe  func()
	loading      bool
	progressChan chan tasks.ProgressUpdate
	progress     tasks.ProgressUpdate
	result       *tasks.SplitResult
	err          error
}

// NewModel creates a new TUI model with the provided dependencies.
//
// The model subscribes to the session's store; every change wakes the UI, which then reads the latest state.
func NewModel(ctx context.Context, opts Options) *Model {
	m := &Model{
		ctx:       ctx,
		view:      PlaylistListView,
		spotify:   opts.Spotify,
		session:   opts.Session,
		engine:    opts.Engine,
		delay:     opts.BatchDelay,
		help:      help.New(),
		keys:      newKeyMap(),
		changes:   make(chan struct{}, 1),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.selected)),
		bar:       progress.New(progress.WithGradient("#1DB954", "#1ED760"), progress.WithWidth(40)),
		nameInput: textinput.New(),
	}

	m.playlistList = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	m.playlistList.Title = "Spotify Playlists"
	m.genreList = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	m.genreList.Title = "Genres"
	m.nameInput.Placeholder = "New playlist name"
	m.nameInput.CharLimit = 100

	if m.session != nil {
		m.unsubscribe = m.session.Store().Subscribe(func(store.State) {
			select {
			case m.changes <- struct{}{}:
			default:
			}
		})
	}
	return m
}

// Init fetches playlists and starts listening for store changes.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchPlaylists(), m.waitForChange(), m.spinner.Tick)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playlistList.SetSize(msg.Width-4, msg.Height-8)
		m.genreList.SetSize(msg.Width-4, msg.Height-10)
		m.bar.Width = min(60, max(20, msg.Width-40))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case LoadingView:
			return m.handleLoadingKeys(msg)
		case GenreView:
			return m.handleGenreKeys(msg)
		case NameView:
			return m.handleNameKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		case CreatingView:
			if msg.String() == "ctrl+c" {
				return m, m.quit()
			}
			return m, nil
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		data := msg.data.(playlistsFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		items := make([]list.Item, len(data.playlists))
		for i, pl := range data.playlists {
			items[i] = playlistItem{playlist: pl}
		}
		return m, m.playlistList.SetItems(items)

	case MsgStateChanged:
		m.state = m.session.Store().State()
		m.refreshGenres()
		return m, m.waitForChange()

	case MsgLoadDone:
		m.loading = false
		err, _ := msg.data.(error)
		switch {
		case err == nil:
			if m.view == LoadingView {
				m.view = GenreView
			}
		case errors.Is(err, shared.ErrCancelled):
		default:
			m.err = err
			m.view = PlaylistListView
		}
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgSplitComplete:
		data := msg.data.(splitComplete)
		m.result, m.err = data.result, data.err
		m.progressChan = nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.playlistList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.playlistList, cmd = m.playlistList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.enter):
		if pl, ok := m.playlistList.SelectedItem().(playlistItem); ok && !m.loading {
			m.err = nil
			m.loading = true
			m.view = LoadingView
			return m, m.startLoad(pl.playlist.ID)
		}
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleLoadingKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.back):
		m.session.Cancel()
		m.view = PlaylistListView
	case key.Matches(msg, m.keys.enter):
		// Genres stay live while the rest of the playlist loads.
		m.view = GenreView
	}
	return m, nil
}

func (m *Model) handleGenreKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.genreList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.genreList, cmd = m.genreList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.back):
		if m.loading {
			m.session.Cancel()
		}
		m.view = PlaylistListView
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		if g, ok := m.genreList.SelectedItem().(genreItem); ok {
			m.state = m.session.Store().Dispatch(store.ToggleGenre{Genre: g.genre})
			m.refreshGenres()
		}
		return m, nil
	case key.Matches(msg, m.keys.reset):
		m.state = m.session.Store().Dispatch(store.ResetFilters{})
		m.refreshGenres()
		return m, nil
	case key.Matches(msg, m.keys.create), key.Matches(msg, m.keys.enter):
		if len(store.Filtered(m.state)) == 0 || len(m.state.Filters.Selected) == 0 {
			return m, nil
		}
		m.nameInput.SetValue(defaultName(m.state))
		m.view = NameView
		return m, m.nameInput.Focus()
	}

	var cmd tea.Cmd
	m.genreList, cmd = m.genreList.Update(msg)
	return m, cmd
}

func (m *Model) handleNameKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, m.quit()
	case "esc":
		m.nameInput.Blur()
		m.view = GenreView
		return m, nil
	case "enter":
		name := strings.TrimSpace(m.nameInput.Value())
		if name == "" {
			return m, nil
		}
		m.nameInput.Blur()
		m.view = CreatingView
		return m, m.startSplit(name)
	}

	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.back):
		m.result, m.err = nil, nil
		m.view = GenreView
	case key.Matches(msg, m.keys.restart):
		m.result, m.err = nil, nil
		m.view = PlaylistListView
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case GenreView:
		m.genreList, cmd = m.genreList.Update(msg)
	case NameView:
		m.nameInput, cmd = m.nameInput.Update(msg)
	}
	return m, cmd
}

// refreshGenres rebuilds the genre picker from the histogram, keeping the cursor where it was.
func (m *Model) refreshGenres() {
	hist := store.Histogram(m.state)
	items := make([]list.Item, len(hist))
	for i, c := range hist {
		items[i] = genreItem{genre: c.Genre, tracks: c.Tracks, selected: isSelected(m.state, c.Genre)}
	}
	idx := m.genreList.Index()
	m.genreList.SetItems(items)
	if idx < len(items) {
		m.genreList.Select(idx)
	}
}

func (m *Model) quit() tea.Cmd {
	if m.loading {
		m.session.Cancel()
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	return tea.Quit
}

func (m *Model) fetchPlaylists() tea.Cmd {
	return func() tea.Msg {
		playlists, err := m.spotify.GetPlaylists(m.ctx)
		return playlistsFetchedMsg(playlists, err)
	}
}

func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return stateChangedMsg()
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) startLoad(playlistID string) tea.Cmd {
	return func() tea.Msg {
		return loadDoneMsg(m.session.Load(m.ctx, playlistID))
	}
}

func (m *Model) startSplit(name string) tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	ch := m.progressChan
	export := m.session.Snapshot()
	opts := tasks.SplitOptions{Name: name, BatchDelay: m.delay}

	split := func() tea.Msg {
		result, err := m.engine.Split(m.ctx, ch, export, opts)
		close(ch)
		return splitCompleteMsg(result, err)
	}
	return tea.Batch(split, m.waitForProgress())
}

// waitForProgress relays one update; the split command itself reports completion.
func (m *Model) waitForProgress() tea.Cmd {
	ch := m.progressChan
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-ch
		if !ok {
			return nil
		}
		return progressUpdateMsg(update)
	}
}

func isSelected(s store.State, genre string) bool {
	return slices.Contains(s.Filters.Selected, genre)
}

func defaultName(s store.State) string {
	base := s.PlaylistName
	if base == "" {
		base = "Playlist"
	}
	return fmt.Sprintf("%s (%s)", base, strings.Join(s.Filters.Selected, ", "))
}

// trackCount is the number of enriched tracks the current filter keeps.
func trackCount(tracks []models.EnrichedTrack) string {
	if len(tracks) == 1 {
		return "1 track"
	}
	return fmt.Sprintf("%d tracks", len(tracks))
}
