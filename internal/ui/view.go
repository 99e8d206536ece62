package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/splitify/internal/enrich"
	"github.com/desertthunder/splitify/internal/shared"
	"github.com/desertthunder/splitify/internal/store"
)

const histogramRows = 8

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case PlaylistListView:
		return m.renderPlaylistList()
	case LoadingView:
		return m.renderLoading()
	case GenreView:
		return m.renderGenres()
	case NameView:
		return m.renderName()
	case CreatingView:
		return m.renderCreating()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) renderPlaylistList() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.quit})
	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s\n\n%s", styles.err.Render(fmt.Sprintf("Error: %v", m.err)), m.playlistList.View(), helpView)
	}
	return fmt.Sprintf("%s\n\n%s", m.playlistList.View(), helpView)
}

func (m *Model) renderLoading() string {
	s := m.state
	name := s.PlaylistName
	if name == "" {
		name = "playlist"
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(fmt.Sprintf("%s Loading %s", m.spinner.View(), name)))
	b.WriteString("\n")
	b.WriteString(m.progressRow("Tracks", s.Loading.Loaded, s.Loading.Total, ""))
	for _, p := range []enrich.Progress{s.Loading.Sources.TrackTags, s.Loading.Sources.ArtistTags, s.Loading.Sources.ArtistGenres} {
		b.WriteString(m.sourceRow(p))
	}

	if eta, ok := store.ETA(s); ok {
		b.WriteString("\n" + styles.help.Render("About "+shared.FormatETA(eta)+" remaining") + "\n")
	}

	if hist := store.Histogram(s); len(hist) > 0 {
		b.WriteString("\n" + styles.ok.Render("Top genres so far") + "\n")
		for _, c := range hist[:min(histogramRows, len(hist))] {
			b.WriteString(fmt.Sprintf("  %-24s %d\n", c.Genre, c.Tracks))
		}
	}

	enter := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "pick genres now"))
	cancel := key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel"))
	b.WriteString("\n" + m.help.ShortHelpView([]key.Binding{enter, cancel, m.keys.quit}))
	return b.String()
}

func (m *Model) sourceRow(p enrich.Progress) string {
	if p.Total == 0 {
		return ""
	}
	eta := ""
	if d, ok := p.ETA(); ok {
		eta = styles.As("~"+shared.FormatETA(d), lipgloss.Color("#727272"))
	}
	return m.progressRow(capitalize(p.Source.String()), p.Completed, p.Total, eta)
}

func (m *Model) progressRow(label string, done, total int, suffix string) string {
	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total)
	}
	row := fmt.Sprintf("%s %s %d/%d", styles.label.Render(label), m.bar.ViewAs(pct), done, total)
	if suffix != "" {
		row += " " + suffix
	}
	return row + "\n"
}

func (m *Model) renderGenres() string {
	s := m.state
	filtered := store.Filtered(s)

	var status string
	switch {
	case len(s.Filters.Selected) == 0:
		status = fmt.Sprintf("%d tracks • select genres with space", len(s.Tracks))
	default:
		status = fmt.Sprintf("%s • %s", trackCount(filtered), strings.Join(s.Filters.Selected, ", "))
	}
	if m.loading {
		status = fmt.Sprintf("%s %s • %d/%d enriched", m.spinner.View(), status, store.Completed(s), len(s.Tracks))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.toggle, m.keys.reset, m.keys.create, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", m.genreList.View(), styles.help.Render(status), helpView)
}

func (m *Model) renderName() string {
	title := styles.title.Render("Name the new playlist")
	info := fmt.Sprintf("%s from %s", trackCount(store.Filtered(m.state)), m.state.PlaylistName)
	create := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "create"))
	helpView := m.help.ShortHelpView([]key.Binding{create, m.keys.back})
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, info, m.nameInput.View(), helpView)
}

func (m *Model) renderCreating() string {
	title := styles.title.Render(fmt.Sprintf("%s Creating playlist", m.spinner.View()))
	bar := ""
	if m.progress.Total > 0 {
		bar = m.bar.ViewAs(float64(m.progress.Step)/float64(m.progress.Total)) + "\n"
	}
	return fmt.Sprintf("%s\n%s%s", title, bar, m.progress.Message)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.restart, m.keys.quit})

	if m.err != nil {
		msg := fmt.Sprintf("Could not create playlist: %v", m.err)
		if m.result != nil {
			msg += fmt.Sprintf("\n%s was created with %d of %d tracks", m.result.Playlist.Name, m.result.Added, m.result.Total)
		}
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(msg), helpView)
	}
	if m.result == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("No result available"), helpView)
	}

	pl := m.result.Playlist
	title := styles.ok.Render("✓ Playlist created")
	info := fmt.Sprintf("\n%s (%s)\n%d tracks", pl.Name, shared.VisibilityString(pl.Public), m.result.Added)
	if pl.URL != "" {
		info += "\n" + pl.URL
	}
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
