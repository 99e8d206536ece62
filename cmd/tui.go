package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/splitify/internal/shared"
	"github.com/desertthunder/splitify/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for splitting playlists.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireSpotify(); err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, f, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer f.Close()
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	session, err := r.newSession(sessionFlags(cmd))
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, ui.Options{
		Spotify:    r.spotify,
		Session:    session,
		Engine:     r.engine,
		BatchDelay: r.config.Enrichment.BatchDelay(),
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
