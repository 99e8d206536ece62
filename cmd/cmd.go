// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func playlistArg() []cli.Argument {
	return []cli.Argument{
		&cli.StringArg{
			Name:      "playlist",
			UsageText: "playlist ID, spotify:playlist: URI or open.spotify.com URL",
		},
	}
}

// sourceFlags switch off enrichment sources for one run.
func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-track-tags",
			Usage: "Skip Last.fm track tags",
		},
		&cli.BoolFlag{
			Name:  "no-artist-tags",
			Usage: "Skip Last.fm artist tags",
		},
	}
}

func genreFlag(usage string) cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "genre",
		Aliases: []string{"g"},
		Usage:   usage,
	}
}

// configCommand handles configuration file operations
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration file commands",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write an example config.toml",
				Action: r.ConfigInit,
			},
			{
				Name:  "show",
				Usage: "Print the effective configuration with secrets masked",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.ConfigShow,
			},
		},
	}
}

// authCommand handles Spotify authorization
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with Spotify using OAuth2",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the browser callback",
				Value: 5 * time.Minute,
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the authorization URL instead of opening a browser",
			},
		},
		Action: r.Auth,
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show configured credentials and check the Spotify token",
				Action: r.AuthStatus,
			},
		},
	}
}

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"ls"},
		Usage:   "List Spotify playlists",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of playlists to print (0 for all)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
			},
		},
		Action: r.Playlists,
	}
}

func enrichCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "enrich",
		Usage:     "Load a playlist and print its genres",
		Arguments: playlistArg(),
		Flags: append(sourceFlags(),
			&cli.IntFlag{
				Name:  "top",
				Usage: "Number of genres to print (0 for all)",
				Value: 25,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the enriched playlist as JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		),
		Action: r.Enrich,
	}
}

func splitCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "split",
		Usage:     "Create a playlist from the tracks matching any of the given genres",
		Arguments: playlistArg(),
		Flags: append(sourceFlags(),
			genreFlag("Genre to keep (repeatable or comma separated)"),
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Name of the new playlist (default: \"<source> (<genres>)\")",
			},
			&cli.StringFlag{
				Name:  "description",
				Usage: "Description of the new playlist",
			},
			&cli.BoolFlag{
				Name:  "public",
				Usage: "Make the new playlist public",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the matching tracks without creating anything",
			},
		),
		Action: r.Split,
	}
}

func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write the enriched playlist to disk",
		Arguments: playlistArg(),
		Flags: append(sourceFlags(),
			genreFlag("Only export tracks with this genre (repeatable or comma separated)"),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Export format: json, csv, markdown, txt",
				Value:   "json",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Base file name (default: the playlist ID)",
			},
			&cli.BoolFlag{
				Name:  "per-genre",
				Usage: "Write one export per genre plus a manifest",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent writers for --per-genre",
				Value: 4,
			},
		),
		Action: r.Export,
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Launch the interactive genre picker",
		Flags: append(sourceFlags(),
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the TUI owns the terminal",
				Value: "./tmp/splitify-tui.log",
			},
		),
		Action: r.TUI,
	}
}
