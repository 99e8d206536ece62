package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/splitify/internal/shared"
	"github.com/urfave/cli/v3"
)

// ConfigInit writes the example configuration to --config unless a file is already there.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")

	if _, err := os.Stat(path); err == nil {
		r.logger.Info("config file already exists", "path", path)
		return r.writePlain("Config already exists at %s\n", path)
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Config written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.client_id and client_secret (or SPLITIFY_SPOTIFY_CLIENT_ID / SPLITIFY_SPOTIFY_CLIENT_SECRET)\n")
	r.writePlain("2. Set credentials.lastfm.api_key (or SPLITIFY_LASTFM_API_KEY)\n")
	r.writePlain("3. Run 'splitify auth' to authorize with Spotify\n")
	return nil
}

// ConfigShow prints the effective configuration with secrets masked.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	c := *r.config
	c.Credentials.Spotify.ClientSecret = mask(c.Credentials.Spotify.ClientSecret)
	c.Credentials.Spotify.AccessToken = mask(c.Credentials.Spotify.AccessToken)
	c.Credentials.Spotify.RefreshToken = mask(c.Credentials.Spotify.RefreshToken)
	c.Credentials.LastFM.APIKey = mask(c.Credentials.LastFM.APIKey)

	if cmd.Bool("json") {
		return r.writeJSON(c, true)
	}

	e := c.Enrichment
	r.writePlainHeader(fmt.Sprintf("Config: %s", r.configPath))
	r.writePlain("Spotify client ID: %s\n", c.Credentials.Spotify.ClientID)
	r.writePlain("Spotify secret:    %s\n", c.Credentials.Spotify.ClientSecret)
	r.writePlain("Last.fm API key:   %s\n", c.Credentials.LastFM.APIKey)
	r.writePlain("Callback server:   %s:%d\n", c.Server.Host, c.Server.Port)
	r.writePlain("Sources:           track tags=%v artist tags=%v artist genres=true\n", e.TrackTags, e.ArtistTags)
	r.writePlain("Rate limit:        %.1f req/s, %d concurrent\n", e.RequestsPerSecond, e.MaxConcurrent)
	r.writePlain("Tag filter:        relevance >= %d, top %d\n", e.MinRelevance, e.TopN)
	r.writePlain("Log level:         %s\n", c.Log.Level)
	return nil
}

func mask(s string) string {
	if len(s) <= 4 {
		if s == "" {
			return ""
		}
		return "****"
	}
	return "****" + s[len(s)-4:]
}
