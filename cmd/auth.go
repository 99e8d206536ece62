package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/desertthunder/splitify/internal/server"
	"github.com/desertthunder/splitify/internal/services"
	"github.com/desertthunder/splitify/internal/shared"
	"github.com/urfave/cli/v3"
)

// Auth runs the Spotify OAuth2 flow through a local callback server and stores the token in the config file.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireSpotify(); err != nil {
		return err
	}
	oauthSrv, ok := r.spotify.(services.OAuthService)
	if !ok {
		return fmt.Errorf("%w: %s does not support OAuth", shared.ErrServiceUnavailable, r.spotify.Name())
	}

	timeout := cmd.Duration("timeout")
	addr := net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	r.writePlain("→ Waiting for authorization (%v timeout)...\n", timeout)

	token, err := server.Authorize(ctx, oauthSrv, server.AuthorizeOptions{
		Addr:    addr,
		Timeout: timeout,
		Open:    r.openBrowser(cmd.Bool("no-browser")),
		Logger:  r.logger,
	})
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	if err := oauthSrv.Authenticate(ctx, map[string]string{"access_token": token.AccessToken, "refresh_token": token.RefreshToken, "expiry": token.Expiry.Format(time.RFC3339)}); err != nil {
		return fmt.Errorf("failed to authenticate with new token: %w", err)
	}
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return err
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return err
	}

	r.logger.Info("spotify token saved", "config", r.configPath)
	r.writePlain("✓ Authorized with Spotify\n")
	r.writePlain("  Token saved to %s\n", r.configPath)
	return nil
}

// openBrowser returns the hook that shows the consent URL, printing it when no browser can be launched.
func (r *Runner) openBrowser(printOnly bool) func(string) error {
	return func(authURL string) error {
		if !printOnly {
			err := shared.OpenBrowser(authURL)
			if err == nil {
				return nil
			}
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
		}
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		return nil
	}
}

// AuthStatus reports which credentials are configured and whether the Spotify token still works.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Credentials

	r.writePlainHeader("Credentials")
	r.writePlain("Spotify client: %s\n", configured(creds.Spotify.ClientID != ""))
	r.writePlain("Last.fm API key: %s\n", configured(creds.LastFM.APIKey != ""))

	if creds.Spotify.Token() == nil {
		r.writePlain("Spotify token: ✗ Not authenticated (run 'splitify auth')\n")
		return nil
	}
	if err := r.requireSpotify(); err != nil {
		return err
	}

	playlists, err := r.spotify.GetPlaylists(ctx)
	if err != nil {
		r.writePlain("Spotify token: ✗ %v\n", err)
		return nil
	}
	r.writePlain("Spotify token: ✓ Authenticated (%d playlists)\n", len(playlists))
	return nil
}

func configured(ok bool) string {
	if ok {
		return "✓ configured"
	}
	return "✗ missing"
}

// saveToken writes the Spotify token back to the config file when the client refreshed it during the run.
func (r *Runner) saveToken() error {
	oauthSrv, ok := r.spotify.(services.OAuthService)
	if !ok || r.configPath == "" || r.config.Credentials.Spotify.Token() == nil {
		return nil
	}

	token, err := oauthSrv.Token()
	if err != nil {
		return nil
	}
	if token.AccessToken == r.config.Credentials.Spotify.AccessToken {
		return nil
	}

	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return err
	}
	r.logger.Debug("saving refreshed spotify token", "config", r.configPath)
	return shared.SaveConfig(r.configPath, r.config)
}
