package shared

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// browserCommand picks the launcher for authURL. $BROWSER wins over the
// platform default so headless and WSL setups can point at a wrapper.
func browserCommand(authURL string) (*exec.Cmd, error) {
	if b := os.Getenv("BROWSER"); b != "" {
		return exec.Command(b, authURL), nil
	}

	switch rt := getRuntime(); rt {
	case "darwin":
		return exec.Command("open", authURL), nil
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", authURL), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", authURL), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", rt)
	}
}

// OpenBrowser launches a browser on the Spotify authorization URL.
// Only http(s) URLs are accepted.
func OpenBrowser(authURL string) error {
	u, err := url.Parse(authURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: refusing to open %q", ErrInvalidArgument, authURL)
	}

	cmd, err := browserCommand(u.String())
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
