package shared

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var spotifyIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{22}$`)

// ExtractPlaylistID accepts a bare playlist ID, a spotify:playlist: URI, or an open.spotify.com share URL and returns the playlist ID.
func ExtractPlaylistID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("%w: playlist", ErrMissingArgument)
	}

	if rest, ok := strings.CutPrefix(s, "spotify:playlist:"); ok {
		return validPlaylistID(rest)
	}

	if strings.Contains(s, "/") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i := 0; i < len(parts)-1; i++ {
			if parts[i] == "playlist" {
				return validPlaylistID(parts[i+1])
			}
		}
		return "", fmt.Errorf("%w: no playlist in %q", ErrInvalidArgument, s)
	}

	return validPlaylistID(s)
}

func validPlaylistID(id string) (string, error) {
	if !spotifyIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: playlist id %q", ErrInvalidArgument, id)
	}
	return id, nil
}
