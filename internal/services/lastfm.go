package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/splitify/internal/shared"
)

const (
	lastFMBaseURL = "https://ws.audioscrobbler.com/2.0/"

	defaultMaxRetries = 3
	defaultRetryBase  = time.Second
	defaultRetryMax   = 8 * time.Second
)

// Last.fm error codes carried in otherwise successful responses.
const (
	lastFMInvalidParameters = 6 // also "track not found" / "artist not found"
	lastFMOperationFailed   = 8
	lastFMServiceOffline    = 11
	lastFMTemporaryError    = 16
	lastFMRateLimitExceeded = 29
)

// LastFMOptions configures a [LastFMService]. Zero values take defaults.
type LastFMOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int // Total attempts per lookup.
	RetryBase  time.Duration
	RetryMax   time.Duration
	Logger     *log.Logger
}

// LastFMService looks up crowd-sourced tags on Last.fm.
type LastFMService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration
	logger     *log.Logger
}

// NewLastFMService validates opts and returns a client.
func NewLastFMService(opts LastFMOptions) (*LastFMService, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%w: missing Last.fm api_key", shared.ErrMissingCredentials)
	}

	s := &LastFMService{
		apiKey:     opts.APIKey,
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
		retryMax:   opts.RetryMax,
		logger:     opts.Logger,
	}
	if s.baseURL == "" {
		s.baseURL = lastFMBaseURL
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if s.maxRetries < 1 {
		s.maxRetries = defaultMaxRetries
	}
	if s.retryBase <= 0 {
		s.retryBase = defaultRetryBase
	}
	if s.retryMax <= 0 {
		s.retryMax = defaultRetryMax
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	s.logger = shared.WithLogger(s.logger, "service", "lastfm")
	return s, nil
}

func (s *LastFMService) Name() string {
	return "Last.fm"
}

// TrackTags returns the top tags of a track. An unknown track yields no tags and no error.
func (s *LastFMService) TrackTags(ctx context.Context, track, artist string) ([]Tag, error) {
	params := url.Values{}
	params.Set("method", "track.getTopTags")
	params.Set("track", track)
	params.Set("artist", artist)
	return s.topTags(ctx, params)
}

// ArtistTags returns the top tags of an artist. An unknown artist yields no tags and no error.
func (s *LastFMService) ArtistTags(ctx context.Context, artist string) ([]Tag, error) {
	params := url.Values{}
	params.Set("method", "artist.getTopTags")
	params.Set("artist", artist)
	return s.topTags(ctx, params)
}

type topTagsResponse struct {
	TopTags *struct {
		Tag json.RawMessage `json:"tag"`
	} `json:"toptags"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type lastFMTag struct {
	Name  string    `json:"name"`
	Count flexCount `json:"count"`
}

// flexCount accepts a tag count encoded as a number or a numeric string.
type flexCount int

func (c *flexCount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*c = flexCount(n)
	return nil
}

func (s *LastFMService) topTags(ctx context.Context, params url.Values) ([]Tag, error) {
	params.Set("api_key", s.apiKey)
	params.Set("autocorrect", "1")
	params.Set("format", "json")

	body, err := s.doWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []Tag{}, nil
	}
	return decodeTopTags(body)
}

func decodeTopTags(body []byte) ([]Tag, error) {
	var resp topTagsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
	}
	if resp.TopTags == nil {
		return []Tag{}, nil
	}

	raw := bytes.TrimSpace(resp.TopTags.Tag)
	var items []lastFMTag
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
		}
	case raw[0] == '{':
		var one lastFMTag
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
		}
		items = []lastFMTag{one}
	default:
		return nil, fmt.Errorf("%w: unexpected tag payload", shared.ErrMalformedResponse)
	}

	tags := make([]Tag, 0, len(items))
	for _, it := range items {
		if it.Name == "" {
			continue
		}
		tags = append(tags, Tag{Name: it.Name, Count: int(it.Count)})
	}
	return tags, nil
}

// doWithRetry performs the request, retrying transient failures with a doubling delay.
//
// A nil body with a nil error means the entity does not exist.
func (s *LastFMService) doWithRetry(ctx context.Context, params url.Values) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, retryAfter, err := s.doRequest(ctx, params)
		if err == nil {
			return body, nil
		}
		if !retryable(err) || attempt+1 >= s.maxRetries || ctx.Err() != nil {
			return nil, err
		}

		delay := s.backoff(attempt)
		if retryAfter > delay {
			delay = min(retryAfter, s.retryMax)
		}
		s.logger.Debug("retrying", "method", params.Get("method"), "attempt", attempt+1, "delay", delay, "err", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *LastFMService) backoff(attempt int) time.Duration {
	d := s.retryBase << attempt
	if d <= 0 || d > s.retryMax {
		return s.retryMax
	}
	return d
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return errors.Is(err, shared.ErrTransient)
}

func (s *LastFMService) doRequest(ctx context.Context, params url.Values) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "splitify")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading body: %v", shared.ErrTransient, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, 0, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if code := lastFMErrorCode(body); code == lastFMInvalidParameters {
			return nil, 0, nil
		}
		return nil, retryAfter(resp.Header.Get("Retry-After")), &APIError{Service: "Last.fm", Status: resp.StatusCode, Body: truncate(body)}
	}

	switch lastFMErrorCode(body) {
	case 0:
		return body, 0, nil
	case lastFMInvalidParameters:
		return nil, 0, nil
	case lastFMRateLimitExceeded:
		return nil, 0, &APIError{Service: "Last.fm", Status: http.StatusTooManyRequests, Body: truncate(body)}
	case lastFMServiceOffline, lastFMTemporaryError, lastFMOperationFailed:
		return nil, 0, &APIError{Service: "Last.fm", Status: http.StatusServiceUnavailable, Body: truncate(body)}
	default:
		return nil, 0, &APIError{Service: "Last.fm", Status: http.StatusBadRequest, Body: truncate(body)}
	}
}

func lastFMErrorCode(body []byte) int {
	var e struct {
		Error int `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return 0
	}
	return e.Error
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
