package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/splitify/internal/shared"
	"golang.org/x/oauth2"
)

type fakeAuthorizer struct {
	mu       sync.Mutex
	err      error
	codes    []string
	verifier bool
	authURL  string
}

func (f *fakeAuthorizer) GetAuthURL(state string, opts ...oauth2.AuthCodeOption) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authURL = "https://accounts.example/authorize?state=" + url.QueryEscape(state)
	return f.authURL
}

func (f *fakeAuthorizer) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	f.verifier = len(opts) > 0
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh"}, nil
}

func TestOAuthHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		exchange   error
		wantStatus int
		wantToken  string
		wantErr    bool
	}{
		{name: "success", query: "state=abc&code=xyz", wantStatus: http.StatusOK, wantToken: "access-xyz"},
		{name: "state mismatch", query: "state=nope&code=xyz", wantStatus: http.StatusBadRequest, wantErr: true},
		{name: "user denied", query: "state=abc&error=access_denied", wantStatus: http.StatusBadRequest, wantErr: true},
		{name: "exchange fails", query: "state=abc&code=xyz", exchange: errors.New("bad code"), wantStatus: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuthorizer{err: tt.exchange}
			h := NewOAuthHandler(auth, "abc", "verifier")

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			select {
			case res := <-h.Result():
				if (res.Error() != nil) != tt.wantErr {
					t.Errorf("expected error %v, got %v", tt.wantErr, res.Error())
				}
				if !tt.wantErr && res.Token.AccessToken != tt.wantToken {
					t.Errorf("expected token %q, got %q", tt.wantToken, res.Token.AccessToken)
				}
			case <-time.After(time.Second):
				t.Fatal("no result sent")
			}
		})
	}

	t.Run("sends the PKCE verifier", func(t *testing.T) {
		auth := &fakeAuthorizer{}
		h := NewOAuthHandler(auth, "abc", "verifier")
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state=abc&code=1", nil))
		if !auth.verifier {
			t.Error("expected a verifier option on exchange")
		}
	})

	t.Run("only the first callback counts", func(t *testing.T) {
		auth := &fakeAuthorizer{}
		h := NewOAuthHandler(auth, "abc", "")
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state=abc&code=1", nil))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=abc&code=2", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for a replay, got %d", rec.Code)
		}
		if len(auth.codes) != 1 {
			t.Errorf("expected one exchange, got %d", len(auth.codes))
		}
		if auth.verifier {
			t.Error("expected no verifier option")
		}
	})
}

func TestBasicRouter(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	r := NewBasicRouter()
	r.Use(mw("outer"), mw("inner"))
	r.Handle("post", "/items", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/items", nil))
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("expected outer,inner, got %v", order)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)
	logger.SetLevel(log.DebugLevel)

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?code=secret", nil))

	out := buf.String()
	if !strings.Contains(out, "request failed") || !strings.Contains(out, "418") {
		t.Errorf("expected a failed request entry, got %q", out)
	}
	if strings.Contains(out, "secret") {
		t.Errorf("expected the query string to be left out, got %q", out)
	}
}

func TestAuthorize(t *testing.T) {
	t.Run("completes when the browser returns", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		auth := &fakeAuthorizer{}

		open := func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			state := u.Query().Get("state")
			go func() {
				resp, err := http.Get("http://" + ln.Addr().String() + "/callback?code=c1&state=" + url.QueryEscape(state))
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		}

		tok, err := Authorize(context.Background(), auth, AuthorizeOptions{Listener: ln, Open: open, Timeout: 5 * time.Second})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.AccessToken != "access-c1" {
			t.Errorf("expected access-c1, got %q", tok.AccessToken)
		}
		if !auth.verifier {
			t.Error("expected the exchange to carry the PKCE verifier")
		}
	})

	t.Run("times out", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		_, err = Authorize(context.Background(), &fakeAuthorizer{}, AuthorizeOptions{Listener: ln, Timeout: 20 * time.Millisecond})
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := Authorize(ctx, &fakeAuthorizer{}, AuthorizeOptions{Listener: ln}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
