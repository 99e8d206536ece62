package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/splitify/internal/shared"
	"golang.org/x/oauth2"
)

// Authorizer is the part of an OAuth service the login flow needs.
type Authorizer interface {
	Exchanger
	GetAuthURL(state string, opts ...oauth2.AuthCodeOption) string
}

// AuthorizeOptions configures [Authorize].
type AuthorizeOptions struct {
	Addr     string       // Listen address for the callback, e.g. "127.0.0.1:3000".
	Listener net.Listener // Used instead of Addr when set.
	Timeout  time.Duration
	// Open presents the authorization URL to the user, typically by launching a browser.
	Open   func(authURL string) error
	Logger *log.Logger
}

// Authorize runs the authorization code flow with PKCE: it serves the callback, hands the consent URL to
// opts.Open and waits for the browser to come back with a code.
func Authorize(ctx context.Context, auth Authorizer, opts AuthorizeOptions) (*oauth2.Token, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}

	ln := opts.Listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", opts.Addr); err != nil {
			return nil, fmt.Errorf("failed to start callback server on %s: %w", opts.Addr, err)
		}
	}

	state := shared.GenerateState()
	verifier := oauth2.GenerateVerifier()
	handler := NewOAuthHandler(auth, state, verifier)

	router := NewBasicRouter()
	router.Use(Logging(shared.WithLogger(logger, "component", "callback")))
	router.Handler(handler)

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	authURL := auth.GetAuthURL(state, oauth2.S256ChallengeOption(verifier))
	logger.Info("waiting for authorization", "addr", ln.Addr().String())
	if opts.Open != nil {
		if err := opts.Open(authURL); err != nil {
			logger.Warn("could not open browser", "err", err)
		}
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	select {
	case res := <-handler.Result():
		if err := res.Error(); err != nil {
			return nil, err
		}
		return res.Token, nil
	case err := <-serveErr:
		return nil, fmt.Errorf("callback server failed: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("%w: no callback within %v", shared.ErrTimeout, opts.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
