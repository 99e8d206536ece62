// Package server runs the short-lived HTTP server that receives the Spotify OAuth callback.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [Logging] records each request without its query string.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback. It validates the state parameter (CSRF
// protection), exchanges the code for tokens using the PKCE verifier, and sends the result through a channel.
// It only processes one callback to prevent replay attacks.
//
// # Login Flow
//
// [Authorize] ties it together: when the user runs `splitify auth` a temporary server listens on the configured
// address (127.0.0.1:3000 by default), the browser is sent to Spotify's consent page, and the server shuts down
// after the callback delivers a token.
package server
