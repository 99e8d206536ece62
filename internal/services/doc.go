// Package services defines the collaborators the enrichment pipeline talks to and implements them for Spotify and Last.fm.
//
// # Service Interface
//
// [Service] covers everything splitify needs from Spotify: playlist metadata, paged playlist items,
// batched artist genres and playlist creation. [OAuthService] extends it with the authorization code flow.
//
// The enrichment and loading code depend on the narrow interfaces instead:
//   - [PageSource] : paged playlist items for the streaming loader
//   - [ArtistGenreSource] : curated artist genres, one batch of up to 50 IDs per call
//   - [TagSource] : crowd-sourced track and artist tags
//
// # Spotify Implementation
//
// [SpotifyService] wraps the zmb3 Web API client over an [oauth2] HTTP client, so expired tokens are refreshed transparently
// and 429 responses are retried after the server's Retry-After delay.
//
// # Last.fm Implementation
//
// [LastFMService] calls track.getTopTags and artist.getTopTags directly. Transient failures (429, 502, 503, network errors)
// are retried with a doubling backoff. A missing track or artist is an empty result rather than an error.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called, or the token was rejected
//   - [shared.ErrAuthFailed] : the token could not be refreshed
//   - [shared.ErrPlaylistNotFound] : Playlist ID not found
//   - [shared.ErrRateLimited], [shared.ErrTransient] : wrapped by [APIError] for retryable statuses
//   - [shared.ErrMalformedResponse] : a payload could not be decoded
package services
