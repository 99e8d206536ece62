// Package models defines the domain entities shared by the splitify packages.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs representing external service data
//   - [Playlist] : Basic playlist metadata from Spotify
//   - [Track] : Song metadata with the artist IDs needed for genre lookups
//   - [Artist] : Artist reference attached to a track
//
// 2. Enrichment entities: genre data attached to tracks while a playlist is enriched
//   - [EnrichedTrack] : A track with its merged genres and per-source breakdown
//   - [TrackUpdate] : Immutable partial update emitted whenever a source resolves
//   - [PlaylistExport] : Playlist with its enriched track listing, used by the exporters
//
// Nothing here is persisted; every load starts from a clean slate.
package models
