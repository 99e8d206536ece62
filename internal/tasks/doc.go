// Package tasks runs the long-lived operations around a playlist: loading it with live enrichment, then writing the
// genre-filtered result back to Spotify or to files.
//
// # Loading
//
// A [Session] owns one [enrich.Orchestrator] and one [store.Store]. [Session.Load] fetches the playlist metadata,
// streams pages through a [Loader] and hands every page to the orchestrator as soon as it arrives, so enrichment
// overlaps with paging. Orchestrator callbacks and loader events travel over a channel to a single pump goroutine that
// dispatches them to the store in order. A failed metadata or page request is fatal and leaves the store empty with the
// error recorded; [Session.Cancel] stops the load cooperatively.
//
// # Writing
//
// [PlaylistEngine.Split] creates a playlist from a filtered selection, adding tracks in batches.
// [PlaylistEngine.BulkExport] writes one file export per genre with a worker pool and a manifest.
//
// # Progress Reporting
//
// Split and BulkExport send [ProgressUpdate] values on an optional channel. Updates use select with default to prevent
// blocking.
package tasks
