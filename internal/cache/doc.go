// Package cache materializes the gateway's bundled documents on disk.
//
// The how-it-works walkthrough and the compiled example are derived from
// the embedded bundle the first time they are requested and kept in the
// cache directory for the rest of the process lifetime. Files are written
// under a temporary name and renamed into place, so a reader never sees a
// partially written document. Concurrent first requests for the same
// document share a single derivation.
//
// Warm clears the cache directory at startup so every process derives its
// documents afresh.
package cache
