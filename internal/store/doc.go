// Package store persists the gateway's compilation audit log using SQLite.
//
// Every compile and vars request is recorded as a Compilation row: the
// route, the requested format, the response status, the number of bytes
// sent, how long the request took and, when bearer auth is enabled, the
// token subject. The log backs the /api/stats endpoint.
//
// SQLiteStore uses modernc.org/sqlite (pure Go, no cgo) in WAL mode. The
// schema is created on open and migrations are applied idempotently.
// MockStore is an in-memory implementation for tests.
package store
