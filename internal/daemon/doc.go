// Package daemon assembles the store, HTTP server, and background worker
// into a single-instance service guarded by a file lock.
package daemon
