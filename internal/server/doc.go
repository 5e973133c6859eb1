// Package server implements the HTTP API: CSV batch uploads, batch status
// queries with CSV export, static serving of processed images, a local
// webhook receiver, and a health endpoint.
package server
