// Package ingest parses uploaded product CSV files into the records the
// upload handler turns into a batch and its pending items.
package ingest
