// Package store persists batches and items in SQLite and exposes the
// primitives the processing pipeline relies on for correctness.
//
// The Store manages database connections, schema initialization, and the
// conditional updates that give the pipeline its concurrency guarantees:
// ClaimItem makes rescans of in-flight items no-ops, IncrementProcessed is an
// atomic counter bump that can never exceed the item total, and CompleteBatch
// reports the completion transition to exactly one caller so the webhook
// fires at most once.
//
// Source and output URL lists are stored as JSON text columns. Schema changes
// bump the version in schema.go; users delete the database to adopt the new
// schema.
package store
