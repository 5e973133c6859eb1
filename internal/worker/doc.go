// Package worker contains the background processing engine: a polling
// discovery loop that finds pending items, a processor that fetches and
// transforms each item's source images, and the batch completion evaluation
// that fires the webhook notification exactly once per batch.
package worker
