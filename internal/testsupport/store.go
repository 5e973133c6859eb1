package testsupport

import (
	"context"
	"testing"

	"pixelmill/internal/config"
	"pixelmill/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedBatch creates a batch with the given item total for tests.
func SeedBatch(t testing.TB, st *store.Store, totalItems int) *store.Batch {
	t.Helper()

	batch, err := st.CreateBatch(context.Background(), totalItems)
	if err != nil {
		t.Fatalf("store.CreateBatch: %v", err)
	}
	return batch
}

// SeedItem creates a pending item in the given batch for tests.
func SeedItem(t testing.TB, st *store.Store, batchID, serial string, sourceURLs []string) *store.Item {
	t.Helper()

	item, err := st.CreateItem(context.Background(), batchID, serial, "Product "+serial, sourceURLs)
	if err != nil {
		t.Fatalf("store.CreateItem: %v", err)
	}
	return item
}
