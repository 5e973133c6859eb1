package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"pixelmill/internal/store"
	"pixelmill/internal/testsupport"
)

func TestCreateBatchAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	batch, err := st.CreateBatch(ctx, 3)
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if batch.ID == "" {
		t.Fatal("expected batch ID to be assigned")
	}
	if batch.Status != store.StatusPending {
		t.Fatalf("expected pending status, got %s", batch.Status)
	}
	if batch.TotalItems != 3 || batch.ProcessedItems != 0 {
		t.Fatalf("unexpected counters: %+v", batch)
	}

	fetched, err := st.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if fetched == nil || fetched.ID != batch.ID {
		t.Fatalf("unexpected fetched batch: %#v", fetched)
	}

	missing, err := st.GetBatch(ctx, "no-such-batch")
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing batch, got %#v", missing)
	}
}

func TestListBatchesFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	pending := testsupport.SeedBatch(t, st, 1)
	failed := testsupport.SeedBatch(t, st, 1)
	if err := st.FailBatch(ctx, failed.ID); err != nil {
		t.Fatalf("FailBatch failed: %v", err)
	}

	all, err := st.ListBatches(ctx)
	if err != nil {
		t.Fatalf("ListBatches failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 batches unfiltered, got %d", len(all))
	}

	onlyFailed, err := st.ListBatches(ctx, store.StatusFailed)
	if err != nil {
		t.Fatalf("ListBatches(failed) failed: %v", err)
	}
	if len(onlyFailed) != 1 || onlyFailed[0].ID != failed.ID {
		t.Fatalf("unexpected filtered batches: %#v", onlyFailed)
	}

	both, err := st.ListBatches(ctx, store.StatusPending, store.StatusFailed)
	if err != nil {
		t.Fatalf("ListBatches(pending,failed) failed: %v", err)
	}
	if len(both) != 2 {
		t.Fatalf("expected 2 batches across statuses, got %d", len(both))
	}

	onlyPending, err := st.ListBatches(ctx, store.StatusPending)
	if err != nil {
		t.Fatalf("ListBatches(pending) failed: %v", err)
	}
	if len(onlyPending) != 1 || onlyPending[0].ID != pending.ID {
		t.Fatalf("unexpected pending batches: %#v", onlyPending)
	}

	none, err := st.ListBatches(ctx, store.StatusCompleted)
	if err != nil {
		t.Fatalf("ListBatches(completed) failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no completed batches, got %d", len(none))
	}
}

func TestCreateItemRoundTripsURLs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	batch := testsupport.SeedBatch(t, st, 1)
	sources := []string{"https://example.com/a.jpg", "https://example.com/b.jpg"}
	item := testsupport.SeedItem(t, st, batch.ID, "1", sources)

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if len(fetched.SourceURLs) != 2 || fetched.SourceURLs[0] != sources[0] {
		t.Fatalf("unexpected source urls: %v", fetched.SourceURLs)
	}
	if len(fetched.OutputURLs) != 0 {
		t.Fatalf("expected no output urls, got %v", fetched.OutputURLs)
	}
	if fetched.Status != store.StatusPending {
		t.Fatalf("expected pending, got %s", fetched.Status)
	}
}

func TestClaimItemIsConditional(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	batch := testsupport.SeedBatch(t, st, 1)
	item := testsupport.SeedItem(t, st, batch.ID, "1", []string{"https://example.com/a.jpg"})

	claimed, err := st.ClaimItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ClaimItem failed: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to succeed")
	}

	again, err := st.ClaimItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ClaimItem failed: %v", err)
	}
	if again {
		t.Fatal("expected second claim to be a no-op")
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Status != store.StatusProcessing {
		t.Fatalf("expected processing, got %s", fetched.Status)
	}
}

func TestUpdateItemPersistsOutcome(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	batch := testsupport.SeedBatch(t, st, 1)
	item := testsupport.SeedItem(t, st, batch.ID, "1", []string{"https://example.com/a.jpg", "https://example.com/b.jpg"})

	item.Status = store.StatusCompleted
	item.OutputURLs = []string{"http://127.0.0.1:7520/processed/x.jpg"}
	item.ErrorMessage = "failed to process images: https://example.com/b.jpg"
	if err := st.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Status != store.StatusCompleted {
		t.Fatalf("expected completed, got %s", fetched.Status)
	}
	if len(fetched.OutputURLs) != 1 {
		t.Fatalf("unexpected output urls: %v", fetched.OutputURLs)
	}
	if fetched.ErrorMessage == "" {
		t.Fatal("expected error message to survive")
	}
	if len(fetched.OutputURLs) > len(fetched.SourceURLs) {
		t.Fatal("output urls must never exceed source urls")
	}
}

func TestItemsByStatusAndBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a := testsupport.SeedBatch(t, st, 2)
	b := testsupport.SeedBatch(t, st, 1)
	first := testsupport.SeedItem(t, st, a.ID, "1", []string{"https://example.com/1.jpg"})
	testsupport.SeedItem(t, st, a.ID, "2", []string{"https://example.com/2.jpg"})
	testsupport.SeedItem(t, st, b.ID, "1", []string{"https://example.com/3.jpg"})

	pending, err := st.ItemsByStatus(ctx, store.StatusPending)
	if err != nil {
		t.Fatalf("ItemsByStatus failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending items, got %d", len(pending))
	}
	if pending[0].ID != first.ID {
		t.Fatalf("expected ingestion order, got first id %d", pending[0].ID)
	}

	batchItems, err := st.ItemsByBatch(ctx, a.ID)
	if err != nil {
		t.Fatalf("ItemsByBatch failed: %v", err)
	}
	if len(batchItems) != 2 {
		t.Fatalf("expected 2 items for batch, got %d", len(batchItems))
	}
}

func TestIncrementProcessedNeverExceedsTotal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	batch := testsupport.SeedBatch(t, st, 2)

	for i := 0; i < 2; i++ {
		ok, err := st.IncrementProcessed(ctx, batch.ID)
		if err != nil {
			t.Fatalf("IncrementProcessed failed: %v", err)
		}
		if !ok {
			t.Fatalf("expected increment %d to apply", i+1)
		}
	}

	ok, err := st.IncrementProcessed(ctx, batch.ID)
	if err != nil {
		t.Fatalf("IncrementProcessed failed: %v", err)
	}
	if ok {
		t.Fatal("expected increment past total to be rejected")
	}

	fetched, err := st.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if fetched.ProcessedItems != 2 {
		t.Fatalf("expected processed=2, got %d", fetched.ProcessedItems)
	}
}

func TestIncrementProcessedConcurrent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	const total = 8
	batch := testsupport.SeedBatch(t, st, total)

	var wg sync.WaitGroup
	errs := make(chan error, total)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.IncrementProcessed(ctx, batch.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("IncrementProcessed failed: %v", err)
	}

	fetched, err := st.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if fetched.ProcessedItems != total {
		t.Fatalf("expected processed=%d with no lost updates, got %d", total, fetched.ProcessedItems)
	}
}

func TestCompleteBatchObservedExactlyOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	batch := testsupport.SeedBatch(t, st, 1)
	if _, err := st.IncrementProcessed(ctx, batch.ID); err != nil {
		t.Fatalf("IncrementProcessed failed: %v", err)
	}

	first, err := st.CompleteBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("CompleteBatch failed: %v", err)
	}
	if !first {
		t.Fatal("expected first completion to be observed")
	}

	second, err := st.CompleteBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("CompleteBatch failed: %v", err)
	}
	if second {
		t.Fatal("expected duplicate completion to be a no-op")
	}
}

func TestCompleteBatchRequiresAllItemsAndNonEmptyBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	partial := testsupport.SeedBatch(t, st, 2)
	if _, err := st.IncrementProcessed(ctx, partial.ID); err != nil {
		t.Fatalf("IncrementProcessed failed: %v", err)
	}
	done, err := st.CompleteBatch(ctx, partial.ID)
	if err != nil {
		t.Fatalf("CompleteBatch failed: %v", err)
	}
	if done {
		t.Fatal("batch with unprocessed items must not complete")
	}

	empty, err := st.CreateBatch(ctx, 0)
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	done, err = st.CompleteBatch(ctx, empty.ID)
	if err != nil {
		t.Fatalf("CompleteBatch failed: %v", err)
	}
	if done {
		t.Fatal("empty batch must not complete")
	}
}

func TestFailBatchIsTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	batch := testsupport.SeedBatch(t, st, 1)
	if err := st.FailBatch(ctx, batch.ID); err != nil {
		t.Fatalf("FailBatch failed: %v", err)
	}

	if _, err := st.IncrementProcessed(ctx, batch.ID); err != nil {
		t.Fatalf("IncrementProcessed failed: %v", err)
	}
	done, err := st.CompleteBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("CompleteBatch failed: %v", err)
	}
	if done {
		t.Fatal("failed batch must not be revived to completed")
	}

	fetched, err := st.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if fetched.Status != store.StatusFailed {
		t.Fatalf("expected failed, got %s", fetched.Status)
	}
}

func TestHealthAggregatesItemCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	batch := testsupport.SeedBatch(t, st, 3)
	for i := 0; i < 3; i++ {
		testsupport.SeedItem(t, st, batch.ID, fmt.Sprintf("%d", i+1), []string{"https://example.com/img.jpg"})
	}
	items, err := st.ItemsByBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("ItemsByBatch failed: %v", err)
	}
	items[0].Status = store.StatusCompleted
	if err := st.UpdateItem(ctx, items[0]); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}
	if err := st.MarkItemFailed(ctx, items[1].ID, "boom"); err != nil {
		t.Fatalf("MarkItemFailed failed: %v", err)
	}

	health, err := st.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.Pending != 1 || health.Completed != 1 || health.Failed != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := store.ParseStatus(" Pending "); !ok || status != store.StatusPending {
		t.Fatalf("expected pending, got %q ok=%v", status, ok)
	}
	if _, ok := store.ParseStatus("bogus"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if !store.StatusCompleted.IsTerminal() || store.StatusProcessing.IsTerminal() {
		t.Fatal("terminal classification incorrect")
	}
}
