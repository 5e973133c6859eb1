package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pixelmill/internal/config"
	"pixelmill/internal/fetch"
	"pixelmill/internal/logging"
	"pixelmill/internal/notifications"
	"pixelmill/internal/store"
	"pixelmill/internal/testsupport"
	"pixelmill/internal/transform"
)

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []notifications.BatchSummary
	err       error
}

func (n *recordingNotifier) NotifyBatchCompleted(_ context.Context, summary notifications.BatchSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return n.err
}

func (n *recordingNotifier) calls() []notifications.BatchSummary {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.BatchSummary(nil), n.summaries...)
}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	jpeg := testsupport.JPEGBytes(t, 1200, 400)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpeg)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestProcessor(t *testing.T, cfg *config.Config, st *store.Store, notifier notifications.Service) *Processor {
	t.Helper()
	logger := logging.NewNop()
	fetcher := fetch.NewFetcher(cfg.FetchTimeoutDuration(), logger)
	transformer := transform.NewTransformer(cfg, logger)
	return NewProcessor(cfg, st, fetcher, transformer, notifier, logger)
}

func TestProcessItemCompletesWithOutputs(t *testing.T) {
	server := newImageServer(t)
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	processor := newTestProcessor(t, cfg, st, notifier)

	batch := testsupport.SeedBatch(t, st, 1)
	item := testsupport.SeedItem(t, st, batch.ID, "1", []string{
		server.URL + "/a.jpg",
		server.URL + "/b.jpg",
	})

	if err := processor.ProcessItem(context.Background(), item); err != nil {
		t.Fatalf("ProcessItem: %v", err)
	}

	stored, err := st.GetItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if stored.Status != store.StatusCompleted {
		t.Fatalf("expected completed item, got %s", stored.Status)
	}
	if len(stored.OutputURLs) != 2 {
		t.Fatalf("expected 2 output URLs, got %d", len(stored.OutputURLs))
	}
	for _, url := range stored.OutputURLs {
		if !strings.HasPrefix(url, cfg.Server.BaseURL+"/processed/") {
			t.Fatalf("output URL %q not under public base", url)
		}
	}
	if stored.ErrorMessage != "" {
		t.Fatalf("unexpected error message %q", stored.ErrorMessage)
	}
}

func TestProcessItemPartialFailureStillCompletes(t *testing.T) {
	server := newImageServer(t)
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	processor := newTestProcessor(t, cfg, st, notifier)

	badURL := server.URL + "/missing/a.jpg"
	batch := testsupport.SeedBatch(t, st, 1)
	item := testsupport.SeedItem(t, st, batch.ID, "1", []string{
		server.URL + "/good.jpg",
		badURL,
	})

	if err := processor.ProcessItem(context.Background(), item); err != nil {
		t.Fatalf("ProcessItem: %v", err)
	}

	stored, err := st.GetItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if stored.Status != store.StatusCompleted {
		t.Fatalf("expected completed item, got %s", stored.Status)
	}
	if len(stored.OutputURLs) != 1 {
		t.Fatalf("expected 1 output URL, got %d", len(stored.OutputURLs))
	}
	if !strings.Contains(stored.ErrorMessage, badURL) {
		t.Fatalf("error message %q should name the failed URL", stored.ErrorMessage)
	}
}

func TestProcessItemAllSourcesFailedMarksFailed(t *testing.T) {
	server := newImageServer(t)
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	processor := newTestProcessor(t, cfg, st, notifier)

	batch := testsupport.SeedBatch(t, st, 1)
	item := testsupport.SeedItem(t, st, batch.ID, "1", []string{
		server.URL + "/missing/a.jpg",
		server.URL + "/missing/b.jpg",
	})

	if err := processor.ProcessItem(context.Background(), item); err != nil {
		t.Fatalf("ProcessItem: %v", err)
	}

	stored, err := st.GetItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if stored.Status != store.StatusFailed {
		t.Fatalf("expected failed item, got %s", stored.Status)
	}
	if len(stored.OutputURLs) != 0 {
		t.Fatalf("expected no output URLs, got %d", len(stored.OutputURLs))
	}

	// A failed item still counts toward batch completion.
	storedBatch, err := st.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if storedBatch.Status != store.StatusCompleted {
		t.Fatalf("expected completed batch, got %s", storedBatch.Status)
	}
	if storedBatch.ProcessedItems != 1 {
		t.Fatalf("expected processed count 1, got %d", storedBatch.ProcessedItems)
	}
}

func TestProcessItemSkipsNonPendingItems(t *testing.T) {
	server := newImageServer(t)
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	processor := newTestProcessor(t, cfg, st, notifier)

	batch := testsupport.SeedBatch(t, st, 2)
	item := testsupport.SeedItem(t, st, batch.ID, "1", []string{server.URL + "/a.jpg"})

	claimed, err := st.ClaimItem(context.Background(), item.ID)
	if err != nil || !claimed {
		t.Fatalf("ClaimItem: claimed=%v err=%v", claimed, err)
	}

	if err := processor.ProcessItem(context.Background(), item); err != nil {
		t.Fatalf("ProcessItem: %v", err)
	}

	stored, err := st.GetItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if stored.Status != store.StatusProcessing {
		t.Fatalf("expected item to remain processing, got %s", stored.Status)
	}
	if len(notifier.calls()) != 0 {
		t.Fatalf("no notification expected for a skipped item")
	}
}

func TestBatchCompletionNotifiesOnce(t *testing.T) {
	server := newImageServer(t)
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	processor := newTestProcessor(t, cfg, st, notifier)

	batch := testsupport.SeedBatch(t, st, 3)
	items := []*store.Item{
		testsupport.SeedItem(t, st, batch.ID, "1", []string{server.URL + "/a.jpg"}),
		testsupport.SeedItem(t, st, batch.ID, "2", []string{server.URL + "/b.jpg"}),
		testsupport.SeedItem(t, st, batch.ID, "3", []string{server.URL + "/missing/c.jpg"}),
	}

	for _, item := range items {
		if err := processor.ProcessItem(context.Background(), item); err != nil {
			t.Fatalf("ProcessItem(%d): %v", item.ID, err)
		}
	}

	calls := notifier.calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(calls))
	}
	summary := calls[0]
	if summary.BatchID != batch.ID {
		t.Fatalf("notification batch ID = %q, want %q", summary.BatchID, batch.ID)
	}
	if summary.Status != "completed" {
		t.Fatalf("notification status = %q", summary.Status)
	}
	if summary.TotalItems != 3 || summary.ProcessedItems != 3 {
		t.Fatalf("notification counts = %d/%d, want 3/3", summary.ProcessedItems, summary.TotalItems)
	}
	if summary.Timestamp.IsZero() {
		t.Fatalf("notification timestamp not set")
	}

	storedBatch, err := st.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if storedBatch.Status != store.StatusCompleted {
		t.Fatalf("expected completed batch, got %s", storedBatch.Status)
	}
}

func TestBatchStaysProcessingUntilAllItemsFinish(t *testing.T) {
	server := newImageServer(t)
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	processor := newTestProcessor(t, cfg, st, notifier)

	batch := testsupport.SeedBatch(t, st, 2)
	first := testsupport.SeedItem(t, st, batch.ID, "1", []string{server.URL + "/a.jpg"})
	testsupport.SeedItem(t, st, batch.ID, "2", []string{server.URL + "/b.jpg"})

	if err := processor.ProcessItem(context.Background(), first); err != nil {
		t.Fatalf("ProcessItem: %v", err)
	}

	storedBatch, err := st.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if storedBatch.Status != store.StatusProcessing {
		t.Fatalf("expected processing batch, got %s", storedBatch.Status)
	}
	if storedBatch.ProcessedItems != 1 {
		t.Fatalf("expected processed count 1, got %d", storedBatch.ProcessedItems)
	}
	if len(notifier.calls()) != 0 {
		t.Fatalf("no notification expected before the batch completes")
	}
}

func TestNotificationFailureDoesNotAffectBatchState(t *testing.T) {
	server := newImageServer(t)
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{err: context.DeadlineExceeded}
	processor := newTestProcessor(t, cfg, st, notifier)

	batch := testsupport.SeedBatch(t, st, 1)
	item := testsupport.SeedItem(t, st, batch.ID, "1", []string{server.URL + "/a.jpg"})

	if err := processor.ProcessItem(context.Background(), item); err != nil {
		t.Fatalf("ProcessItem: %v", err)
	}

	storedBatch, err := st.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if storedBatch.Status != store.StatusCompleted {
		t.Fatalf("expected completed batch despite notification failure, got %s", storedBatch.Status)
	}
}

func TestConcurrentItemsNotifyExactlyOnce(t *testing.T) {
	server := newImageServer(t)
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	processor := newTestProcessor(t, cfg, st, notifier)

	const total = 6
	batch := testsupport.SeedBatch(t, st, total)
	items := make([]*store.Item, 0, total)
	for i := 0; i < total; i++ {
		items = append(items, testsupport.SeedItem(t, st, batch.ID, string(rune('1'+i)), []string{server.URL + "/a.jpg"}))
	}

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(it *store.Item) {
			defer wg.Done()
			processor.ProcessItem(context.Background(), it)
		}(item)
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for {
		storedBatch, err := st.GetBatch(context.Background(), batch.ID)
		if err != nil {
			t.Fatalf("GetBatch: %v", err)
		}
		if storedBatch.Status == store.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch never completed: status=%s processed=%d", storedBatch.Status, storedBatch.ProcessedItems)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if calls := notifier.calls(); len(calls) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(calls))
	}
}
