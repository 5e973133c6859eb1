package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pixelmill/internal/config"
	"pixelmill/internal/logging"
	"pixelmill/internal/notifications"
	"pixelmill/internal/store"
	"pixelmill/internal/transform"
)

// ImageFetcher retrieves raw image bytes from a source URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ImageTransformer converts raw bytes into a stored output file and returns
// its path.
type ImageTransformer interface {
	Transform(data []byte, filename string) (string, error)
}

// Processor drives a single item through fetch, transform, and persistence,
// then evaluates whether the item's batch has completed.
type Processor struct {
	cfg         *config.Config
	store       *store.Store
	fetcher     ImageFetcher
	transformer ImageTransformer
	notifier    notifications.Service
	logger      *slog.Logger
}

// NewProcessor wires the processing pipeline for one worker.
func NewProcessor(cfg *config.Config, st *store.Store, fetcher ImageFetcher, transformer ImageTransformer, notifier notifications.Service, logger *slog.Logger) *Processor {
	return &Processor{
		cfg:         cfg,
		store:       st,
		fetcher:     fetcher,
		transformer: transformer,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(logger, "processor"),
	}
}

// ProcessItem runs one item to a terminal state. A source image that fails to
// fetch or transform is recorded and skipped; the item completes as long as at
// least one output was produced. Unexpected faults mark the item failed so the
// discovery loop can move on; they never propagate past this method's error
// return, which exists for logging only.
func (p *Processor) ProcessItem(ctx context.Context, item *store.Item) error {
	itemCtx := logging.WithBatchID(logging.WithItemID(ctx, item.ID), item.BatchID)
	logger := logging.WithContext(itemCtx, p.logger)

	claimed, err := p.store.ClaimItem(itemCtx, item.ID)
	if err != nil {
		logger.Error("failed to claim item", logging.Error(err))
		p.failItem(itemCtx, logger, item.ID, fmt.Sprintf("claim item: %v", err))
		return err
	}
	if !claimed {
		// Another pass already owns this item, or it is terminal.
		logger.Debug("item not pending, skipping")
		return nil
	}

	// Best effort; the batch state machine does not gate on this observation.
	if err := p.store.MarkBatchProcessing(itemCtx, item.BatchID); err != nil {
		logger.Warn("failed to mark batch processing", logging.Error(err))
	}

	logger.Info("item processing started",
		logging.String(logging.FieldEventType, "item_start"),
		logging.String("serial", item.SerialNumber),
		logging.Int("sources", len(item.SourceURLs)),
	)
	start := time.Now()

	outputs := make([]string, 0, len(item.SourceURLs))
	var failedURLs []string
	for i, url := range item.SourceURLs {
		data, err := p.fetcher.Fetch(itemCtx, url)
		if err != nil {
			logger.Warn("source image fetch failed",
				logging.String("url", url),
				logging.Error(err),
			)
			failedURLs = append(failedURLs, url)
			continue
		}

		name := transform.OutputName(item.BatchID, item.SerialNumber, i)
		if _, err := p.transformer.Transform(data, name); err != nil {
			logger.Warn("source image transform failed",
				logging.String("url", url),
				logging.Error(err),
			)
			failedURLs = append(failedURLs, url)
			continue
		}
		outputs = append(outputs, p.cfg.PublicImageURL(name))
	}

	item.OutputURLs = outputs
	if len(outputs) > 0 {
		item.Status = store.StatusCompleted
	} else {
		item.Status = store.StatusFailed
	}
	item.ErrorMessage = ""
	if len(failedURLs) > 0 {
		item.ErrorMessage = "failed to process images: " + strings.Join(failedURLs, ", ")
	}

	if err := p.store.UpdateItem(itemCtx, item); err != nil {
		logger.Error("failed to persist item outcome", logging.Error(err))
		p.failItem(itemCtx, logger, item.ID, fmt.Sprintf("persist outcome: %v", err))
		return err
	}

	logger.Info("item processing finished",
		logging.String(logging.FieldEventType, "item_finished"),
		logging.String("status", string(item.Status)),
		logging.Int("outputs", len(outputs)),
		logging.Int("failures", len(failedURLs)),
		logging.Duration("elapsed", time.Since(start)),
	)

	return p.onItemFinished(itemCtx, item.BatchID)
}

// failItem records a terminal failure without letting a second store error
// escape; at this point the loop only needs to keep moving.
func (p *Processor) failItem(ctx context.Context, logger *slog.Logger, id int64, message string) {
	if err := p.store.MarkItemFailed(ctx, id, message); err != nil {
		logger.Error("failed to mark item failed", logging.Error(err))
	}
}
