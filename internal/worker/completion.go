package worker

import (
	"context"
	"fmt"
	"time"

	"pixelmill/internal/logging"
	"pixelmill/internal/notifications"
	"pixelmill/internal/store"
)

// onItemFinished records an item reaching a terminal state and, when the item
// was the last one outstanding, transitions the batch and fires the completion
// notification. The conditional update in CompleteBatch guarantees only one
// caller observes the transition, so the notification fires at most once per
// batch no matter how many items finish concurrently.
func (p *Processor) onItemFinished(ctx context.Context, batchID string) error {
	logger := logging.WithContext(ctx, p.logger)

	if _, err := p.store.IncrementProcessed(ctx, batchID); err != nil {
		p.failBatch(ctx, batchID, fmt.Sprintf("increment processed count: %v", err))
		return fmt.Errorf("increment processed count for batch %s: %w", batchID, err)
	}

	batch, err := p.store.GetBatch(ctx, batchID)
	if err != nil {
		p.failBatch(ctx, batchID, fmt.Sprintf("reload batch: %v", err))
		return fmt.Errorf("reload batch %s: %w", batchID, err)
	}
	if batch == nil {
		return fmt.Errorf("batch %s disappeared during completion check", batchID)
	}
	if batch.TotalItems == 0 || batch.ProcessedItems < batch.TotalItems {
		return nil
	}

	completed, err := p.store.CompleteBatch(ctx, batchID)
	if err != nil {
		p.failBatch(ctx, batchID, fmt.Sprintf("complete batch: %v", err))
		return fmt.Errorf("complete batch %s: %w", batchID, err)
	}
	if !completed {
		// Another item's evaluation won the transition.
		return nil
	}

	logger.Info("batch completed",
		logging.String(logging.FieldEventType, "batch_completed"),
		logging.Int("total_items", batch.TotalItems),
	)

	summary := notifications.BatchSummary{
		BatchID:        batch.ID,
		Status:         string(store.StatusCompleted),
		TotalItems:     batch.TotalItems,
		ProcessedItems: batch.ProcessedItems,
		Timestamp:      time.Now().UTC(),
	}
	if err := p.notifier.NotifyBatchCompleted(ctx, summary); err != nil {
		// Notification delivery never affects batch state.
		logger.Error("completion notification failed", logging.Error(err))
	}
	return nil
}

func (p *Processor) failBatch(ctx context.Context, batchID, reason string) {
	logger := logging.WithContext(ctx, p.logger)
	logger.Error("batch evaluation fault", logging.String("reason", reason))
	if err := p.store.FailBatch(ctx, batchID); err != nil {
		logger.Error("failed to mark batch failed", logging.Error(err))
	}
}
