package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateBatch inserts a new pending batch with a fixed item total and returns it.
func (s *Store) CreateBatch(ctx context.Context, totalItems int) (*Batch, error) {
	if totalItems < 0 {
		return nil, errors.New("total items must not be negative")
	}
	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO batches (id, status, total_items, processed_items, created_at, updated_at)
         VALUES (?, ?, ?, 0, ?, ?)`,
		id,
		StatusPending,
		totalItems,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	return s.GetBatch(ctx, id)
}

// GetBatch fetches a batch by identifier. Returns nil when no batch matches.
func (s *Store) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

// ListBatches returns batches ordered by creation time, newest first,
// optionally restricted to the given statuses.
func (s *Store) ListBatches(ctx context.Context, statuses ...Status) ([]*Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// MarkBatchProcessing transitions a pending batch to processing. A batch
// already past pending is left untouched; this is a best-effort observation
// hook, not a gate.
func (s *Store) MarkBatchProcessing(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE batches SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusProcessing,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark batch processing: %w", err)
	}
	return nil
}

// IncrementProcessed atomically bumps a batch's processed counter by one.
// The increment is guarded so the counter can never exceed the item total;
// the return value reports whether a row was updated.
func (s *Store) IncrementProcessed(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE batches
         SET processed_items = processed_items + 1, updated_at = ?
         WHERE id = ? AND processed_items < total_items`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("increment processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// CompleteBatch transitions a batch to completed when every item has been
// processed. The update is conditional on the batch not already being in a
// terminal state, so exactly one caller observes the transition even when
// item completions race; callers use the return value to fire the completion
// webhook at most once.
func (s *Store) CompleteBatch(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE batches
         SET status = ?, updated_at = ?
         WHERE id = ?
           AND status NOT IN (?, ?)
           AND total_items > 0
           AND processed_items = total_items`,
		StatusCompleted,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("complete batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// FailBatch transitions a batch to failed unless it already reached a terminal
// state. Failed is terminal; later item completions cannot revive the batch.
func (s *Store) FailBatch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE batches SET status = ?, updated_at = ? WHERE id = ? AND status NOT IN (?, ?)`,
		StatusFailed,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("fail batch: %w", err)
	}
	return nil
}

const batchColumns = "id, status, total_items, processed_items, created_at, updated_at"

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*Batch, error) {
	var (
		id         string
		statusStr  string
		total      int
		processed  int
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(&id, &statusStr, &total, &processed, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:             id,
		Status:         Status(statusStr),
		TotalItems:     total,
		ProcessedItems: processed,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		batch.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		batch.UpdatedAt = updated
	}
	return batch, nil
}
