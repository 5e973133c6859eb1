package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateItem inserts a new pending item for a batch and returns it.
func (s *Store) CreateItem(ctx context.Context, batchID, serialNumber, productName string, sourceURLs []string) (*Item, error) {
	if batchID == "" {
		return nil, errors.New("batch id is required")
	}
	sources, err := marshalURLs(sourceURLs)
	if err != nil {
		return nil, err
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO items (batch_id, serial_number, product_name, source_urls, output_urls, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, '[]', ?, ?, ?)`,
		batchID,
		serialNumber,
		nullableString(productName),
		sources,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetItem(ctx, id)
}

// GetItem fetches an item by identifier. Returns nil when no item matches.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ItemsByStatus returns items matching a status ordered by creation time.
func (s *Store) ItemsByStatus(ctx context.Context, status Status) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE status = ? ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ItemsByBatch returns all items belonging to a batch in ingestion order.
func (s *Store) ItemsByBatch(ctx context.Context, batchID string) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query by batch: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ClaimItem transitions an item from pending to processing. The update is
// conditional so a rescan of an item already claimed, mid-flight, or terminal
// is a no-op; the return value reports whether this caller won the claim.
func (s *Store) ClaimItem(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusProcessing,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdateItem persists changes to an existing item.
func (s *Store) UpdateItem(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	outputs, err := marshalURLs(item.OutputURLs)
	if err != nil {
		return err
	}
	item.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE items
         SET serial_number = ?, product_name = ?, output_urls = ?, status = ?,
             error_message = ?, updated_at = ?
         WHERE id = ?`,
		item.SerialNumber,
		nullableString(item.ProductName),
		outputs,
		item.Status,
		nullableString(item.ErrorMessage),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// MarkItemFailed records a terminal failure for an item in a single update.
func (s *Store) MarkItemFailed(ctx context.Context, id int64, message string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE items SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		StatusFailed,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark item failed: %w", err)
	}
	return nil
}

const itemColumns = "id, batch_id, serial_number, product_name, source_urls, output_urls, status, error_message, created_at, updated_at"

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           int64
		batchID      string
		serialNumber string
		productName  sql.NullString
		sourceRaw    sql.NullString
		outputRaw    sql.NullString
		statusStr    string
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&batchID,
		&serialNumber,
		&productName,
		&sourceRaw,
		&outputRaw,
		&statusStr,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		BatchID:      batchID,
		SerialNumber: serialNumber,
		ProductName:  productName.String,
		SourceURLs:   unmarshalURLs(sourceRaw.String),
		OutputURLs:   unmarshalURLs(outputRaw.String),
		Status:       Status(statusStr),
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}
