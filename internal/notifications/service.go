package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pixelmill/internal/config"
)

const userAgent = "pixelmill/0.1.0"

// BatchSummary is the completion payload delivered to the configured webhook.
type BatchSummary struct {
	BatchID        string    `json:"batchId"`
	Status         string    `json:"status"`
	TotalItems     int       `json:"totalItems"`
	ProcessedItems int       `json:"processedItems"`
	Timestamp      time.Time `json:"timestamp"`
}

// Service defines the notification surface exposed to the processing pipeline.
type Service interface {
	NotifyBatchCompleted(ctx context.Context, summary BatchSummary) error
}

// NewService builds a webhook notifier when a target URL is configured.
// When no URL is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	url := strings.TrimSpace(cfg.Webhook.URL)
	if url == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Webhook.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &webhookService{
		endpoint: url,
		client:   &http.Client{Timeout: timeout},
	}
}

type webhookService struct {
	endpoint string
	client   *http.Client
}

func (w *webhookService) NotifyBatchCompleted(ctx context.Context, summary BatchSummary) error {
	if summary.Status == "" {
		summary.Status = "completed"
	}
	if summary.Timestamp.IsZero() {
		summary.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyBatchCompleted(context.Context, BatchSummary) error { return nil }
