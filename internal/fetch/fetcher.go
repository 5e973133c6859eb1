package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pixelmill/internal/logging"
)

const userAgent = "pixelmill/0.1.0"

// maxImageBytes caps how much of a response body is read. Source images past
// this size are rejected rather than buffered into memory.
const maxImageBytes = 32 << 20

// Fetcher downloads raw image bytes from source URLs with a bounded timeout.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewFetcher builds a fetcher whose requests never block past the timeout.
func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		logger: logging.NewComponentLogger(logger, "fetch"),
	}
}

// Fetch retrieves the raw bytes at url. Network errors, timeouts, and
// non-success responses are returned as error values; the caller decides how
// a failed source affects the item.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("fetch image: empty url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("fetch image: %s returned %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > maxImageBytes {
		return nil, fmt.Errorf("fetch image: %s exceeds %d byte limit", url, int64(maxImageBytes))
	}

	f.logger.Debug("image fetched",
		logging.String("url", url),
		logging.Int("bytes", len(data)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return data, nil
}
