package testsupport

import (
	"path/filepath"
	"testing"

	"pixelmill/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.OutputDir = filepath.Join(base, "processed")
	cfg.Server.Bind = "127.0.0.1:0"
	cfg.Server.BaseURL = "http://127.0.0.1:7520"
	cfg.Worker.PollInterval = 1
	cfg.Worker.ErrorRetryInterval = 1
	cfg.Worker.FetchTimeout = 5

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithWebhookURL points the test config at a webhook endpoint.
func WithWebhookURL(url string) ConfigOption {
	return func(c *config.Config) {
		c.Webhook.URL = url
	}
}

// WithBaseURL overrides the public base URL on the test config.
func WithBaseURL(url string) ConfigOption {
	return func(c *config.Config) {
		c.Server.BaseURL = url
	}
}
