package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateWebhook(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	return c.validateImages()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Bind == "" {
		return errors.New("server.bind must be set")
	}
	return nil
}

func (c *Config) validateWebhook() error {
	if c.Webhook.URL == "" {
		return nil
	}
	if !strings.HasPrefix(c.Webhook.URL, "http://") && !strings.HasPrefix(c.Webhook.URL, "https://") {
		return fmt.Errorf("webhook.url must be an http or https URL, got %q", c.Webhook.URL)
	}
	if c.Webhook.RequestTimeout <= 0 {
		return errors.New("webhook.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateWorker() error {
	return ensurePositiveMap(map[string]int{
		"worker.poll_interval":        c.Worker.PollInterval,
		"worker.error_retry_interval": c.Worker.ErrorRetryInterval,
		"worker.fetch_timeout":        c.Worker.FetchTimeout,
	})
}

func (c *Config) validateImages() error {
	if c.Images.MaxWidth <= 0 {
		return errors.New("images.max_width must be positive")
	}
	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		return errors.New("images.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
