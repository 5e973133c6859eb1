package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	OutputDir string `toml:"output_dir"`
}

// Server contains HTTP listener configuration.
type Server struct {
	Bind    string `toml:"bind"`
	BaseURL string `toml:"base_url"`
}

// Webhook contains the outbound completion notification target.
type Webhook struct {
	URL            string `toml:"url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Worker contains polling and fetch timing configuration.
type Worker struct {
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	FetchTimeout       int `toml:"fetch_timeout"`
}

// Images contains transform parameters applied to every source image.
type Images struct {
	MaxWidth    int `toml:"max_width"`
	JPEGQuality int `toml:"jpeg_quality"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for pixelmill.
//
// Configuration sections by subsystem:
//   - Paths: data directory (database + logs) and processed image output
//   - Server: HTTP bind address and the public base URL for output images
//   - Webhook: batch completion notification target
//   - Worker: discovery loop interval and fetch timeout
//   - Images: resize/compress parameters
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Server  Server  `toml:"server"`
	Webhook Webhook `toml:"webhook"`
	Worker  Worker  `toml:"worker"`
	Images  Images  `toml:"images"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/pixelmill/config.toml")
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to the given path.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// ExpandPath resolves ~ prefixes and relative paths to absolute paths.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The second return value is the
// resolved path; the third reports whether a file was found there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pixelmill.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.DataDir, &c.Paths.OutputDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if c.Server.BaseURL == "" && c.Server.Bind != "" {
		c.Server.BaseURL = "http://" + c.Server.Bind
	}
	c.Webhook.URL = strings.TrimSpace(c.Webhook.URL)
	return nil
}

// EnsureDirectories creates the directories required for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.OutputDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "pixelmill.db")
}

// LogPath returns the daemon log file location inside the data directory.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.DataDir, "pixelmill.log")
}

// PollIntervalDuration returns the discovery loop interval.
func (c *Config) PollIntervalDuration() time.Duration {
	return time.Duration(c.Worker.PollInterval) * time.Second
}

// ErrorRetryIntervalDuration returns the shortened wait applied after a
// failed discovery pass.
func (c *Config) ErrorRetryIntervalDuration() time.Duration {
	return time.Duration(c.Worker.ErrorRetryInterval) * time.Second
}

// FetchTimeoutDuration returns the per-image fetch timeout.
func (c *Config) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.Worker.FetchTimeout) * time.Second
}

// PublicImageURL builds the URL under which a processed image is served.
func (c *Config) PublicImageURL(filename string) string {
	return c.Server.BaseURL + "/processed/" + filename
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
