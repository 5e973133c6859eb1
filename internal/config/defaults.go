package config

const (
	defaultDataDir            = "~/.local/share/pixelmill"
	defaultOutputDir          = "~/.local/share/pixelmill/processed"
	defaultBind               = "127.0.0.1:7520"
	defaultWebhookTimeout     = 10
	defaultPollInterval       = 30
	defaultErrorRetryInterval = 5
	defaultFetchTimeout       = 30
	defaultMaxWidth           = 800
	defaultJPEGQuality        = 50
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			OutputDir: defaultOutputDir,
		},
		Server: Server{
			Bind: defaultBind,
		},
		Webhook: Webhook{
			RequestTimeout: defaultWebhookTimeout,
		},
		Worker: Worker{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			FetchTimeout:       defaultFetchTimeout,
		},
		Images: Images{
			MaxWidth:    defaultMaxWidth,
			JPEGQuality: defaultJPEGQuality,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
