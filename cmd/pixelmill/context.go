package main

import (
	"strings"
	"sync"

	"pixelmill/internal/config"
)

type commandContext struct {
	serverFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(serverFlag, configFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// serverURL resolves the daemon base URL: the --server flag wins, otherwise
// the configured bind address is used.
func (c *commandContext) serverURL() (string, error) {
	if c.serverFlag != nil {
		if url := strings.TrimSpace(*c.serverFlag); url != "" {
			return strings.TrimRight(url, "/"), nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return "http://" + cfg.Server.Bind, nil
}

func (c *commandContext) client() (*apiClient, error) {
	baseURL, err := c.serverURL()
	if err != nil {
		return nil, err
	}
	return newAPIClient(baseURL), nil
}
