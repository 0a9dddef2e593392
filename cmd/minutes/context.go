package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"minutes/internal/api"
	"minutes/internal/config"
	"minutes/internal/services"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// apiAddress prefers --api over the configured bind address.
func (c *commandContext) apiAddress(cfg *config.Config) string {
	if c.apiFlag != nil {
		if addr := strings.TrimSpace(*c.apiFlag); addr != "" {
			return addr
		}
	}
	if cfg == nil {
		return ""
	}
	return cfg.Paths.APIBind
}

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	addr := c.apiAddress(cfg)
	if addr == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "api client",
			"paths.api_bind is empty; pass --api with the daemon address", nil)
	}
	return api.NewClient(addr, api.WithToken(cfg.Paths.APIToken)), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
