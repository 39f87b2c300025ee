package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"clipmerge/internal/config"
)

type commandContext struct {
	configFlag *string
	rootFlag   *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, rootFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		rootFlag:   rootFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path, root string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if c.rootFlag != nil {
			root = strings.TrimSpace(*c.rootFlag)
		}
		cfg, _, _, err := config.Load(path, config.WithRoot(root))
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

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
