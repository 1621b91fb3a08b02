package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/snapetech/strmsync/internal/config"
	"github.com/snapetech/strmsync/internal/logging"
	"github.com/snapetech/strmsync/internal/metrics"
	"github.com/snapetech/strmsync/internal/registry"
	"github.com/snapetech/strmsync/internal/store"
)

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

// commandContext lazily builds what subcommands share.
type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logOnce   sync.Once
	logger    *slog.Logger
	logCloser io.Closer
	logErr    error
	logOutput io.Writer

	metrics *metrics.Metrics
	closers []io.Closer
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags, metrics: metrics.New()}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if env := strings.TrimSpace(c.flags.envFile); env != "" {
			if err := config.LoadEnvFile(env); err != nil {
				c.configErr = fmt.Errorf("load env file: %w", err)
				return
			}
		}
		cfg, err := config.Load(strings.TrimSpace(c.flags.configPath))
		if err != nil {
			c.configErr = err
			return
		}
		if c.flags.logLevel != "" {
			cfg.LogLevel = c.flags.logLevel
		}
		if c.flags.logFormat != "" {
			cfg.LogFormat = c.flags.logFormat
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// loggerFor returns the process logger, writing to out on first use.
func (c *commandContext) loggerFor(out io.Writer) (*slog.Logger, error) {
	c.logOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logErr = err
			return
		}
		if c.logOutput != nil {
			out = c.logOutput
		}
		c.logger, c.logCloser, c.logErr = logging.New(logging.Options{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			File:   cfg.LogFile,
			Output: out,
		})
		if c.logErr == nil {
			c.closers = append(c.closers, c.logCloser)
		}
	})
	return c.logger, c.logErr
}

func (c *commandContext) openRegistry(logger *slog.Logger, names registry.NameResolver) *registry.Registry {
	return registry.New(registry.Config{
		Store:          &registry.FileStore{Path: c.config.RegistryPath},
		Names:          names,
		Logger:         logging.NewComponentLogger(logger, "registry"),
		OnPersistError: c.metrics.PersistError,
	})
}

func (c *commandContext) openStore() (*store.Store, error) {
	st, err := store.Open(c.config.DatabasePath)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, st)
	return st, nil
}

func (c *commandContext) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i].Close()
	}
	c.closers = nil
}
