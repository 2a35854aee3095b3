package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/config"
	"github.com/dshills/inkwell/internal/logging"
)

// loadConfig resolves the effective configuration and builds the logger it
// names.
func loadConfig(opts *RootOptions) (config.Config, *zap.Logger, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return cfg, nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	// The first pass picks up logging.* overrides; the second, with a real
	// logger, reports the invalid ones.
	cfg = config.ApplyEnv(cfg, nil, nil)
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return cfg, nil, fmt.Errorf("build logger: %w", err)
	}
	cfg = config.ApplyEnv(cfg, nil, logger)
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	return config.Sanitize(cfg, logger), logger, nil
}
