// Package config loads, validates and watches the inkwell configuration.
//
// # Sources
//
// Configuration is resolved in three steps, later steps overriding earlier:
//
//	┌─────────────────────────────┐
//	│  3. Environment Variables   │  ← INKWELL_CACHE_MAX_ENTRIES=...
//	├─────────────────────────────┤
//	│  2. Config File             │  ← inkwell.toml / inkwell.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │
//	└─────────────────────────────┘
//
// # Basic Usage
//
//	cfg, err := config.Load("inkwell.toml")
//	if err != nil {
//	    return err
//	}
//	cfg = config.ApplyEnv(cfg, nil, logger)
//	cfg = config.Sanitize(cfg, logger)
//
// # Validation
//
// Invalid values never fail a load. Sanitize checks the struct tags and
// resets each failing field to its default, logging a warning.
//
// # Live Reload
//
// A Watcher reloads the file after it changes and hands the sanitized result
// to a Handler:
//
//	w, err := config.NewWatcher("inkwell.toml", e.ApplyConfig)
//	go w.Run(ctx)
package config
