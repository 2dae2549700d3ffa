// Package config loads the YAML configuration the CLI needs to reach
// the remote collection and the local sync root, grounded on the
// teacher's config/config.go Context struct and jra3-linear-fuse's
// yaml-based config loading style.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mdsync/outline-sync/internal/localfs"
)

// DefaultStalenessToleranceSeconds and DefaultConflictWindowSeconds are
// the tolerances spec.md §9 names: 5s for staleness, 300s for the
// simultaneous-edit conflict heuristic.
const (
	DefaultStalenessToleranceSeconds = 5
	DefaultConflictWindowSeconds     = 300
)

// Config is the parsed shape of init/config.yaml (spec.md §4.12).
type Config struct {
	SyncRoot                  string `yaml:"sync_root"`
	CollectionID              string `yaml:"collection_id"`
	APIBaseURL                string `yaml:"api_base_url"`
	APIToken                  string `yaml:"api_token"`
	IndexName                 string `yaml:"index_name"`
	StalenessToleranceSeconds int    `yaml:"staleness_tolerance_seconds"`
	ConflictWindowSeconds     int    `yaml:"conflict_window_seconds"`
}

// ConfigError is a fatal, before-Phase-1 error: a missing or
// unparseable config file, or one missing a required field (spec.md
// §7).
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads and parses path (typically "init/config.yaml"), applying
// the documented defaults and expanding ${VAR}-form environment
// references in every string field with a single os.ExpandEnv pass, per
// spec.md §4.12. A missing file, unparseable YAML, or missing
// sync_root/api_base_url is a *ConfigError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	c.SyncRoot = os.ExpandEnv(c.SyncRoot)
	c.CollectionID = os.ExpandEnv(c.CollectionID)
	c.APIBaseURL = os.ExpandEnv(c.APIBaseURL)
	c.APIToken = os.ExpandEnv(c.APIToken)
	c.IndexName = os.ExpandEnv(c.IndexName)

	if c.IndexName == "" {
		c.IndexName = localfs.IndexName
	}
	if c.StalenessToleranceSeconds == 0 {
		c.StalenessToleranceSeconds = DefaultStalenessToleranceSeconds
	}
	if c.ConflictWindowSeconds == 0 {
		c.ConflictWindowSeconds = DefaultConflictWindowSeconds
	}

	if c.SyncRoot == "" {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("sync_root is required")}
	}
	if c.APIBaseURL == "" {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("api_base_url is required")}
	}
	if c.IndexName != localfs.IndexName {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("index_name %q is not supported; only %q is implemented", c.IndexName, localfs.IndexName)}
	}

	return &c, nil
}

// StalenessTolerance and ConflictWindow convert the configured integer
// seconds into durations for internal/engine and internal/conflict.
func (c *Config) StalenessTolerance() time.Duration {
	return time.Duration(c.StalenessToleranceSeconds) * time.Second
}

func (c *Config) ConflictWindow() time.Duration {
	return time.Duration(c.ConflictWindowSeconds) * time.Second
}
