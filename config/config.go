// Package config loads verfs configuration from a YAML file and command-line
// flags.
//
// Values are resolved in order: built-in defaults, then the file, then any
// flag that was set explicitly. The result is a plain value; components get
// the parts they need (Policy, Layout) at construction time.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/dendrascience/verfs/logging"
	"github.com/dendrascience/verfs/retention"
	"github.com/dendrascience/verfs/snapshot"
)

// Config is the complete verfs configuration.
type Config struct {
	SweepInterval                  int64  `yaml:"sweep_interval"`             // seconds
	MaxAgeForFullRetention         int64  `yaml:"max_age_for_full_retention"` // seconds
	MaxCountForFullRetention       uint64 `yaml:"max_count_for_full_retention"`
	MinimumGapBetweenKeptSnapshots uint64 `yaml:"minimum_gap_between_kept_snapshots"`
	SnapshotDirName                string `yaml:"snapshot_dir_name"`
	SnapshotPerHandle              bool   `yaml:"snapshot_per_handle"`
	SweepWorkers                   int    `yaml:"sweep_workers"`

	Log         logging.Config `yaml:"log"`
	MetricsAddr string         `yaml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SweepInterval:                  300,
		MaxAgeForFullRetention:         86400,
		MaxCountForFullRetention:       10,
		MinimumGapBetweenKeptSnapshots: 5,
		SnapshotDirName:                snapshot.DefaultDirName,
		SweepWorkers:                   1,
		Log:                            logging.DefaultConfig(),
	}
}

// Parse decodes YAML on top of the defaults. Unknown keys are an error so
// that a misspelt option does not silently fall back to its default.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file. An empty path yields the defaults.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Load resolves the configuration from the file at path and the flags in fs,
// then validates it. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	if fs != nil {
		if err := cfg.applyFlags(fs); err != nil {
			return Config{}, err
		}
	}
	return cfg, cfg.Validate()
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	switch {
	case c.SweepInterval <= 0:
		return fmt.Errorf("sweep_interval must be positive, got %d", c.SweepInterval)
	case c.MaxAgeForFullRetention < 0:
		return fmt.Errorf("max_age_for_full_retention must not be negative, got %d", c.MaxAgeForFullRetention)
	case c.SweepWorkers < 1:
		return fmt.Errorf("sweep_workers must be at least 1, got %d", c.SweepWorkers)
	}
	if _, err := snapshot.NewLayout(c.SnapshotDirName); err != nil {
		return fmt.Errorf("snapshot_dir_name %q: %w", c.SnapshotDirName, err)
	}
	return c.Log.Validate()
}

// Policy returns the retention thresholds.
func (c Config) Policy() retention.Policy {
	return retention.Policy{
		MaxAge:   time.Duration(c.MaxAgeForFullRetention) * time.Second,
		MaxCount: c.MaxCountForFullRetention,
		MinGap:   c.MinimumGapBetweenKeptSnapshots,
	}
}

// Layout returns the snapshot layout.
func (c Config) Layout() snapshot.Layout {
	return snapshot.Layout{DirName: c.SnapshotDirName}
}

// Interval returns the sweep interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}
