// Package config carries the explicit configuration for the learning
// store. Values flow into constructors as parameters; nothing in the core
// reads process-wide globals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adalundhe/recall/core/backup"
	"github.com/adalundhe/recall/core/cache"
	"github.com/adalundhe/recall/core/metrics"
	"github.com/adalundhe/recall/core/rank"
	"github.com/adalundhe/recall/core/storage"
	"github.com/adalundhe/recall/core/store"
)

// Config is the full tunable surface of the store.
type Config struct {
	StorageDir      string        `yaml:"storage_dir"`
	StoreName       string        `yaml:"store_name"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	BackupRetention int           `yaml:"backup_retention"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
	WatchInterval   time.Duration `yaml:"watch_interval"`

	Ranking rank.Weights   `yaml:"ranking"`
	Metrics metrics.Config `yaml:"metrics"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		StorageDir:      storage.DefaultRoot(),
		StoreName:       storage.DefaultStoreName,
		CacheTTL:        cache.DefaultTTL,
		BackupRetention: backup.DefaultRetention,
		LockTimeout:     store.DefaultLockTimeout,
		WatchInterval:   30 * time.Second,
		Ranking:         rank.DefaultWeights(),
		Metrics:         metrics.DefaultConfig(),
	}
}

// Load layers a YAML file (when path is non-empty and present) and
// environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("RECALL_DIR"); v != "" {
		c.StorageDir = v
	}
	if v := os.Getenv("RECALL_STORE_NAME"); v != "" {
		c.StoreName = v
	}
	if v := os.Getenv("RECALL_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RECALL_CACHE_TTL: %w", err)
		}
		c.CacheTTL = d
	}
	if v := os.Getenv("RECALL_LOCK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RECALL_LOCK_TIMEOUT: %w", err)
		}
		c.LockTimeout = d
	}
	if v := os.Getenv("RECALL_BACKUP_RETENTION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RECALL_BACKUP_RETENTION: %w", err)
		}
		c.BackupRetention = n
	}
	return nil
}

// Paths resolves the on-disk layout this configuration selects.
func (c Config) Paths() storage.Paths {
	return storage.NewPaths(c.StorageDir, c.StoreName)
}
