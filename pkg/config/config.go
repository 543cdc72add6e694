// Package config carries the engine's tunables and a viper-backed loader.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config collects every knob the engine exposes. Zero values are replaced by
// the defaults below.
type Config struct {
	// DataPath is the backing file for the file disk manager.
	DataPath string

	// PoolSize is the number of frames owned by the buffer pool.
	PoolSize int

	// LeafMaxSize and InternalMaxSize bound B+Tree node fanout. Zero means
	// "as many as fit in a page".
	LeafMaxSize     int
	InternalMaxSize int

	// CycleDetectionInterval is how often the deadlock detector wakes.
	CycleDetectionInterval time.Duration

	// LogLevel is the zap level name for the global logger.
	LogLevel string
}

// Default returns the engine's default configuration.
func Default() Config {
	return Config{
		DataPath:               "mybustub.db",
		PoolSize:               64,
		CycleDetectionInterval: 50 * time.Millisecond,
		LogLevel:               "info",
	}
}

// Load reads configuration from the named file (any format viper supports)
// merged over the defaults. An empty path returns the defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if v.IsSet("data_path") {
		cfg.DataPath = v.GetString("data_path")
	}
	if v.IsSet("pool_size") {
		cfg.PoolSize = v.GetInt("pool_size")
	}
	if v.IsSet("leaf_max_size") {
		cfg.LeafMaxSize = v.GetInt("leaf_max_size")
	}
	if v.IsSet("internal_max_size") {
		cfg.InternalMaxSize = v.GetInt("internal_max_size")
	}
	if v.IsSet("cycle_detection_interval") {
		cfg.CycleDetectionInterval = v.GetDuration("cycle_detection_interval")
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive, got %d", c.PoolSize)
	}
	if c.CycleDetectionInterval <= 0 {
		return fmt.Errorf("cycle_detection_interval must be positive, got %v", c.CycleDetectionInterval)
	}
	if c.LeafMaxSize < 0 || c.InternalMaxSize < 0 {
		return fmt.Errorf("node max sizes cannot be negative")
	}
	if c.LeafMaxSize == 1 {
		return fmt.Errorf("leaf_max_size below 2 cannot hold a split")
	}
	if c.InternalMaxSize == 1 || c.InternalMaxSize == 2 {
		return fmt.Errorf("internal_max_size below 3 cannot keep two children per node")
	}
	return nil
}
