// Package procconfig loads process-level configuration: worker pool sizing,
// pipeline buffering, and the optional metrics listen address. It has no
// bearing on repository metadata, which internal/repo owns.
package procconfig

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName    = ".jbackup"
	configType    = "yaml"
	envPrefix     = "JBACKUP"
	envKeySep     = "_"

	// DefaultBufferBound is the multiple of Workers used as the worker
	// pipeline's completion buffer, giving the recommended 2N.
	DefaultBufferBound = 2
)

// Config holds process-level knobs, distinct from the repository's own
// "config" metadata file (transformer chain), which internal/repo owns.
type Config struct {
	Workers     int    `mapstructure:"workers"`
	BufferBound int    `mapstructure:"buffer_bound"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// ErrInvalidWorkers is returned when Workers is non-positive.
var ErrInvalidWorkers = errors.New("procconfig: workers must be positive")

// ErrInvalidBufferBound is returned when BufferBound is negative.
var ErrInvalidBufferBound = errors.New("procconfig: buffer_bound must be non-negative")

// Validate checks the config's numeric fields.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.Workers)
	}

	if c.BufferBound < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidBufferBound, c.BufferBound)
	}

	return nil
}

// Load reads configuration from an explicit file (configPath, if non-empty)
// or else from .jbackup.yaml in the current directory or $HOME, from
// JBACKUP_* environment variables, and from built-in defaults. Environment
// variables override the file, and the file overrides the defaults. A
// missing .jbackup.yaml is not an error; a missing explicit file is.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("buffer_bound", DefaultBufferBound)
	v.SetDefault("metrics_addr", "")

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySep))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("procconfig: read config: %w", err)
		}
	}

	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("procconfig: unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("procconfig: %w", err)
	}

	return &cfg, nil
}
