package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	coretypes "github.com/projecteru2/core/types"

	"github.com/projecteru2/vpcctl/utils"
)

// Config holds global vpcctl configuration.
type Config struct {
	// DataDir is the directory holding one JSON document per VPC plus the
	// store lock and persisted policy files.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
	// LogDir receives per-app listener logs.
	LogDir string `json:"log_dir" mapstructure:"log_dir"`
	// DryRun traces mutating commands instead of executing them.
	DryRun bool `json:"dry_run" mapstructure:"dry_run"`

	// CommandTimeoutSeconds bounds a single link/filter command.
	CommandTimeoutSeconds int `json:"command_timeout_seconds" mapstructure:"command_timeout_seconds"`
	// StopTimeoutSeconds is the grace period between SIGTERM and SIGKILL
	// when stopping apps.
	StopTimeoutSeconds int `json:"stop_timeout_seconds" mapstructure:"stop_timeout_seconds"`

	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log" mapstructure:"log"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:               ".vpcctl_data",
		LogDir:                filepath.Join(os.TempDir(), "vpcctl"),
		CommandTimeoutSeconds: 30,
		StopTimeoutSeconds:    10,
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from file, falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	if path == "" {
		return conf, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path from CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return conf, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	conf.Normalize()
	return conf, nil
}

// Normalize fills zero-valued timeouts with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.CommandTimeoutSeconds <= 0 {
		c.CommandTimeoutSeconds = def.CommandTimeoutSeconds
	}
	if c.StopTimeoutSeconds <= 0 {
		c.StopTimeoutSeconds = def.StopTimeoutSeconds
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.LogDir == "" {
		c.LogDir = def.LogDir
	}
}

// CommandTimeout returns the per-command bound as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// StopTimeout returns the SIGTERM grace period as a duration.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

// StoreLockPath is the flock path guarding the data directory.
func (c *Config) StoreLockPath() string {
	return filepath.Join(c.DataDir, ".lock")
}

// AppLogPath is the well-known log path for a listener in namespace ns.
func (c *Config) AppLogPath(ns string) string {
	return filepath.Join(c.LogDir, fmt.Sprintf("app-%s.log", ns))
}

// EnsureDirsExist creates the data and log directories.
func (c *Config) EnsureDirsExist() error {
	return utils.EnsureDirs(c.DataDir, c.LogDir)
}
