package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the probe's runtime settings, read from the environment with
// defaults. The probe's asset configuration lives in the YAML tree handled
// by confstore, not here.
type Config struct {
	AgentcoreHost     string        `mapstructure:"agentcore_host"`
	AgentcorePort     int           `mapstructure:"agentcore_port"`
	ConfigPath        string        `mapstructure:"probe_config"`
	MaxPackageSizeKiB int           `mapstructure:"max_package_size"`
	DefaultIntervalS  int           `mapstructure:"default_interval"`
	LogLevel          string        `mapstructure:"log_level"`
	LogDir            string        `mapstructure:"log_dir"`
	StatusAddr        string        `mapstructure:"status_addr"`
	SendQueue         int           `mapstructure:"send_queue"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.MaxPackageSizeKiB < 1 || cfg.MaxPackageSizeKiB > 2000 {
		return nil, fmt.Errorf("MAX_PACKAGE_SIZE must be between 1 and 2000, got %d", cfg.MaxPackageSizeKiB)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agentcore_host", "127.0.0.1")
	v.SetDefault("agentcore_port", 8750)
	v.SetDefault("probe_config", "./config/probekit.yaml")
	v.SetDefault("max_package_size", 500)
	v.SetDefault("default_interval", 300)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("status_addr", "")
	v.SetDefault("send_queue", 64)
	v.SetDefault("shutdown_grace", "5s")
}

// AgentcoreURL is the websocket endpoint of the collector.
func (c *Config) AgentcoreURL() string {
	return fmt.Sprintf("ws://%s:%d/probe", c.AgentcoreHost, c.AgentcorePort)
}

// MaxPackageSize is the package size bound in bytes.
func (c *Config) MaxPackageSize() int {
	return c.MaxPackageSizeKiB * 1024
}

func (c *Config) DefaultInterval() time.Duration {
	return time.Duration(c.DefaultIntervalS) * time.Second
}
