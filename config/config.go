package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	PulseWatch PulseWatchConfig `yaml:"pulsewatch"`
}

// PulseWatchConfig is the project configuration.
type PulseWatchConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the tenant state backend.
type StoreConfig struct {
	Backend string      `yaml:"backend"` // redis|memory
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig controls the Redis tenant store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// AuthConfig holds host-side secrets. Both can be overridden by the
// PULSEWATCH_SIGNING_SECRET and PULSEWATCH_ADMIN_TOKEN environment
// variables so they stay out of the config file.
type AuthConfig struct {
	SigningSecret string `yaml:"signing_secret"`
	AdminToken    string `yaml:"admin_token"`
}

// AlertsConfig controls webhook delivery.
type AlertsConfig struct {
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
