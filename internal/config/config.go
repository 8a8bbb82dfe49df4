// Package config provides configuration for the agentui server.
// Values come from defaults, an optional config.yaml, a local .env file and
// AGENTUI_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xiaot623/agentui/internal/logger"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "AGENTUI"

// Config holds all configuration sections.
type Config struct {
	Server  ServerConfig         `mapstructure:"server"`
	Broker  BrokerConfig         `mapstructure:"broker"`
	WS      WSConfig             `mapstructure:"ws"`
	Images  ImagesConfig         `mapstructure:"images"`
	History HistoryConfig        `mapstructure:"history"`
	Policy  PolicyConfig         `mapstructure:"policy"`
	Logging logger.LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BrokerConfig holds request lifecycle settings.
type BrokerConfig struct {
	DefaultTimeout int           `mapstructure:"default_timeout"` // seconds
	MaxTimeout     int           `mapstructure:"max_timeout"`     // seconds, 0 disables the cap
	WaitTimeout    int           `mapstructure:"wait_timeout"`    // seconds
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	Retention      time.Duration `mapstructure:"retention"`
	ExpirePending  bool          `mapstructure:"expire_pending"`
}

// WSConfig holds push channel settings.
type WSConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// ImagesConfig holds image store settings.
type ImagesConfig struct {
	Dir             string        `mapstructure:"dir"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// HistoryConfig holds the audit trail database settings.
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PolicyConfig points at an optional Rego module replacing the built-in admission rules.
type PolicyConfig struct {
	File string `mapstructure:"file"`
}

// WaitTimeoutDuration returns the default wait budget as a time.Duration.
func (b *BrokerConfig) WaitTimeoutDuration() time.Duration {
	return time.Duration(b.WaitTimeout) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3001")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("broker.default_timeout", 300)
	v.SetDefault("broker.max_timeout", 86400)
	v.SetDefault("broker.wait_timeout", 60)
	v.SetDefault("broker.poll_interval", 500*time.Millisecond)
	v.SetDefault("broker.sweep_interval", 30*time.Second)
	v.SetDefault("broker.retention", time.Hour)
	v.SetDefault("broker.expire_pending", false)

	v.SetDefault("ws.ping_interval", 30*time.Second)
	v.SetDefault("ws.write_timeout", 10*time.Second)
	v.SetDefault("ws.read_timeout", 60*time.Second)
	v.SetDefault("ws.max_message_size", 65536)
	v.SetDefault("ws.send_buffer", 256)

	v.SetDefault("images.dir", filepath.Join(os.TempDir(), "agentui-images"))
	v.SetDefault("images.max_upload_bytes", 50<<20)
	v.SetDefault("images.default_ttl", time.Hour)
	v.SetDefault("images.cleanup_interval", 30*time.Second)

	v.SetDefault("history.dsn", ":memory:")

	v.SetDefault("policy.file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output_path", "stderr")
}

// Load reads configuration from the default locations.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration, looking for config.yaml in configPath first.
func LoadWithPath(configPath string) (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if cfg.Broker.DefaultTimeout <= 0 {
		errs = append(errs, "broker.default_timeout must be positive")
	}
	if cfg.Broker.MaxTimeout < 0 {
		errs = append(errs, "broker.max_timeout must not be negative")
	}
	if cfg.Broker.MaxTimeout > 0 && cfg.Broker.DefaultTimeout > cfg.Broker.MaxTimeout {
		errs = append(errs, "broker.default_timeout must not exceed broker.max_timeout")
	}
	if cfg.Broker.WaitTimeout <= 0 {
		errs = append(errs, "broker.wait_timeout must be positive")
	}
	if cfg.Broker.PollInterval <= 0 {
		errs = append(errs, "broker.poll_interval must be positive")
	}
	if cfg.Broker.SweepInterval <= 0 {
		errs = append(errs, "broker.sweep_interval must be positive")
	}
	if cfg.WS.PingInterval <= 0 || cfg.WS.ReadTimeout <= cfg.WS.PingInterval {
		errs = append(errs, "ws.read_timeout must be longer than a positive ws.ping_interval")
	}
	if cfg.WS.SendBuffer <= 0 {
		errs = append(errs, "ws.send_buffer must be positive")
	}
	if cfg.Images.MaxUploadBytes <= 0 {
		errs = append(errs, "images.max_upload_bytes must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
