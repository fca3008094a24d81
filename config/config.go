// Package config loads the hotswap.yaml file driving the hotswap command.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chenyanchen/hotswap"
	"github.com/chenyanchen/hotswap/exp/reload"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "hotswap.yaml"

type Config struct {
	AppRoot     string                     `yaml:"app_root"`
	SearchDirs  []string                   `yaml:"search_dirs"`
	LogLevel    string                     `yaml:"log_level"`
	MetricsAddr string                     `yaml:"metrics_addr"`
	FeedAddr    string                     `yaml:"feed_addr"`
	Backend     BackendConfig              `yaml:"backend"`
	Types       map[string]hotswap.Options `yaml:"types"`
	Functions   []reload.Spec              `yaml:"functions"`
	App         AppConfig                  `yaml:"app"`
}

// BackendConfig holds options applied to every backend instance.
type BackendConfig struct {
	// Libraries are symbol sets registered with each interpreter by name.
	Libraries []string `yaml:"libraries"`
}

type AppConfig struct {
	Path          string          `yaml:"path"`
	TypeName      string          `yaml:"type_name"`
	HostBase      string          `yaml:"host_base"`
	TransferState bool            `yaml:"transfer_state"`
	Width         int             `yaml:"width"`
	Height        int             `yaml:"height"`
	FrameRate     float64         `yaml:"frame_rate"`
	Options       hotswap.Options `yaml:"options"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		AppRoot:     ".",
		SearchDirs:  append([]string(nil), hotswap.DefaultSearchDirs...),
		LogLevel:    "info",
		MetricsAddr: ":9464",
		FeedAddr:    ":8089",
		App: AppConfig{
			Width:     800,
			Height:    600,
			FrameRate: 60,
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.App.FrameRate < 0 {
		return fmt.Errorf("app.frame_rate must not be negative")
	}
	seen := make(map[string]bool, len(c.Functions))
	for i, fn := range c.Functions {
		if fn.Name == "" || fn.Path == "" {
			return fmt.Errorf("functions[%d]: name and path are required", i)
		}
		if seen[fn.Name] {
			return fmt.Errorf("functions[%d]: duplicate function %q", i, fn.Name)
		}
		seen[fn.Name] = true
	}
	return nil
}

// TypeOptions returns the options configured for typeName.
func (c *Config) TypeOptions(typeName string) hotswap.Options {
	return c.Types[typeName]
}

// ParseLevel maps a log_level value onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
