// Package config loads blemgr settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/formatter"
	"github.com/srg/blemgr/internal/manager"
	"github.com/srg/blemgr/internal/retry"
	"gopkg.in/yaml.v3"
)

// CustomCharacteristic is a vendor characteristic folded into device information.
// Formatter is inline Lua source; FormatterFile points at a script instead.
type CustomCharacteristic struct {
	UUID          string `yaml:"uuid"`
	Key           string `yaml:"key"`
	Name          string `yaml:"name"`
	Formatter     string `yaml:"formatter"`
	FormatterFile string `yaml:"formatter_file"`
}

// Config holds application configuration
type Config struct {
	LogLevel         string        `yaml:"log_level" default:"warn"`
	RegistryPath     string        `yaml:"registry_path" default:"devices.yaml"`
	ScanTimeout      time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" default:"30s"`
	Retry            retry.Policy  `yaml:"retry"`
	ReadAllOnConnect bool          `yaml:"read_all_on_connect" default:"true"`
	EventHistory     int           `yaml:"event_history" default:"256"`

	CustomCharacteristics []CustomCharacteristic `yaml:"custom_characteristics"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values yaml cannot check for us.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan_timeout must be positive, got %s", c.ScanTimeout)
	}
	if c.EventHistory < 0 {
		return fmt.Errorf("event_history must not be negative, got %d", c.EventHistory)
	}
	for i, cc := range c.CustomCharacteristics {
		if strings.TrimSpace(cc.UUID) == "" {
			return fmt.Errorf("custom_characteristics[%d]: uuid is required", i)
		}
		if cc.Formatter != "" && cc.FormatterFile != "" {
			return fmt.Errorf("custom_characteristics[%d]: formatter and formatter_file are exclusive", i)
		}
	}
	return nil
}

// Level returns the parsed log level, or Info when it does not parse.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// CompileCustomCharacteristics builds manager registrations, compiling any Lua
// formatter. The returned closer releases the Lua states.
func (c *Config) CompileCustomCharacteristics(logger *logrus.Logger) ([]manager.CustomCharacteristic, func(), error) {
	var compiled []*formatter.Formatter
	closeAll := func() {
		for _, f := range compiled {
			f.Close()
		}
	}

	out := make([]manager.CustomCharacteristic, 0, len(c.CustomCharacteristics))
	for _, cc := range c.CustomCharacteristics {
		reg := manager.CustomCharacteristic{UUID: cc.UUID, Key: cc.Key, Name: cc.Name}

		var f *formatter.Formatter
		var err error
		switch {
		case cc.FormatterFile != "":
			f, err = formatter.CompileFile(cc.FormatterFile, logger)
		case cc.Formatter != "":
			f, err = formatter.Compile(cc.UUID, cc.Formatter, logger)
		}
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("custom characteristic %s: %w", cc.UUID, err)
		}
		if f != nil {
			compiled = append(compiled, f)
			reg.Formatter = f.Func()
		}
		out = append(out, reg)
	}
	return out, closeAll, nil
}
