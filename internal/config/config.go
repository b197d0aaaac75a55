// Package config loads the rtsp-player configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	URL     string        `yaml:"url"`
	Output  string        `yaml:"output"`
	Player  PlayerConfig  `yaml:"player"`
	Logging LoggingConfig `yaml:"logging"`
}

type PlayerConfig struct {
	ClientPort         int           `yaml:"client_port"`
	UserAgent          string        `yaml:"user_agent"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	KeepAlive          time.Duration `yaml:"keep_alive"`
	WriteParameterSets bool          `yaml:"write_parameter_sets"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns configuration used when no file is given.
func Default() *Config {
	return &Config{
		Output: "-",
		Player: PlayerConfig{
			ConnectTimeout: 5 * time.Second,
			KeepAlive:      30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the yaml file.
// Values missing in the file keep defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalid)
	}

	if c.Output == "" {
		return fmt.Errorf("%w: output is required", ErrInvalid)
	}

	if c.Player.ClientPort < 0 || c.Player.ClientPort > 65534 {
		return fmt.Errorf("%w: client_port %d (must be between 0-65534)", ErrInvalid, c.Player.ClientPort)
	}

	if c.Player.ConnectTimeout < 0 {
		return fmt.Errorf("%w: connect_timeout must be non-negative", ErrInvalid)
	}

	if c.Player.KeepAlive < 0 {
		return fmt.Errorf("%w: keep_alive must be non-negative", ErrInvalid)
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q (must be text or json)", ErrInvalid, c.Logging.Format)
	}

	return nil
}

// NewLogger returns the logger configured by the logging section.
func (c *Config) NewLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)

	setLogLvl(l, c.Logging.Level)
	setLogType(l, c.Logging.Format)

	return l
}

// sets the log level of the logger
func setLogLvl(l *logrus.Logger, level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	l.SetLevel(lvl)
}

// sets the log type of the logger
func setLogType(l *logrus.Logger, format string) {
	switch strings.ToLower(format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
}
