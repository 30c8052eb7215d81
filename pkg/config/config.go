// Package config loads sentencebase settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/japaniel/sentencebase/pkg/db"
)

// Config holds all application configuration.
type Config struct {
	MaxPendingSentences int    `yaml:"max_pending_sentences"`
	DBPath              string `yaml:"db_path"`
	DBDriver            string `yaml:"db_driver"`
	LogLevel            string `yaml:"log_level"`
	LogFormat           string `yaml:"log_format"`
	Workers             int    `yaml:"workers"`
	WriteBatchSize      int    `yaml:"write_batch_size"`
	BatchSchedule       string `yaml:"batch_schedule"`
	Timezone            string `yaml:"timezone"`
	DictionaryPath      string `yaml:"dictionary_path"`
	FrequencyListPath   string `yaml:"frequency_list_path"`
}

// DefaultPath is read when neither --config nor SENTENCEBASE_CONFIG is set.
const DefaultPath = "./sentencebase.yaml"

// Defaults returns the configuration used for keys a file leaves out.
func Defaults() Config {
	return Config{
		MaxPendingSentences: 250,
		DBPath:              "./sentencebase.db",
		DBDriver:            db.DriverCGO,
		LogLevel:            "info",
		LogFormat:           "text",
		Workers:             4,
		WriteBatchSize:      50,
		BatchSchedule:       "0 4 * * *",
		Timezone:            "UTC",
		DictionaryPath:      "./jmdict-eng-common.json",
	}
}

// Load reads configuration from a YAML file over the defaults, then applies
// environment overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if err := applyEnvironmentOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Resolve loads the configuration the CLI should use. An explicit path, or
// one named by SENTENCEBASE_CONFIG, must exist; DefaultPath may be absent.
func Resolve(explicit string) (*Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	if path := os.Getenv("SENTENCEBASE_CONFIG"); path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultPath); errors.Is(err, os.ErrNotExist) {
		return Load("")
	}
	return Load(DefaultPath)
}

func applyEnvironmentOverrides(cfg *Config) error {
	if v := os.Getenv("MAXIMUM_PENDING_SENTENCES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAXIMUM_PENDING_SENTENCES: %w", err)
		}
		cfg.MaxPendingSentences = n
	}
	if v := os.Getenv("SENTENCEBASE_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SENTENCEBASE_DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("SENTENCEBASE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.MaxPendingSentences < 0 {
		return fmt.Errorf("max_pending_sentences must be >= 0, got %d", c.MaxPendingSentences)
	}
	if _, err := db.DSN(c.DBDriver, c.DBPath); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	}
	if c.WriteBatchSize <= 0 {
		return fmt.Errorf("write_batch_size must be > 0, got %d", c.WriteBatchSize)
	}
	if _, err := cron.ParseStandard(c.BatchSchedule); err != nil {
		return fmt.Errorf("invalid batch_schedule %q: %w", c.BatchSchedule, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// NewLogger builds the slog logger described by LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
