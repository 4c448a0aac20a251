// Package config loads the runtime configuration of the gateway from
// YAML and validates it against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/harpi/internal/hapcan"
	"github.com/roach88/harpi/internal/queue"
)

//go:embed schema.cue
var schemaCUE string

// Address is the bus address the gateway sends from.
type Address struct {
	Node  uint8 `yaml:"node" json:"node"`
	Group uint8 `yaml:"group" json:"group"`
}

// HAPCAN returns the address in frame form.
func (a Address) HAPCAN() hapcan.Address {
	return hapcan.Address{Node: a.Node, Group: a.Group}
}

// Config is the runtime configuration.
type Config struct {
	// ConfigDir holds the *.csv rule sources.
	ConfigDir string `yaml:"config_dir" json:"config_dir"`

	// QueueCapacity bounds the event queue.
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`

	// TickInterval is the timer cadence.
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval"`

	// StatusPollInterval is how often loads still undefined are polled.
	StatusPollInterval time.Duration `yaml:"status_poll_interval" json:"status_poll_interval"`

	// ConfigPollInterval is how often ConfigDir is checked for changes.
	ConfigPollInterval time.Duration `yaml:"config_poll_interval" json:"config_poll_interval"`

	// StatusRequestRate limits status requests, per second.
	StatusRequestRate  float64 `yaml:"status_request_rate" json:"status_request_rate"`
	StatusRequestBurst int     `yaml:"status_request_burst" json:"status_request_burst"`

	Gateway Address `yaml:"gateway" json:"gateway"`

	// Journal is the SQLite journal path; empty disables journaling.
	Journal string `yaml:"journal" json:"journal"`

	// MetricsAddr serves /metrics when set, e.g. ":9100".
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Default returns the configuration used for fields a file leaves out.
func Default() Config {
	return Config{
		ConfigDir:          "/etc/harpi",
		QueueCapacity:      queue.DefaultCapacity,
		TickInterval:       100 * time.Millisecond,
		StatusPollInterval: 10 * time.Second,
		ConfigPollInterval: 2 * time.Second,
		StatusRequestRate:  20,
		StatusRequestBurst: 4,
		Gateway:            Address{Node: 0xF0, Group: 0xF0},
		LogLevel:           "info",
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks c against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel returns the slog level named by LogLevel.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
