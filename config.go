package cellgc

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/cellgc/resource"
)

// Config is a serialisable representation of the heap configuration. It can
// be loaded from YAML (or JSON, which YAML accepts) and turned into Options.
// The zero value of a field selects its default.
type Config struct {
	Capacity  int            `json:"capacity" yaml:"capacity"`
	Mode      string         `json:"mode" yaml:"mode"`
	BatchSize int            `json:"batchSize" yaml:"batchSize"`
	Log       LogConfig      `json:"log" yaml:"log"`
	Resources ResourceConfig `json:"resources" yaml:"resources"`
}

// LogConfig selects a logger. An empty Level disables logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // text or json
}

// ResourceConfig mirrors resource.Config. If every field is zero, no
// controller is created.
type ResourceConfig struct {
	MemoryLimitBytes         int64 `json:"memoryLimitBytes" yaml:"memoryLimitBytes"`
	MaxBackgroundCollections int64 `json:"maxBackgroundCollections" yaml:"maxBackgroundCollections"`
	SweepSlotsPerSec         int64 `json:"sweepSlotsPerSec" yaml:"sweepSlotsPerSec"`
}

// DefaultConfig returns a Config populated with the defaults New applies.
func DefaultConfig() *Config {
	return &Config{
		Capacity: DefaultCapacity,
		Mode:     ModeBackground.String(),
	}
}

// ParseConfig decodes YAML into a Config on top of DefaultConfig and validates it.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return ParseConfig(data)
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("capacity must be > 0, got %d", c.Capacity))
	}
	if _, err := ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("batchSize must be >= 0, got %d", c.BatchSize))
	}
	if c.Log.Level != "" {
		if _, err := parseLevel(c.Log.Level); err != nil {
			errs = append(errs, err)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	r := c.Resources
	if r.MemoryLimitBytes < 0 || r.MaxBackgroundCollections < 0 || r.SweepSlotsPerSec < 0 {
		errs = append(errs, errors.New("resource limits must be >= 0"))
	}
	return errors.Join(errs...)
}

// Options converts the config into heap options. The config must be valid.
func (c *Config) Options() []Option {
	mode, _ := ParseMode(c.Mode)
	opts := []Option{
		WithCapacity(c.Capacity),
		WithMode(mode),
		WithBatchSize(c.BatchSize),
	}
	if c.Log.Level != "" {
		level, _ := parseLevel(c.Log.Level)
		if strings.EqualFold(c.Log.Format, "json") {
			opts = append(opts, WithLogger(NewJSONLogger(level)))
		} else {
			opts = append(opts, WithLogger(NewTextLogger(level)))
		}
	}
	if c.Resources != (ResourceConfig{}) {
		opts = append(opts, WithResourceController(resource.NewController(resource.Config{
			MemoryLimitBytes:         c.Resources.MemoryLimitBytes,
			MaxBackgroundCollections: c.Resources.MaxBackgroundCollections,
			SweepSlotsPerSec:         c.Resources.SweepSlotsPerSec,
		})))
	}
	return opts
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
