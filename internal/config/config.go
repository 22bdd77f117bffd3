package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/albachteng/schedcore/internal/jobs"
	"github.com/albachteng/schedcore/internal/trigger"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the server configuration, loaded from YAML. Durations are
// strings in time.ParseDuration form ("30s", "5m").
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	Logging LoggingConfig `yaml:"logging"`

	Scheduler SchedulerConfig `yaml:"scheduler"`

	Sink SinkConfig `yaml:"sink"`

	// Jobs configured at startup. Each names a work function registered in
	// code; unknown names fail at boot.
	Jobs []JobConfig `yaml:"jobs"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	Text  bool   `yaml:"text"`
}

type SchedulerConfig struct {
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	MisfireGrace   string `yaml:"misfire_grace"`
	OverlapBackoff string `yaml:"overlap_backoff"`
	DrainTimeout   string `yaml:"drain_timeout"`
}

type SinkConfig struct {
	// Type selects the result sink: "memory" (default) or "sqlite".
	Type string `yaml:"type"`

	// Path is the sqlite database file; required for type sqlite.
	Path string `yaml:"path"`

	// Capacity bounds the memory sink's retained history.
	Capacity int `yaml:"capacity"`
}

type JobConfig struct {
	ID            string       `yaml:"id"`
	Name          string       `yaml:"name"`
	Work          string       `yaml:"work"`
	Trigger       trigger.Spec `yaml:"trigger"`
	Timeout       string       `yaml:"timeout"`
	MisfirePolicy string       `yaml:"misfire_policy"`
	AllowOverlap  bool         `yaml:"allow_overlap"`
	MaxRetries    int          `yaml:"max_retries"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Logging:    LoggingConfig{Level: "info"},
		Scheduler: SchedulerConfig{
			Workers:        4,
			QueueSize:      64,
			MisfireGrace:   "5s",
			OverlapBackoff: "100ms",
			DrainTimeout:   "30s",
		},
		Sink: SinkConfig{Type: "memory", Capacity: 1024},
	}
}

// Load reads path, overlays it on the defaults, and validates. Unknown keys
// are rejected so typos don't silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr must be set", ErrInvalidConfig)
	}

	for _, field := range []struct {
		path string
		raw  string
	}{
		{"scheduler.misfire_grace", c.Scheduler.MisfireGrace},
		{"scheduler.overlap_backoff", c.Scheduler.OverlapBackoff},
		{"scheduler.drain_timeout", c.Scheduler.DrainTimeout},
	} {
		if _, err := parseDuration(field.path, field.raw); err != nil {
			return err
		}
	}

	switch c.Sink.Type {
	case "", "memory":
	case "sqlite":
		if c.Sink.Path == "" {
			return fmt.Errorf("%w: sink.path is required for sink.type sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown sink.type %q", ErrInvalidConfig, c.Sink.Type)
	}

	seen := make(map[string]bool)
	for i, jc := range c.Jobs {
		if jc.ID == "" {
			return fmt.Errorf("%w: jobs[%d].id must be set", ErrInvalidConfig, i)
		}
		if seen[jc.ID] {
			return fmt.Errorf("%w: duplicate job id %q", ErrInvalidConfig, jc.ID)
		}
		seen[jc.ID] = true

		if jc.Work == "" {
			return fmt.Errorf("%w: jobs[%d].work must be set", ErrInvalidConfig, i)
		}
		if _, err := jc.Trigger.Build(time.Now()); err != nil {
			return fmt.Errorf("%w: jobs[%d].trigger: %v", ErrInvalidConfig, i, err)
		}
		if _, err := parseDuration(fmt.Sprintf("jobs[%d].timeout", i), jc.Timeout); err != nil {
			return err
		}
		if _, err := jobs.ParseMisfirePolicy(jc.MisfirePolicy); err != nil {
			return fmt.Errorf("%w: jobs[%d].misfire_policy: %v", ErrInvalidConfig, i, err)
		}
		if jc.MaxRetries < 0 {
			return fmt.Errorf("%w: jobs[%d].max_retries must be >= 0", ErrInvalidConfig, i)
		}
	}
	return nil
}

// MisfireGrace returns the parsed duration; Validate has already checked it.
func (s SchedulerConfig) MisfireGraceDuration() time.Duration {
	d, _ := parseDuration("scheduler.misfire_grace", s.MisfireGrace)
	return d
}

func (s SchedulerConfig) OverlapBackoffDuration() time.Duration {
	d, _ := parseDuration("scheduler.overlap_backoff", s.OverlapBackoff)
	return d
}

func (s SchedulerConfig) DrainTimeoutDuration() time.Duration {
	d, _ := parseDuration("scheduler.drain_timeout", s.DrainTimeout)
	return d
}

func (j JobConfig) TimeoutDuration() time.Duration {
	d, _ := parseDuration("timeout", j.Timeout)
	return d
}

func parseDuration(path, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: invalid duration %q", ErrInvalidConfig, path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s: duration must be >= 0", ErrInvalidConfig, path)
	}
	return d, nil
}
