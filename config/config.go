package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/ringtail/errors"
	"github.com/c360/ringtail/pkg/retry"
	"github.com/c360/ringtail/pkg/tailreader"
)

// Config represents the complete ringtail configuration
type Config struct {
	Ring      RingConfig       `json:"ring" yaml:"ring"`
	Producer  ProducerConfig   `json:"producer" yaml:"producer"`
	Consumers []ConsumerConfig `json:"consumers,omitempty" yaml:"consumers,omitempty"`
	Metrics   MetricsConfig    `json:"metrics" yaml:"metrics"`
	Health    HealthConfig     `json:"health" yaml:"health"`
	Stats     StatsConfig      `json:"stats" yaml:"stats"`
	Log       LogConfig        `json:"log" yaml:"log"`
}

// RingConfig sizes the shared ring
type RingConfig struct {
	Name         string `json:"name" yaml:"name"`                   // Metrics label and health component name
	Capacity     int    `json:"capacity" yaml:"capacity"`           // Slot count; usable capacity is Capacity-1
	KeepReleased bool   `json:"keep_released" yaml:"keep_released"` // Skip zeroing slots every tail has passed
}

// ProducerConfig controls the single writer
type ProducerConfig struct {
	Name     string      `json:"name" yaml:"name"`
	Interval Duration    `json:"interval" yaml:"interval"` // Delay between pushes; 0 pushes as fast as possible
	Count    int         `json:"count" yaml:"count"`       // Items to push before stopping; 0 = unlimited
	Retry    RetryConfig `json:"retry" yaml:"retry"`       // Backoff while the ring is full
}

// RetryConfig mirrors retry.Config with config-friendly durations
type RetryConfig struct {
	MaxAttempts  int      `json:"max_attempts" yaml:"max_attempts"` // 0 = retry until shutdown
	InitialDelay Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier   float64  `json:"multiplier" yaml:"multiplier"`
	Jitter       bool     `json:"jitter" yaml:"jitter"`
}

// Std converts to a retry.Config
func (r RetryConfig) Std() retry.Config {
	return retry.Config{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay.Std(),
		MaxDelay:     r.MaxDelay.Std(),
		Multiplier:   r.Multiplier,
		AddJitter:    r.Jitter,
	}
}

// ConsumerConfig describes one tail reader
type ConsumerConfig struct {
	Name            string   `json:"name" yaml:"name"`
	Mode            string   `json:"mode" yaml:"mode"`             // "single" or "batch"
	BatchSize       int      `json:"batch_size" yaml:"batch_size"` // 0 = everything available
	PollInterval    Duration `json:"poll_interval" yaml:"poll_interval"`
	MaxPollInterval Duration `json:"max_poll_interval" yaml:"max_poll_interval"`
	JoinDelay       Duration `json:"join_delay" yaml:"join_delay"`   // Wait before registering the tail
	LeaveAfter      int      `json:"leave_after" yaml:"leave_after"` // Remove the tail after this many items; 0 = never
	Work            Duration `json:"work" yaml:"work"`               // Simulated processing time per delivery
}

// Reader converts the consumer entry to a tailreader.Config
func (c ConsumerConfig) Reader() (tailreader.Config, error) {
	mode, err := tailreader.ParseMode(c.Mode)
	if err != nil {
		return tailreader.Config{}, err
	}
	cfg := tailreader.Config{
		Name:       c.Name,
		Mode:       mode,
		BatchSize:  c.BatchSize,
		LeaveAfter: c.LeaveAfter,
	}
	// Unset intervals leave Poll zero so the reader picks retry.Poll().
	if c.PollInterval != 0 || c.MaxPollInterval != 0 {
		cfg.Poll = retry.Config{
			InitialDelay: c.PollInterval.Std(),
			MaxDelay:     c.MaxPollInterval.Std(),
			Multiplier:   2.0,
		}
	}
	return cfg, nil
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// HealthConfig controls the periodic ring health check
type HealthConfig struct {
	Interval   Duration `json:"interval" yaml:"interval"`
	DegradedAt float64  `json:"degraded_at" yaml:"degraded_at"` // Utilization fraction; 0 disables
}

// StatsConfig controls periodic statistics reports
type StatsConfig struct {
	Interval Duration `json:"interval" yaml:"interval"` // 0 disables reporting
	JSON     bool     `json:"json" yaml:"json"`         // Also write JSON lines to stdout
}

// LogConfig controls the process logger
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json or text
}

// DefaultConsumers is used when no consumers are configured
func DefaultConsumers() []ConsumerConfig {
	return []ConsumerConfig{
		{
			Name:            "fast",
			Mode:            "batch",
			BatchSize:       64,
			PollInterval:    Duration(100 * time.Microsecond),
			MaxPollInterval: Duration(10 * time.Millisecond),
		},
		{
			Name:            "slow",
			Mode:            "single",
			PollInterval:    Duration(time.Millisecond),
			MaxPollInterval: Duration(50 * time.Millisecond),
			JoinDelay:       Duration(2 * time.Second),
			Work:            Duration(2 * time.Millisecond),
		},
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Ring: RingConfig{
			Name:     "main",
			Capacity: 1024,
		},
		Producer: ProducerConfig{
			Name:     "producer",
			Interval: Duration(time.Millisecond),
			Retry: RetryConfig{
				InitialDelay: Duration(100 * time.Microsecond),
				MaxDelay:     Duration(10 * time.Millisecond),
				Multiplier:   2.0,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Interval:   Duration(5 * time.Second),
			DegradedAt: 0.8,
		},
		Stats: StatsConfig{
			Interval: Duration(10 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Ring.Name == "" {
		return invalid("ring.name is required")
	}
	if c.Ring.Capacity < 2 {
		return invalid(fmt.Sprintf("ring.capacity must be at least 2, got %d", c.Ring.Capacity))
	}

	if c.Producer.Name == "" {
		return invalid("producer.name is required")
	}
	if c.Producer.Interval < 0 {
		return invalid("producer.interval cannot be negative")
	}
	if c.Producer.Count < 0 {
		return invalid("producer.count cannot be negative")
	}
	if err := c.Producer.Retry.Std().Validate(); err != nil {
		return fmt.Errorf("producer.retry: %w", err)
	}

	seen := make(map[string]bool, len(c.Consumers))
	for i, consumer := range c.Consumers {
		if consumer.Name == "" {
			return invalid(fmt.Sprintf("consumers[%d].name is required", i))
		}
		if seen[consumer.Name] {
			return invalid(fmt.Sprintf("duplicate consumer name %q", consumer.Name))
		}
		seen[consumer.Name] = true

		if consumer.JoinDelay < 0 || consumer.Work < 0 {
			return invalid(fmt.Sprintf("consumer %s: durations cannot be negative", consumer.Name))
		}
		readerCfg, err := consumer.Reader()
		if err != nil {
			return fmt.Errorf("consumer %s: %w", consumer.Name, err)
		}
		if err := readerCfg.Validate(); err != nil {
			return fmt.Errorf("consumer %s: %w", consumer.Name, err)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return invalid(fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
		}
		if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path must start with /")
		}
	}

	if c.Health.Interval < 0 {
		return invalid("health.interval cannot be negative")
	}
	if c.Health.DegradedAt < 0 || c.Health.DegradedAt > 1 {
		return invalid(fmt.Sprintf("health.degraded_at must be within [0, 1], got %g", c.Health.DegradedAt))
	}
	if c.Stats.Interval < 0 {
		return invalid("stats.interval cannot be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Sprintf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return invalid(fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}

	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg), "Config", "Validate", "check config")
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}

	// Use JSON marshaling/unmarshaling for deep copy
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		copied.Consumers = append([]ConsumerConfig(nil), c.Consumers...)
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		copied.Consumers = append([]ConsumerConfig(nil), c.Consumers...)
		return &copied
	}

	return &clone
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Duration is a time.Duration that reads and writes as a string such as
// "250ms" or "14d". Bare numbers are taken as nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String formats the duration like time.Duration
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON encodes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		parsed, err := parseDurationWithDays(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(int64(v))
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// MarshalYAML encodes the duration as a string
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts a duration string or an integer number of nanoseconds
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}

	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*d = Duration(n)
		return nil
	}

	parsed, err := parseDurationWithDays(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
