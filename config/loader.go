package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/ringtail/errors"
)

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  "RINGTAIL",
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load starts from Default(), decodes each layer on top, applies environment
// overrides and validates if enabled. Fields absent from a layer keep their
// earlier value; a consumers list in a layer replaces the previous list.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := l.decodeLayer(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if len(cfg.Consumers) == 0 {
		cfg.Consumers = DefaultConsumers()
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// decodeLayer decodes one file onto cfg, choosing JSON or YAML by extension.
func (l *Loader) decodeLayer(path string, cfg *Config) error {
	data, err := readLayer(path)
	if err != nil {
		return err
	}

	format, err := layerFormat(path)
	if err != nil {
		return err
	}
	if err := checkLayerDepth(format, data); err != nil {
		return errors.WrapInvalid(err, "Loader", "decodeLayer", "check "+format+" structure")
	}

	layer := *cfg
	layer.Consumers = nil

	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&layer); err != nil && err != io.EOF {
			return errors.WrapInvalid(err, "Loader", "decodeLayer", "parse YAML")
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&layer); err != nil {
			return errors.WrapInvalid(err, "Loader", "decodeLayer", "parse JSON")
		}
	}

	mergeConsumers(cfg, &layer)
	*cfg = layer
	return nil
}

// mergeConsumers keeps the previous consumers when the layer did not set any.
func mergeConsumers(prev, layer *Config) {
	if layer.Consumers == nil {
		layer.Consumers = prev.Consumers
	}
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	lookup := func(name string) (string, bool, error) {
		key := l.envPrefix + "_" + name
		val := os.Getenv(key)
		if val == "" {
			return "", false, nil
		}
		if err := checkEnvValue(key, val); err != nil {
			return "", false, errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "read "+key)
		}
		return val, true, nil
	}
	bad := func(name, val string, err error) error {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s_%s=%q: %v", errors.ErrInvalidConfig, l.envPrefix, name, val, err),
			"Loader", "applyEnvOverrides", "parse override")
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"RING_NAME", &cfg.Ring.Name},
		{"PRODUCER_NAME", &cfg.Producer.Name},
		{"METRICS_PATH", &cfg.Metrics.Path},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
	}
	for _, s := range strs {
		val, ok, err := lookup(s.name)
		if err != nil {
			return err
		}
		if ok {
			*s.dst = val
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"RING_CAPACITY", &cfg.Ring.Capacity},
		{"PRODUCER_COUNT", &cfg.Producer.Count},
		{"METRICS_PORT", &cfg.Metrics.Port},
	}
	for _, i := range ints {
		val, ok, err := lookup(i.name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return bad(i.name, val, err)
		}
		*i.dst = n
	}

	durations := []struct {
		name string
		dst  *Duration
	}{
		{"PRODUCER_INTERVAL", &cfg.Producer.Interval},
		{"HEALTH_INTERVAL", &cfg.Health.Interval},
		{"STATS_INTERVAL", &cfg.Stats.Interval},
	}
	for _, d := range durations {
		val, ok, err := lookup(d.name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		parsed, err := parseDurationWithDays(val)
		if err != nil {
			return bad(d.name, val, err)
		}
		*d.dst = Duration(parsed)
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"METRICS_ENABLED", &cfg.Metrics.Enabled},
		{"RING_KEEP_RELEASED", &cfg.Ring.KeepReleased},
		{"STATS_JSON", &cfg.Stats.JSON},
	}
	for _, b := range bools {
		val, ok, err := lookup(b.name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return bad(b.name, val, err)
		}
		*b.dst = parsed
	}

	if val, ok, err := lookup("HEALTH_DEGRADED_AT"); err != nil {
		return err
	} else if ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return bad("HEALTH_DEGRADED_AT", val, err)
		}
		cfg.Health.DegradedAt = f
	}

	return nil
}

// SaveToFile saves the configuration as JSON or YAML by extension
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return writeLayer(path, data)
}
