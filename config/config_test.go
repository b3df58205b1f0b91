package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360/ringtail/errors"
	"github.com/c360/ringtail/pkg/tailreader"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.Consumers = DefaultConsumers()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1024, cfg.Ring.Capacity)
	assert.Equal(t, "main", cfg.Ring.Name)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeFile(t, "ring.json", `{
		"ring": {"name": "orders", "capacity": 256},
		"producer": {"interval": "5ms", "count": 1000},
		"consumers": [
			{"name": "indexer", "mode": "batch", "batch_size": 32, "poll_interval": "1ms", "max_poll_interval": "20ms"},
			{"name": "audit", "join_delay": "1s", "leave_after": 500}
		],
		"health": {"degraded_at": 0.5}
	}`)

	loader := NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.Ring.Name)
	assert.Equal(t, 256, cfg.Ring.Capacity)
	assert.Equal(t, 5*time.Millisecond, cfg.Producer.Interval.Std())
	assert.Equal(t, 1000, cfg.Producer.Count)
	assert.Equal(t, "producer", cfg.Producer.Name, "untouched fields keep defaults")
	assert.Equal(t, 0.5, cfg.Health.DegradedAt)
	assert.Equal(t, 5*time.Second, cfg.Health.Interval.Std())

	require.Len(t, cfg.Consumers, 2)
	assert.Equal(t, "indexer", cfg.Consumers[0].Name)
	assert.Equal(t, 20*time.Millisecond, cfg.Consumers[0].MaxPollInterval.Std())
	assert.Equal(t, time.Second, cfg.Consumers[1].JoinDelay.Std())
	assert.Equal(t, 500, cfg.Consumers[1].LeaveAfter)
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeFile(t, "ring.yaml", `
ring:
  name: telemetry
  capacity: 64
  keep_released: true
producer:
  interval: 250us
  retry:
    max_attempts: 5
    initial_delay: 1ms
    max_delay: 8ms
consumers:
  - name: fast
    mode: batch
  - name: slow
    work: 3ms
metrics:
  enabled: false
log:
  level: debug
  format: text
`)

	loader := NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "telemetry", cfg.Ring.Name)
	assert.Equal(t, 64, cfg.Ring.Capacity)
	assert.True(t, cfg.Ring.KeepReleased)
	assert.Equal(t, 250*time.Microsecond, cfg.Producer.Interval.Std())
	assert.Equal(t, 5, cfg.Producer.Retry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Producer.Retry.Multiplier, "nested default kept")
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Consumers, 2)
	assert.Equal(t, 3*time.Millisecond, cfg.Consumers[1].Work.Std())
}

func TestLoader_Layers(t *testing.T) {
	base := writeFile(t, "base.yaml", `
ring:
  capacity: 128
consumers:
  - name: a
  - name: b
`)
	override := writeFile(t, "override.json", `{"ring": {"name": "edge"}, "stats": {"json": true}}`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.Ring.Capacity)
	assert.Equal(t, "edge", cfg.Ring.Name)
	assert.True(t, cfg.Stats.JSON)
	require.Len(t, cfg.Consumers, 2, "consumers survive a layer that does not set them")
	assert.Equal(t, "b", cfg.Consumers[1].Name)
}

func TestLoader_DefaultConsumers(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConsumers(), cfg.Consumers)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("RINGTAIL_RING_CAPACITY", "4096")
	t.Setenv("RINGTAIL_RING_NAME", "env-ring")
	t.Setenv("RINGTAIL_PRODUCER_INTERVAL", "2ms")
	t.Setenv("RINGTAIL_METRICS_ENABLED", "false")
	t.Setenv("RINGTAIL_HEALTH_DEGRADED_AT", "0.9")
	t.Setenv("RINGTAIL_LOG_LEVEL", "warn")

	path := writeFile(t, "ring.json", `{"ring": {"capacity": 16}}`)

	loader := NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 4096, cfg.Ring.Capacity, "environment wins over files")
	assert.Equal(t, "env-ring", cfg.Ring.Name)
	assert.Equal(t, 2*time.Millisecond, cfg.Producer.Interval.Std())
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 0.9, cfg.Health.DegradedAt)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_BadEnvOverride(t *testing.T) {
	tests := map[string]string{
		"RINGTAIL_RING_CAPACITY":      "lots",
		"RINGTAIL_PRODUCER_INTERVAL":  "soon",
		"RINGTAIL_METRICS_ENABLED":    "maybe",
		"RINGTAIL_HEALTH_DEGRADED_AT": "high",
	}

	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := NewLoader().Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "absent.json"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFile(t, "ring.toml", `capacity = 4`)
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only JSON or YAML")
	})

	t.Run("unknown JSON field", func(t *testing.T) {
		path := writeFile(t, "ring.json", `{"ring": {"capacty": 4}}`)
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("unknown YAML field", func(t *testing.T) {
		path := writeFile(t, "ring.yml", "ring:\n  capacty: 4\n")
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("malformed JSON", func(t *testing.T) {
		path := writeFile(t, "ring.json", `{"ring": {"capacity": 4}`)
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
	})

	t.Run("validation enabled", func(t *testing.T) {
		path := writeFile(t, "ring.json", `{"ring": {"capacity": 1}}`)
		loader := NewLoader()
		loader.EnableValidation(true)
		_, err := loader.LoadFile(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	})

	t.Run("empty YAML keeps defaults", func(t *testing.T) {
		path := writeFile(t, "empty.yaml", "")
		cfg, err := NewLoader().LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, Default().Ring, cfg.Ring)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty ring name", func(c *Config) { c.Ring.Name = "" }},
		{"capacity too small", func(c *Config) { c.Ring.Capacity = 1 }},
		{"negative producer interval", func(c *Config) { c.Producer.Interval = Duration(-time.Second) }},
		{"negative producer count", func(c *Config) { c.Producer.Count = -1 }},
		{"bad producer retry", func(c *Config) { c.Producer.Retry.InitialDelay = Duration(-1) }},
		{"unnamed consumer", func(c *Config) { c.Consumers[0].Name = "" }},
		{"duplicate consumer", func(c *Config) { c.Consumers[1].Name = c.Consumers[0].Name }},
		{"unknown mode", func(c *Config) { c.Consumers[0].Mode = "stream" }},
		{"negative batch", func(c *Config) { c.Consumers[0].BatchSize = -4 }},
		{"negative join delay", func(c *Config) { c.Consumers[1].JoinDelay = Duration(-time.Second) }},
		{"poll above max", func(c *Config) {
			c.Consumers[0].PollInterval = Duration(time.Second)
			c.Consumers[0].MaxPollInterval = Duration(time.Millisecond)
		}},
		{"metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"degraded above one", func(c *Config) { c.Health.DegradedAt = 1.5 }},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Consumers = DefaultConsumers()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "got %v", err)
		})
	}

	t.Run("metrics disabled skips port check", func(t *testing.T) {
		cfg := Default()
		cfg.Metrics.Enabled = false
		cfg.Metrics.Port = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestConsumerConfig_Reader(t *testing.T) {
	c := ConsumerConfig{
		Name:            "indexer",
		Mode:            "batch",
		BatchSize:       16,
		PollInterval:    Duration(time.Millisecond),
		MaxPollInterval: Duration(10 * time.Millisecond),
		LeaveAfter:      100,
	}

	rc, err := c.Reader()
	require.NoError(t, err)
	assert.Equal(t, "indexer", rc.Name)
	assert.Equal(t, tailreader.ModeBatch, rc.Mode)
	assert.Equal(t, 16, rc.BatchSize)
	assert.Equal(t, 100, rc.LeaveAfter)
	assert.Equal(t, time.Millisecond, rc.Poll.InitialDelay)
	assert.Equal(t, 10*time.Millisecond, rc.Poll.MaxDelay)

	c.PollInterval, c.MaxPollInterval = 0, 0
	rc, err = c.Reader()
	require.NoError(t, err)
	assert.Zero(t, rc.Poll, "unset intervals leave the reader default")

	c.Mode = "fanout"
	_, err = c.Reader()
	require.Error(t, err)
}

func TestDuration(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		var v struct {
			D Duration `json:"d"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"d": "1m30s"}`), &v))
		assert.Equal(t, 90*time.Second, v.D.Std())

		require.NoError(t, json.Unmarshal([]byte(`{"d": 1000}`), &v))
		assert.Equal(t, time.Microsecond, v.D.Std())

		require.NoError(t, json.Unmarshal([]byte(`{"d": "2d"}`), &v))
		assert.Equal(t, 48*time.Hour, v.D.Std())

		assert.Error(t, json.Unmarshal([]byte(`{"d": "later"}`), &v))
		assert.Error(t, json.Unmarshal([]byte(`{"d": true}`), &v))

		data, err := json.Marshal(Duration(1500 * time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, `"1.5s"`, string(data))
	})

	t.Run("YAML", func(t *testing.T) {
		var v struct {
			D Duration `yaml:"d"`
		}
		require.NoError(t, yaml.Unmarshal([]byte("d: 250ms"), &v))
		assert.Equal(t, 250*time.Millisecond, v.D.Std())

		require.NoError(t, yaml.Unmarshal([]byte("d: 42"), &v))
		assert.Equal(t, Duration(42), v.D)

		assert.Error(t, yaml.Unmarshal([]byte("d: [1, 2]"), &v))
		assert.Error(t, yaml.Unmarshal([]byte("d: whenever"), &v))

		out, err := yaml.Marshal(struct {
			D Duration `yaml:"d"`
		}{Duration(time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, "d: 1m0s\n", string(out))
	})
}

func TestConfig_SaveAndReload(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Ring.Capacity = 32
	cfg.Consumers = []ConsumerConfig{{Name: "only", Mode: "batch", JoinDelay: Duration(time.Second)}}

	for _, name := range []string{"saved.json", "saved.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, cfg.SaveToFile(path))

			loaded, err := NewLoader().LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	cfg.Consumers = DefaultConsumers()

	clone := cfg.Clone()
	assert.Equal(t, cfg, clone)

	clone.Consumers[0].Name = "changed"
	clone.Ring.Capacity = 2
	assert.Equal(t, "fast", cfg.Consumers[0].Name)
	assert.Equal(t, 1024, cfg.Ring.Capacity)

	var nilCfg *Config
	assert.Equal(t, Default(), nilCfg.Clone())
}

func TestSafeConfig_ThreadSafety(t *testing.T) {
	base := Default()
	base.Consumers = DefaultConsumers()
	safe := NewSafeConfig(base)

	const goroutines = 20
	const operations = 200

	var wg sync.WaitGroup
	errs := make(chan error, goroutines)

	for i := 0; i < goroutines/2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				cfg := safe.Get()
				if cfg.Ring.Capacity != 1024 && cfg.Ring.Capacity != 2048 {
					errs <- fmt.Errorf("unexpected capacity %d", cfg.Ring.Capacity)
					return
				}
				cfg.Ring.Capacity = 3 // must not leak into the shared copy
			}
		}()
	}

	for i := 0; i < goroutines/2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operations/10; j++ {
				next := Default()
				next.Ring.Capacity = 2048
				if err := safe.Update(next); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestSafeConfig_Update(t *testing.T) {
	safe := NewSafeConfig(nil)
	assert.Equal(t, Default(), safe.Get())

	err := safe.Update(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	bad := Default()
	bad.Ring.Capacity = 0
	require.Error(t, safe.Update(bad))
	assert.Equal(t, 1024, safe.Get().Ring.Capacity, "rejected update leaves config alone")

	good := Default()
	good.Ring.Capacity = 64
	require.NoError(t, safe.Update(good))
	good.Ring.Capacity = 8
	assert.Equal(t, 64, safe.Get().Ring.Capacity, "caller mutations after Update do not leak")
}

func TestLoader_SampleConfigs(t *testing.T) {
	for _, name := range []string{"ring.yaml", "ring.json"} {
		t.Run(name, func(t *testing.T) {
			path, err := filepath.Abs(filepath.Join("..", "configs", name))
			require.NoError(t, err)

			loader := NewLoader()
			loader.EnableValidation(true)
			cfg, err := loader.LoadFile(path)
			require.NoError(t, err)

			assert.Equal(t, "main", cfg.Ring.Name)
			assert.NotEmpty(t, cfg.Consumers)
			for _, c := range cfg.Consumers {
				_, err := c.Reader()
				assert.NoError(t, err, c.Name)
			}
		})
	}
}

func TestLoader_NestingLimits(t *testing.T) {
	nested := strings.Repeat("[", 500) + strings.Repeat("]", 500)

	for _, tt := range []struct {
		name, file, content, want string
	}{
		{"JSON", "deep.json", `{"x": ` + nested + `}`, "JSON nesting too deep"},
		{"YAML", "deep.yaml", "x: " + nested + "\n", "YAML nesting too deep"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := NewLoader().LoadFile(path)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), tt.want)
			assert.NotContains(t, err.Error(), "not found in type", "rejected before decoding")
		})
	}

	t.Run("YAML within limit", func(t *testing.T) {
		ok := strings.Repeat("[", maxLayerDepth-1) + strings.Repeat("]", maxLayerDepth-1)
		assert.NoError(t, checkYAMLDepth([]byte("x: "+ok+"\n")))
	})
}

func TestCheckYAMLDepth_Aliases(t *testing.T) {
	var b strings.Builder
	b.WriteString("base: &a [1, 2]\nrefs:\n")
	for i := 0; i <= maxYAMLAliases; i++ {
		b.WriteString("  - *a\n")
	}

	err := checkYAMLDepth([]byte(b.String()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many aliases")

	assert.NoError(t, checkYAMLDepth([]byte("base: &a [1]\nref: *a\n")))
}
