package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"github.com/c360/ringtail/config"
)

func TestParseFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := parseFlags(nil)
		require.NoError(t, err)
		assert.Empty(t, cfg.ConfigPath)
		assert.Empty(t, cfg.LogLevel)
		assert.Zero(t, cfg.MetricsPort)
		assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
		assert.False(t, cfg.Validate)
	})

	t.Run("overrides", func(t *testing.T) {
		cfg, err := parseFlags([]string{
			"-c", "ring.yaml",
			"--log-format=text",
			"--metrics-port=-1",
			"--stats-json",
			"--shutdown-timeout=3s",
			"--validate",
		})
		require.NoError(t, err)
		assert.Equal(t, "ring.yaml", cfg.ConfigPath)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, -1, cfg.MetricsPort)
		assert.True(t, cfg.StatsJSON)
		assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
		assert.True(t, cfg.Validate)
	})

	t.Run("debug forces debug level", func(t *testing.T) {
		cfg, err := parseFlags([]string{"--log-level=warn", "--debug"})
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("environment fallback", func(t *testing.T) {
		t.Setenv("RINGTAIL_SHUTDOWN_TIMEOUT", "42s")
		t.Setenv("RINGTAIL_STATS_JSON", "true")
		cfg, err := parseFlags(nil)
		require.NoError(t, err)
		assert.Equal(t, 42*time.Second, cfg.ShutdownTimeout)
		assert.True(t, cfg.StatsJSON)
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, err := parseFlags([]string{"--nope"})
		assert.Error(t, err)
	})
}

func TestValidateFlags(t *testing.T) {
	base := func() *CLIConfig {
		return &CLIConfig{ShutdownTimeout: time.Second}
	}

	tests := []struct {
		name    string
		mutate  func(*CLIConfig)
		wantErr bool
	}{
		{"defaults", func(*CLIConfig) {}, false},
		{"missing config file", func(c *CLIConfig) { c.ConfigPath = "/does/not/exist.yaml" }, true},
		{"bad log level", func(c *CLIConfig) { c.LogLevel = "trace" }, true},
		{"bad log format", func(c *CLIConfig) { c.LogFormat = "xml" }, true},
		{"metrics disabled", func(c *CLIConfig) { c.MetricsPort = -1 }, false},
		{"metrics port out of range", func(c *CLIConfig) { c.MetricsPort = 70000 }, true},
		{"zero shutdown timeout", func(c *CLIConfig) { c.ShutdownTimeout = 0 }, true},
		{"version skips checks", func(c *CLIConfig) { c.ShowVersion = true; c.LogLevel = "trace" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := validateFlags(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := config.Default()
	applyFlagOverrides(cfg, &CLIConfig{
		LogLevel:    "debug",
		LogFormat:   "text",
		MetricsPort: 9300,
		StatsJSON:   true,
	})
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9300, cfg.Metrics.Port)
	assert.True(t, cfg.Stats.JSON)

	applyFlagOverrides(cfg, &CLIConfig{MetricsPort: -1})
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level, "empty flags keep config values")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "ring", "main")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, appName, entry["service"])
	assert.Equal(t, Version, entry["version"])
	assert.Equal(t, "main", entry["ring"])
}

func TestRun_Validate(t *testing.T) {
	t.Setenv("RINGTAIL_RING_CAPACITY", "64")
	assert.NoError(t, run([]string{"--validate", "--log-level=error"}))

	t.Setenv("RINGTAIL_RING_CAPACITY", "1")
	assert.Error(t, run([]string{"--validate", "--log-level=error"}))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Ring.Capacity = 16
	cfg.Producer.Interval = 0
	cfg.Metrics.Enabled = false
	cfg.Health.Interval = config.Duration(5 * time.Millisecond)
	cfg.Stats.Interval = 0
	cfg.Log.Level = "error"
	return cfg
}

func quietLogger() *slog.Logger {
	return newLogger(io.Discard, "error", "json")
}

func TestPipeline_BoundedRunDeliversEverything(t *testing.T) {
	cfg := testConfig()
	cfg.Producer.Count = 500
	cfg.Stats.JSON = true
	cfg.Consumers = []config.ConsumerConfig{
		{Name: "indexer", Mode: "batch", BatchSize: 8},
	}

	var out bytes.Buffer
	p, err := newPipeline(cfg, quietLogger(), &out)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))
	require.NoError(t, ctx.Err(), "pipeline stopped on its own")

	// Items pushed before the tail registered are still retained for it.
	stats := p.readers[0].reader.Stats()
	assert.Equal(t, int64(500), stats.Delivered)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, int64(500), p.ring.Stats().Pushes())

	var report statsReport
	line, err := bufio.NewReader(&out).ReadBytes('\n')
	require.NoError(t, err)
	require.NoError(t, sonnet.Unmarshal(line, &report))
	assert.Equal(t, "main", report.Ring)
	assert.Equal(t, 15, report.Capacity)
	assert.Equal(t, int64(500), report.Stats.Pushes)
	require.Len(t, report.Readers, 1)
	assert.Equal(t, "indexer", report.Readers[0].Name)
	assert.NotEmpty(t, report.Readers[0].Session)
}

func TestPipeline_IndependentConsumers(t *testing.T) {
	cfg := testConfig()
	cfg.Producer.Count = 1000
	cfg.Producer.Interval = config.Duration(50 * time.Microsecond)
	cfg.Consumers = []config.ConsumerConfig{
		{Name: "fast", Mode: "batch"},
		{Name: "slow", Mode: "single", Work: config.Duration(10 * time.Microsecond)},
		{Name: "leaver", Mode: "batch", BatchSize: 4, LeaveAfter: 10},
		{Name: "late", Mode: "single", JoinDelay: config.Duration(5 * time.Millisecond)},
	}

	p, err := newPipeline(cfg, quietLogger(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx), "no consumer saw items out of order")
	require.NoError(t, ctx.Err())

	for _, c := range p.readers {
		stats := c.reader.Stats()
		assert.Zero(t, stats.Failed, c.cfg.Name)
		assert.LessOrEqual(t, stats.Delivered, int64(1000), c.cfg.Name)
		assert.False(t, stats.Running, c.cfg.Name)
	}
	assert.Equal(t, int64(10), p.readers[2].reader.Stats().Delivered)
	assert.Zero(t, p.ring.TailCount(), "every tail removed on shutdown")
}

func TestPipeline_MetricsAndHealthEndpoints(t *testing.T) {
	cfg := testConfig()
	cfg.Producer.Interval = config.Duration(100 * time.Microsecond)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = freePort(t)
	cfg.Consumers = []config.ConsumerConfig{{Name: "reader", Mode: "batch"}}

	p, err := newPipeline(cfg, quietLogger(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	base := "http://localhost:" + strconv.Itoa(cfg.Metrics.Port)
	require.Eventually(t, func() bool {
		body, ok := fetch(base + "/metrics")
		return ok && bytes.Contains(body, []byte(`ringtail_ring_pushes_total{ring="main"}`))
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		body, ok := fetch(base + "/health")
		return ok && bytes.Contains(body, []byte(`"component":"main"`))
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}
}

func TestPipeline_InvalidConsumer(t *testing.T) {
	cfg := testConfig()
	cfg.Consumers = []config.ConsumerConfig{{Name: "bad", Mode: "fanout"}}

	_, err := newPipeline(cfg, quietLogger(), nil)
	assert.Error(t, err)
}

func fetch(url string) ([]byte, bool) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return body, err == nil
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
