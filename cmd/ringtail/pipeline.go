package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/ringtail/config"
	"github.com/c360/ringtail/errors"
	"github.com/c360/ringtail/health"
	"github.com/c360/ringtail/metric"
	"github.com/c360/ringtail/pkg/retry"
	"github.com/c360/ringtail/pkg/ringbuffer"
	"github.com/c360/ringtail/pkg/tailreader"
)

// event is the payload the demo producer pushes.
type event struct {
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`
}

// pipeline wires one producer and a set of tail readers to a shared ring.
type pipeline struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	monitor  *health.Monitor
	ring     *ringbuffer.MultiTail[event]
	readers  []*consumer
	statsOut io.Writer
}

type consumer struct {
	cfg    config.ConsumerConfig
	reader *tailreader.Reader[event]
	done   atomic.Bool
}

// settled reports whether the consumer has exited or its tail has caught up.
// A consumer still waiting to join is never settled.
func (c *consumer) settled(ring *ringbuffer.MultiTail[event]) bool {
	if c.done.Load() {
		return true
	}
	id, ok := c.reader.TailID()
	return ok && ring.SizeTail(id) == 0
}

func newPipeline(cfg *config.Config, logger *slog.Logger, statsOut io.Writer) (*pipeline, error) {
	p := &pipeline{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
		monitor:  health.NewMonitor(),
		statsOut: statsOut,
	}

	ringOpts := []ringbuffer.Option[event]{
		ringbuffer.WithLogger[event](logger),
	}
	if cfg.Metrics.Enabled {
		ringOpts = append(ringOpts, ringbuffer.WithMetrics[event](p.registry, cfg.Ring.Name))
	}
	if cfg.Ring.KeepReleased {
		ringOpts = append(ringOpts, ringbuffer.WithKeepReleased[event]())
	}

	ring, err := ringbuffer.NewMultiTail[event](cfg.Ring.Capacity, ringOpts...)
	if err != nil {
		return nil, fmt.Errorf("create ring: %w", err)
	}
	p.ring = ring

	for _, cc := range cfg.Consumers {
		rc, err := cc.Reader()
		if err != nil {
			return nil, fmt.Errorf("consumer %q: %w", cc.Name, err)
		}
		// Out-of-order delivery stops the reader.
		rc.StopOnError = true

		reader, err := tailreader.New[event](ring, rc,
			tailreader.WithLogger(logger),
			tailreader.WithMetrics(p.registry.CoreMetrics()))
		if err != nil {
			return nil, fmt.Errorf("consumer %q: %w", cc.Name, err)
		}
		p.readers = append(p.readers, &consumer{cfg: cc, reader: reader})
	}

	return p, nil
}

// Run blocks until ctx is done, a component fails, or a bounded producer
// has finished and every tail has drained.
func (p *pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if p.cfg.Metrics.Enabled {
		server := metric.NewServer(p.cfg.Metrics.Port, p.cfg.Metrics.Path, p.registry, p.monitor)
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			return server.Stop(stopCtx)
		})
		p.logger.Info("Metrics server enabled", "address", server.Address())
	}

	if interval := p.cfg.Health.Interval.Std(); interval > 0 {
		g.Go(func() error {
			p.watchHealth(gctx, interval)
			return nil
		})
	}

	if interval := p.cfg.Stats.Interval.Std(); interval > 0 {
		g.Go(func() error {
			p.reportStats(gctx, interval)
			return nil
		})
	}

	for _, c := range p.readers {
		c := c
		g.Go(func() error {
			return p.runConsumer(gctx, c)
		})
	}

	g.Go(func() error {
		if err := p.runProducer(gctx); err != nil {
			return err
		}
		if p.cfg.Producer.Count > 0 {
			p.waitForDrain(gctx)
			p.logger.Info("Producer finished and tails drained, stopping",
				"count", p.cfg.Producer.Count)
			cancel()
		}
		return nil
	})

	err := g.Wait()
	p.report()
	return err
}

// runProducer pushes sequenced events, backing off while the ring is full.
func (p *pipeline) runProducer(ctx context.Context) error {
	name := p.cfg.Producer.Name
	core := p.registry.CoreMetrics()
	retryCfg := p.cfg.Producer.Retry.Std()
	interval := p.cfg.Producer.Interval.Std()
	logger := p.logger.With("producer", name)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	logger.Info("Producer started", "interval", interval, "count", p.cfg.Producer.Count)

	var seq uint64
	for p.cfg.Producer.Count == 0 || seq < uint64(p.cfg.Producer.Count) {
		if err := limiter.Wait(ctx); err != nil {
			logger.Info("Producer stopped", "pushed", seq)
			return nil
		}

		err := ringbuffer.PushContext[event](ctx, p.ring, event{Seq: seq, At: time.Now()}, retryCfg)
		switch {
		case err == nil:
			core.RecordPush(name, "accepted")
			seq++
		case ctx.Err() != nil:
			logger.Info("Producer stopped", "pushed", seq)
			return nil
		case stderrors.Is(err, errors.ErrRingFull):
			// The event is dropped; the next one keeps the sequence contiguous.
			core.RecordPush(name, "dropped")
			logger.Debug("Ring full, event dropped", "seq", seq)
		default:
			return errors.Wrap(err, "producer", "runProducer", "push event")
		}
	}

	logger.Info("Producer reached count", "pushed", seq)
	return nil
}

// runConsumer waits out the join delay and then drives one tail reader.
func (p *pipeline) runConsumer(ctx context.Context, c *consumer) error {
	defer c.done.Store(true)

	if delay := c.cfg.JoinDelay.Std(); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	var (
		last    uint64
		started bool
	)
	work := c.cfg.Work.Std()

	handler := func(ctx context.Context, items []event) error {
		for _, ev := range items {
			if started && ev.Seq <= last {
				return errors.WrapFatal(
					fmt.Errorf("sequence %d after %d", ev.Seq, last),
					"consumer", c.cfg.Name, "check order")
			}
			last, started = ev.Seq, true
		}
		if work > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(work):
			}
		}
		return nil
	}

	return c.reader.Run(ctx, handler)
}

// waitForDrain returns once every consumer has settled, or when ctx is done.
func (p *pipeline) waitForDrain(ctx context.Context) {
	backoff := retry.NewBackoff(retry.Poll())
	for {
		if p.drained() {
			return
		}
		if err := backoff.Wait(ctx); err != nil {
			return
		}
	}
}

func (p *pipeline) drained() bool {
	for _, c := range p.readers {
		if !c.settled(p.ring) {
			return false
		}
	}
	return true
}

func (p *pipeline) watchHealth(ctx context.Context, interval time.Duration) {
	name := p.cfg.Ring.Name
	core := p.registry.CoreMetrics()
	var previous string

	p.monitor.Watch(ctx, name, interval, func() health.Status {
		status := health.RingStatus(name, p.ring, p.cfg.Health.DegradedAt)
		core.RecordHealthStatus(name, status.Status)
		if status.Status != previous {
			p.logger.Info("Ring health changed",
				"ring", name,
				"status", status.Status,
				"message", status.Message)
			previous = status.Status
		}
		return status
	})
}

// statsReport is the JSON line written on every stats tick.
type statsReport struct {
	Time      time.Time               `json:"time"`
	Ring      string                  `json:"ring"`
	Size      int                     `json:"size"`
	Capacity  int                     `json:"capacity"`
	Head      int                     `json:"head"`
	Converged int                     `json:"converged"`
	Stats     ringbuffer.StatsSummary `json:"stats"`
	Tails     []ringbuffer.TailInfo   `json:"tails"`
	Readers   []tailreader.Stats      `json:"readers"`
}

func (p *pipeline) reportStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.report()
		}
	}
}

func (p *pipeline) snapshot() statsReport {
	report := statsReport{
		Time:      time.Now(),
		Ring:      p.cfg.Ring.Name,
		Size:      p.ring.Size(),
		Capacity:  p.ring.MaxSize() - 1,
		Head:      p.ring.Head(),
		Converged: p.ring.ConvergedTail(),
		Stats:     p.ring.Stats().Summary(),
		Tails:     p.ring.Tails(),
	}
	for _, c := range p.readers {
		report.Readers = append(report.Readers, c.reader.Stats())
	}
	return report
}

func (p *pipeline) report() {
	report := p.snapshot()

	p.logger.Info("Ring statistics",
		"ring", report.Ring,
		"size", report.Size,
		"capacity", report.Capacity,
		"tails", len(report.Tails),
		"pushes", report.Stats.Pushes,
		"rejects", report.Stats.Rejects,
		"pulled", report.Stats.Pulled,
		"released", report.Stats.Released,
		"peak", report.Stats.PeakOccupancy,
		"throughput", report.Stats.Throughput)

	if !p.cfg.Stats.JSON || p.statsOut == nil {
		return
	}

	data, err := sonnet.Marshal(report)
	if err != nil {
		p.logger.Warn("Failed to encode statistics", "error", err)
		return
	}
	if _, err := p.statsOut.Write(append(data, '\n')); err != nil {
		p.logger.Warn("Failed to write statistics", "error", err)
	}
}
