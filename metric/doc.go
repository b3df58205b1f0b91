// Package metric provides Prometheus-based metrics collection and an HTTP
// server for ringtail monitoring.
//
// The package offers a centralized metrics registry holding both the shared
// core metrics (tail readers, producers, health) and per-ring collectors, and
// a server exposing them in Prometheus format next to a JSON health endpoint.
//
// # Architecture
//
//  1. Core Metrics: shared metrics registered automatically (Metrics type)
//  2. Registry: keyed registration for per-instance collectors (MetricsRegistrar interface)
//  3. HTTP Server: /metrics and /health (Server type)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	monitor := health.NewMonitor()
//	server := metric.NewServer(9090, "/metrics", registry, monitor)
//
//	go func() {
//		if err := server.Start(); err != nil {
//			logger.Error("Metrics server failed", "error", err)
//		}
//	}()
//	defer server.Stop(ctx)
//
//	ring, _ := ringbuffer.NewMultiTail[Event](4096,
//		ringbuffer.WithMetrics[Event](registry, "events"))
//
//	core := registry.CoreMetrics()
//	core.RecordPush("producer", "accepted")
//
// # Registration Keys
//
// Collectors are registered under a component name and a metric name. The
// same pair cannot be registered twice; UnregisterComponent removes every
// collector of one component, which is how a ring's metrics are dropped when
// the ring goes away.
//
// # Metric Naming
//
// All core metrics use the "ringtail" namespace:
//
//	ringtail_reader_status{reader}
//	ringtail_reader_items_total{reader}
//	ringtail_reader_handler_errors_total{reader}
//	ringtail_reader_handler_duration_seconds{reader}
//	ringtail_producer_pushes_total{producer,result}
//	ringtail_health_status{component}
//
// Ring collectors use the "ringtail_ring" prefix with a constant ring label.
//
// # Health Endpoint
//
// /health answers 200 with the aggregated JSON status while the system is
// healthy or degraded and 503 once any component is unhealthy. Without a
// HealthReporter it answers a plain "OK".
package metric
