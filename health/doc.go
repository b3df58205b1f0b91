// Package health provides health monitoring for rings and the components
// around them, with thread-safe status tracking and aggregation.
//
// # Health States
//
//   - Healthy: operating normally
//   - Degraded: operating, but close to stalling
//   - Unhealthy: not making progress
//
// For a ring the producer's view decides: a full ring is unhealthy because
// every push is rejected until the slowest tail advances; a ring without
// tails, or above a utilization threshold, is degraded.
//
// # Usage
//
//	monitor := health.NewMonitor()
//	go monitor.Watch(ctx, "ring", time.Second, func() health.Status {
//	    return health.RingStatus("ring", ring, 0.8)
//	})
//
//	status := monitor.AggregateHealth("ringtail")
//	if status.IsUnhealthy() {
//	    // alert
//	}
//
// Aggregation rules: any unhealthy sub-status makes the aggregate unhealthy;
// otherwise any degraded sub-status makes it degraded; otherwise healthy.
// An empty monitor aggregates to healthy.
package health
