// Package config provides configuration loading for ringtail.
//
// Configuration is built in layers: the built-in Default(), then each file
// added to a Loader in order, then RINGTAIL_* environment variables. Files
// may be JSON or YAML; the extension picks the decoder. Unknown keys are
// rejected so that a typo does not silently fall back to a default.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/production.json") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Durations
//
// Duration fields accept Go duration strings ("250ms", "5s") plus a day
// suffix ("14d"). Bare numbers are read as nanoseconds.
//
// # Environment Overrides
//
//	RINGTAIL_RING_NAME, RINGTAIL_RING_CAPACITY, RINGTAIL_RING_KEEP_RELEASED
//	RINGTAIL_PRODUCER_NAME, RINGTAIL_PRODUCER_INTERVAL, RINGTAIL_PRODUCER_COUNT
//	RINGTAIL_METRICS_ENABLED, RINGTAIL_METRICS_PORT, RINGTAIL_METRICS_PATH
//	RINGTAIL_HEALTH_INTERVAL, RINGTAIL_HEALTH_DEGRADED_AT
//	RINGTAIL_STATS_INTERVAL, RINGTAIL_STATS_JSON
//	RINGTAIL_LOG_LEVEL, RINGTAIL_LOG_FORMAT
//
// A value that does not parse is an invalid-config error rather than being
// ignored.
//
// # Thread-Safe Access
//
// SafeConfig guards a Config with an RWMutex and hands out deep copies:
//
//	safe := config.NewSafeConfig(cfg)
//	current := safe.Get()          // caller owns the copy
//	err := safe.Update(newConfig)  // validated before it is swapped in
package config
