// Package config defines service configuration structures and loading.
//
// Conventions:
// - Defaults live in New; Load layers an optional YAML file and env vars.
// - Fields carry koanf tags matching LEADENGINE_* env keys.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabasePath points at the SQLite record store. ":memory:" runs
	// fully in process.
	DatabasePath string `koanf:"database_path"`

	// CacheSweepSeconds sets the cache's active expiry sweep interval.
	CacheSweepSeconds int `koanf:"cache_sweep_seconds"`

	// RateLimitMax and RateLimitWindowSeconds bound mutating API calls
	// per client within a sliding window.
	RateLimitMax           int `koanf:"rate_limit_max"`
	RateLimitWindowSeconds int `koanf:"rate_limit_window_seconds"`

	// PredictionCacheSeconds is the TTL for cached prediction results.
	PredictionCacheSeconds int `koanf:"prediction_cache_seconds"`

	// FollowUpHour is the local hour of day follow-up reminders fire.
	FollowUpHour int `koanf:"followup_hour"`

	// RescoreWorkers bounds batch rescoring concurrency. 1 keeps the
	// default sequential behavior.
	RescoreWorkers int `koanf:"rescore_workers"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":8090",
		DatabasePath:           "leadengine.db",
		CacheSweepSeconds:      60,
		RateLimitMax:           120,
		RateLimitWindowSeconds: 60,
		PredictionCacheSeconds: 120,
		FollowUpHour:           9,
		RescoreWorkers:         1,
	}
}
