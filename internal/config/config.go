// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"time"
)

// StructuredConfig is the top-level configuration container for the
// ledgersync engine. It is populated by merging environment variables over
// built-in defaults.
//
// Struct tags:
//   - envPrefix — prefix applied to all nested env tag lookups (caarlos0/env).
//   - env       — direct environment variable name for scalar fields.
//
// All variables share the LEDGERSYNC_ prefix.
type StructuredConfig struct {
	// Backend holds the remote backend endpoint and credentials.
	Backend Backend `envPrefix:"LEDGERSYNC_BACKEND_"`

	// Storage holds the local durable-queue database settings.
	Storage Storage `envPrefix:"LEDGERSYNC_STORAGE_"`

	// Sync holds retry, backoff, and probe tuning for the engine.
	Sync Sync `envPrefix:"LEDGERSYNC_SYNC_"`
}

// Backend holds connection settings for the managed backend the engine
// synchronises against.
type Backend struct {
	// BaseURL is the backend's REST endpoint, e.g. "https://api.example.com".
	// Env: LEDGERSYNC_BACKEND_BASE_URL
	BaseURL string `env:"BASE_URL"`

	// APIKey is the project API key attached to every request.
	// Env: LEDGERSYNC_BACKEND_API_KEY
	APIKey string `env:"API_KEY"`

	// RequestTimeout is the maximum duration for a single outbound request
	// (e.g. "15s"). Mutation calls never block past this bound.
	// Env: LEDGERSYNC_BACKEND_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
}

// Storage holds local persistence settings for the offline queue.
type Storage struct {
	// QueueDSN is the SQLite path for the pending-operations database.
	// ":memory:" keeps the queue in memory (tests only, no durability).
	// Env: LEDGERSYNC_STORAGE_QUEUE_DSN
	QueueDSN string `env:"QUEUE_DSN"`
}

// Sync holds retry and health-probe tuning for the engine's background
// machinery.
type Sync struct {
	// MaxRetries caps how many drain attempts a pending operation gets
	// before it is dropped and recorded as a terminal sync error.
	// Env: LEDGERSYNC_SYNC_MAX_RETRIES
	MaxRetries int `env:"MAX_RETRIES"`

	// ReconnectBase is the base delay of the exponential reconnect backoff
	// (delays grow base, 2*base, 4*base, ...).
	// Env: LEDGERSYNC_SYNC_RECONNECT_BASE
	ReconnectBase time.Duration `env:"RECONNECT_BASE"`

	// ReconnectAttempts caps consecutive reconnect attempts before the
	// monitor parks until the next explicit online transition.
	// Env: LEDGERSYNC_SYNC_RECONNECT_ATTEMPTS
	ReconnectAttempts int `env:"RECONNECT_ATTEMPTS"`

	// ProbeInterval is the period of the health probe issued while channels
	// are open.
	// Env: LEDGERSYNC_SYNC_PROBE_INTERVAL
	ProbeInterval time.Duration `env:"PROBE_INTERVAL"`
}

// defaults returns the built-in configuration that env values are merged
// over. The numbers mirror the engine's documented behaviour: 15s request
// timeout, 5 bounded retries, 1s backoff base with 5 attempts, 30s probe.
func defaults() *StructuredConfig {
	return &StructuredConfig{
		Backend: Backend{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 15 * time.Second,
		},
		Storage: Storage{
			QueueDSN: "ledgersync-queue.db",
		},
		Sync: Sync{
			MaxRetries:        5,
			ReconnectBase:     time.Second,
			ReconnectAttempts: 5,
			ProbeInterval:     30 * time.Second,
		},
	}
}

// GetConfig loads, merges, and validates the engine configuration:
// environment variables first, built-in defaults filling the gaps.
//
// Returns a fully populated *StructuredConfig or an error if the env source
// fails to parse or the final config fails validation.
func GetConfig() (*StructuredConfig, error) {
	return newConfigBuilder().
		withEnv().
		withDefaults().
		build()
}
