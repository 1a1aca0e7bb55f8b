package config

import "errors"

var (
	ErrEmptyBackendBaseURL = errors.New("backend base url is empty")
	ErrEmptyQueueDSN       = errors.New("queue dsn is empty")
	ErrBadMaxRetries       = errors.New("max retries must be positive")
	ErrBadReconnectBase    = errors.New("reconnect base must be positive")
	ErrBadProbeInterval    = errors.New("probe interval must be positive")
)
