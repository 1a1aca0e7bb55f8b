package config

import "errors"

// validate checks the merged configuration for values the engine cannot run
// with. All violations are reported together via errors.Join.
func (c *StructuredConfig) validate() error {
	var errs []error

	if c.Backend.BaseURL == "" {
		errs = append(errs, ErrEmptyBackendBaseURL)
	}
	if c.Storage.QueueDSN == "" {
		errs = append(errs, ErrEmptyQueueDSN)
	}
	if c.Sync.MaxRetries <= 0 {
		errs = append(errs, ErrBadMaxRetries)
	}
	if c.Sync.ReconnectBase <= 0 {
		errs = append(errs, ErrBadReconnectBase)
	}
	if c.Sync.ProbeInterval <= 0 {
		errs = append(errs, ErrBadProbeInterval)
	}

	return errors.Join(errs...)
}
