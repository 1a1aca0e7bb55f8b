// Package workers hosts the engine's background jobs.
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerkeep/ledgersync/internal/adapter"
	"github.com/ledgerkeep/ledgersync/internal/service"
)

// ProbeWorker periodically issues a lightweight health probe while a push
// channel is believed healthy, catching half-open connections that the
// stream itself has not noticed yet.
type ProbeWorker struct {
	backend adapter.BackendAdapter
	monitor service.ConnectionMonitor

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProbeWorker creates a ProbeWorker. The worker is idle until Start is
// called.
func NewProbeWorker(backend adapter.BackendAdapter, monitor service.ConnectionMonitor) *ProbeWorker {
	return &ProbeWorker{backend: backend, monitor: monitor}
}

// Start stops any previously running worker, then launches a background
// goroutine that probes every interval. If interval is zero or negative it
// defaults to 30 seconds. The goroutine exits when ctx is cancelled or Stop
// is called.
func (w *ProbeWorker) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	w.Stop()

	w.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				w.probe(jobCtx)
			}
		}
	}()
}

// probe checks backend reachability only while the monitor believes a
// channel is healthy; while disconnected the reconnect backoff owns the
// recovery cadence.
func (w *ProbeWorker) probe(ctx context.Context) {
	if w.monitor.State() != service.StateOnlineConnected {
		return
	}

	if err := w.backend.HealthProbe(ctx); err != nil {
		w.monitor.OnChannelError(err)
		return
	}
	w.monitor.OnProbeSuccess()
}

// Stop cancels the background goroutine's context and blocks until it has
// fully exited. Safe to call when the worker is not running.
func (w *ProbeWorker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}
