// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ledgerkeep/ledgersync/internal/logger"
)

type connectionMonitor struct {
	logger *logger.Logger
	status StatusBroadcaster
	clock  Clock

	reconnectBase time.Duration
	maxAttempts   uint64

	reopen func(ctx context.Context)
	drain  func(ctx context.Context)

	mu          sync.Mutex
	ctx         context.Context
	state       ConnState
	backoff     retry.Backoff
	parked      bool
	timerCancel chan struct{}
}

// NewConnectionMonitor builds the monitor in the offline state. The host
// feeds the initial platform signal through SetNetworkAvailable after
// Start.
func NewConnectionMonitor(
	status StatusBroadcaster,
	clock Clock,
	reconnectBase time.Duration,
	maxAttempts int,
	logger *logger.Logger,
) *connectionMonitor {
	m := &connectionMonitor{
		logger:        logger,
		status:        status,
		clock:         clock,
		reconnectBase: reconnectBase,
		maxAttempts:   uint64(maxAttempts),
		ctx:           context.Background(),
		state:         StateOffline,
	}
	m.resetBackoffLocked()
	return m
}

// Bind wires the reconnect hooks. Called once during service assembly,
// before Start; the monitor, the subscription manager and the queue
// processor reference each other, so the cycle is closed here instead of
// in constructors.
func (m *connectionMonitor) Bind(reopen func(ctx context.Context), drain func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reopen = reopen
	m.drain = drain
}

func (m *connectionMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
	m.resetBackoffLocked()
}

func (m *connectionMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelTimerLocked()
}

func (m *connectionMonitor) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *connectionMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != StateOffline
}

func (m *connectionMonitor) SetNetworkAvailable(online bool) {
	if online {
		m.networkUp()
		return
	}
	m.networkDown()
}

func (m *connectionMonitor) networkUp() {
	m.mu.Lock()
	if m.state != StateOffline {
		m.mu.Unlock()
		return
	}
	m.state = StateOnlineDisconnected
	m.parked = false
	m.resetBackoffLocked()
	ctx := m.ctx
	drain, reopen := m.drain, m.reopen
	m.mu.Unlock()

	m.logger.Info().
		Str("func", "connectionMonitor.SetNetworkAvailable").
		Msg("network available; draining queue and reopening channels")
	m.status.SetOnline(true)

	go func() {
		if drain != nil {
			drain(ctx)
		}
		if reopen != nil {
			reopen(ctx)
		}
	}()
}

func (m *connectionMonitor) networkDown() {
	m.mu.Lock()
	if m.state == StateOffline {
		m.mu.Unlock()
		return
	}
	m.state = StateOffline
	m.parked = false
	m.cancelTimerLocked()
	m.mu.Unlock()

	m.logger.Info().
		Str("func", "connectionMonitor.SetNetworkAvailable").
		Msg("network lost; reconnect attempts suspended")
	m.status.SetOnline(false)
	m.status.SetChannelConnected(false)
}

func (m *connectionMonitor) OnChannelConnected() { m.markConnected() }

func (m *connectionMonitor) OnProbeSuccess() { m.markConnected() }

func (m *connectionMonitor) markConnected() {
	m.mu.Lock()
	if m.state == StateOffline {
		// stale signal from a channel that raced the platform going down
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = StateOnlineConnected
	m.parked = false
	m.resetBackoffLocked()
	m.cancelTimerLocked()
	ctx := m.ctx
	drain := m.drain
	m.mu.Unlock()

	m.status.SetChannelConnected(true)

	// Regaining the channel means the backend is reachable again, so any
	// operations queued during the outage can go out now.
	if prev == StateOnlineDisconnected && drain != nil {
		go drain(ctx)
	}
}

func (m *connectionMonitor) OnChannelError(err error) {
	m.mu.Lock()
	if m.state == StateOffline {
		m.mu.Unlock()
		return
	}
	m.state = StateOnlineDisconnected

	if m.parked || m.timerCancel != nil {
		m.mu.Unlock()
		m.status.SetChannelConnected(false)
		return
	}

	delay, stop := m.backoff.Next()
	if stop {
		m.parked = true
		m.mu.Unlock()

		m.status.SetChannelConnected(false)
		m.status.RecordError(fmt.Sprintf("reconnect attempts exhausted: %v", err))
		m.logger.Warn().
			Str("func", "connectionMonitor.OnChannelError").
			Uint64("max_attempts", m.maxAttempts).
			Msg("reconnect attempts exhausted; waiting for a connectivity signal")
		return
	}

	cancel := make(chan struct{})
	m.timerCancel = cancel
	ctx := m.ctx
	reopen := m.reopen
	m.mu.Unlock()

	m.status.SetChannelConnected(false)
	m.logger.Info().
		Str("func", "connectionMonitor.OnChannelError").
		Err(err).
		Dur("delay", delay).
		Msg("push channel lost; reconnect scheduled")

	// The timer is armed before the goroutine starts, so callers observe the
	// scheduled reconnect as soon as OnChannelError returns.
	timer := m.clock.After(delay)
	go func() {
		select {
		case <-timer:
		case <-cancel:
			return
		case <-ctx.Done():
			return
		}

		m.mu.Lock()
		if m.timerCancel == cancel {
			m.timerCancel = nil
		}
		fire := m.state == StateOnlineDisconnected
		m.mu.Unlock()

		if fire && reopen != nil {
			reopen(ctx)
		}
	}()
}

func (m *connectionMonitor) resetBackoffLocked() {
	m.backoff = retry.WithMaxRetries(m.maxAttempts, retry.NewExponential(m.reconnectBase))
}

func (m *connectionMonitor) cancelTimerLocked() {
	if m.timerCancel != nil {
		close(m.timerCancel)
		m.timerCancel = nil
	}
}
