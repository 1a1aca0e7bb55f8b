// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkeep/ledgersync/internal/logger"
)

// fakeClock записывает запрошенные задержки и позволяет управлять таймерами
// вручную, без реального времени.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
	timers []chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.delays = append(c.delays, d)
	c.timers = append(c.timers, ch)
	return ch
}

func (c *fakeClock) fire(i int) {
	c.mu.Lock()
	ch := c.timers[i]
	c.mu.Unlock()
	ch <- time.Time{}
}

func (c *fakeClock) delayList() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.delays))
	copy(out, c.delays)
	return out
}

func waitSignal(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func newTestMonitor(t *testing.T, maxAttempts int) (*connectionMonitor, *fakeClock, StatusBroadcaster, chan struct{}, chan struct{}) {
	t.Helper()
	clock := newFakeClock()
	status := NewStatusBroadcaster(logger.Nop())
	m := NewConnectionMonitor(status, clock, time.Second, maxAttempts, logger.Nop())

	drained := make(chan struct{}, 16)
	reopened := make(chan struct{}, 16)
	m.Bind(
		func(context.Context) { reopened <- struct{}{} },
		func(context.Context) { drained <- struct{}{} },
	)
	m.Start(context.Background())
	t.Cleanup(m.Stop)

	return m, clock, status, drained, reopened
}

// ── SetNetworkAvailable ──────────────────────────────────────────────────────

func TestConnectionMonitor_NetworkUpTriggersDrainAndReopen(t *testing.T) {
	m, _, status, drained, reopened := newTestMonitor(t, 5)

	assert.Equal(t, StateOffline, m.State())
	m.SetNetworkAvailable(true)

	waitSignal(t, drained, "drain was not triggered")
	waitSignal(t, reopened, "reopen was not triggered")
	assert.Equal(t, StateOnlineDisconnected, m.State())
	assert.True(t, status.Current().IsOnline)
}

func TestConnectionMonitor_NetworkDownSuppressesReconnect(t *testing.T) {
	m, clock, status, _, _ := newTestMonitor(t, 5)

	m.SetNetworkAvailable(true)
	m.SetNetworkAvailable(false)
	m.OnChannelError(errors.New("stream reset"))

	assert.Equal(t, StateOffline, m.State())
	assert.Empty(t, clock.delayList(), "оффлайн не должен планировать реконнекты")
	assert.False(t, status.Current().IsOnline)
	assert.False(t, status.Current().IsChannelConnected)
}

func TestConnectionMonitor_NetworkUpIsIdempotent(t *testing.T) {
	m, _, _, drained, _ := newTestMonitor(t, 5)

	m.SetNetworkAvailable(true)
	waitSignal(t, drained, "drain was not triggered")
	m.SetNetworkAvailable(true)

	select {
	case <-drained:
		t.Fatal("second online signal must be a no-op")
	case <-time.After(50 * time.Millisecond):
	}
}

// ── Backoff ──────────────────────────────────────────────────────────────────

func TestConnectionMonitor_BackoffDelaysDouble(t *testing.T) {
	m, clock, _, _, reopened := newTestMonitor(t, 3)
	m.SetNetworkAvailable(true)
	waitSignal(t, reopened, "initial reopen was not triggered")

	streamErr := errors.New("stream reset")
	for i := 0; i < 3; i++ {
		m.OnChannelError(streamErr)
		require.Len(t, clock.delayList(), i+1, "reconnect must be scheduled")
		clock.fire(i)
		waitSignal(t, reopened, "scheduled reopen did not fire")
	}

	delays := clock.delayList()
	assert.Equal(t, time.Second, delays[0])
	assert.Equal(t, 2*time.Second, delays[1])
	assert.Equal(t, 4*time.Second, delays[2])
}

func TestConnectionMonitor_ExhaustionParksWithTerminalError(t *testing.T) {
	m, clock, status, _, reopened := newTestMonitor(t, 1)
	m.SetNetworkAvailable(true)
	waitSignal(t, reopened, "initial reopen was not triggered")

	streamErr := errors.New("stream reset")
	m.OnChannelError(streamErr)
	clock.fire(0)
	waitSignal(t, reopened, "scheduled reopen did not fire")

	// попытки исчерпаны — монитор паркуется до следующего сигнала сети
	m.OnChannelError(streamErr)
	assert.Len(t, clock.delayList(), 1)
	assert.Contains(t, status.Current().LastError, "reconnect attempts exhausted")

	m.OnChannelError(streamErr)
	assert.Len(t, clock.delayList(), 1, "parked monitor must not schedule")
}

func TestConnectionMonitor_NetworkCycleResetsParkedState(t *testing.T) {
	m, clock, _, _, reopened := newTestMonitor(t, 1)
	m.SetNetworkAvailable(true)
	waitSignal(t, reopened, "initial reopen was not triggered")

	streamErr := errors.New("stream reset")
	m.OnChannelError(streamErr)
	clock.fire(0)
	waitSignal(t, reopened, "scheduled reopen did not fire")
	m.OnChannelError(streamErr) // паркуемся

	m.SetNetworkAvailable(false)
	m.SetNetworkAvailable(true)
	waitSignal(t, reopened, "reopen after reconnect was not triggered")

	m.OnChannelError(streamErr)
	assert.Len(t, clock.delayList(), 2, "fresh online signal must re-arm the backoff")
}

// ── OnChannelConnected ───────────────────────────────────────────────────────

func TestConnectionMonitor_ConnectedResetsBackoff(t *testing.T) {
	m, clock, status, _, reopened := newTestMonitor(t, 5)
	m.SetNetworkAvailable(true)
	waitSignal(t, reopened, "initial reopen was not triggered")

	streamErr := errors.New("stream reset")
	m.OnChannelError(streamErr)
	clock.fire(0)
	waitSignal(t, reopened, "scheduled reopen did not fire")

	m.OnChannelConnected()
	assert.Equal(t, StateOnlineConnected, m.State())
	assert.True(t, status.Current().IsChannelConnected)

	m.OnChannelError(streamErr)
	delays := clock.delayList()
	require.Len(t, delays, 2)
	assert.Equal(t, delays[0], delays[1], "успешное подключение сбрасывает backoff")
}

func TestConnectionMonitor_ConnectedAfterDisconnectTriggersDrain(t *testing.T) {
	m, _, _, drained, _ := newTestMonitor(t, 5)

	m.SetNetworkAvailable(true)
	waitSignal(t, drained, "drain on network up was not triggered")

	m.OnChannelConnected()
	waitSignal(t, drained, "drain on channel connect was not triggered")
}

func TestConnectionMonitor_ProbeSuccessActsAsConnect(t *testing.T) {
	m, _, status, _, _ := newTestMonitor(t, 5)

	m.SetNetworkAvailable(true)
	m.OnProbeSuccess()

	assert.Equal(t, StateOnlineConnected, m.State())
	assert.True(t, status.Current().IsChannelConnected)
}
