// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"time"

	"github.com/ledgerkeep/ledgersync/models"
)

// ChangeHandler receives server-originated row changes for one
// subscription. It is invoked synchronously, in the order the backend
// pushed the events, before control returns to the channel transport.
type ChangeHandler func(event models.ChangeEvent)

// Teardown releases one subscription. Idempotent: calling it twice is
// harmless. After it returns, no further ChangeEvents are delivered.
type Teardown func()

// StatusListener receives the full SyncStatus snapshot on every change.
type StatusListener func(status models.SyncStatus)

// MutationResult is the immediate outcome of a create or update call.
// When IsOptimistic is true, the data was synthesised locally and the
// caller should reconcile it against a later ChangeEvent for the same id.
type MutationResult struct {
	Data         models.Row
	IsOptimistic bool
}

// DeleteResult is the immediate outcome of a delete call.
type DeleteResult struct {
	Success      bool
	IsOptimistic bool
}

// BatchCreateResult is the per-row outcome of a batch create. Err is nil
// for accepted rows.
type BatchCreateResult struct {
	Data models.Row
	Err  error
}

// MutationEngine exposes the engine's write surface. Every call returns
// promptly: a network attempt is bounded by the adapter's request timeout
// and a failure of the retryable class falls back to the offline queue.
type MutationEngine interface {
	// Create synthesises an optimistic record with a client-generated id,
	// stamps owner identity and timestamps, and either confirms it over
	// the network or enqueues it for later replay.
	Create(ctx context.Context, table models.TableIdentity, fields models.RowFields) (MutationResult, error)

	// Update applies a partial-field patch to the row identified by id,
	// always stamping a fresh updated-time. Updating another owner's row
	// surfaces as a non-retryable error and is never queued.
	Update(ctx context.Context, table models.TableIdentity, id string, patch models.RowFields) (MutationResult, error)

	// Delete soft-deletes the row so that other devices reconcile a
	// tombstone instead of a silent disappearance.
	Delete(ctx context.Context, table models.TableIdentity, id string) (DeleteResult, error)

	// BatchCreate inserts records in one request with per-row outcomes.
	// There is no optimistic path and no offline fallback: partial batch
	// replay is ambiguous, so the call fails outright without
	// connectivity.
	BatchCreate(ctx context.Context, table models.TableIdentity, fields []models.RowFields) ([]BatchCreateResult, error)
}

// QueueProcessor owns the offline queue: it is the only component that
// mutates pending operations after the mutation engine hands them over.
type QueueProcessor interface {
	// Enqueue persists op and publishes the new pending count.
	Enqueue(ctx context.Context, op models.PendingOperation) error

	// Drain replays pending operations in enqueue order. Only one drain
	// runs at a time; a request arriving while one is in flight is
	// ignored, not queued.
	Drain(ctx context.Context) error

	// Clear drops every pending operation.
	Clear(ctx context.Context) error

	// PendingCount reports the number of operations awaiting replay.
	PendingCount(ctx context.Context) (int, error)
}

// SubscriptionManager fans server-pushed row changes out to listeners.
// Each Subscribe call owns an independent push channel; teardown is
// caller-scoped.
type SubscriptionManager interface {
	// Subscribe opens a push channel for (table, filter) and delivers
	// decoded ChangeEvents to handler. Failures degrade to a no-op
	// teardown: they are logged, never thrown at UI callers.
	Subscribe(ctx context.Context, table models.TableIdentity, filter string, handler ChangeHandler) Teardown

	// ReopenAll reopens channels that dropped due to transient network
	// loss, under their original parameters and teardown tokens. Used by
	// the connection monitor's reconnect path.
	ReopenAll(ctx context.Context)

	// CloseAll tears down every subscription, e.g. on sign-out. Torn-down
	// subscriptions are not restored on the next sign-in; callers must
	// resubscribe.
	CloseAll()

	// ActiveCount reports the number of open subscriptions.
	ActiveCount() int
}

// ConnState is the connection monitor's three-state machine.
type ConnState int

const (
	// StateOffline: the platform reports no connectivity. No reconnect
	// attempts are scheduled until connectivity returns.
	StateOffline ConnState = iota

	// StateOnlineDisconnected: the network is reachable but no push
	// channel is healthy.
	StateOnlineDisconnected

	// StateOnlineConnected: at least one push channel (or the health
	// probe) has recently succeeded.
	StateOnlineConnected
)

// ConnectionMonitor tracks connectivity and channel health and drives the
// reconnect backoff.
type ConnectionMonitor interface {
	// Start retains ctx for scheduled reconnects and drains. Must be
	// called before any event methods.
	Start(ctx context.Context)

	// Stop cancels any scheduled reconnect.
	Stop()

	// State returns the current machine state.
	State() ConnState

	// Online reports whether the platform-level network is available.
	Online() bool

	// SetNetworkAvailable feeds the platform connectivity signal. The
	// offline→online transition triggers an immediate drain attempt and
	// an all-channel reconnect.
	SetNetworkAvailable(online bool)

	// OnChannelConnected records a successful channel (re)connect: the
	// backoff counter resets and a drain is triggered.
	OnChannelConnected()

	// OnProbeSuccess records a successful health probe; treated like a
	// channel connect for state purposes.
	OnProbeSuccess()

	// OnChannelError records a channel-level or probe failure and
	// schedules the next reconnect attempt with exponential backoff,
	// up to the configured cap.
	OnChannelError(err error)
}

// StatusBroadcaster aggregates engine state into one SyncStatus record and
// notifies observers on every change. Pure aggregation; no business logic.
type StatusBroadcaster interface {
	// Subscribe registers listener and immediately delivers the current
	// snapshot, so observers never wait for the next event to learn the
	// present state.
	Subscribe(listener StatusListener) (unsubscribe func())

	// Current returns the current snapshot.
	Current() models.SyncStatus

	SetOnline(online bool)
	SetChannelConnected(connected bool)
	SetPendingCount(count int)
	MarkSynced(at time.Time)
	RecordError(msg string)
}

// Clock abstracts wall time and timers so the backoff machinery is
// testable without real timers.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}
