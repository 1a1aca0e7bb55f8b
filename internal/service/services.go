// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package service implements the synchronisation engine: optimistic
// mutations with an offline fallback queue, server-push change
// subscriptions, connection monitoring with bounded reconnect backoff,
// and aggregated sync status broadcasting.
package service

import (
	"context"
	"time"

	"github.com/ledgerkeep/ledgersync/internal/adapter"
	"github.com/ledgerkeep/ledgersync/internal/logger"
	"github.com/ledgerkeep/ledgersync/internal/store"
	"github.com/ledgerkeep/ledgersync/internal/utils"
)

// Options carries the sync tunables the services need from configuration.
type Options struct {
	// MaxRetries bounds replay attempts per queued operation.
	MaxRetries int

	// ReconnectBase is the first reconnect delay; subsequent delays double.
	ReconnectBase time.Duration

	// ReconnectAttempts caps scheduled reconnects before the monitor parks
	// and waits for a fresh connectivity signal.
	ReconnectAttempts int
}

// Services bundles the engine's service layer, assembled once per client.
type Services struct {
	Identity      *Identity
	Status        StatusBroadcaster
	Monitor       ConnectionMonitor
	Queue         QueueProcessor
	Mutations     MutationEngine
	Subscriptions SubscriptionManager
}

// NewServices wires the service layer over the given queue store and
// backend adapter. The monitor's reconnect hooks are bound here because
// the monitor, the subscription manager and the queue processor form a
// cycle that constructors alone cannot express.
func NewServices(
	repo store.QueueRepository,
	backend adapter.BackendAdapter,
	opts Options,
	log *logger.Logger,
) *Services {
	identity := NewIdentity()
	clock := NewClock()
	status := NewStatusBroadcaster(log)

	monitor := NewConnectionMonitor(status, clock, opts.ReconnectBase, opts.ReconnectAttempts, log)
	queue := NewQueueProcessor(repo, backend, status, clock, opts.MaxRetries, log)
	subscriptions := NewSubscriptionManager(backend, identity, status, monitor, clock, log)
	mutations := NewMutationEngine(backend, queue, monitor, identity, clock, utils.NewUUID, log)

	monitor.Bind(subscriptions.ReopenAll, func(ctx context.Context) {
		if err := queue.Drain(ctx); err != nil {
			log.Err(err).
				Str("func", "NewServices").
				Msg("offline queue drain failed")
		}
	})

	return &Services{
		Identity:      identity,
		Status:        status,
		Monitor:       monitor,
		Queue:         queue,
		Mutations:     mutations,
		Subscriptions: subscriptions,
	}
}
