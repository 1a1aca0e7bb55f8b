// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package client assembles the synchronisation engine behind a single
// facade that host applications embed.
package client

import (
	"context"
	"fmt"

	"github.com/ledgerkeep/ledgersync/internal/adapter"
	"github.com/ledgerkeep/ledgersync/internal/config"
	"github.com/ledgerkeep/ledgersync/internal/logger"
	"github.com/ledgerkeep/ledgersync/internal/service"
	"github.com/ledgerkeep/ledgersync/internal/store"
	"github.com/ledgerkeep/ledgersync/internal/workers"
	"github.com/ledgerkeep/ledgersync/models"
)

// Engine is the host-facing surface of the sync engine: mutations,
// subscriptions, status observation, and lifecycle control. One Engine is
// created per signed-in device session.
type Engine struct {
	logger   *logger.Logger
	cfg      *config.StructuredConfig
	db       *store.DB
	backend  adapter.BackendAdapter
	services *service.Services
	probe    *workers.ProbeWorker

	cancel context.CancelFunc
}

// NewEngine opens the durable queue store, builds the backend adapter from
// cfg, and wires the service layer. The engine is idle until Start.
func NewEngine(ctx context.Context, cfg *config.StructuredConfig, log *logger.Logger) (*Engine, error) {
	db, err := store.NewConnectSQLite(ctx, cfg.Storage.QueueDSN, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue store: %w", err)
	}

	backend := adapter.NewHTTPBackendAdapter(adapter.HTTPClientConfig{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.RequestTimeout,
	})

	repo := store.NewQueueRepository(db, log)
	services := service.NewServices(repo, backend, service.Options{
		MaxRetries:        cfg.Sync.MaxRetries,
		ReconnectBase:     cfg.Sync.ReconnectBase,
		ReconnectAttempts: cfg.Sync.ReconnectAttempts,
	}, log)

	return &Engine{
		logger:   log,
		cfg:      cfg,
		db:       db,
		backend:  backend,
		services: services,
		probe:    workers.NewProbeWorker(backend, services.Monitor),
	}, nil
}

// Start launches the background machinery and seeds the connectivity state
// from the platform's signal. Mutations issued before Start while online
// would be queued rather than sent, so hosts call Start first.
func (e *Engine) Start(ctx context.Context, online bool) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.services.Monitor.Start(runCtx)
	e.probe.Start(runCtx, e.cfg.Sync.ProbeInterval)
	e.services.Monitor.SetNetworkAvailable(online)

	// Operations persisted by a previous session must show up in the status
	// right away, not after the first enqueue or drain touches the queue.
	if count, err := e.services.Queue.PendingCount(runCtx); err != nil {
		e.logger.Err(err).
			Str("func", "Engine.Start").
			Msg("failed to read persisted pending count")
	} else {
		e.services.Status.SetPendingCount(count)
	}

	e.logger.Info().
		Str("func", "Engine.Start").
		Bool("online", online).
		Msg("sync engine started")
}

// SignIn stores the owner identity and auth token used to scope every
// subsequent backend call.
func (e *Engine) SignIn(ownerID, token string) {
	e.backend.SetAuthToken(token)
	e.services.Identity.Set(ownerID)
}

// SignOut tears down all subscriptions and forgets the identity. The
// offline queue is left intact: queued operations belong to the owner who
// created them and replay on their next session.
func (e *Engine) SignOut() {
	e.services.Subscriptions.CloseAll()
	e.services.Identity.Clear()
	e.backend.SetAuthToken("")
}

// SetNetworkAvailable feeds the platform connectivity signal.
func (e *Engine) SetNetworkAvailable(online bool) {
	e.services.Monitor.SetNetworkAvailable(online)
}

// Subscribe opens a change subscription for table scoped by filter.
func (e *Engine) Subscribe(ctx context.Context, table models.TableIdentity, filter string, handler service.ChangeHandler) service.Teardown {
	return e.services.Subscriptions.Subscribe(ctx, table, filter, handler)
}

// Create issues an optimistic create.
func (e *Engine) Create(ctx context.Context, table models.TableIdentity, fields models.RowFields) (service.MutationResult, error) {
	return e.services.Mutations.Create(ctx, table, fields)
}

// Update issues an optimistic partial update.
func (e *Engine) Update(ctx context.Context, table models.TableIdentity, id string, patch models.RowFields) (service.MutationResult, error) {
	return e.services.Mutations.Update(ctx, table, id, patch)
}

// Delete issues an optimistic soft delete.
func (e *Engine) Delete(ctx context.Context, table models.TableIdentity, id string) (service.DeleteResult, error) {
	return e.services.Mutations.Delete(ctx, table, id)
}

// BatchCreate inserts rows synchronously with per-row outcomes.
func (e *Engine) BatchCreate(ctx context.Context, table models.TableIdentity, fields []models.RowFields) ([]service.BatchCreateResult, error) {
	return e.services.Mutations.BatchCreate(ctx, table, fields)
}

// Status returns the current sync status snapshot.
func (e *Engine) Status() models.SyncStatus {
	return e.services.Status.Current()
}

// OnStatus registers a status listener; the current snapshot is delivered
// immediately. The returned func unsubscribes.
func (e *Engine) OnStatus(listener service.StatusListener) func() {
	return e.services.Status.Subscribe(listener)
}

// ForceSync drains the offline queue now instead of waiting for the next
// reconnect trigger.
func (e *Engine) ForceSync(ctx context.Context) error {
	return e.services.Queue.Drain(ctx)
}

// PendingCount reports the number of operations awaiting replay.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.services.Queue.PendingCount(ctx)
}

// ClearOfflineQueue drops every pending operation. Destructive; intended
// for a user-visible "discard unsynced changes" affordance.
func (e *Engine) ClearOfflineQueue(ctx context.Context) error {
	return e.services.Queue.Clear(ctx)
}

// Close stops background work and releases the queue store.
func (e *Engine) Close() error {
	e.probe.Stop()
	e.services.Monitor.Stop()
	e.services.Subscriptions.CloseAll()
	if e.cancel != nil {
		e.cancel()
	}

	if err := e.db.Close(); err != nil {
		return fmt.Errorf("failed to close queue store: %w", err)
	}
	return nil
}
