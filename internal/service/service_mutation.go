// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"fmt"

	"github.com/ledgerkeep/ledgersync/internal/adapter"
	"github.com/ledgerkeep/ledgersync/internal/logger"
	"github.com/ledgerkeep/ledgersync/models"
)

type mutationEngine struct {
	logger   *logger.Logger
	backend  adapter.BackendAdapter
	queue    QueueProcessor
	monitor  ConnectionMonitor
	identity *Identity
	clock    Clock
	newID    func() string
}

// NewMutationEngine builds the engine's write surface. newID supplies
// client-generated row ids; production wiring passes utils.NewUUID.
func NewMutationEngine(
	backend adapter.BackendAdapter,
	queue QueueProcessor,
	monitor ConnectionMonitor,
	identity *Identity,
	clock Clock,
	newID func() string,
	logger *logger.Logger,
) MutationEngine {
	return &mutationEngine{
		logger:   logger,
		backend:  backend,
		queue:    queue,
		monitor:  monitor,
		identity: identity,
		clock:    clock,
		newID:    newID,
	}
}

func (e *mutationEngine) Create(ctx context.Context, table models.TableIdentity, fields models.RowFields) (MutationResult, error) {
	owner, err := e.prepare(table, fields)
	if err != nil {
		return MutationResult{}, err
	}

	now := e.clock.Now().UTC()
	row := models.Row{
		ID:        e.newID(),
		OwnerID:   owner,
		Table:     table,
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    fields,
	}

	if !e.monitor.Online() {
		if err = e.deferToQueue(ctx, models.OperationCreate, row); err != nil {
			return MutationResult{}, err
		}
		return MutationResult{Data: row, IsOptimistic: true}, nil
	}

	confirmed, err := e.backend.Insert(ctx, row)
	if err == nil {
		return MutationResult{Data: confirmed}, nil
	}
	if !adapter.Retryable(err) {
		return MutationResult{}, fmt.Errorf("failed to create row in %s: %w", table, err)
	}

	// The backend is unreachable; fall back to the queue with the same id
	// so the eventual replay confirms this exact optimistic row.
	if qErr := e.deferToQueue(ctx, models.OperationCreate, row); qErr != nil {
		return MutationResult{}, qErr
	}
	return MutationResult{Data: row, IsOptimistic: true}, nil
}

func (e *mutationEngine) Update(ctx context.Context, table models.TableIdentity, id string, patch models.RowFields) (MutationResult, error) {
	owner, err := e.prepare(table, patch)
	if err != nil {
		return MutationResult{}, err
	}
	if id == "" {
		return MutationResult{}, fmt.Errorf("%w: empty row id", adapter.ErrValidation)
	}

	now := e.clock.Now().UTC()
	row := models.Row{
		ID:        id,
		OwnerID:   owner,
		Table:     table,
		UpdatedAt: now,
		Fields:    patch,
	}

	if !e.monitor.Online() {
		if err = e.deferToQueue(ctx, models.OperationUpdate, row); err != nil {
			return MutationResult{}, err
		}
		return MutationResult{Data: row, IsOptimistic: true}, nil
	}

	confirmed, err := e.backend.Update(ctx, table, id, owner, patch, now)
	if err == nil {
		return MutationResult{Data: confirmed}, nil
	}
	if !adapter.Retryable(err) {
		// Ownership and validation rejections surface immediately and are
		// never queued: replaying them later cannot change the verdict.
		return MutationResult{}, fmt.Errorf("failed to update row %s in %s: %w", id, table, err)
	}

	if qErr := e.deferToQueue(ctx, models.OperationUpdate, row); qErr != nil {
		return MutationResult{}, qErr
	}
	return MutationResult{Data: row, IsOptimistic: true}, nil
}

func (e *mutationEngine) Delete(ctx context.Context, table models.TableIdentity, id string) (DeleteResult, error) {
	owner, err := e.prepare(table, nil)
	if err != nil {
		return DeleteResult{}, err
	}
	if id == "" {
		return DeleteResult{}, fmt.Errorf("%w: empty row id", adapter.ErrValidation)
	}

	now := e.clock.Now().UTC()
	row := models.Row{
		ID:        id,
		OwnerID:   owner,
		Table:     table,
		UpdatedAt: now,
		DeletedAt: &now,
	}

	if !e.monitor.Online() {
		if err = e.deferToQueue(ctx, models.OperationDelete, row); err != nil {
			return DeleteResult{}, err
		}
		return DeleteResult{Success: true, IsOptimistic: true}, nil
	}

	err = e.backend.SoftDelete(ctx, table, id, owner, now)
	if err == nil {
		return DeleteResult{Success: true}, nil
	}
	if !adapter.Retryable(err) {
		return DeleteResult{}, fmt.Errorf("failed to delete row %s in %s: %w", id, table, err)
	}

	if qErr := e.deferToQueue(ctx, models.OperationDelete, row); qErr != nil {
		return DeleteResult{}, qErr
	}
	return DeleteResult{Success: true, IsOptimistic: true}, nil
}

func (e *mutationEngine) BatchCreate(ctx context.Context, table models.TableIdentity, fields []models.RowFields) ([]BatchCreateResult, error) {
	owner, err := e.prepare(table, nil)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	if !e.monitor.Online() {
		return nil, ErrBatchOffline
	}

	now := e.clock.Now().UTC()
	rows := make([]models.Row, 0, len(fields))
	for _, f := range fields {
		if f == nil || f.Table() != table {
			return nil, fmt.Errorf("%w: batch payload for %s", ErrTableMismatch, table)
		}
		rows = append(rows, models.Row{
			ID:        e.newID(),
			OwnerID:   owner,
			Table:     table,
			CreatedAt: now,
			UpdatedAt: now,
			Fields:    f,
		})
	}

	outcomes, err := e.backend.BatchInsert(ctx, table, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to batch create rows in %s: %w", table, err)
	}

	results := make([]BatchCreateResult, 0, len(outcomes))
	for _, out := range outcomes {
		res := BatchCreateResult{Data: out.Row}
		if out.Err != "" {
			res.Err = fmt.Errorf("%w: %s", adapter.ErrValidation, out.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

// prepare validates the table and payload variant and resolves the owner
// identity shared by every mutation path.
func (e *mutationEngine) prepare(table models.TableIdentity, fields models.RowFields) (string, error) {
	if err := table.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", adapter.ErrValidation, err)
	}
	if fields != nil && fields.Table() != table {
		return "", fmt.Errorf("%w: %s payload submitted for %s", ErrTableMismatch, fields.Table(), table)
	}

	owner := e.identity.Get()
	if owner == "" {
		return "", ErrNoIdentity
	}
	return owner, nil
}

func (e *mutationEngine) deferToQueue(ctx context.Context, kind models.OperationKind, row models.Row) error {
	op, err := models.NewPendingOperation(kind, row, e.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to capture %s for %s: %w", kind, row.ID, err)
	}
	if err = e.queue.Enqueue(ctx, op); err != nil {
		return err
	}

	e.logger.Debug().
		Str("func", "mutationEngine.deferToQueue").
		Str("kind", string(kind)).
		Str("table", string(row.Table)).
		Str("id", row.ID).
		Msg("operation deferred to offline queue")
	return nil
}
