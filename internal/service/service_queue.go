// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ledgerkeep/ledgersync/internal/adapter"
	"github.com/ledgerkeep/ledgersync/internal/logger"
	"github.com/ledgerkeep/ledgersync/internal/store"
	"github.com/ledgerkeep/ledgersync/models"
)

type queueProcessor struct {
	logger     *logger.Logger
	repo       store.QueueRepository
	backend    adapter.BackendAdapter
	status     StatusBroadcaster
	clock      Clock
	maxRetries int

	draining atomic.Bool
}

// NewQueueProcessor builds the processor. maxRetries bounds replay attempts
// per operation; an operation that fails that many times with a retryable
// error is dropped and surfaced through the status broadcaster.
func NewQueueProcessor(
	repo store.QueueRepository,
	backend adapter.BackendAdapter,
	status StatusBroadcaster,
	clock Clock,
	maxRetries int,
	logger *logger.Logger,
) QueueProcessor {
	return &queueProcessor{
		logger:     logger,
		repo:       repo,
		backend:    backend,
		status:     status,
		clock:      clock,
		maxRetries: maxRetries,
	}
}

func (p *queueProcessor) Enqueue(ctx context.Context, op models.PendingOperation) error {
	stored, err := p.repo.Enqueue(ctx, op)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s for %s: %w", op.Kind, op.ID, err)
	}

	if !stored {
		p.logger.Debug().
			Str("func", "queueProcessor.Enqueue").
			Str("id", op.ID).
			Msg("operation superseded queued history instead of being stored")
	}

	p.publishCount(ctx)
	return nil
}

func (p *queueProcessor) Drain(ctx context.Context) error {
	// Concurrent drain triggers (reconnect, probe recovery, manual force)
	// collapse into the one already running.
	if !p.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer p.draining.Store(false)

	ops, err := p.repo.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot pending operations: %w", err)
	}
	if len(ops) == 0 {
		return nil
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("func", "queueProcessor.Drain").
		Int("pending", len(ops)).
		Msg("draining offline queue")

	// Once an operation for a row fails retryably, later operations for the
	// same row must wait for the next pass, or replay order per row breaks.
	blocked := make(map[string]struct{})
	replayed := 0
	var drops []string

	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		if _, held := blocked[op.ID]; held {
			continue
		}

		replayErr := p.replay(ctx, op)
		if replayErr == nil {
			if err = p.repo.Remove(ctx, op.Seq); err != nil {
				log.Err(err).
					Str("func", "queueProcessor.Drain").
					Int64("seq", op.Seq).
					Msg("failed to remove replayed operation")
			}
			replayed++
			continue
		}

		if !adapter.Retryable(replayErr) {
			// The backend rejected the operation outright; retrying the
			// same bytes cannot succeed, so drop it and tell the user.
			if err = p.repo.Remove(ctx, op.Seq); err != nil {
				log.Err(err).
					Str("func", "queueProcessor.Drain").
					Int64("seq", op.Seq).
					Msg("failed to drop rejected operation")
			}
			drops = append(drops, fmt.Sprintf("dropped queued %s for %s: %v", op.Kind, op.ID, replayErr))
			continue
		}

		attempts, retryErr := p.repo.IncrementRetry(ctx, op.Seq)
		if retryErr != nil {
			log.Err(retryErr).
				Str("func", "queueProcessor.Drain").
				Int64("seq", op.Seq).
				Msg("failed to increment retry count")
			blocked[op.ID] = struct{}{}
			continue
		}

		if attempts >= p.maxRetries {
			if err = p.repo.Remove(ctx, op.Seq); err != nil {
				log.Err(err).
					Str("func", "queueProcessor.Drain").
					Int64("seq", op.Seq).
					Msg("failed to drop exhausted operation")
			}
			drops = append(drops, fmt.Sprintf(
				"dropped queued %s for %s after %d attempts: %v", op.Kind, op.ID, attempts, replayErr))
			continue
		}

		blocked[op.ID] = struct{}{}
	}

	if replayed > 0 {
		p.status.MarkSynced(p.clock.Now())
	}
	// Drop notices land after the sync stamp; MarkSynced clears LastError,
	// so the other order would hide a data-loss event behind a successful
	// replay from the same pass.
	for _, msg := range drops {
		p.status.RecordError(msg)
	}
	p.publishCount(ctx)
	return nil
}

// replay re-issues one queued operation against the backend. Creates replay
// with their original client-generated id, so a create whose first response
// was lost lands on the same row instead of duplicating it.
func (p *queueProcessor) replay(ctx context.Context, op models.PendingOperation) error {
	row, err := op.DecodeRow()
	if err != nil {
		// Corrupt payloads cannot be replayed; classify as non-retryable.
		return fmt.Errorf("failed to decode queued payload for %s: %w", op.ID, err)
	}

	switch op.Kind {
	case models.OperationCreate:
		_, err = p.backend.Insert(ctx, row)
	case models.OperationUpdate:
		_, err = p.backend.Update(ctx, op.Table, op.ID, op.OwnerID, row.Fields, row.UpdatedAt)
	case models.OperationDelete:
		deletedAt := op.EnqueuedAt
		if row.DeletedAt != nil {
			deletedAt = *row.DeletedAt
		}
		err = p.backend.SoftDelete(ctx, op.Table, op.ID, op.OwnerID, deletedAt)
	default:
		return fmt.Errorf("unknown queued operation kind %q for %s", op.Kind, op.ID)
	}

	return err
}

func (p *queueProcessor) Clear(ctx context.Context) error {
	if err := p.repo.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear offline queue: %w", err)
	}
	p.status.SetPendingCount(0)
	return nil
}

func (p *queueProcessor) PendingCount(ctx context.Context) (int, error) {
	count, err := p.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}
	return count, nil
}

func (p *queueProcessor) publishCount(ctx context.Context) {
	count, err := p.repo.Count(ctx)
	if err != nil {
		p.logger.Err(err).
			Str("func", "queueProcessor.publishCount").
			Msg("failed to refresh pending count")
		return
	}
	p.status.SetPendingCount(count)
}
