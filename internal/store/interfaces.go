// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package store persists the engine's offline queue. Every mutation of the
// queue is a committed SQLite statement, so a process restart rehydrates
// exactly the operations that were pending, in their original order.
package store

import (
	"context"

	"github.com/ledgerkeep/ledgersync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/queue_repository_mock.go -package=mock

// QueueRepository is the durable store of pending offline mutations.
//
// Implementations must serialise writers: an enqueue racing a drain must
// never lose either update.
type QueueRepository interface {
	// Enqueue appends op to the queue and returns whether it was stored.
	// Enqueueing a Delete for a row whose Create is still queued removes
	// the queued Create (and any queued Updates for the row) instead of
	// storing the Delete: the backend never saw the row, so there is
	// nothing to tombstone.
	Enqueue(ctx context.Context, op models.PendingOperation) (bool, error)

	// Snapshot returns all pending operations in enqueue (FIFO) order.
	Snapshot(ctx context.Context) ([]models.PendingOperation, error)

	// Remove deletes the operation with the given storage ordinal.
	Remove(ctx context.Context, seq int64) error

	// IncrementRetry bumps the retry counter of the operation with the
	// given storage ordinal and returns the new count.
	IncrementRetry(ctx context.Context, seq int64) (int, error)

	// Clear removes every pending operation.
	Clear(ctx context.Context) error

	// Count returns the number of pending operations.
	Count(ctx context.Context) (int, error)
}
