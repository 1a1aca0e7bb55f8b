// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ledgerkeep/ledgersync/internal/adapter"
	"github.com/ledgerkeep/ledgersync/internal/logger"
	"github.com/ledgerkeep/ledgersync/internal/mock"
	"github.com/ledgerkeep/ledgersync/models"
)

func newTestQueueProcessor(
	t *testing.T,
	ctrl *gomock.Controller,
	maxRetries int,
) (QueueProcessor, *mock.MockQueueRepository, *mock.MockBackendAdapter, StatusBroadcaster) {
	t.Helper()
	repo := mock.NewMockQueueRepository(ctrl)
	backend := mock.NewMockBackendAdapter(ctrl)
	status := NewStatusBroadcaster(logger.Nop())
	clock := newFakeClock()

	p := NewQueueProcessor(repo, backend, status, clock, maxRetries, logger.Nop())
	return p, repo, backend, status
}

func queuedOp(t *testing.T, seq int64, kind models.OperationKind, id string) models.PendingOperation {
	t.Helper()
	op := pendingOpForTest(t, kind, id)
	op.Seq = seq
	return op
}

func pendingOpForTest(t *testing.T, kind models.OperationKind, id string) models.PendingOperation {
	t.Helper()
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	row := models.Row{
		ID:        id,
		OwnerID:   "owner-1",
		Table:     models.TableCustomers,
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    models.Customer{Name: "Asha Traders"},
	}
	if kind == models.OperationDelete {
		row.DeletedAt = &now
		row.Fields = nil
	}

	op, err := models.NewPendingOperation(kind, row, now)
	require.NoError(t, err)
	return op
}

// ── Enqueue ──────────────────────────────────────────────────────────────────

func TestQueueProcessor_Enqueue_PublishesPendingCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, repo, _, status := newTestQueueProcessor(t, ctrl, 5)
	ctx := context.Background()
	op := pendingOpForTest(t, models.OperationCreate, "c-1")

	repo.EXPECT().Enqueue(ctx, op).Return(true, nil)
	repo.EXPECT().Count(ctx).Return(1, nil)

	require.NoError(t, p.Enqueue(ctx, op))
	assert.Equal(t, 1, status.Current().PendingCount)
}

func TestQueueProcessor_Enqueue_RepositoryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, repo, _, _ := newTestQueueProcessor(t, ctrl, 5)
	ctx := context.Background()
	op := pendingOpForTest(t, models.OperationCreate, "c-1")

	repo.EXPECT().Enqueue(ctx, op).Return(false, errors.New("disk full"))

	err := p.Enqueue(ctx, op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

// ── Drain ────────────────────────────────────────────────────────────────────

func TestQueueProcessor_Drain_ReplaysInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, repo, backend, status := newTestQueueProcessor(t, ctrl, 5)
	ctx := context.Background()

	create := queuedOp(t, 1, models.OperationCreate, "c-1")
	update := queuedOp(t, 2, models.OperationUpdate, "c-1")
	del := queuedOp(t, 3, models.OperationDelete, "c-2")

	repo.EXPECT().Snapshot(ctx).Return([]models.PendingOperation{create, update, del}, nil)

	// порядок воспроизведения строго FIFO
	gomock.InOrder(
		backend.EXPECT().Insert(ctx, gomock.Any()).Return(models.Row{ID: "c-1"}, nil),
		repo.EXPECT().Remove(ctx, int64(1)).Return(nil),
		backend.EXPECT().Update(ctx, models.TableCustomers, "c-1", "owner-1", gomock.Any(), gomock.Any()).Return(models.Row{ID: "c-1"}, nil),
		repo.EXPECT().Remove(ctx, int64(2)).Return(nil),
		backend.EXPECT().SoftDelete(ctx, models.TableCustomers, "c-2", "owner-1", gomock.Any()).Return(nil),
		repo.EXPECT().Remove(ctx, int64(3)).Return(nil),
	)
	repo.EXPECT().Count(ctx).Return(0, nil)

	require.NoError(t, p.Drain(ctx))

	current := status.Current()
	assert.Equal(t, 0, current.PendingCount)
	assert.NotNil(t, current.LastSuccessfulSyncAt)
}

func TestQueueProcessor_Drain_EmptyQueueIsNoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, repo, _, status := newTestQueueProcessor(t, ctrl, 5)
	ctx := context.Background()

	repo.EXPECT().Snapshot(ctx).Return(nil, nil)

	require.NoError(t, p.Drain(ctx))
	assert.Nil(t, status.Current().LastSuccessfulSyncAt)
}

func TestQueueProcessor_Drain_RetryableFailureKeepsOperation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, repo, backend, _ := newTestQueueProcessor(t, ctrl, 5)
	ctx := context.Background()
	op := queuedOp(t, 1, models.OperationCreate, "c-1")

	repo.EXPECT().Snapshot(ctx).Return([]models.PendingOperation{op}, nil)
	backend.EXPECT().Insert(ctx, gomock.Any()).
		Return(models.Row{}, fmt.Errorf("%w: http 503", adapter.ErrNetwork))
	repo.EXPECT().IncrementRetry(ctx, int64(1)).Return(1, nil)
	repo.EXPECT().Count(ctx).Return(1, nil)

	require.NoError(t, p.Drain(ctx))
}

func TestQueueProcessor_Drain_RetryableFailureBlocksSameRow(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, repo, backend, _ := newTestQueueProcessor(t, ctrl, 5)
	ctx := context.Background()

	create := queuedOp(t, 1, models.OperationCreate, "c-1")
	update := queuedOp(t, 2, models.OperationUpdate, "c-1")
	other := queuedOp(t, 3, models.OperationCreate, "c-2")

	repo.EXPECT().Snapshot(ctx).Return([]models.PendingOperation{create, update, other}, nil)

	// create для c-1 падает — update для c-1 должен ждать следующего прохода,
	// а независимый c-2 — воспроизводиться
	backend.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, row models.Row) (models.Row, error) {
			if row.ID == "c-1" {
				return models.Row{}, fmt.Errorf("%w: connection refused", adapter.ErrNetwork)
			}
			return row, nil
		}).Times(2)
	repo.EXPECT().IncrementRetry(ctx, int64(1)).Return(1, nil)
	repo.EXPECT().Remove(ctx, int64(3)).Return(nil)
	repo.EXPECT().Count(ctx).Return(2, nil)

	require.NoError(t, p.Drain(ctx))
}

func TestQueueProcessor_Drain_DropsAfterMaxRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, repo, backend, status := newTestQueueProcessor(t, ctrl, 3)
	ctx := context.Background()
	op := queuedOp(t, 1, models.OperationUpdate, "c-1")

	repo.EXPECT().Snapshot(ctx).Return([]models.PendingOperation{op}, nil)
	backend.EXPECT().Update(ctx, models.TableCustomers, "c-1", "owner-1", gomock.Any(), gomock.Any()).
		Return(models.Row{}, fmt.Errorf("%w: http 500", adapter.ErrNetwork))
	repo.EXPECT().IncrementRetry(ctx, int64(1)).Return(3, nil)
	repo.EXPECT().Remove(ctx, int64(1)).Return(nil)
	repo.EXPECT().Count(ctx).Return(0, nil)

	require.NoError(t, p.Drain(ctx))
	assert.Contains(t, status.Current().LastError, "after 3 attempts")
}

func TestQueueProcessor_Drain_NonRetryableRejectionIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, repo, backend, status := newTestQueueProcessor(t, ctrl, 5)
	ctx := context.Background()
	op := queuedOp(t, 1, models.OperationUpdate, "c-1")

	repo.EXPECT().Snapshot(ctx).Return([]models.PendingOperation{op}, nil)
	backend.EXPECT().Update(ctx, models.TableCustomers, "c-1", "owner-1", gomock.Any(), gomock.Any()).
		Return(models.Row{}, fmt.Errorf("%w: http 403", adapter.ErrOwnership))
	repo.EXPECT().Remove(ctx, int64(1)).Return(nil)
	repo.EXPECT().Count(ctx).Return(0, nil)

	require.NoError(t, p.Drain(ctx))
	assert.Contains(t, status.Current().LastError, "dropped queued update")
}

func TestQueueProcessor_Drain_DropErrorSurvivesSuccessfulPass(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, repo, backend, status := newTestQueueProcessor(t, ctrl, 1)
	ctx := context.Background()

	failing := queuedOp(t, 1, models.OperationUpdate, "u-1")
	surviving := queuedOp(t, 2, models.OperationCreate, "c-1")

	repo.EXPECT().Snapshot(ctx).Return([]models.PendingOperation{failing, surviving}, nil)
	backend.EXPECT().Update(ctx, models.TableCustomers, "u-1", "owner-1", gomock.Any(), gomock.Any()).
		Return(models.Row{}, fmt.Errorf("%w: http 503", adapter.ErrNetwork))
	repo.EXPECT().IncrementRetry(ctx, int64(1)).Return(1, nil)
	repo.EXPECT().Remove(ctx, int64(1)).Return(nil)
	backend.EXPECT().Insert(ctx, gomock.Any()).Return(models.Row{ID: "c-1"}, nil)
	repo.EXPECT().Remove(ctx, int64(2)).Return(nil)
	repo.EXPECT().Count(ctx).Return(0, nil)

	require.NoError(t, p.Drain(ctx))

	// успешный replay в том же проходе не должен стирать сигнал о потере
	current := status.Current()
	require.NotNil(t, current.LastSuccessfulSyncAt)
	assert.Contains(t, current.LastError, "dropped queued update for u-1")
}

func TestQueueProcessor_Drain_SingleFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, repo, backend, _ := newTestQueueProcessor(t, ctrl, 5)
	ctx := context.Background()
	op := queuedOp(t, 1, models.OperationCreate, "c-1")

	started := make(chan struct{})
	release := make(chan struct{})

	repo.EXPECT().Snapshot(ctx).Return([]models.PendingOperation{op}, nil)
	backend.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(
		func(context.Context, models.Row) (models.Row, error) {
			close(started)
			<-release
			return models.Row{ID: "c-1"}, nil
		})
	repo.EXPECT().Remove(ctx, int64(1)).Return(nil)
	repo.EXPECT().Count(ctx).Return(0, nil)

	done := make(chan error, 1)
	go func() { done <- p.Drain(ctx) }()
	<-started

	// параллельный вызов схлопывается в уже идущий drain
	require.NoError(t, p.Drain(ctx))
	close(release)
	require.NoError(t, <-done)
}

// ── Clear / PendingCount ─────────────────────────────────────────────────────

func TestQueueProcessor_Clear(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, repo, _, status := newTestQueueProcessor(t, ctrl, 5)
	ctx := context.Background()

	repo.EXPECT().Clear(ctx).Return(nil)

	require.NoError(t, p.Clear(ctx))
	assert.Equal(t, 0, status.Current().PendingCount)
}

func TestQueueProcessor_PendingCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, repo, _, _ := newTestQueueProcessor(t, ctrl, 5)
	ctx := context.Background()

	repo.EXPECT().Count(ctx).Return(4, nil)

	count, err := p.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
