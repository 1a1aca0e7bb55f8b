package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/ledgerkeep/ledgersync/internal/logger"
	"github.com/ledgerkeep/ledgersync/models"
)

const pendingOperationsTable = "pending_operations"

type queueRepository struct {
	*DB
	logger *logger.Logger
}

// NewQueueRepository builds the SQLite-backed QueueRepository over db.
func NewQueueRepository(db *DB, logger *logger.Logger) QueueRepository {
	return &queueRepository{
		DB:     db,
		logger: logger,
	}
}

func (r *queueRepository) Enqueue(ctx context.Context, op models.PendingOperation) (bool, error) {
	log := logger.FromContext(ctx)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin enqueue transaction: %w", err)
	}
	defer tx.Rollback()

	// A delete for a row whose create never left the device cancels the
	// whole queued history of that row instead of being stored.
	if op.Kind == models.OperationDelete {
		superseded, err := r.cancelQueuedCreate(ctx, tx, op.ID)
		if err != nil {
			return false, err
		}
		if superseded {
			if err = tx.Commit(); err != nil {
				return false, fmt.Errorf("failed to commit enqueue transaction: %w", err)
			}
			log.Debug().
				Str("func", "queueRepository.Enqueue").
				Str("id", op.ID).
				Msg("delete superseded a queued create; nothing enqueued")
			return false, nil
		}
	}

	query, args, err := sq.Insert(pendingOperationsTable).
		Columns("id", "kind", "table_name", "owner_id", "payload", "enqueued_at", "retry_count").
		Values(op.ID, string(op.Kind), string(op.Table), op.OwnerID, []byte(op.Payload), op.EnqueuedAt, op.RetryCount).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build enqueue query: %w", err)
	}

	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		log.Err(err).
			Str("func", "queueRepository.Enqueue").
			Str("id", op.ID).
			Str("table", string(op.Table)).
			Msg("failed to insert pending operation")
		return false, fmt.Errorf("failed to enqueue operation (id=%s): %w", op.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit enqueue transaction: %w", err)
	}

	return true, nil
}

// cancelQueuedCreate removes all queued operations for rowID when its
// create is still pending. Returns true when a cancellation happened.
func (r *queueRepository) cancelQueuedCreate(ctx context.Context, tx *sql.Tx, rowID string) (bool, error) {
	query, args, err := sq.Select("COUNT(*)").
		From(pendingOperationsTable).
		Where(sq.Eq{"id": rowID, "kind": string(models.OperationCreate)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build queued-create lookup: %w", err)
	}

	var pendingCreates int
	if err = tx.QueryRowContext(ctx, query, args...).Scan(&pendingCreates); err != nil {
		return false, fmt.Errorf("failed to look up queued create (id=%s): %w", rowID, err)
	}
	if pendingCreates == 0 {
		return false, nil
	}

	query, args, err = sq.Delete(pendingOperationsTable).
		Where(sq.Eq{"id": rowID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build queued-create cancel query: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("failed to cancel queued operations (id=%s): %w", rowID, err)
	}

	return true, nil
}

func (r *queueRepository) Snapshot(ctx context.Context) ([]models.PendingOperation, error) {
	log := logger.FromContext(ctx)

	query, args, err := sq.Select("seq", "id", "kind", "table_name", "owner_id", "payload", "enqueued_at", "retry_count").
		From(pendingOperationsTable).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot query: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "queueRepository.Snapshot").
			Msg("failed to execute query for pending operations")
		return nil, fmt.Errorf("failed to query pending operations: %w", err)
	}
	defer rows.Close()

	var ops []models.PendingOperation
	for rows.Next() {
		var (
			op      models.PendingOperation
			kind    string
			table   string
			payload []byte
		)

		scanErr := rows.Scan(
			&op.Seq,
			&op.ID,
			&kind,
			&table,
			&op.OwnerID,
			&payload,
			&op.EnqueuedAt,
			&op.RetryCount,
		)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "queueRepository.Snapshot").
				Msg("failed to scan pending operation row")
			return nil, fmt.Errorf("failed to scan pending operation row: %w", scanErr)
		}

		op.Kind = models.OperationKind(kind)
		op.Table = models.TableIdentity(table)
		op.Payload = payload
		ops = append(ops, op)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		log.Err(rowsErr).
			Str("func", "queueRepository.Snapshot").
			Msg("error occurred during rows iteration")
		return nil, fmt.Errorf("error iterating pending operation rows: %w", rowsErr)
	}

	return ops, nil
}

func (r *queueRepository) Remove(ctx context.Context, seq int64) error {
	log := logger.FromContext(ctx)

	query, args, err := sq.Delete(pendingOperationsTable).
		Where(sq.Eq{"seq": seq}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build remove query: %w", err)
	}

	if _, err = r.DB.ExecContext(ctx, query, args...); err != nil {
		log.Err(err).
			Str("func", "queueRepository.Remove").
			Int64("seq", seq).
			Msg("failed to remove pending operation")
		return fmt.Errorf("failed to remove pending operation (seq=%d): %w", seq, err)
	}

	return nil
}

func (r *queueRepository) IncrementRetry(ctx context.Context, seq int64) (int, error) {
	log := logger.FromContext(ctx)

	query, args, err := sq.Update(pendingOperationsTable).
		Set("retry_count", sq.Expr("retry_count + 1")).
		Where(sq.Eq{"seq": seq}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build increment retry query: %w", err)
	}

	result, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "queueRepository.IncrementRetry").
			Int64("seq", seq).
			Msg("failed to increment retry count")
		return 0, fmt.Errorf("failed to increment retry count (seq=%d): %w", seq, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected (seq=%d): %w", seq, err)
	}
	if affected == 0 {
		return 0, fmt.Errorf("%w (seq=%d)", ErrOperationNotFound, seq)
	}

	query, args, err = sq.Select("retry_count").
		From(pendingOperationsTable).
		Where(sq.Eq{"seq": seq}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build retry count lookup: %w", err)
	}

	var count int
	if err = r.DB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w (seq=%d)", ErrOperationNotFound, seq)
		}
		return 0, fmt.Errorf("failed to read retry count (seq=%d): %w", seq, err)
	}

	return count, nil
}

func (r *queueRepository) Clear(ctx context.Context) error {
	log := logger.FromContext(ctx)

	query, args, err := sq.Delete(pendingOperationsTable).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build clear query: %w", err)
	}

	if _, err = r.DB.ExecContext(ctx, query, args...); err != nil {
		log.Err(err).
			Str("func", "queueRepository.Clear").
			Msg("failed to clear pending operations")
		return fmt.Errorf("failed to clear pending operations: %w", err)
	}

	return nil
}

func (r *queueRepository) Count(ctx context.Context) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		From(pendingOperationsTable).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var count int
	if err = r.DB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}

	return count, nil
}
