package models

import (
	"encoding/json"
	"time"
)

// OperationKind discriminates the mutation a PendingOperation replays.
type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

// PendingOperation is one locally-initiated mutation awaiting replay against
// the backend. The operation's ID is the target row id; for creates the id
// is generated client-side before the first network attempt, so a replay of
// a create whose response was lost is naturally idempotent.
//
// Payload holds the serialised optimistic Row for the operation. It is kept
// as raw JSON so the queue store can round-trip operations byte-for-byte
// across process restarts.
type PendingOperation struct {
	// Seq is the storage ordinal assigned by the queue store at enqueue
	// time; it defines the FIFO drain order and is never serialised.
	Seq int64 `json:"-"`

	ID         string          `json:"id"`
	Kind       OperationKind   `json:"kind"`
	Table      TableIdentity   `json:"table"`
	OwnerID    string          `json:"owner_id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
}

// DecodeRow decodes the operation's payload back into the Row that was
// captured at enqueue time.
func (op PendingOperation) DecodeRow() (Row, error) {
	var row Row
	if err := json.Unmarshal(op.Payload, &row); err != nil {
		return Row{}, err
	}
	return row, nil
}

// NewPendingOperation captures row as a pending operation of the given kind.
func NewPendingOperation(kind OperationKind, row Row, enqueuedAt time.Time) (PendingOperation, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return PendingOperation{}, err
	}

	return PendingOperation{
		ID:         row.ID,
		Kind:       kind,
		Table:      row.Table,
		OwnerID:    row.OwnerID,
		Payload:    payload,
		EnqueuedAt: enqueuedAt,
	}, nil
}
