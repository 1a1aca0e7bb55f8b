// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package adapter provides transport-layer abstractions for communicating
// with the managed backend that owns the ledger tables.
//
// The primary abstraction is [BackendAdapter], which decouples the engine's
// services from the wire protocol. The package ships an HTTP/REST
// implementation ([NewHTTPBackendAdapter]) whose push channel is a
// server-sent-events stream.
//
// Error values defined in errors.go are mapped from HTTP status codes by
// mapHTTPError so that callers can use [errors.Is] for transport-agnostic
// classification ([ErrNetwork] is the only retryable class).
package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ledgerkeep/ledgersync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/backend_adapter_mock.go -package=mock

// RowChange is one raw server-pushed row event as delivered by the push
// channel, before the subscription manager decodes it into a typed
// [models.ChangeEvent].
type RowChange struct {
	Kind  string          `json:"kind"` // "insert", "update", "delete"
	Table string          `json:"table"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// Channel is one open push-channel for a (table, filter) pair. Each caller
// of OpenChannel owns an independent Channel; closing it never affects
// other subscribers.
type Channel interface {
	// Events returns the stream of decoded row events. The channel is
	// closed when the stream ends, whether by Close or by a transport
	// failure; consult Err afterwards to tell the two apart.
	Events() <-chan RowChange

	// Err returns the transport error that terminated the stream, or nil
	// after a clean Close. Valid only once Events has been closed.
	Err() error

	// Close tears the stream down. Idempotent.
	Close()
}

// BatchOutcome is the per-row result of a batch insert. Err is empty when
// the row was accepted.
type BatchOutcome struct {
	Row models.Row `json:"row"`
	Err string     `json:"error,omitempty"`
}

// BackendAdapter defines transport-agnostic communication with the backend.
// Implementations are responsible for serialisation, auth header
// management, and mapping transport-level failures to the sentinel values
// defined in this package.
type BackendAdapter interface {
	// SetAuthToken stores the opaque identity token attached to all
	// subsequent requests. Called once identity becomes available,
	// before any subscribe or mutation.
	SetAuthToken(token string)

	// Token returns the identity token currently stored in the adapter,
	// or an empty string if none has been set.
	Token() string

	// Insert creates row on the backend using the client-generated id
	// carried in row.ID and returns the server-confirmed record.
	Insert(ctx context.Context, row models.Row) (models.Row, error)

	// Update applies patch to the row identified by (table, id), scoped to
	// ownerID. Attempting to update another owner's row surfaces as
	// [ErrOwnership]. Returns the server-confirmed record.
	Update(ctx context.Context, table models.TableIdentity, id, ownerID string, patch models.RowFields, updatedAt time.Time) (models.Row, error)

	// SoftDelete stamps a deletion tombstone on the row identified by
	// (table, id), scoped to ownerID. The row is retained server-side so
	// other devices can reconcile the deletion.
	SoftDelete(ctx context.Context, table models.TableIdentity, id, ownerID string, deletedAt time.Time) error

	// BatchInsert creates rows in a single request and returns one outcome
	// per input row, in input order. A transport-level failure returns an
	// error and no outcomes.
	BatchInsert(ctx context.Context, table models.TableIdentity, rows []models.Row) ([]BatchOutcome, error)

	// HealthProbe issues a lightweight read against the backend. Used by
	// the connection monitor; a failure is treated like a channel error.
	HealthProbe(ctx context.Context) error

	// OpenChannel opens one push-channel for table scoped by filter.
	// Channels are not deduplicated: every call opens an independent
	// stream owned by the caller.
	OpenChannel(ctx context.Context, table models.TableIdentity, filter string) (Channel, error)
}
