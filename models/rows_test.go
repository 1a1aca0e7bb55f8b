// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Row JSON ─────────────────────────────────────────────────────────────────

func TestRow_UnmarshalJSON_DispatchesFieldsByTable(t *testing.T) {
	raw := []byte(`{
		"id": "c-1",
		"owner_id": "owner-1",
		"table": "customers",
		"created_at": "2026-08-01T10:00:00Z",
		"updated_at": "2026-08-01T10:00:00Z",
		"fields": {"name": "Asha Traders", "phone": "+91-98000", "balance": 1250.5}
	}`)

	var row Row
	require.NoError(t, json.Unmarshal(raw, &row))

	assert.Equal(t, "c-1", row.ID)
	assert.Equal(t, TableCustomers, row.Table)
	assert.False(t, row.Deleted())

	customer, ok := row.Fields.(Customer)
	require.True(t, ok, "fields должны декодироваться в вариант таблицы")
	assert.Equal(t, "Asha Traders", customer.Name)
	assert.Equal(t, 1250.5, customer.Balance)
}

func TestRow_UnmarshalJSON_TombstoneWithoutFields(t *testing.T) {
	raw := []byte(`{
		"id": "s-9",
		"owner_id": "owner-1",
		"table": "suppliers",
		"created_at": "2026-08-01T10:00:00Z",
		"updated_at": "2026-08-02T09:30:00Z",
		"deleted_at": "2026-08-02T09:30:00Z"
	}`)

	var row Row
	require.NoError(t, json.Unmarshal(raw, &row))

	assert.True(t, row.Deleted())
	assert.Nil(t, row.Fields)
}

func TestRow_UnmarshalJSON_UnknownTable(t *testing.T) {
	raw := []byte(`{"id": "x", "table": "ledgers", "fields": {"name": "n"}}`)

	var row Row
	err := json.Unmarshal(raw, &row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table")
}

func TestRow_MarshalRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	row := Row{
		ID:        "tx-1",
		OwnerID:   "owner-1",
		Table:     TableTransactions,
		CreatedAt: now,
		UpdatedAt: now,
		Fields: Transaction{
			PartyID:    "c-1",
			Amount:     500,
			Direction:  "credit",
			OccurredAt: now,
		},
	}

	data, err := json.Marshal(row)
	require.NoError(t, err)

	var decoded Row
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, row.ID, decoded.ID)
	assert.Equal(t, row.Table, decoded.Table)
	tx, ok := decoded.Fields.(Transaction)
	require.True(t, ok)
	assert.Equal(t, 500.0, tx.Amount)
	assert.Equal(t, "credit", tx.Direction)
}

// ── DecodeRow ────────────────────────────────────────────────────────────────

func TestDecodeRow_DefaultsTableFromFallback(t *testing.T) {
	// push-каналы скоупят события по таблице, поэтому envelope может не
	// содержать дискриминант
	raw := json.RawMessage(`{
		"id": "i-1",
		"owner_id": "owner-1",
		"created_at": "2026-08-01T10:00:00Z",
		"updated_at": "2026-08-01T10:00:00Z",
		"fields": {"customer_id": "c-1", "number": "INV-7", "amount": 990, "status": "sent", "issued_at": "2026-08-01T10:00:00Z"}
	}`)

	row, err := DecodeRow(TableInvoices, raw)
	require.NoError(t, err)

	assert.Equal(t, TableInvoices, row.Table)
	invoice, ok := row.Fields.(Invoice)
	require.True(t, ok)
	assert.Equal(t, "INV-7", invoice.Number)
}

func TestDecodeRowFields_UnknownTable(t *testing.T) {
	_, err := DecodeRowFields("payments", json.RawMessage(`{}`))
	require.Error(t, err)
}

// ── PendingOperation ─────────────────────────────────────────────────────────

func TestNewPendingOperation_CapturesRow(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	row := Row{
		ID:        "st-1",
		OwnerID:   "owner-1",
		Table:     TableStaff,
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    StaffMember{Name: "Ravi", Active: true},
	}

	op, err := NewPendingOperation(OperationCreate, row, now)
	require.NoError(t, err)

	assert.Equal(t, row.ID, op.ID)
	assert.Equal(t, OperationCreate, op.Kind)
	assert.Equal(t, TableStaff, op.Table)
	assert.Equal(t, "owner-1", op.OwnerID)

	decoded, err := op.DecodeRow()
	require.NoError(t, err)
	assert.Equal(t, row.ID, decoded.ID)

	staff, ok := decoded.Fields.(StaffMember)
	require.True(t, ok)
	assert.Equal(t, "Ravi", staff.Name)
	assert.True(t, staff.Active)
}

func TestTableIdentity_Validate(t *testing.T) {
	for _, table := range AllTables() {
		assert.NoError(t, table.Validate(), string(table))
	}
	assert.Error(t, TableIdentity("orders").Validate())
	assert.Error(t, TableIdentity("").Validate())
}
