package models

import "time"

// ChangeKind discriminates a server-originated row change.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is a single server-pushed row change, decoded and routed by
// the subscription manager and consumed once by a listener. Events are
// ephemeral and never persisted.
//
// NewRow is set for inserts and updates; OldRow is set for updates and
// deletes when the backend includes the previous snapshot. A listener
// receiving an event whose row id matches a locally-optimistic record must
// treat it as confirmation of that record, not as a new row.
type ChangeEvent struct {
	Kind       ChangeKind    `json:"kind"`
	Table      TableIdentity `json:"table"`
	NewRow     *Row          `json:"new_row,omitempty"`
	OldRow     *Row          `json:"old_row,omitempty"`
	ObservedAt time.Time     `json:"observed_at"`
}

// RowID returns the id of the row the event describes, preferring the new
// snapshot when both are present.
func (e ChangeEvent) RowID() string {
	if e.NewRow != nil {
		return e.NewRow.ID
	}
	if e.OldRow != nil {
		return e.OldRow.ID
	}
	return ""
}
