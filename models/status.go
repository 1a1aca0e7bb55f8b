package models

import "time"

// SyncStatus is the aggregated view of the engine's health, broadcast as a
// full snapshot to every observer on every change. There is exactly one
// instance per engine; it is created at engine start and only ever updated.
type SyncStatus struct {
	IsOnline             bool       `json:"is_online"`
	IsChannelConnected   bool       `json:"is_channel_connected"`
	PendingCount         int        `json:"pending_count"`
	LastSuccessfulSyncAt *time.Time `json:"last_successful_sync_at,omitempty"`
	LastError            string     `json:"last_error,omitempty"`
}
