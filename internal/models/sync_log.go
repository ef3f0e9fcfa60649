package models

import "time"

// SyncLogEntry is the append-only record behind the idempotency guard.
// A completed entry is permanent: it is never deleted or re-opened.
type SyncLogEntry struct {
	ID             int64     `json:"id"`
	OrganizationID string    `json:"organization_id"`
	SyncType       string    `json:"sync_type"`
	Provider       string    `json:"provider"` // hcp, qbo, qbd
	Status         string    `json:"status"`
	RequestData    string    `json:"request_data"` // JSON, contains the external natural key
	ResponseData   *string   `json:"response_data,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
