package models

import "time"

// WebhookEvent is the raw audit trail of inbound webhooks. It is written
// after signature verification but before any processing decision, so the
// trail is complete even when processing fails.
type WebhookEvent struct {
	ID             int64     `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Provider       string    `json:"provider"`
	EventType      string    `json:"event_type"`
	Payload        string    `json:"payload"`
	Processed      bool      `json:"processed"`
	CreatedAt      time.Time `json:"created_at"`
}
