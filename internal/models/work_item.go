package models

import "time"

// WorkItem is one unit of pending QuickBooks Desktop work: a single qbXML
// request waiting for the Web Connector to pick it up.
type WorkItem struct {
	ID             int64     `json:"id"`
	OrganizationID string    `json:"organization_id"`
	RequestType    string    `json:"request_type"`
	Payload        string    `json:"payload"`
	Status         string    `json:"status"` // pending, processing, completed, failed
	Priority       int       `json:"priority"`
	Attempts       int       `json:"attempts"`
	MaxAttempts    int       `json:"max_attempts"`
	ResponseBody   *string   `json:"response_body,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
