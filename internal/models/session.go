package models

import "time"

// Session is one QBWC polling conversation. It exists only between
// authenticate and closeConnection/connectionError and owns exactly one
// claimed work item for its lifetime. JSON tags support the redis-backed
// session repository.
type Session struct {
	Ticket            string    `json:"ticket"`
	OrganizationID    string    `json:"organization_id"`
	CompanyFileName   string    `json:"company_file_name"` // bound lazily on first sendRequestXML
	ClaimedWorkItemID int64     `json:"claimed_work_item_id"`
	StartedAt         time.Time `json:"started_at"`
	LastSeen          time.Time `json:"last_seen"`
}
