package models

// Work queue statuses.
const (
	WorkStatusPending    = "pending"
	WorkStatusProcessing = "processing"
	WorkStatusCompleted  = "completed"
	WorkStatusFailed     = "failed"
)

// Request types carried by work queue items.
const (
	RequestInventoryAdjustment = "inventory_adjustment"
	RequestTimeTracking        = "time_tracking"
	RequestInvoice             = "invoice"
	RequestCustomer            = "customer"
	RequestItem                = "item"
)

// Sync log statuses.
const (
	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

// Sync providers.
const (
	ProviderHCP = "hcp"
	ProviderQBO = "qbo"
	ProviderQBD = "qbd"
)

// Sync types recorded in the sync log.
const (
	SyncTypeJobCompleted     = "job_completed"
	SyncTypeInvoice          = "invoice"
	SyncTypeManualAdjustment = "manual_adjustment"
)

const (
	// DefaultMaxAttempts bounds retries for a single work item.
	DefaultMaxAttempts = 3

	// DefaultPriority places an item in the middle of the queue.
	DefaultPriority = 5

	// DefaultSessionTTL is how long an idle QBWC session survives before
	// the sweep releases its claimed work item.
	DefaultSessionTTL = 10 * 60 // seconds
)
