package models

import "time"

// InventoryItem mirrors a QuickBooks inventory item tracked by the bridge.
type InventoryItem struct {
	ID              int64     `json:"id"`
	OrganizationID  string    `json:"organization_id"`
	SKU             string    `json:"sku"`
	Name            string    `json:"name"`
	AssetAccountRef string    `json:"asset_account_ref"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LocationStock is the on-hand quantity of an item at one location.
// Quantity never goes below zero.
type LocationStock struct {
	ID         int64     `json:"id"`
	ItemID     int64     `json:"item_id"`
	LocationID string    `json:"location_id"`
	Quantity   float64   `json:"quantity"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StockAdjustment is one planned decrement produced by the orchestrator,
// applied together with its work item and sync log row in one transaction.
type StockAdjustment struct {
	ItemID     int64
	LocationID string
	Delta      float64 // negative means consumed
}
