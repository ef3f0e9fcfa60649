package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"qbsync/internal/models"
)

// CreateInventoryItem registers an item tracked by the bridge.
func (db *DB) CreateInventoryItem(ctx context.Context, item *models.InventoryItem) error {
	now := time.Now()
	result, err := db.db.ExecContext(ctx,
		`INSERT INTO inventory_items (organization_id, sku, name, asset_account_ref, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		item.OrganizationID, item.SKU, item.Name, item.AssetAccountRef, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create inventory item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	item.ID = id
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

// GetInventoryItemBySKU returns nil without error when the SKU is unknown;
// the orchestrator skips unmatched line items.
func (db *DB) GetInventoryItemBySKU(ctx context.Context, organizationID, sku string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := db.db.QueryRowContext(ctx,
		`SELECT id, organization_id, sku, name, asset_account_ref, created_at, updated_at
         FROM inventory_items WHERE organization_id = ? AND sku = ?`,
		organizationID, sku,
	).Scan(&item.ID, &item.OrganizationID, &item.SKU, &item.Name, &item.AssetAccountRef, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory item %q: %w", sku, err)
	}
	return &item, nil
}

// GetInventoryItem returns an item by id.
func (db *DB) GetInventoryItem(ctx context.Context, id int64) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := db.db.QueryRowContext(ctx,
		`SELECT id, organization_id, sku, name, asset_account_ref, created_at, updated_at
         FROM inventory_items WHERE id = ?`,
		id,
	).Scan(&item.ID, &item.OrganizationID, &item.SKU, &item.Name, &item.AssetAccountRef, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory item %d: %w", id, err)
	}
	return &item, nil
}

// UpsertLocationStock sets the absolute on-hand quantity for an item at a
// location.
func (db *DB) UpsertLocationStock(ctx context.Context, stock *models.LocationStock) error {
	now := time.Now()
	_, err := db.db.ExecContext(ctx,
		`INSERT INTO location_stock (item_id, location_id, quantity, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(item_id, location_id) DO UPDATE SET
             quantity = excluded.quantity,
             updated_at = excluded.updated_at`,
		stock.ItemID, stock.LocationID, stock.Quantity, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert location stock: %w", err)
	}
	stock.UpdatedAt = now
	return nil
}

// GetLocationStock returns the on-hand quantity for an item at a location.
func (db *DB) GetLocationStock(ctx context.Context, itemID int64, locationID string) (*models.LocationStock, error) {
	var stock models.LocationStock
	err := db.db.QueryRowContext(ctx,
		`SELECT id, item_id, location_id, quantity, updated_at
         FROM location_stock WHERE item_id = ? AND location_id = ?`,
		itemID, locationID,
	).Scan(&stock.ID, &stock.ItemID, &stock.LocationID, &stock.Quantity, &stock.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get location stock: %w", err)
	}
	return &stock, nil
}

// AdjustStock applies a delta to the on-hand quantity, floored at zero.
func (db *DB) AdjustStock(ctx context.Context, itemID int64, locationID string, delta float64) error {
	return adjustStockTx(ctx, db.db, itemID, locationID, delta)
}

func adjustStockTx(ctx context.Context, ex execer, itemID int64, locationID string, delta float64) error {
	res, err := ex.ExecContext(ctx,
		`UPDATE location_stock SET quantity = MAX(0, quantity + ?), updated_at = ? WHERE item_id = ? AND location_id = ?`,
		delta, time.Now(), itemID, locationID,
	)
	if err != nil {
		return fmt.Errorf("failed to adjust stock for item %d: %w", itemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no stock row for item %d at location %s", itemID, locationID)
	}
	return nil
}

// ApplyInventorySync runs the whole mutation for one external event in a
// single transaction: every stock decrement, every enqueued work item and
// the completed sync log row commit together or not at all. A crash halfway
// through a batch therefore leaves nothing applied, and a webhook retry
// re-runs cleanly.
func (db *DB) ApplyInventorySync(ctx context.Context, adjustments []models.StockAdjustment, items []*models.WorkItem, entry *models.SyncLogEntry) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, adj := range adjustments {
		if err := adjustStockTx(ctx, tx, adj.ItemID, adj.LocationID, adj.Delta); err != nil {
			return err
		}
	}
	for _, item := range items {
		if err := db.enqueueWorkItem(ctx, tx, item); err != nil {
			return err
		}
	}
	if entry != nil {
		if err := db.createSyncLogEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit inventory sync: %w", err)
	}
	return nil
}
