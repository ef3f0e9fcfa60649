package database

import (
	"context"
	"testing"

	"qbsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedItemWithStock(t *testing.T, db *DB, sku string, quantity float64) *models.InventoryItem {
	t.Helper()
	ctx := context.Background()

	item := &models.InventoryItem{
		OrganizationID:  "org-1",
		SKU:             sku,
		Name:            "Copper Pipe 1/2in",
		AssetAccountRef: "Inventory Asset",
	}
	require.NoError(t, db.CreateInventoryItem(ctx, item))
	require.NoError(t, db.UpsertLocationStock(ctx, &models.LocationStock{
		ItemID:     item.ID,
		LocationID: "main",
		Quantity:   quantity,
	}))
	return item
}

func TestInventoryItemLookup(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	item := seedItemWithStock(t, db, "PIPE-050", 10)

	got, err := db.GetInventoryItemBySKU(ctx, "org-1", "PIPE-050")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, item.ID, got.ID)

	// Unknown SKU is not an error
	got, err = db.GetInventoryItemBySKU(ctx, "org-1", "NOPE")
	require.NoError(t, err)
	assert.Nil(t, got)

	// SKU lookups are tenant scoped
	got, err = db.GetInventoryItemBySKU(ctx, "org-2", "PIPE-050")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAdjustStockFloorsAtZero(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	item := seedItemWithStock(t, db, "PIPE-050", 3)

	require.NoError(t, db.AdjustStock(ctx, item.ID, "main", -2))

	stock, err := db.GetLocationStock(ctx, item.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, float64(1), stock.Quantity)

	// Over-consumption clamps to zero instead of going negative.
	require.NoError(t, db.AdjustStock(ctx, item.ID, "main", -5))
	stock, err = db.GetLocationStock(ctx, item.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, float64(0), stock.Quantity)

	// No stock row is an error.
	err = db.AdjustStock(ctx, item.ID, "warehouse-2", -1)
	assert.Error(t, err)
}

func TestUpsertLocationStockOverwrites(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	item := seedItemWithStock(t, db, "PIPE-050", 10)

	require.NoError(t, db.UpsertLocationStock(ctx, &models.LocationStock{
		ItemID:     item.ID,
		LocationID: "main",
		Quantity:   25,
	}))

	stock, err := db.GetLocationStock(ctx, item.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, float64(25), stock.Quantity)
}

func TestApplyInventorySyncIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	item := seedItemWithStock(t, db, "PIPE-050", 10)

	adjustments := []models.StockAdjustment{
		{ItemID: item.ID, LocationID: "main", Delta: -4},
	}
	workItem := &models.WorkItem{
		OrganizationID: "org-1",
		RequestType:    models.RequestInventoryAdjustment,
		Payload:        "<qbxml/>",
	}
	entry := &models.SyncLogEntry{
		OrganizationID: "org-1",
		SyncType:       models.SyncTypeJobCompleted,
		Provider:       models.ProviderHCP,
		Status:         models.SyncStatusCompleted,
		RequestData:    `{"job_id":"job-1"}`,
	}

	err := db.ApplyInventorySync(ctx, adjustments, []*models.WorkItem{workItem}, entry)
	require.NoError(t, err)

	stock, err := db.GetLocationStock(ctx, item.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, float64(6), stock.Quantity)

	claimed, err := db.ClaimNextWorkItem(ctx, "org-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, workItem.ID, claimed.ID)

	done, err := db.HasCompletedSync(ctx, "org-1", models.ProviderHCP, models.SyncTypeJobCompleted, "job_id", "job-1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestApplyInventorySyncRollsBackOnFailure(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	item := seedItemWithStock(t, db, "PIPE-050", 10)

	// Second adjustment targets a location with no stock row, which fails
	// the batch; the first decrement must not survive.
	adjustments := []models.StockAdjustment{
		{ItemID: item.ID, LocationID: "main", Delta: -4},
		{ItemID: item.ID, LocationID: "missing", Delta: -1},
	}
	workItem := &models.WorkItem{
		OrganizationID: "org-1",
		RequestType:    models.RequestInventoryAdjustment,
		Payload:        "<qbxml/>",
	}

	err := db.ApplyInventorySync(ctx, adjustments, []*models.WorkItem{workItem}, nil)
	require.Error(t, err)

	stock, err := db.GetLocationStock(ctx, item.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, float64(10), stock.Quantity)

	claimed, err := db.ClaimNextWorkItem(ctx, "org-1")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}
