package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"qbsync/internal/config"
	"qbsync/internal/database"
	"qbsync/internal/hcp"
	"qbsync/internal/models"
	"qbsync/internal/qbo"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLineItemSource struct {
	items map[string][]hcp.LineItem
	err   error
}

func (f *fakeLineItemSource) GetJobLineItems(ctx context.Context, jobID string) ([]hcp.LineItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items[jobID], nil
}

func setupOrchestrator(t *testing.T, jobs *fakeLineItemSource) (*Orchestrator, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "syncer.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	qbwcCfg := config.QBWCConfig{
		OrganizationID:    "org-1",
		AdjustmentAccount: "Inventory Adjustment",
	}
	syncCfg := config.SyncConfig{
		MaxAttempts:     3,
		DefaultLocation: "main",
	}
	return NewOrchestrator(db, jobs, nil, qbwcCfg, syncCfg, &logger), db
}

func seedInventory(t *testing.T, db *database.DB, sku string, quantity float64) *models.InventoryItem {
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

func TestHandleHCPEventJobCompleted(t *testing.T) {
	jobs := &fakeLineItemSource{items: map[string][]hcp.LineItem{
		"job-42": {
			{ID: "li-1", Name: "Copper Pipe", Kind: "materials", SKU: "PIPE-050", Quantity: 3},
			{ID: "li-2", Name: "Labor", Kind: "labor", Quantity: 2},              // not materials
			{ID: "li-3", Name: "Unknown Part", Kind: "materials", Quantity: 1},  // no matching SKU
			{ID: "li-4", Name: "Returned", Kind: "materials", SKU: "PIPE-050", Quantity: 0}, // zero qty
		},
	}}
	o, db := setupOrchestrator(t, jobs)
	ctx := context.Background()

	item := seedInventory(t, db, "PIPE-050", 10)

	raw := []byte(`{"event":"job.completed","company_id":"co-1","job":{"id":"job-42"}}`)
	require.NoError(t, o.HandleHCPEvent(ctx, raw))

	// Stock decremented for the matched material line only.
	stock, err := db.GetLocationStock(ctx, item.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, float64(7), stock.Quantity)

	// One adjustment work item queued.
	workItems, err := db.ListWorkItems(ctx, "org-1", 10)
	require.NoError(t, err)
	require.Len(t, workItems, 1)
	assert.Equal(t, models.RequestInventoryAdjustment, workItems[0].RequestType)
	assert.Contains(t, workItems[0].Payload, "<QuantityDifference>-3</QuantityDifference>")
	assert.Contains(t, workItems[0].Payload, "HCP job job-42")

	// Completed log row carrying the natural key.
	done, err := db.HasCompletedSync(ctx, "org-1", models.ProviderHCP, models.SyncTypeJobCompleted, "job_id", "job-42")
	require.NoError(t, err)
	assert.True(t, done)

	// Raw payload is on the audit trail, marked processed.
	events, err := db.ListWebhookEvents(ctx, models.ProviderHCP, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "job.completed", events[0].EventType)
	assert.True(t, events[0].Processed)
}

func TestHandleHCPEventDuplicateDelivery(t *testing.T) {
	jobs := &fakeLineItemSource{items: map[string][]hcp.LineItem{
		"job-42": {{ID: "li-1", Name: "Copper Pipe", Kind: "materials", SKU: "PIPE-050", Quantity: 3}},
	}}
	o, db := setupOrchestrator(t, jobs)
	ctx := context.Background()

	item := seedInventory(t, db, "PIPE-050", 10)

	raw := []byte(`{"event":"job.completed","job":{"id":"job-42"}}`)
	require.NoError(t, o.HandleHCPEvent(ctx, raw))
	require.NoError(t, o.HandleHCPEvent(ctx, raw))

	// Exactly one decrement, one work item, despite two deliveries.
	stock, err := db.GetLocationStock(ctx, item.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, float64(7), stock.Quantity)

	workItems, err := db.ListWorkItems(ctx, "org-1", 10)
	require.NoError(t, err)
	assert.Len(t, workItems, 1)

	// Both deliveries are on the audit trail.
	events, err := db.ListWebhookEvents(ctx, models.ProviderHCP, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestHandleHCPEventIgnoresOtherTypes(t *testing.T) {
	o, db := setupOrchestrator(t, &fakeLineItemSource{})
	ctx := context.Background()

	raw := []byte(`{"event":"job.scheduled","job":{"id":"job-1"}}`)
	require.NoError(t, o.HandleHCPEvent(ctx, raw))

	workItems, err := db.ListWorkItems(ctx, "org-1", 10)
	require.NoError(t, err)
	assert.Empty(t, workItems)

	events, err := db.ListWebhookEvents(ctx, models.ProviderHCP, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Processed)
}

func TestHandleHCPEventUpstreamFailure(t *testing.T) {
	jobs := &fakeLineItemSource{err: errors.New("hcp api unavailable")}
	o, db := setupOrchestrator(t, jobs)
	ctx := context.Background()

	raw := []byte(`{"event":"job.completed","job":{"id":"job-7"}}`)
	// Processing failure is not surfaced to the webhook sender.
	require.NoError(t, o.HandleHCPEvent(ctx, raw))

	// A failed entry is logged but does not block a later retry.
	entries, err := db.ListSyncLogEntries(ctx, "org-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SyncStatusFailed, entries[0].Status)

	done, err := db.HasCompletedSync(ctx, "org-1", models.ProviderHCP, models.SyncTypeJobCompleted, "job_id", "job-7")
	require.NoError(t, err)
	assert.False(t, done)

	// Retry after recovery succeeds.
	jobs.err = nil
	jobs.items = map[string][]hcp.LineItem{"job-7": {}}
	require.NoError(t, o.HandleHCPEvent(ctx, raw))

	done, err = db.HasCompletedSync(ctx, "org-1", models.ProviderHCP, models.SyncTypeJobCompleted, "job_id", "job-7")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestHandleHCPEventMalformedPayload(t *testing.T) {
	o, _ := setupOrchestrator(t, &fakeLineItemSource{})
	assert.Error(t, o.HandleHCPEvent(context.Background(), []byte("not json")))
}

func TestHandleQBOEventQueuesInvoiceWork(t *testing.T) {
	o, db := setupOrchestrator(t, &fakeLineItemSource{})
	ctx := context.Background()

	raw := []byte(`{"eventNotifications":[{"realmId":"r-1","dataChangeEvent":{"entities":[
		{"name":"Invoice","id":"inv-100","operation":"Create"},
		{"name":"Customer","id":"cust-5","operation":"Update"}
	]}}]}`)

	require.NoError(t, o.HandleQBOEvent(ctx, raw))

	workItems, err := db.ListWorkItems(ctx, "org-1", 10)
	require.NoError(t, err)
	require.Len(t, workItems, 1)
	assert.Equal(t, models.RequestInvoice, workItems[0].RequestType)
	assert.Contains(t, workItems[0].Payload, "<TxnID>inv-100</TxnID>")

	// Replay is a no-op.
	require.NoError(t, o.HandleQBOEvent(ctx, raw))
	workItems, err = db.ListWorkItems(ctx, "org-1", 10)
	require.NoError(t, err)
	assert.Len(t, workItems, 1)
}

type fakeInvoiceSource struct {
	invoice *qbo.Invoice
	err     error
}

func (f fakeInvoiceSource) GetInvoice(ctx context.Context, invoiceID string) (*qbo.Invoice, error) {
	return f.invoice, f.err
}

func TestHandleQBOEventEnrichesFromInvoiceSource(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "enrich.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	invoices := fakeInvoiceSource{invoice: &qbo.Invoice{ID: "inv-100", DocNumber: "1042", TotalAmt: 450.75}}
	o := NewOrchestrator(db, &fakeLineItemSource{}, invoices,
		config.QBWCConfig{OrganizationID: "org-1", AdjustmentAccount: "Inventory Adjustment"},
		config.SyncConfig{MaxAttempts: 3, DefaultLocation: "main"}, &logger)

	ctx := context.Background()
	raw := []byte(`{"eventNotifications":[{"dataChangeEvent":{"entities":[{"name":"Invoice","id":"inv-100","operation":"Create"}]}}]}`)
	require.NoError(t, o.HandleQBOEvent(ctx, raw))

	entries, err := db.ListSyncLogEntries(ctx, "org-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].RequestData, `"doc_number":"1042"`)
	assert.Contains(t, entries[0].RequestData, `"invoice_id":"inv-100"`)
}

func TestHandleQBOEventQueuesWhenInvoiceSourceFails(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "degraded.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	invoices := fakeInvoiceSource{err: errors.New("qbo unavailable")}
	o := NewOrchestrator(db, &fakeLineItemSource{}, invoices,
		config.QBWCConfig{OrganizationID: "org-1", AdjustmentAccount: "Inventory Adjustment"},
		config.SyncConfig{MaxAttempts: 3, DefaultLocation: "main"}, &logger)

	ctx := context.Background()
	raw := []byte(`{"eventNotifications":[{"dataChangeEvent":{"entities":[{"name":"Invoice","id":"inv-9","operation":"Create"}]}}]}`)
	require.NoError(t, o.HandleQBOEvent(ctx, raw))

	// Enrichment is best-effort: the work item is queued regardless.
	workItems, err := db.ListWorkItems(ctx, "org-1", 10)
	require.NoError(t, err)
	require.Len(t, workItems, 1)
	assert.Equal(t, models.RequestInvoice, workItems[0].RequestType)
}

func TestQueueManualAdjustment(t *testing.T) {
	o, db := setupOrchestrator(t, &fakeLineItemSource{})
	ctx := context.Background()

	item := seedInventory(t, db, "PIPE-050", 10)

	workItem, err := o.QueueManualAdjustment(ctx, ManualAdjustment{
		ItemID:     item.ID,
		Adjustment: -2,
		Reason:     "cycle count correction",
	})
	require.NoError(t, err)
	require.NotNil(t, workItem)
	assert.Contains(t, workItem.Payload, "<QuantityDifference>-2</QuantityDifference>")
	assert.Contains(t, workItem.Payload, "cycle count correction")

	stock, err := db.GetLocationStock(ctx, item.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, float64(8), stock.Quantity)

	// No idempotency guard: the same request queues again.
	_, err = o.QueueManualAdjustment(ctx, ManualAdjustment{
		ItemID:     item.ID,
		Adjustment: -2,
		Reason:     "cycle count correction",
	})
	require.NoError(t, err)

	workItems, err := db.ListWorkItems(ctx, "org-1", 10)
	require.NoError(t, err)
	assert.Len(t, workItems, 2)
}
