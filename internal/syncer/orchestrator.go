// Package syncer turns verified external events into inventory mutations
// and queued QuickBooks Desktop work, exactly once per natural key.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qbsync/internal/config"
	"qbsync/internal/database"
	"qbsync/internal/hcp"
	"qbsync/internal/metrics"
	"qbsync/internal/models"
	"qbsync/internal/qbo"
	"qbsync/internal/qbxml"

	"github.com/rs/zerolog"
)

// LineItemSource is the slice of the HCP client the orchestrator needs.
type LineItemSource interface {
	GetJobLineItems(ctx context.Context, jobID string) ([]hcp.LineItem, error)
}

// InvoiceSource is the slice of the QBO client used to enrich invoice sync
// entries. Optional: without it invoices are queued by id alone.
type InvoiceSource interface {
	GetInvoice(ctx context.Context, invoiceID string) (*qbo.Invoice, error)
}

type Orchestrator struct {
	db       *database.DB
	jobs     LineItemSource
	invoices InvoiceSource
	orgID    string
	account  string // inventory adjustment account ref
	location string
	maxAtt   int
	logger   zerolog.Logger
}

func NewOrchestrator(db *database.DB, jobs LineItemSource, invoices InvoiceSource, qbwcCfg config.QBWCConfig, syncCfg config.SyncConfig, logger *zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		db:       db,
		jobs:     jobs,
		invoices: invoices,
		orgID:    qbwcCfg.OrganizationID,
		account:  qbwcCfg.AdjustmentAccount,
		location: syncCfg.DefaultLocation,
		maxAtt:   syncCfg.MaxAttempts,
		logger:   logger.With().Str("component", "syncer").Logger(),
	}
}

type hcpEvent struct {
	Event     string `json:"event"`
	CompanyID string `json:"company_id"`
	Job       struct {
		ID string `json:"id"`
	} `json:"job"`
}

// HandleHCPEvent processes one verified HCP webhook delivery. The raw
// payload is recorded unconditionally before any processing decision.
// Duplicate deliveries short-circuit on the job's natural key; mutation
// failure writes a failed log row and is not an error to the sender.
func (o *Orchestrator) HandleHCPEvent(ctx context.Context, raw []byte) error {
	var event hcpEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("failed to parse hcp event: %w", err)
	}

	record := &models.WebhookEvent{
		OrganizationID: o.orgID,
		Provider:       models.ProviderHCP,
		EventType:      event.Event,
		Payload:        string(raw),
	}
	if err := o.db.CreateWebhookEvent(ctx, record); err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}

	if event.Event != "job.completed" || event.Job.ID == "" {
		o.logger.Debug().Str("event", event.Event).Msg("ignoring hcp event type")
		return o.markProcessed(ctx, record.ID)
	}

	done, err := o.db.HasCompletedSync(ctx, o.orgID, models.ProviderHCP, models.SyncTypeJobCompleted, "job_id", event.Job.ID)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if done {
		// At-least-once delivery makes duplicates expected; this is a
		// successful no-op, not an error.
		o.logger.Info().Str("job_id", event.Job.ID).Msg("job already synced, skipping")
		metrics.IncWebhook(models.ProviderHCP, "duplicate")
		return o.markProcessed(ctx, record.ID)
	}

	if err := o.processJobCompleted(ctx, event.Job.ID); err != nil {
		o.logger.Error().Err(err).Str("job_id", event.Job.ID).Msg("job sync failed")
		o.writeFailedEntry(ctx, models.ProviderHCP, models.SyncTypeJobCompleted,
			map[string]any{"job_id": event.Job.ID}, err)
		metrics.IncWebhook(models.ProviderHCP, "failed")
		return nil
	}

	metrics.IncWebhook(models.ProviderHCP, "processed")
	return o.markProcessed(ctx, record.ID)
}

// processJobCompleted decrements stock for the job's material line items
// and queues the matching inventory adjustments. All decrements, all work
// items and the completed log row commit in one transaction, so a crash
// mid-batch leaves nothing applied and the retry re-runs cleanly.
func (o *Orchestrator) processJobCompleted(ctx context.Context, jobID string) error {
	lineItems, err := o.jobs.GetJobLineItems(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to fetch line items: %w", err)
	}

	var adjustments []models.StockAdjustment
	var workItems []*models.WorkItem
	for _, line := range lineItems {
		if line.Kind != "materials" || line.Quantity <= 0 {
			continue
		}
		sku := line.SKU
		if sku == "" {
			sku = line.Name
		}
		item, err := o.db.GetInventoryItemBySKU(ctx, o.orgID, sku)
		if err != nil {
			return err
		}
		if item == nil {
			o.logger.Debug().Str("sku", sku).Msg("line item has no matching inventory item")
			continue
		}

		delta := -line.Quantity
		payload, err := qbxml.BuildInventoryAdjustment(qbxml.InventoryAdjustmentRequest{
			ItemRef:            item.Name,
			QuantityAdjustment: delta,
			AccountRef:         o.account,
			Memo:               fmt.Sprintf("HCP job %s", jobID),
			TxnDate:            time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to build adjustment for %s: %w", sku, err)
		}

		adjustments = append(adjustments, models.StockAdjustment{
			ItemID:     item.ID,
			LocationID: o.location,
			Delta:      delta,
		})
		workItems = append(workItems, &models.WorkItem{
			OrganizationID: o.orgID,
			RequestType:    models.RequestInventoryAdjustment,
			Payload:        payload,
			Priority:       models.DefaultPriority,
			MaxAttempts:    o.maxAtt,
		})
	}

	requestData, _ := json.Marshal(map[string]any{"job_id": jobID, "line_items": len(adjustments)})
	entry := &models.SyncLogEntry{
		OrganizationID: o.orgID,
		SyncType:       models.SyncTypeJobCompleted,
		Provider:       models.ProviderHCP,
		Status:         models.SyncStatusCompleted,
		RequestData:    string(requestData),
	}

	if err := o.db.ApplyInventorySync(ctx, adjustments, workItems, entry); err != nil {
		return err
	}

	for range workItems {
		metrics.IncWorkItemTransition(models.WorkStatusPending)
	}
	o.logger.Info().
		Str("job_id", jobID).
		Int("adjustments", len(adjustments)).
		Msg("job materials synced")
	return nil
}

type qboEventNotification struct {
	EventNotifications []struct {
		RealmID         string `json:"realmId"`
		DataChangeEvent struct {
			Entities []struct {
				Name      string `json:"name"`
				ID        string `json:"id"`
				Operation string `json:"operation"`
			} `json:"entities"`
		} `json:"dataChangeEvent"`
	} `json:"eventNotifications"`
}

// HandleQBOEvent queues desktop-side invoice work for each Invoice entity
// in a QuickBooks Online change notification, once per invoice id.
func (o *Orchestrator) HandleQBOEvent(ctx context.Context, raw []byte) error {
	var event qboEventNotification
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("failed to parse qbo event: %w", err)
	}

	record := &models.WebhookEvent{
		OrganizationID: o.orgID,
		Provider:       models.ProviderQBO,
		EventType:      "dataChangeEvent",
		Payload:        string(raw),
	}
	if err := o.db.CreateWebhookEvent(ctx, record); err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}

	for _, notification := range event.EventNotifications {
		for _, entity := range notification.DataChangeEvent.Entities {
			if entity.Name != "Invoice" {
				continue
			}
			if err := o.queueInvoiceSync(ctx, entity.ID); err != nil {
				o.logger.Error().Err(err).Str("invoice_id", entity.ID).Msg("invoice sync failed")
				o.writeFailedEntry(ctx, models.ProviderQBO, models.SyncTypeInvoice,
					map[string]any{"invoice_id": entity.ID}, err)
			}
		}
	}

	metrics.IncWebhook(models.ProviderQBO, "processed")
	return o.markProcessed(ctx, record.ID)
}

func (o *Orchestrator) queueInvoiceSync(ctx context.Context, invoiceID string) error {
	done, err := o.db.HasCompletedSync(ctx, o.orgID, models.ProviderQBO, models.SyncTypeInvoice, "invoice_id", invoiceID)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if done {
		o.logger.Info().Str("invoice_id", invoiceID).Msg("invoice already synced, skipping")
		metrics.IncWebhook(models.ProviderQBO, "duplicate")
		return nil
	}

	payload, err := qbxml.BuildInvoiceQuery(invoiceID)
	if err != nil {
		return err
	}

	key := map[string]any{"invoice_id": invoiceID}
	if o.invoices != nil {
		// Enrichment only: an unreachable QBO API must not block queueing.
		if invoice, err := o.invoices.GetInvoice(ctx, invoiceID); err != nil {
			o.logger.Warn().Err(err).Str("invoice_id", invoiceID).Msg("failed to fetch invoice details")
		} else {
			key["doc_number"] = invoice.DocNumber
			key["total_amt"] = invoice.TotalAmt
		}
	}
	requestData, _ := json.Marshal(key)
	entry := &models.SyncLogEntry{
		OrganizationID: o.orgID,
		SyncType:       models.SyncTypeInvoice,
		Provider:       models.ProviderQBO,
		Status:         models.SyncStatusCompleted,
		RequestData:    string(requestData),
	}
	item := &models.WorkItem{
		OrganizationID: o.orgID,
		RequestType:    models.RequestInvoice,
		Payload:        payload,
		Priority:       models.DefaultPriority,
		MaxAttempts:    o.maxAtt,
	}

	if err := o.db.ApplyInventorySync(ctx, nil, []*models.WorkItem{item}, entry); err != nil {
		return err
	}
	metrics.IncWorkItemTransition(models.WorkStatusPending)
	return nil
}

// ManualAdjustment is the admin-triggered direct enqueue. It bypasses the
// idempotency guard by design: the caller owns deduplication.
type ManualAdjustment struct {
	ItemID     int64   `json:"item_id"`
	LocationID string  `json:"location_id"`
	Adjustment float64 `json:"adjustment"`
	Reason     string  `json:"reason"`
}

func (o *Orchestrator) QueueManualAdjustment(ctx context.Context, req ManualAdjustment) (*models.WorkItem, error) {
	item, err := o.db.GetInventoryItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	location := req.LocationID
	if location == "" {
		location = o.location
	}

	payload, err := qbxml.BuildInventoryAdjustment(qbxml.InventoryAdjustmentRequest{
		ItemRef:            item.Name,
		QuantityAdjustment: req.Adjustment,
		AccountRef:         o.account,
		Memo:               req.Reason,
		TxnDate:            time.Now(),
	})
	if err != nil {
		return nil, err
	}

	requestData, _ := json.Marshal(map[string]any{"item_id": req.ItemID, "reason": req.Reason})
	entry := &models.SyncLogEntry{
		OrganizationID: o.orgID,
		SyncType:       models.SyncTypeManualAdjustment,
		Provider:       models.ProviderQBD,
		Status:         models.SyncStatusCompleted,
		RequestData:    string(requestData),
	}
	workItem := &models.WorkItem{
		OrganizationID: o.orgID,
		RequestType:    models.RequestInventoryAdjustment,
		Payload:        payload,
		Priority:       models.DefaultPriority,
		MaxAttempts:    o.maxAtt,
	}
	adjustments := []models.StockAdjustment{{
		ItemID:     req.ItemID,
		LocationID: location,
		Delta:      req.Adjustment,
	}}

	if err := o.db.ApplyInventorySync(ctx, adjustments, []*models.WorkItem{workItem}, entry); err != nil {
		return nil, err
	}
	metrics.IncWorkItemTransition(models.WorkStatusPending)

	o.logger.Info().
		Int64("item_id", req.ItemID).
		Float64("adjustment", req.Adjustment).
		Msg("manual adjustment queued")
	return workItem, nil
}

func (o *Orchestrator) markProcessed(ctx context.Context, eventID int64) error {
	if err := o.db.MarkWebhookEventProcessed(ctx, eventID); err != nil {
		o.logger.Error().Err(err).Int64("event_id", eventID).Msg("failed to mark webhook event processed")
	}
	return nil
}

func (o *Orchestrator) writeFailedEntry(ctx context.Context, provider, syncType string, key map[string]any, cause error) {
	requestData, _ := json.Marshal(key)
	msg := cause.Error()
	entry := &models.SyncLogEntry{
		OrganizationID: o.orgID,
		SyncType:       syncType,
		Provider:       provider,
		Status:         models.SyncStatusFailed,
		RequestData:    string(requestData),
		ErrorMessage:   &msg,
	}
	if err := o.db.CreateSyncLogEntry(ctx, entry); err != nil {
		o.logger.Error().Err(err).Msg("failed to write failed sync log entry")
	}
}
