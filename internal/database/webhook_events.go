package database

import (
	"context"
	"fmt"
	"time"

	"qbsync/internal/models"
)

// CreateWebhookEvent stores the raw verified payload before any processing
// decision, so the audit trail does not depend on processing success.
func (db *DB) CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	now := time.Now()
	result, err := db.db.ExecContext(ctx,
		`INSERT INTO webhook_events (organization_id, provider, event_type, payload, processed, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		event.OrganizationID,
		event.Provider,
		event.EventType,
		event.Payload,
		event.Processed,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	event.ID = id
	event.CreatedAt = now

	return nil
}

// MarkWebhookEventProcessed flips the processed flag after the orchestrator
// finishes with the event.
func (db *DB) MarkWebhookEventProcessed(ctx context.Context, id int64) error {
	_, err := db.db.ExecContext(ctx,
		`UPDATE webhook_events SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}

// ListWebhookEvents returns recent events for replay/audit.
func (db *DB) ListWebhookEvents(ctx context.Context, provider string, limit int) ([]models.WebhookEvent, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, organization_id, provider, event_type, payload, processed, created_at
         FROM webhook_events WHERE provider = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		provider, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	defer rows.Close()

	var events []models.WebhookEvent
	for rows.Next() {
		var e models.WebhookEvent
		err := rows.Scan(&e.ID, &e.OrganizationID, &e.Provider, &e.EventType, &e.Payload, &e.Processed, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
