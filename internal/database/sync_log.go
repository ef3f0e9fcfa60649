package database

import (
	"context"
	"fmt"
	"time"

	"qbsync/internal/models"
)

// CreateSyncLogEntry appends an entry to the sync log.
func (db *DB) CreateSyncLogEntry(ctx context.Context, entry *models.SyncLogEntry) error {
	return db.createSyncLogEntry(ctx, db.db, entry)
}

func (db *DB) createSyncLogEntry(ctx context.Context, ex execer, entry *models.SyncLogEntry) error {
	if entry.RequestData == "" {
		entry.RequestData = "{}"
	}
	now := time.Now()
	query := `INSERT INTO sync_log (organization_id, sync_type, provider, status, request_data, response_data, error_message, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := ex.ExecContext(ctx, query,
		entry.OrganizationID,
		entry.SyncType,
		entry.Provider,
		entry.Status,
		entry.RequestData,
		entry.ResponseData,
		entry.ErrorMessage,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync log entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = now

	return nil
}

// HasCompletedSync reports whether a completed entry already exists whose
// request_data carries the given natural key, scoped to (organization,
// provider, sync type). This is the idempotency guard's read side.
func (db *DB) HasCompletedSync(ctx context.Context, organizationID, provider, syncType, keyField string, keyValue any) (bool, error) {
	// Exact top-level key match; ids containing `_` or `%` must not act
	// as wildcards against other rows.
	var count int
	err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_log
         WHERE organization_id = ? AND provider = ? AND sync_type = ? AND status = 'completed'
           AND json_extract(request_data, '$.' || ?) = ?`,
		organizationID, provider, syncType, keyField, keyValue,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query sync log: %w", err)
	}
	return count > 0, nil
}

// ListSyncLogEntries returns the most recent entries for the admin surface.
func (db *DB) ListSyncLogEntries(ctx context.Context, organizationID string, limit int) ([]models.SyncLogEntry, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, organization_id, sync_type, provider, status, request_data, response_data, error_message, created_at
         FROM sync_log WHERE organization_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		organizationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync log entries: %w", err)
	}
	defer rows.Close()

	var entries []models.SyncLogEntry
	for rows.Next() {
		var e models.SyncLogEntry
		err := rows.Scan(
			&e.ID, &e.OrganizationID, &e.SyncType, &e.Provider, &e.Status,
			&e.RequestData, &e.ResponseData, &e.ErrorMessage, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
