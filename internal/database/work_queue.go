package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"qbsync/internal/models"
)

// ErrInvalidTransition is returned when a status change is attempted that
// the work item state machine does not allow.
var ErrInvalidTransition = errors.New("invalid work item transition")

const workItemColumns = `id, organization_id, request_type, payload, status, priority, attempts, max_attempts, response_body, error_message, created_at, updated_at`

func scanWorkItem(row interface{ Scan(...any) error }) (*models.WorkItem, error) {
	var item models.WorkItem
	err := row.Scan(
		&item.ID,
		&item.OrganizationID,
		&item.RequestType,
		&item.Payload,
		&item.Status,
		&item.Priority,
		&item.Attempts,
		&item.MaxAttempts,
		&item.ResponseBody,
		&item.ErrorMessage,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// EnqueueWorkItem appends a new pending item to the organization's queue.
func (db *DB) EnqueueWorkItem(ctx context.Context, item *models.WorkItem) error {
	return db.enqueueWorkItem(ctx, db.db, item)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) enqueueWorkItem(ctx context.Context, ex execer, item *models.WorkItem) error {
	if item.Status == "" {
		item.Status = models.WorkStatusPending
	}
	if item.Status != models.WorkStatusPending {
		return fmt.Errorf("enqueue with status %q: %w", item.Status, ErrInvalidTransition)
	}
	if item.MaxAttempts == 0 {
		item.MaxAttempts = models.DefaultMaxAttempts
	}

	now := time.Now()
	query := `INSERT INTO work_queue (organization_id, request_type, payload, status, priority, attempts, max_attempts, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := ex.ExecContext(ctx, query,
		item.OrganizationID,
		item.RequestType,
		item.Payload,
		item.Status,
		item.Priority,
		item.Attempts,
		item.MaxAttempts,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue work item: %w", err)
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

// ClaimNextWorkItem atomically moves the highest-priority pending item
// (ties broken by oldest created_at, then lowest id) to processing and
// returns it. Returns nil with no error when the queue is empty: that is
// the protocol's "no work" signal, not a failure.
func (db *DB) ClaimNextWorkItem(ctx context.Context, organizationID string) (*models.WorkItem, error) {
	// The conditional UPDATE guards against a concurrent claim winning the
	// race between candidate selection and the status flip.
	for i := 0; i < 3; i++ {
		var id int64
		err := db.db.QueryRowContext(ctx,
			`SELECT id FROM work_queue
             WHERE organization_id = ? AND status = 'pending'
             ORDER BY priority DESC, created_at ASC, id ASC LIMIT 1`,
			organizationID,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select claim candidate: %w", err)
		}

		res, err := db.db.ExecContext(ctx,
			`UPDATE work_queue SET status = 'processing', updated_at = ? WHERE id = ? AND status = 'pending'`,
			time.Now(), id,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to claim work item %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			// Lost the race, try the next candidate.
			continue
		}

		return db.GetWorkItem(ctx, id)
	}
	return nil, nil
}

// GetWorkItem returns a work item by id.
func (db *DB) GetWorkItem(ctx context.Context, id int64) (*models.WorkItem, error) {
	row := db.db.QueryRowContext(ctx,
		`SELECT `+workItemColumns+` FROM work_queue WHERE id = ?`, id)
	item, err := scanWorkItem(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get work item %d: %w", id, err)
	}
	return item, nil
}

// MarkWorkItemCompleted transitions processing -> completed and stores the
// raw qbXML response.
func (db *DB) MarkWorkItemCompleted(ctx context.Context, id int64, responseBody string) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE work_queue SET status = 'completed', response_body = ?, updated_at = ? WHERE id = ? AND status = 'processing'`,
		responseBody, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete work item %d: %w", id, err)
	}
	return db.requireTransition(res, id)
}

// MarkWorkItemFailed transitions processing -> failed, records the error
// and increments the attempt counter.
func (db *DB) MarkWorkItemFailed(ctx context.Context, id int64, errorMessage string) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE work_queue SET status = 'failed', error_message = ?, attempts = attempts + 1, updated_at = ? WHERE id = ? AND status = 'processing'`,
		errorMessage, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to fail work item %d: %w", id, err)
	}
	return db.requireTransition(res, id)
}

// RequeueIfRetryable moves a failed item back to pending when it has
// attempts left, preserving its priority. Returns whether it was requeued.
// Items out of attempts stay failed permanently.
func (db *DB) RequeueIfRetryable(ctx context.Context, id int64) (bool, error) {
	res, err := db.db.ExecContext(ctx,
		`UPDATE work_queue SET status = 'pending', updated_at = ? WHERE id = ? AND status = 'failed' AND attempts < max_attempts`,
		time.Now(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to requeue work item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ReleaseClaim returns a processing item to pending without counting an
// attempt. Used when a session dies before the Web Connector reported any
// outcome for the item.
func (db *DB) ReleaseClaim(ctx context.Context, id int64) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE work_queue SET status = 'pending', updated_at = ? WHERE id = ? AND status = 'processing'`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to release work item %d: %w", id, err)
	}
	return db.requireTransition(res, id)
}

func (db *DB) requireTransition(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("work item %d: %w", id, ErrInvalidTransition)
	}
	return nil
}

// ListWorkItems returns the organization's most recent items for the admin
// surface.
func (db *DB) ListWorkItems(ctx context.Context, organizationID string, limit int) ([]models.WorkItem, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+workItemColumns+` FROM work_queue WHERE organization_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		organizationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	defer rows.Close()

	var items []models.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
