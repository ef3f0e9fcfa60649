package repository

import (
	"context"
	"time"

	"qbsync/internal/models"
)

// SessionRepository stores active QBWC session tickets. Get returns
// (nil, nil) for an unknown ticket; a stale ticket and a missing ticket
// are indistinguishable to the protocol.
type SessionRepository interface {
	Get(ctx context.Context, ticket string) (*models.Session, error)
	Put(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, ticket string) error
	// ReapExpired removes sessions idle for longer than ttl and returns
	// them so the caller can release their claimed work items.
	ReapExpired(ctx context.Context, ttl time.Duration) ([]*models.Session, error)
}
