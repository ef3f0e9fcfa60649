package repository

import (
	"context"
	"sync"
	"time"

	"qbsync/internal/models"
)

type MemorySessionRepository struct {
	sessions sync.Map
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{}
}

func (r *MemorySessionRepository) Get(ctx context.Context, ticket string) (*models.Session, error) {
	val, ok := r.sessions.Load(ticket)
	if !ok {
		return nil, nil
	}
	return val.(*models.Session), nil
}

func (r *MemorySessionRepository) Put(ctx context.Context, session *models.Session) error {
	r.sessions.Store(session.Ticket, session)
	return nil
}

func (r *MemorySessionRepository) Delete(ctx context.Context, ticket string) error {
	r.sessions.Delete(ticket)
	return nil
}

func (r *MemorySessionRepository) ReapExpired(ctx context.Context, ttl time.Duration) ([]*models.Session, error) {
	cutoff := time.Now().Add(-ttl)
	var expired []*models.Session
	r.sessions.Range(func(key, val any) bool {
		session := val.(*models.Session)
		if session.LastSeen.Before(cutoff) {
			expired = append(expired, session)
			r.sessions.Delete(key)
		}
		return true
	})
	return expired, nil
}
