package repository

import (
	"context"
	"sync/atomic"
	"time"

	"qbsync/internal/models"

	"github.com/rs/zerolog"
)

// FailoverSessionRepository serves from the primary (redis) until it fails,
// then falls back to the in-memory repository and probes the primary again
// after a minute.
type FailoverSessionRepository struct {
	primary  SessionRepository
	fallback SessionRepository
	logger   *zerolog.Logger
	isDown   atomic.Bool
	// Unix nanos of the last failed primary probe; read and written from
	// concurrent request goroutines.
	lastCheck atomic.Int64
}

func NewFailoverSessionRepository(primary, fallback SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSessionRepository) Get(ctx context.Context, ticket string) (*models.Session, error) {
	if !r.isDown.Load() {
		session, err := r.primary.Get(ctx, ticket)
		if err == nil {
			return session, nil
		}
		r.markDown(err)
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute {
		session, err := r.primary.Get(ctx, ticket)
		if err == nil {
			r.isDown.Store(false)
			return session, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.Get(ctx, ticket)
}

func (r *FailoverSessionRepository) Put(ctx context.Context, session *models.Session) error {
	if !r.isDown.Load() {
		err := r.primary.Put(ctx, session)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Put(ctx, session)
}

func (r *FailoverSessionRepository) Delete(ctx context.Context, ticket string) error {
	if !r.isDown.Load() {
		err := r.primary.Delete(ctx, ticket)
		if err == nil {
			// Mirror the delete so a ticket never survives in the fallback.
			return r.fallback.Delete(ctx, ticket)
		}
		r.markDown(err)
	}

	return r.fallback.Delete(ctx, ticket)
}

func (r *FailoverSessionRepository) ReapExpired(ctx context.Context, ttl time.Duration) ([]*models.Session, error) {
	expired, err := r.fallback.ReapExpired(ctx, ttl)
	if err != nil {
		return nil, err
	}

	if !r.isDown.Load() {
		primaryExpired, err := r.primary.ReapExpired(ctx, ttl)
		if err != nil {
			r.markDown(err)
			return expired, nil
		}
		expired = append(expired, primaryExpired...)
	}

	return expired, nil
}

func (r *FailoverSessionRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}
