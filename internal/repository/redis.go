package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qbsync/internal/config"
	"qbsync/internal/models"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "qbwc_session:"

type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// NewRedisSessionRepository stores sessions in redis with a TTL slightly
// above the sweep TTL so redis expiry acts only as a last resort; the sweep
// is what releases claimed work items.
func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{
		client: client,
		ttl:    ttl * 2,
	}
}

func (r *RedisSessionRepository) Get(ctx context.Context, ticket string) (*models.Session, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, sessionKeyPrefix+ticket).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (r *RedisSessionRepository) Put(ctx context.Context, session *models.Session) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKeyPrefix+session.Ticket, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in redis: %w", err)
	}

	return nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, ticket string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, sessionKeyPrefix+ticket).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) ReapExpired(ctx context.Context, ttl time.Duration) ([]*models.Session, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	cutoff := time.Now().Add(-ttl)
	var expired []*models.Session

	iter := r.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read session %s: %w", key, err)
		}

		var session models.Session
		if err := json.Unmarshal([]byte(val), &session); err != nil {
			// Unreadable entries are removed so they cannot wedge the sweep.
			_ = r.client.Del(ctx, key).Err()
			continue
		}
		if session.LastSeen.Before(cutoff) {
			if err := r.client.Del(ctx, key).Err(); err != nil {
				return nil, fmt.Errorf("failed to delete expired session %s: %w", key, err)
			}
			expired = append(expired, &session)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	return expired, nil
}
