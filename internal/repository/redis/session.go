// Package redis implements checkout-session persistence on Redis. Sessions
// are short-lived working state, so they live under a TTL rather than in a
// relational store; an abandoned checkout simply expires.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soukly/storefront-checkout/internal/domain"
	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
)

const (
	keyPrefix     = "checkout:session:"
	userKeyPrefix = "checkout:user:"
)

// SessionRepository implements repository.SessionRepository using Redis.
type SessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionRepository creates a new Redis-backed session repository.
func NewSessionRepository(client *redis.Client, ttl time.Duration) *SessionRepository {
	return &SessionRepository{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a session by ID from Redis.
func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	data, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NotFound("checkout session", id)
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &session, nil
}

// GetByUser retrieves the user's active session via the user index key.
func (r *SessionRepository) GetByUser(ctx context.Context, userID string) (*domain.CheckoutSession, error) {
	id, err := r.client.Get(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NotFound("checkout session for user", userID)
		}
		return nil, fmt.Errorf("redis get user session index: %w", err)
	}

	return r.Get(ctx, id)
}

// Save persists a session and its user index with the configured TTL.
func (r *SessionRepository) Save(ctx context.Context, session *domain.CheckoutSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+session.ID, data, r.ttl)
	pipe.Set(ctx, userKeyPrefix+session.UserID, session.ID, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}

	return nil
}

// Delete removes a session and its user index from Redis.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	session, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, keyPrefix+id)
	pipe.Del(ctx, userKeyPrefix+session.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}

	return nil
}
