package repository

import (
	"context"

	"github.com/soukly/storefront-checkout/internal/domain"
)

// SessionRepository defines the interface for checkout-session persistence.
type SessionRepository interface {
	// Get retrieves a session by its ID.
	Get(ctx context.Context, id string) (*domain.CheckoutSession, error)

	// GetByUser retrieves the user's active session, if any.
	GetByUser(ctx context.Context, userID string) (*domain.CheckoutSession, error)

	// Save persists a session, overwriting any existing one with the same ID.
	Save(ctx context.Context, session *domain.CheckoutSession) error

	// Delete removes a session by its ID.
	Delete(ctx context.Context, id string) error
}
