package service

import (
	"context"
	"log/slog"

	"github.com/soukly/storefront-checkout/internal/addressbook"
	"github.com/soukly/storefront-checkout/internal/domain"
	"github.com/soukly/storefront-checkout/internal/shipping"
	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
)

// AddressService exposes the address book to the HTTP layer.
type AddressService struct {
	book   *addressbook.Book
	logger *slog.Logger
}

// NewAddressService creates a new address service.
func NewAddressService(book *addressbook.Book, logger *slog.Logger) *AddressService {
	return &AddressService{book: book, logger: logger}
}

// List returns the user's saved addresses, loading them on first call. A
// memoized load failure is returned until the user explicitly retries.
func (s *AddressService) List(ctx context.Context, userID string) ([]domain.Address, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("user id is required")
	}
	return s.book.EnsureLoaded(ctx, userID)
}

// Reload fetches the user's addresses fresh. After a failed load it retries
// in place, clearing only the memoized error; otherwise it drops the cached
// snapshot first so a fetch already in flight cannot resurrect stale data.
func (s *AddressService) Reload(ctx context.Context, userID string) ([]domain.Address, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("user id is required")
	}
	if s.book.State(userID) == addressbook.StateLoadError {
		return s.book.Retry(ctx, userID)
	}
	s.book.Invalidate(userID)
	return s.book.EnsureLoaded(ctx, userID)
}

// Add creates a new address. The user's first address becomes the default;
// the flag is set on the request here, the book just caches what the
// service returns.
func (s *AddressService) Add(ctx context.Context, userID string, input domain.AddressInput) (domain.Address, error) {
	if userID == "" {
		return domain.Address{}, apperrors.Unauthorized("user id is required")
	}
	if !shipping.IsValid(input.Governorate) {
		return domain.Address{}, apperrors.ValidationRejected("governorate is not supported")
	}

	if snapshot, ok := s.book.Snapshot(userID); ok && len(snapshot) == 0 {
		input.IsDefault = true
	}

	created, err := s.book.Add(ctx, userID, input)
	if err != nil {
		return domain.Address{}, err
	}

	s.logger.InfoContext(ctx, "address created",
		slog.String("user_id", userID),
		slog.String("address_id", created.ID),
	)
	return created, nil
}

// Update replaces an existing address.
func (s *AddressService) Update(ctx context.Context, userID, id string, input domain.AddressInput) (domain.Address, error) {
	if userID == "" {
		return domain.Address{}, apperrors.Unauthorized("user id is required")
	}
	if !shipping.IsValid(input.Governorate) {
		return domain.Address{}, apperrors.ValidationRejected("governorate is not supported")
	}
	return s.book.Update(ctx, userID, id, input)
}

// Delete removes an address. Deleting an id that is already gone succeeds.
func (s *AddressService) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return apperrors.Unauthorized("user id is required")
	}
	return s.book.Delete(ctx, userID, id)
}
