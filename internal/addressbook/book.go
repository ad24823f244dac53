package addressbook

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/soukly/storefront-checkout/internal/domain"
	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
)

// State describes where a user's address cache is in its lifecycle.
type State string

const (
	StateUnloaded  State = "unloaded"
	StateLoading   State = "loading"
	StateLoaded    State = "loaded"
	StateLoadError State = "load_error"
)

// Fetcher is the slice of the address-service client the book needs.
type Fetcher interface {
	List(ctx context.Context) ([]domain.Address, error)
	Create(ctx context.Context, input domain.AddressInput) (domain.Address, error)
	Update(ctx context.Context, id string, input domain.AddressInput) (domain.Address, error)
	Delete(ctx context.Context, id string) error
}

type entry struct {
	state State
	gen   int
	addrs []domain.Address
	err   error
	done  chan struct{}
}

// Book caches each user's saved addresses behind a fetch-once policy: the
// first caller for a user triggers one remote list, concurrent callers wait
// on that same in-flight fetch, and later callers get the memoized snapshot
// or the memoized failure. A failed load stays failed until Retry or
// Invalidate; nothing refetches on its own.
type Book struct {
	mu      sync.Mutex
	client  Fetcher
	logger  *slog.Logger
	entries map[string]*entry
}

// NewBook creates an address book backed by the given client.
func NewBook(client Fetcher, logger *slog.Logger) *Book {
	return &Book{
		client:  client,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

func (b *Book) entryLocked(userID string) *entry {
	e, ok := b.entries[userID]
	if !ok {
		e = &entry{state: StateUnloaded}
		b.entries[userID] = e
	}
	return e
}

// EnsureLoaded returns the user's addresses, fetching them at most once.
// While a fetch is in flight every caller blocks on it rather than issuing
// another request. A memoized load failure is returned as-is; callers that
// want a fresh attempt must go through Retry.
func (b *Book) EnsureLoaded(ctx context.Context, userID string) ([]domain.Address, error) {
	b.mu.Lock()
	for {
		e := b.entryLocked(userID)
		switch e.state {
		case StateLoaded:
			addrs := snapshotOf(e.addrs)
			b.mu.Unlock()
			return addrs, nil

		case StateLoadError:
			err := e.err
			b.mu.Unlock()
			return nil, err

		case StateLoading:
			done := e.done
			b.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, apperrors.TransientService("address", ctx.Err())
			case <-done:
			}
			b.mu.Lock()
			// Re-evaluate: the fetch may have landed, failed, or been
			// invalidated while we waited.

		default: // StateUnloaded
			e.state = StateLoading
			e.done = make(chan struct{})
			gen := e.gen
			done := e.done
			b.mu.Unlock()
			return b.fetch(ctx, userID, e, gen, done)
		}
	}
}

// fetch performs the single remote list for this load cycle and applies the
// result unless the entry was invalidated while the request was in flight.
func (b *Book) fetch(ctx context.Context, userID string, e *entry, gen int, done chan struct{}) ([]domain.Address, error) {
	addrs, err := b.client.List(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	close(done)

	if e.gen != gen {
		// Invalidated mid-flight; the result belongs to a cache cycle that
		// no longer exists.
		b.logger.Debug("discarding stale address fetch", "user_id", userID)
		if err != nil {
			return nil, err
		}
		return snapshotOf(addrs), nil
	}

	if err != nil {
		e.state = StateLoadError
		e.err = err
		e.done = nil
		b.logger.Warn("address load failed", "user_id", userID, "error", err)
		return nil, err
	}

	e.state = StateLoaded
	e.addrs = addrs
	e.err = nil
	e.done = nil
	return snapshotOf(addrs), nil
}

// Retry clears a memoized load failure and loads again. For any other state
// it behaves exactly like EnsureLoaded.
func (b *Book) Retry(ctx context.Context, userID string) ([]domain.Address, error) {
	b.mu.Lock()
	e := b.entryLocked(userID)
	if e.state == StateLoadError {
		e.state = StateUnloaded
		e.err = nil
	}
	b.mu.Unlock()
	return b.EnsureLoaded(ctx, userID)
}

// Invalidate drops whatever the book holds for the user. An in-flight fetch
// started before the call completes but its result is discarded.
func (b *Book) Invalidate(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[userID]
	if !ok {
		return
	}
	e.gen++
	e.state = StateUnloaded
	e.addrs = nil
	e.err = nil
	e.done = nil
}

// Add persists a new address and, when the cache is loaded, appends it to
// the snapshot. A created default demotes any previously cached default.
func (b *Book) Add(ctx context.Context, userID string, input domain.AddressInput) (domain.Address, error) {
	gen := b.currentGen(userID)

	created, err := b.client.Create(ctx, input)
	if err != nil {
		return domain.Address{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entryLocked(userID)
	if e.gen == gen && e.state == StateLoaded {
		if created.IsDefault {
			clearDefaults(e.addrs)
		}
		e.addrs = append(e.addrs, created)
	}
	return created, nil
}

// Update replaces an existing address on the service and in the cached
// snapshot. As with Add, an updated default demotes the previous one.
func (b *Book) Update(ctx context.Context, userID, id string, input domain.AddressInput) (domain.Address, error) {
	gen := b.currentGen(userID)

	updated, err := b.client.Update(ctx, id, input)
	if err != nil {
		return domain.Address{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entryLocked(userID)
	if e.gen == gen && e.state == StateLoaded {
		if updated.IsDefault {
			clearDefaults(e.addrs)
		}
		for i := range e.addrs {
			if e.addrs[i].ID == updated.ID {
				e.addrs[i] = updated
				break
			}
		}
	}
	return updated, nil
}

// Delete removes an address. Deleting an id the service no longer knows is
// treated as success so the operation stays idempotent.
func (b *Book) Delete(ctx context.Context, userID, id string) error {
	gen := b.currentGen(userID)

	if err := b.client.Delete(ctx, id); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entryLocked(userID)
	if e.gen == gen && e.state == StateLoaded {
		kept := e.addrs[:0]
		for _, a := range e.addrs {
			if a.ID != id {
				kept = append(kept, a)
			}
		}
		e.addrs = kept
	}
	return nil
}

// DefaultAddress picks the user's default from the loaded snapshot: the
// first address flagged default, otherwise the first address. The second
// return is false when the cache is not loaded or holds no addresses.
func (b *Book) DefaultAddress(userID string) (domain.Address, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[userID]
	if !ok || e.state != StateLoaded || len(e.addrs) == 0 {
		return domain.Address{}, false
	}
	for _, a := range e.addrs {
		if a.IsDefault {
			return a, true
		}
	}
	return e.addrs[0], true
}

// Snapshot returns a copy of the loaded addresses, or false when the user's
// cache is in any other state.
func (b *Book) Snapshot(userID string) ([]domain.Address, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[userID]
	if !ok || e.state != StateLoaded {
		return nil, false
	}
	return snapshotOf(e.addrs), true
}

// State reports the lifecycle state of the user's cache.
func (b *Book) State(userID string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[userID]
	if !ok {
		return StateUnloaded
	}
	return e.state
}

func (b *Book) currentGen(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entryLocked(userID).gen
}

func snapshotOf(addrs []domain.Address) []domain.Address {
	out := make([]domain.Address, len(addrs))
	copy(out, addrs)
	return out
}

func clearDefaults(addrs []domain.Address) {
	for i := range addrs {
		addrs[i].IsDefault = false
	}
}
