package addressbook

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soukly/storefront-checkout/internal/domain"
	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeFetcher is a scriptable address client. When block is set, List parks
// until release is closed, so tests can hold a fetch in flight.
type fakeFetcher struct {
	mu        sync.Mutex
	listCalls atomic.Int32
	addrs     []domain.Address
	listErr   error
	createErr error
	deleteErr error
	block     bool
	release   chan struct{}
	nextID    int
}

func newFakeFetcher(addrs ...domain.Address) *fakeFetcher {
	return &fakeFetcher{addrs: addrs, release: make(chan struct{})}
}

func (f *fakeFetcher) List(ctx context.Context) ([]domain.Address, error) {
	f.listCalls.Add(1)
	if f.block {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Address, len(f.addrs))
	copy(out, f.addrs)
	return out, nil
}

func (f *fakeFetcher) Create(ctx context.Context, input domain.AddressInput) (domain.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return domain.Address{}, f.createErr
	}
	f.nextID++
	return domain.Address{
		ID:          "created-" + string(rune('0'+f.nextID)),
		Street:      input.Street,
		City:        input.City,
		Governorate: input.Governorate,
		PostalCode:  input.PostalCode,
		IsDefault:   input.IsDefault,
	}, nil
}

func (f *fakeFetcher) Update(ctx context.Context, id string, input domain.AddressInput) (domain.Address, error) {
	return domain.Address{
		ID:          id,
		Street:      input.Street,
		City:        input.City,
		Governorate: input.Governorate,
		PostalCode:  input.PostalCode,
		IsDefault:   input.IsDefault,
	}, nil
}

func (f *fakeFetcher) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteErr
}

func (f *fakeFetcher) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

var testAddrs = []domain.Address{
	{ID: "addr-1", Street: "12 Tahrir St", City: "Cairo", Governorate: "cairo"},
	{ID: "addr-2", Street: "5 Corniche Rd", City: "Alexandria", Governorate: "alexandria", IsDefault: true},
}

func TestBook_EnsureLoaded_FetchesOnce(t *testing.T) {
	fetcher := newFakeFetcher(testAddrs...)
	book := NewBook(fetcher, newTestLogger())

	first, err := book.EnsureLoaded(context.Background(), "user-1")
	require.NoError(t, err)
	second, err := book.EnsureLoaded(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), fetcher.listCalls.Load())
	assert.Equal(t, StateLoaded, book.State("user-1"))
}

func TestBook_EnsureLoaded_PerUser(t *testing.T) {
	fetcher := newFakeFetcher(testAddrs...)
	book := NewBook(fetcher, newTestLogger())

	_, err := book.EnsureLoaded(context.Background(), "user-1")
	require.NoError(t, err)
	_, err = book.EnsureLoaded(context.Background(), "user-2")
	require.NoError(t, err)

	// Separate identities never share a cache entry.
	assert.Equal(t, int32(2), fetcher.listCalls.Load())
}

func TestBook_EnsureLoaded_MemoizesFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setListErr(apperrors.TransientService("address", context.DeadlineExceeded))
	book := NewBook(fetcher, newTestLogger())

	_, err := book.EnsureLoaded(context.Background(), "user-1")
	require.ErrorIs(t, err, apperrors.ErrTransientService)

	// The failure is served from memory, not refetched.
	_, err = book.EnsureLoaded(context.Background(), "user-1")
	require.ErrorIs(t, err, apperrors.ErrTransientService)
	assert.Equal(t, int32(1), fetcher.listCalls.Load())
	assert.Equal(t, StateLoadError, book.State("user-1"))
}

func TestBook_EnsureLoaded_ConcurrentCallersShareOneFetch(t *testing.T) {
	fetcher := newFakeFetcher(testAddrs...)
	fetcher.block = true
	book := NewBook(fetcher, newTestLogger())

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]domain.Address, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = book.EnsureLoaded(context.Background(), "user-1")
		}(i)
	}

	// Let the goroutines pile up on the in-flight fetch before releasing it.
	require.Eventually(t, func() bool {
		return book.State("user-1") == StateLoading
	}, time.Second, time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.listCalls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, results[i], 2)
	}
}

func TestBook_Retry_AfterFailure(t *testing.T) {
	fetcher := newFakeFetcher(testAddrs...)
	fetcher.setListErr(apperrors.TransientService("address", context.DeadlineExceeded))
	book := NewBook(fetcher, newTestLogger())

	_, err := book.EnsureLoaded(context.Background(), "user-1")
	require.Error(t, err)

	fetcher.setListErr(nil)
	addrs, err := book.Retry(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, addrs, 2)
	assert.Equal(t, int32(2), fetcher.listCalls.Load())
	assert.Equal(t, StateLoaded, book.State("user-1"))
}

func TestBook_Retry_NoopWhenLoaded(t *testing.T) {
	fetcher := newFakeFetcher(testAddrs...)
	book := NewBook(fetcher, newTestLogger())

	_, err := book.EnsureLoaded(context.Background(), "user-1")
	require.NoError(t, err)

	addrs, err := book.Retry(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, addrs, 2)
	assert.Equal(t, int32(1), fetcher.listCalls.Load())
}

func TestBook_Invalidate_DiscardsInFlightFetch(t *testing.T) {
	fetcher := newFakeFetcher(testAddrs...)
	fetcher.block = true
	book := NewBook(fetcher, newTestLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = book.EnsureLoaded(context.Background(), "user-1")
	}()

	require.Eventually(t, func() bool {
		return book.State("user-1") == StateLoading
	}, time.Second, time.Millisecond)

	book.Invalidate("user-1")
	close(fetcher.release)
	<-done

	// The stale result never lands in the cache.
	assert.Equal(t, StateUnloaded, book.State("user-1"))
	_, ok := book.Snapshot("user-1")
	assert.False(t, ok)

	_, err := book.EnsureLoaded(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.listCalls.Load())
}

func TestBook_Invalidate_ClearsFailure(t *testing.T) {
	fetcher := newFakeFetcher(testAddrs...)
	fetcher.setListErr(apperrors.TransientService("address", context.DeadlineExceeded))
	book := NewBook(fetcher, newTestLogger())

	_, err := book.EnsureLoaded(context.Background(), "user-1")
	require.Error(t, err)

	book.Invalidate("user-1")
	assert.Equal(t, StateUnloaded, book.State("user-1"))

	fetcher.setListErr(nil)
	addrs, err := book.EnsureLoaded(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, addrs, 2)
}

func TestBook_Add_AppendsAndDemotesDefault(t *testing.T) {
	fetcher := newFakeFetcher(testAddrs...)
	book := NewBook(fetcher, newTestLogger())

	_, err := book.EnsureLoaded(context.Background(), "user-1")
	require.NoError(t, err)

	created, err := book.Add(context.Background(), "user-1", domain.AddressInput{
		Street:      "9 El Haram St",
		City:        "Giza",
		Governorate: "giza",
		IsDefault:   true,
	})
	require.NoError(t, err)
	require.True(t, created.IsDefault)

	snapshot, ok := book.Snapshot("user-1")
	require.True(t, ok)
	require.Len(t, snapshot, 3)

	defaults := 0
	for _, a := range snapshot {
		if a.IsDefault {
			defaults++
			assert.Equal(t, created.ID, a.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestBook_Add_SkipsReconcileWhenUnloaded(t *testing.T) {
	fetcher := newFakeFetcher(testAddrs...)
	book := NewBook(fetcher, newTestLogger())

	_, err := book.Add(context.Background(), "user-1", domain.AddressInput{Street: "1 Test St", Governorate: "cairo"})
	require.NoError(t, err)

	assert.Equal(t, StateUnloaded, book.State("user-1"))
}

func TestBook_Update_ReplacesInSnapshot(t *testing.T) {
	fetcher := newFakeFetcher(testAddrs...)
	book := NewBook(fetcher, newTestLogger())

	_, err := book.EnsureLoaded(context.Background(), "user-1")
	require.NoError(t, err)

	updated, err := book.Update(context.Background(), "user-1", "addr-1", domain.AddressInput{
		Street:      "14 Tahrir St",
		City:        "Cairo",
		Governorate: "cairo",
		IsDefault:   true,
	})
	require.NoError(t, err)

	snapshot, ok := book.Snapshot("user-1")
	require.True(t, ok)
	require.Len(t, snapshot, 2)
	assert.Equal(t, "14 Tahrir St", snapshot[0].Street)
	assert.True(t, snapshot[0].IsDefault)
	// addr-2 lost its default flag to the update.
	assert.False(t, snapshot[1].IsDefault)
	assert.Equal(t, updated.ID, snapshot[0].ID)
}

func TestBook_Delete_RemovesFromSnapshot(t *testing.T) {
	fetcher := newFakeFetcher(testAddrs...)
	book := NewBook(fetcher, newTestLogger())

	_, err := book.EnsureLoaded(context.Background(), "user-1")
	require.NoError(t, err)

	require.NoError(t, book.Delete(context.Background(), "user-1", "addr-1"))

	snapshot, ok := book.Snapshot("user-1")
	require.True(t, ok)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "addr-2", snapshot[0].ID)
}

func TestBook_Delete_IdempotentOnNotFound(t *testing.T) {
	fetcher := newFakeFetcher(testAddrs...)
	fetcher.deleteErr = apperrors.NotFound("address", "addr-1")
	book := NewBook(fetcher, newTestLogger())

	_, err := book.EnsureLoaded(context.Background(), "user-1")
	require.NoError(t, err)

	// The service already forgot the address; the book agrees.
	require.NoError(t, book.Delete(context.Background(), "user-1", "addr-1"))

	snapshot, ok := book.Snapshot("user-1")
	require.True(t, ok)
	assert.Len(t, snapshot, 1)
}

func TestBook_DefaultAddress(t *testing.T) {
	t.Run("prefers flagged default", func(t *testing.T) {
		book := NewBook(newFakeFetcher(testAddrs...), newTestLogger())
		_, err := book.EnsureLoaded(context.Background(), "user-1")
		require.NoError(t, err)

		addr, ok := book.DefaultAddress("user-1")
		require.True(t, ok)
		assert.Equal(t, "addr-2", addr.ID)
	})

	t.Run("falls back to first", func(t *testing.T) {
		book := NewBook(newFakeFetcher(
			domain.Address{ID: "addr-1", Street: "12 Tahrir St", Governorate: "cairo"},
			domain.Address{ID: "addr-2", Street: "5 Corniche Rd", Governorate: "alexandria"},
		), newTestLogger())
		_, err := book.EnsureLoaded(context.Background(), "user-1")
		require.NoError(t, err)

		addr, ok := book.DefaultAddress("user-1")
		require.True(t, ok)
		assert.Equal(t, "addr-1", addr.ID)
	})

	t.Run("empty book", func(t *testing.T) {
		book := NewBook(newFakeFetcher(), newTestLogger())
		_, err := book.EnsureLoaded(context.Background(), "user-1")
		require.NoError(t, err)

		_, ok := book.DefaultAddress("user-1")
		assert.False(t, ok)
	})

	t.Run("not loaded", func(t *testing.T) {
		book := NewBook(newFakeFetcher(testAddrs...), newTestLogger())
		_, ok := book.DefaultAddress("user-1")
		assert.False(t, ok)
	})
}

func TestBook_Snapshot_IsACopy(t *testing.T) {
	book := NewBook(newFakeFetcher(testAddrs...), newTestLogger())
	_, err := book.EnsureLoaded(context.Background(), "user-1")
	require.NoError(t, err)

	snapshot, ok := book.Snapshot("user-1")
	require.True(t, ok)
	snapshot[0].Street = "mutated"

	again, _ := book.Snapshot("user-1")
	assert.Equal(t, "12 Tahrir St", again[0].Street)
}
