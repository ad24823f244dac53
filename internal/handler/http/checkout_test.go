package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soukly/storefront-checkout/internal/addressbook"
	"github.com/soukly/storefront-checkout/internal/domain"
	"github.com/soukly/storefront-checkout/internal/service"
	"github.com/soukly/storefront-checkout/internal/submit"
	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
	"github.com/soukly/storefront-checkout/pkg/health"
)

// --- Test Doubles ---

type memRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.CheckoutSession
	byUser   map[string]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		sessions: make(map[string]domain.CheckoutSession),
		byUser:   make(map[string]string),
	}
}

func (r *memRepo) Get(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("checkout session", id)
	}
	return &s, nil
}

func (r *memRepo) GetByUser(ctx context.Context, userID string) (*domain.CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUser[userID]
	if !ok {
		return nil, apperrors.NotFound("checkout session for user", userID)
	}
	s := r.sessions[id]
	return &s, nil
}

func (r *memRepo) Save(ctx context.Context, session *domain.CheckoutSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	r.byUser[session.UserID] = session.ID
	return nil
}

func (r *memRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

type fakeCart struct {
	snapshot domain.CartSnapshot
}

func (c *fakeCart) Get(ctx context.Context) (domain.CartSnapshot, error) {
	return c.snapshot, nil
}

func (c *fakeCart) Clear(ctx context.Context) error {
	return nil
}

type fakeAddressClient struct {
	mu    sync.Mutex
	addrs []domain.Address
}

func (f *fakeAddressClient) List(ctx context.Context) ([]domain.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Address(nil), f.addrs...), nil
}

func (f *fakeAddressClient) Create(ctx context.Context, input domain.AddressInput) (domain.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	created := domain.Address{
		ID:          "addr-created",
		Street:      input.Street,
		City:        input.City,
		Governorate: input.Governorate,
		IsDefault:   input.IsDefault,
	}
	f.addrs = append(f.addrs, created)
	return created, nil
}

func (f *fakeAddressClient) Update(ctx context.Context, id string, input domain.AddressInput) (domain.Address, error) {
	return domain.Address{ID: id, Street: input.Street, City: input.City, Governorate: input.Governorate}, nil
}

func (f *fakeAddressClient) Delete(ctx context.Context, id string) error { return nil }

type fakeSubmitter struct {
	orderNumber string
	err         error
}

func (f *fakeSubmitter) Submit(ctx context.Context, payload submit.OrderPayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.orderNumber, nil
}

type fakePublisher struct{}

func (fakePublisher) PublishCheckoutStarted(context.Context, *domain.CheckoutSession) error { return nil }
func (fakePublisher) PublishOrderPlaced(context.Context, *domain.CheckoutSession) error     { return nil }
func (fakePublisher) PublishCheckoutFailed(context.Context, *domain.CheckoutSession, string, bool) error {
	return nil
}

// --- Test Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	handler   http.Handler
	submitter *fakeSubmitter
	addresses *fakeAddressClient
}

func newFixture() *fixture {
	logger := testLogger()
	addresses := &fakeAddressClient{addrs: []domain.Address{
		{ID: "addr-1", Street: "12 Tahrir St", City: "Cairo", Governorate: "cairo", IsDefault: true},
	}}
	book := addressbook.NewBook(addresses, logger)
	cart := &fakeCart{snapshot: domain.CartSnapshot{Items: []domain.CartItem{
		{ProductID: "prod-1", Name: "Ceramic Mug", UnitPrice: 150, Quantity: 2},
	}}}
	submitter := &fakeSubmitter{orderNumber: "ORD-2026-0042"}

	checkoutSvc := service.NewCheckoutService(newMemRepo(), cart, book, submitter, fakePublisher{}, logger)
	addressSvc := service.NewAddressService(book, logger)

	handler := NewRouter(RouterConfig{
		CheckoutService: checkoutSvc,
		AddressService:  addressSvc,
		HealthHandler:   health.NewHandler(),
		Logger:          logger,
		ServiceName:     "checkout-test",
		CORS:            CORSConfig{Environment: "development"},
	})

	return &fixture{handler: handler, submitter: submitter, addresses: addresses}
}

func (f *fixture) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("X-User-ID", "user-1")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Warning string          `json:"warning"`
	Error   *struct {
		Code      string            `json:"code"`
		Message   string            `json:"message"`
		Retryable bool              `json:"retryable"`
		Fields    map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) domain.CheckoutSession {
	t.Helper()
	env := decodeEnvelope(t, rec)
	var session domain.CheckoutSession
	require.NoError(t, json.Unmarshal(env.Data, &session))
	return session
}

func (f *fixture) startSession(t *testing.T) domain.CheckoutSession {
	t.Helper()
	rec := f.request(t, http.MethodPost, "/api/v1/checkout/", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeSession(t, rec)
}

func validForm() UpdateFormRequest {
	return UpdateFormRequest{
		FirstName:   "Mona",
		LastName:    "Hassan",
		Email:       "mona@example.com",
		Phone:       "01012345678",
		Street:      "12 Tahrir St",
		City:        "Cairo",
		Governorate: "cairo",
	}
}

// --- Auth ---

func TestRouter_RequiresAuth(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestRouter_RejectsNonJSONBody(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/", bytes.NewReader([]byte("plain text")))
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// --- Checkout flow ---

func TestCheckoutHandler_Start(t *testing.T) {
	f := newFixture()

	session := f.startSession(t)
	assert.Equal(t, domain.StepShipping, session.Step)
	assert.Equal(t, domain.ModeUsingSaved, session.Form.Mode)
	assert.Equal(t, "addr-1", session.Form.SelectedAddressID)
	require.NotNil(t, session.Quote)
	assert.Equal(t, int64(50), session.Quote.Fee)
}

func TestCheckoutHandler_FullFlow(t *testing.T) {
	f := newFixture()
	session := f.startSession(t)

	rec := f.request(t, http.MethodPut, "/api/v1/checkout/"+session.ID+"/form", validForm())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/v1/checkout/"+session.ID+"/continue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StepReview, decodeSession(t, rec).Step)

	rec = f.request(t, http.MethodPost, "/api/v1/checkout/"+session.ID+"/place-order", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	placed := decodeSession(t, rec)
	assert.Equal(t, domain.StepComplete, placed.Step)
	assert.Equal(t, "ORD-2026-0042", placed.OrderNumber)
	assert.True(t, placed.CartCleared)
}

func TestCheckoutHandler_Continue_ValidationError(t *testing.T) {
	f := newFixture()
	session := f.startSession(t)

	form := validForm()
	form.Phone = "12345"
	rec := f.request(t, http.MethodPut, "/api/v1/checkout/"+session.ID+"/form", form)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/v1/checkout/"+session.ID+"/continue", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_REJECTED", env.Error.Code)
	assert.False(t, env.Error.Retryable)
}

func TestCheckoutHandler_PlaceOrder_Rejection(t *testing.T) {
	f := newFixture()
	session := f.startSession(t)
	f.request(t, http.MethodPut, "/api/v1/checkout/"+session.ID+"/form", validForm())
	f.request(t, http.MethodPost, "/api/v1/checkout/"+session.ID+"/continue", nil)

	f.submitter.err = apperrors.OrderRejected("insufficient stock for Ceramic Mug")
	rec := f.request(t, http.MethodPost, "/api/v1/checkout/"+session.ID+"/place-order", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ORDER_REJECTED", env.Error.Code)
	assert.Equal(t, "insufficient stock for Ceramic Mug", env.Error.Message)
	assert.False(t, env.Error.Retryable)
}

func TestCheckoutHandler_PlaceOrder_TransportFailureThenRetry(t *testing.T) {
	f := newFixture()
	session := f.startSession(t)
	f.request(t, http.MethodPut, "/api/v1/checkout/"+session.ID+"/form", validForm())
	f.request(t, http.MethodPost, "/api/v1/checkout/"+session.ID+"/continue", nil)

	f.submitter.err = apperrors.SubmissionFailed(errors.New("connection reset"))
	rec := f.request(t, http.MethodPost, "/api/v1/checkout/"+session.ID+"/place-order", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ORDER_SUBMISSION_FAILED", env.Error.Code)
	assert.True(t, env.Error.Retryable)

	rec = f.request(t, http.MethodPost, "/api/v1/checkout/"+session.ID+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StepReview, decodeSession(t, rec).Step)

	f.submitter.err = nil
	rec = f.request(t, http.MethodPost, "/api/v1/checkout/"+session.ID+"/place-order", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StepComplete, decodeSession(t, rec).Step)
}

func TestCheckoutHandler_SelectNewThenBack(t *testing.T) {
	f := newFixture()
	session := f.startSession(t)
	f.request(t, http.MethodPut, "/api/v1/checkout/"+session.ID+"/form", validForm())

	rec := f.request(t, http.MethodPost, "/api/v1/checkout/"+session.ID+"/select-new", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeSession(t, rec)
	assert.Equal(t, domain.ModeCreatingNew, got.Form.Mode)
	assert.Empty(t, got.Form.Street)
	assert.Equal(t, "Mona", got.Form.FirstName)

	rec = f.request(t, http.MethodPost, "/api/v1/checkout/"+session.ID+"/select-address", SelectAddressRequest{AddressID: "addr-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	got = decodeSession(t, rec)
	assert.Equal(t, domain.ModeUsingSaved, got.Form.Mode)
	assert.Equal(t, "12 Tahrir St", got.Form.Street)
}

func TestCheckoutHandler_Get_NotFound(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodGet, "/api/v1/checkout/unknown-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Addresses ---

func TestAddressHandler_List(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodGet, "/api/v1/addresses/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	var addrs []domain.Address
	require.NoError(t, json.Unmarshal(env.Data, &addrs))
	require.Len(t, addrs, 1)
	assert.Equal(t, "addr-1", addrs[0].ID)
}

func TestAddressHandler_Create(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodPost, "/api/v1/addresses/", AddressRequest{
		Street:      "9 El Haram St",
		City:        "Giza",
		Governorate: "giza",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	env := decodeEnvelope(t, rec)
	var created domain.Address
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "addr-created", created.ID)
}

func TestAddressHandler_Create_MissingStreet(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodPost, "/api/v1/addresses/", AddressRequest{
		Governorate: "giza",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Fields, "Street")
}

func TestAddressHandler_Create_UnknownGovernorate(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodPost, "/api/v1/addresses/", AddressRequest{
		Street:      "1 Nowhere St",
		Governorate: "atlantis",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddressHandler_Delete(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodDelete, "/api/v1/addresses/addr-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// --- Shipping ---

func TestShippingHandler_Quote(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shipping/alexandria", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	var quote domain.ShippingQuote
	require.NoError(t, json.Unmarshal(env.Data, &quote))
	assert.Equal(t, "alexandria", quote.Region)
	assert.Equal(t, int64(60), quote.Fee)
}

func TestShippingHandler_Quote_Unknown(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shipping/atlantis", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShippingHandler_ListGovernorates(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shipping", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	var data struct {
		Governorates []string `json:"governorates"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Len(t, data.Governorates, 27)
}
