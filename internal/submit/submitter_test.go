package submit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soukly/storefront-checkout/internal/auth"
	"github.com/soukly/storefront-checkout/internal/domain"
	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
	"github.com/soukly/storefront-checkout/pkg/httpclient"
)

func newTestSubmitter(baseURL string) *Submitter {
	return NewSubmitter(httpclient.New(httpclient.DefaultConfig()), baseURL, auth.StaticTokenProvider("test-token"))
}

func testPayload() OrderPayload {
	return BuildPayload(
		domain.CartSnapshot{Items: []domain.CartItem{
			{ProductID: "prod-1", Name: "Ceramic Mug", UnitPrice: 150, Quantity: 2},
		}},
		domain.CheckoutForm{
			Contact: domain.Contact{
				FirstName: "Mona",
				LastName:  "Hassan",
				Email:     "mona@example.com",
				Phone:     "01012345678",
			},
			Street:      "12 Tahrir St",
			City:        "Cairo",
			Governorate: "cairo",
			Notes:       "second floor",
		},
		domain.ShippingQuote{Region: "greater_cairo", Fee: 50, Estimate: "1-2 business days"},
	)
}

func TestBuildPayload(t *testing.T) {
	payload := testPayload()

	assert.Equal(t, PaymentMethodCOD, payload.PaymentMethod)
	assert.Equal(t, int64(50), payload.ShippingFee)
	assert.Equal(t, "greater_cairo", payload.DeliveryRegion)
	assert.Equal(t, "1-2 business days", payload.EstimatedDeliveryTime)
	assert.Equal(t, "12 Tahrir St", payload.ShippingAddress.Address)
	assert.Equal(t, "second floor", payload.Notes)

	require.Len(t, payload.Items, 1)
	assert.Equal(t, "prod-1", payload.Items[0].ProductID)
	assert.Equal(t, int64(150), payload.Items[0].Price)
	assert.Equal(t, 2, payload.Items[0].Quantity)
}

func TestSubmitter_Submit_Success(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orders", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var payload OrderPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "COD", payload.PaymentMethod)
		assert.Equal(t, "cairo", payload.ShippingAddress.Governorate)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"orderNumber":"ORD-2026-0042","status":"pending"}}`))
	}))
	defer srv.Close()

	orderNumber, err := newTestSubmitter(srv.URL).Submit(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "ORD-2026-0042", orderNumber)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitter_Submit_SuccessWithoutOrderNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	_, err := newTestSubmitter(srv.URL).Submit(context.Background(), testPayload())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrProtocol)
	assert.False(t, apperrors.Retryable(err))
}

func TestSubmitter_Submit_SuccessNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	// A 2xx that cannot be parsed is never treated as a confirmed order.
	_, err := newTestSubmitter(srv.URL).Submit(context.Background(), testPayload())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrProtocol)
}

func TestSubmitter_Submit_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"PRICE_MISMATCH","message":"cart prices have changed, please review your cart"}}`))
	}))
	defer srv.Close()

	_, err := newTestSubmitter(srv.URL).Submit(context.Background(), testPayload())
	require.Error(t, err)
	assert.True(t, IsRejection(err))
	assert.False(t, apperrors.Retryable(err))

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "cart prices have changed, please review your cart", appErr.Message)
}

func TestSubmitter_Submit_RejectedFlatMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"insufficient stock for Ceramic Mug"}`))
	}))
	defer srv.Close()

	_, err := newTestSubmitter(srv.URL).Submit(context.Background(), testPayload())
	require.Error(t, err)
	assert.True(t, IsRejection(err))
}

func TestSubmitter_Submit_FailureUnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>502 Bad Gateway</html>"))
	}))
	defer srv.Close()

	_, err := newTestSubmitter(srv.URL).Submit(context.Background(), testPayload())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSubmissionFailed)
	assert.False(t, IsRejection(err))
	assert.True(t, apperrors.Retryable(err))
}

func TestSubmitter_Submit_FailureEmptyErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	// JSON but no message: not a rejection we can show, so retryable.
	_, err := newTestSubmitter(srv.URL).Submit(context.Background(), testPayload())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSubmissionFailed)
}

func TestSubmitter_Submit_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestSubmitter(srv.URL).Submit(context.Background(), testPayload())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSubmissionFailed)
	assert.True(t, apperrors.Retryable(err))
}

func TestSubmitter_Submit_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestSubmitter(srv.URL).Submit(context.Background(), testPayload())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
