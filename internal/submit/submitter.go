// Package submit builds the outbound order payload and performs the single
// order-service call for a user-initiated submit. It never retries: a retry
// is always a fresh user action, so an unreliable network cannot mint
// duplicate orders.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/soukly/storefront-checkout/internal/auth"
	"github.com/soukly/storefront-checkout/internal/domain"
	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
	"github.com/soukly/storefront-checkout/pkg/httpclient"
)

const serviceName = "order"

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// ShippingAddress is the address block of the order payload. It carries
// copies of the form's field values, never a reference to a saved address.
type ShippingAddress struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Governorate string `json:"governorate"`
	PostalCode  string `json:"postalCode,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// OrderItem is one cart line in the order payload.
type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	Name      string `json:"name"`
}

// OrderPayload is the outbound order. Constructed once per submit and never
// mutated after send.
type OrderPayload struct {
	ShippingAddress       ShippingAddress `json:"shippingAddress"`
	PaymentMethod         string          `json:"paymentMethod"`
	ShippingFee           int64           `json:"shippingFee"`
	EstimatedDeliveryTime string          `json:"estimatedDeliveryTime"`
	DeliveryRegion        string          `json:"deliveryRegion"`
	Notes                 string          `json:"notes,omitempty"`
	Items                 []OrderItem     `json:"items"`
}

// PaymentMethodCOD is the only payment method this storefront supports.
const PaymentMethodCOD = "COD"

// BuildPayload assembles the order payload from the cart, the form, and the
// derived shipping quote.
func BuildPayload(cart domain.CartSnapshot, form domain.CheckoutForm, quote domain.ShippingQuote) OrderPayload {
	items := make([]OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		items = append(items, OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.UnitPrice,
			Name:      line.Name,
		})
	}

	return OrderPayload{
		ShippingAddress: ShippingAddress{
			FirstName:   form.FirstName,
			LastName:    form.LastName,
			Email:       form.Email,
			Phone:       form.Phone,
			Address:     form.Street,
			City:        form.City,
			Governorate: form.Governorate,
			PostalCode:  form.PostalCode,
			Notes:       form.Notes,
		},
		PaymentMethod:         PaymentMethodCOD,
		ShippingFee:           quote.Fee,
		EstimatedDeliveryTime: quote.Estimate,
		DeliveryRegion:        quote.Region,
		Notes:                 form.Notes,
		Items:                 items,
	}
}

// Submitter places orders against the order service.
type Submitter struct {
	doer    HTTPDoer
	baseURL string
	tokens  auth.TokenProvider
}

// NewSubmitter creates an order-service submitter.
func NewSubmitter(doer HTTPDoer, baseURL string, tokens auth.TokenProvider) *Submitter {
	return &Submitter{doer: doer, baseURL: baseURL, tokens: tokens}
}

// Submit sends the payload with a single request and maps the outcome:
// a parseable success body yields the order number; a structured error body
// yields an order rejection with the server's message verbatim; anything
// else, transport failures included, is a submission failure the user may
// retry.
func (s *Submitter) Submit(ctx context.Context, payload OrderPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal order payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/orders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.doer.Do(ctx, req)
	if err != nil {
		// The transport could not determine the outcome. Never guess at
		// success; classify as a submission failure and let the user decide.
		return "", apperrors.SubmissionFailed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return decodeOrderNumber(resp)
	}
	return "", classifyFailure(resp)
}

func decodeOrderNumber(resp *http.Response) (string, error) {
	var envelope struct {
		Data struct {
			OrderNumber string `json:"orderNumber"`
		} `json:"data"`
	}
	if err := httpclient.DecodeJSON(resp, serviceName, &envelope); err != nil {
		return "", err
	}
	if envelope.Data.OrderNumber == "" {
		return "", apperrors.Protocol(serviceName, "success response missing order number")
	}
	return envelope.Data.OrderNumber, nil
}

// classifyFailure separates a business rejection, which carries a structured
// message and must not be blindly retried, from a failure whose outcome is
// unknown and therefore retryable.
func classifyFailure(resp *http.Response) error {
	if !httpclient.IsJSON(resp) {
		return apperrors.SubmissionFailed(fmt.Errorf("order service returned status %d with non-JSON body", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.SubmissionFailed(fmt.Errorf("read order error response: %w", err))
	}

	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return apperrors.SubmissionFailed(fmt.Errorf("unparseable order error response (status %d)", resp.StatusCode))
	}

	message := envelope.Message
	if envelope.Error != nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}
	if message == "" {
		return apperrors.SubmissionFailed(fmt.Errorf("order service returned status %d without an error message", resp.StatusCode))
	}
	return apperrors.OrderRejected(message)
}

// IsRejection reports whether the error is a server-side business rejection
// rather than a transport failure.
func IsRejection(err error) bool {
	return errors.Is(err, apperrors.ErrOrderRejected)
}
