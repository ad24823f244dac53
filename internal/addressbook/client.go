package addressbook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/soukly/storefront-checkout/internal/auth"
	"github.com/soukly/storefront-checkout/internal/domain"
	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
	"github.com/soukly/storefront-checkout/pkg/httpclient"
)

const serviceName = "address"

// HTTPDoer is the interface for executing HTTP requests. Both
// httpclient.Client and httpclient.CircuitBreakerClient satisfy it.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client talks to the address service over HTTP.
type Client struct {
	doer    HTTPDoer
	baseURL string
	tokens  auth.TokenProvider
}

// NewClient creates an address-service client.
func NewClient(doer HTTPDoer, baseURL string, tokens auth.TokenProvider) *Client {
	return &Client{doer: doer, baseURL: baseURL, tokens: tokens}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return req, nil
}

// List fetches the user's saved addresses, in service order.
func (c *Client) List(ctx context.Context) ([]domain.Address, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/users/addresses", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ClassifyError(resp, serviceName)
	}

	var envelope struct {
		Addresses []domain.Address `json:"addresses"`
	}
	if err := httpclient.DecodeJSON(resp, serviceName, &envelope); err != nil {
		return nil, err
	}
	return envelope.Addresses, nil
}

// Create persists a new address and returns it with its server-assigned id.
func (c *Client) Create(ctx context.Context, input domain.AddressInput) (domain.Address, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/users/addresses", input)
	if err != nil {
		return domain.Address{}, err
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return domain.Address{}, classifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.Address{}, httpclient.ClassifyError(resp, serviceName)
	}

	return decodeAddress(resp)
}

// Update replaces the fields of an existing address.
func (c *Client) Update(ctx context.Context, id string, input domain.AddressInput) (domain.Address, error) {
	req, err := c.newRequest(ctx, http.MethodPut, "/api/users/addresses/"+id, input)
	if err != nil {
		return domain.Address{}, err
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return domain.Address{}, classifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.Address{}, httpclient.ClassifyError(resp, serviceName)
	}

	return decodeAddress(resp)
}

// Delete removes an address. A 204 or an empty JSON object both count as
// success, so deleting an already-absent id stays idempotent when the server
// reports no content.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/users/addresses/"+id, nil)
	if err != nil {
		return err
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return classifyTransport(err)
	}

	if resp.StatusCode == http.StatusNoContent {
		_ = resp.Body.Close()
		return nil
	}
	if resp.StatusCode == http.StatusOK {
		var body map[string]json.RawMessage
		return httpclient.DecodeJSON(resp, serviceName, &body)
	}
	return httpclient.ClassifyError(resp, serviceName)
}

func decodeAddress(resp *http.Response) (domain.Address, error) {
	var envelope struct {
		Address *domain.Address `json:"address"`
	}
	if err := httpclient.DecodeJSON(resp, serviceName, &envelope); err != nil {
		return domain.Address{}, err
	}
	if envelope.Address == nil || envelope.Address.ID == "" {
		return domain.Address{}, apperrors.Protocol(serviceName, "response missing address")
	}
	return *envelope.Address, nil
}

// classifyTransport wraps a network-level failure as transient, passing
// through errors that already carry a taxonomy kind (e.g. an open breaker).
func classifyTransport(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.TransientService(serviceName, err)
}
