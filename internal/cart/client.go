// Package cart wraps the cart service endpoints checkout depends on:
// reading the snapshot that seeds a session and clearing the cart after a
// confirmed order.
package cart

import (
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

const serviceName = "cart"

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client talks to the cart service over HTTP.
type Client struct {
	doer    HTTPDoer
	baseURL string
	tokens  auth.TokenProvider
}

// NewClient creates a cart-service client.
func NewClient(doer HTTPDoer, baseURL string, tokens auth.TokenProvider) *Client {
	return &Client{doer: doer, baseURL: baseURL, tokens: tokens}
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", method, path, err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return req, nil
}

// Get fetches the user's current cart.
func (c *Client) Get(ctx context.Context) (domain.CartSnapshot, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/cart")
	if err != nil {
		return domain.CartSnapshot{}, err
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return domain.CartSnapshot{}, classifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.CartSnapshot{}, httpclient.ClassifyError(resp, serviceName)
	}

	var envelope struct {
		Data *domain.CartSnapshot `json:"data"`
	}
	if err := httpclient.DecodeJSON(resp, serviceName, &envelope); err != nil {
		return domain.CartSnapshot{}, err
	}
	if envelope.Data == nil {
		return domain.CartSnapshot{}, apperrors.Protocol(serviceName, "response missing cart data")
	}
	return *envelope.Data, nil
}

// Clear empties the user's cart. Called exactly once, after the order
// service has confirmed the order.
func (c *Client) Clear(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/cart")
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

func classifyTransport(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.TransientService(serviceName, err)
}
