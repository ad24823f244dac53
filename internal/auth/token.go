// Package auth provides explicit bearer-token plumbing for collaborator
// calls. Token acquisition and refresh belong to the upstream session
// collaborator; this subsystem only forwards whatever token the current
// request carries, injected as a dependency rather than read from any
// global state.
package auth

import (
	"context"

	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
	"github.com/soukly/storefront-checkout/pkg/middleware"
)

// TokenProvider yields the bearer token to attach to a collaborator request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// ContextTokenProvider reads the token the HTTP layer stored in context.
type ContextTokenProvider struct{}

func (ContextTokenProvider) Token(ctx context.Context) (string, error) {
	token := middleware.BearerTokenFromContext(ctx)
	if token == "" {
		return "", apperrors.Unauthorized("no bearer token in request context")
	}
	return token, nil
}

// StaticTokenProvider returns a fixed token. Used in tests and tooling.
type StaticTokenProvider string

func (p StaticTokenProvider) Token(context.Context) (string, error) {
	return string(p), nil
}
