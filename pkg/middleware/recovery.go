package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
	"github.com/soukly/storefront-checkout/pkg/httputil"
)

// Recovery turns panics into the standard error envelope instead of
// crashing the process. The panic value and stack are logged; the client
// sees only a generic internal error.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.ErrorContext(r.Context(), "panic recovered",
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)

					httputil.WriteError(w, r, apperrors.Internal(nil), l)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
