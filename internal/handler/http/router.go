package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soukly/storefront-checkout/internal/service"
	"github.com/soukly/storefront-checkout/pkg/health"
	"github.com/soukly/storefront-checkout/pkg/middleware"
)

// RouterConfig carries the router's collaborators and settings.
type RouterConfig struct {
	CheckoutService *service.CheckoutService
	AddressService  *service.AddressService
	HealthHandler   *health.Handler
	Logger          *slog.Logger
	ServiceName     string
	CORS            CORSConfig
}

// NewRouter creates a chi router with all checkout routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(CORS(cfg.CORS))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))

	r.Get("/health/live", cfg.HealthHandler.LivenessHandler())
	r.Get("/health/ready", cfg.HealthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	checkoutHandler := NewCheckoutHandler(cfg.CheckoutService, cfg.Logger)
	addressHandler := NewAddressHandler(cfg.AddressService, cfg.Logger)
	shippingHandler := NewShippingHandler(cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Shipping reference data needs no authentication.
		r.Get("/shipping", shippingHandler.ListGovernorates)
		r.Get("/shipping/{governorate}", shippingHandler.Quote)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth)
			r.Use(middleware.RequestLogger(cfg.Logger))

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/", checkoutHandler.Start)
				r.Get("/{id}", checkoutHandler.Get)
				r.Put("/{id}/form", checkoutHandler.UpdateForm)
				r.Post("/{id}/select-address", checkoutHandler.SelectAddress)
				r.Post("/{id}/select-new", checkoutHandler.SelectNew)
				r.Post("/{id}/continue", checkoutHandler.Continue)
				r.Post("/{id}/back", checkoutHandler.Back)
				r.Post("/{id}/place-order", checkoutHandler.PlaceOrder)
				r.Post("/{id}/retry", checkoutHandler.Retry)
			})

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", addressHandler.List)
				r.Post("/", addressHandler.Create)
				r.Post("/reload", addressHandler.Reload)
				r.Put("/{id}", addressHandler.Update)
				r.Delete("/{id}", addressHandler.Delete)
			})
		})
	})

	return r
}
