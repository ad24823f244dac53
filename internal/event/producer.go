package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soukly/storefront-checkout/internal/domain"
	pkgkafka "github.com/soukly/storefront-checkout/pkg/kafka"
)

// Kafka topic constants for checkout lifecycle events.
const (
	TopicCheckoutStarted = "storefront.checkout.started"
	TopicOrderPlaced     = "storefront.checkout.order_placed"
	TopicCheckoutFailed  = "storefront.checkout.failed"
)

// Aggregate type constant.
const AggregateTypeCheckout = "checkout_session"

// Source identifier for events originating from this service.
const SourceCheckoutService = "checkout-service"

// CheckoutStartedData is the payload for a checkout.started event.
type CheckoutStartedData struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	ItemCount int    `json:"item_count"`
	Subtotal  int64  `json:"subtotal"`
}

// OrderPlacedData is the payload for an order_placed event.
type OrderPlacedData struct {
	SessionID      string `json:"session_id"`
	UserID         string `json:"user_id"`
	OrderNumber    string `json:"order_number"`
	Governorate    string `json:"governorate"`
	DeliveryRegion string `json:"delivery_region"`
	ShippingFee    int64  `json:"shipping_fee"`
	Total          int64  `json:"total"`
	ItemCount      int    `json:"item_count"`
}

// CheckoutFailedData is the payload for a checkout.failed event.
type CheckoutFailedData struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Reason    string `json:"reason"`
	Rejected  bool   `json:"rejected"`
}

// Producer publishes checkout lifecycle events to Kafka. Publishing is
// best-effort telemetry for downstream consumers (analytics, abandoned-cart
// campaigns); a publish failure never fails the checkout operation.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the checkout service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCheckoutStarted publishes a checkout.started event.
func (p *Producer) PublishCheckoutStarted(ctx context.Context, session *domain.CheckoutSession) error {
	data := CheckoutStartedData{
		SessionID: session.ID,
		UserID:    session.UserID,
		ItemCount: session.Cart.ItemCount(),
		Subtotal:  session.Cart.Subtotal(),
	}

	return p.publish(ctx, TopicCheckoutStarted, session.ID, data)
}

// PublishOrderPlaced publishes an order_placed event with the final totals.
func (p *Producer) PublishOrderPlaced(ctx context.Context, session *domain.CheckoutSession) error {
	data := OrderPlacedData{
		SessionID:   session.ID,
		UserID:      session.UserID,
		OrderNumber: session.OrderNumber,
		Governorate: session.Form.Governorate,
		Total:       session.Total(),
		ItemCount:   session.Cart.ItemCount(),
	}
	if session.Quote != nil {
		data.DeliveryRegion = session.Quote.Region
		data.ShippingFee = session.Quote.Fee
	}

	return p.publish(ctx, TopicOrderPlaced, session.ID, data)
}

// PublishCheckoutFailed publishes a checkout.failed event. rejected marks a
// server-side business rejection as opposed to a transport failure.
func (p *Producer) PublishCheckoutFailed(ctx context.Context, session *domain.CheckoutSession, reason string, rejected bool) error {
	data := CheckoutFailedData{
		SessionID: session.ID,
		UserID:    session.UserID,
		Reason:    reason,
		Rejected:  rejected,
	}

	return p.publish(ctx, TopicCheckoutFailed, session.ID, data)
}

func (p *Producer) publish(ctx context.Context, topic, sessionID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, sessionID, AggregateTypeCheckout, SourceCheckoutService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published checkout event",
		slog.String("topic", topic),
		slog.String("session_id", sessionID),
	)

	return nil
}
