package domain

import "time"

// Checkout step constants. The flow is shipping -> review -> submitting ->
// complete, with submitting -> failed -> review on error.
const (
	StepShipping   = "shipping"
	StepReview     = "review"
	StepSubmitting = "submitting"
	StepComplete   = "complete"
	StepFailed     = "failed"
)

// ShippingQuote is the derived shipping pricing for the form's governorate.
// It is re-derived from the region table on every governorate change so the
// review step, the summary, and the submitted payload can never drift.
type ShippingQuote struct {
	Region   string `json:"region"`
	Fee      int64  `json:"fee"`
	Estimate string `json:"estimate"`
}

// CheckoutSession is one user's in-progress checkout.
type CheckoutSession struct {
	ID     string       `json:"id"`
	UserID string       `json:"user_id"`
	Step   string       `json:"step"`
	Form   CheckoutForm `json:"form"`
	Cart   CartSnapshot `json:"cart"`

	Quote *ShippingQuote `json:"quote,omitempty"`

	// OrderNumber is assigned by the order service on completion and held
	// for display only.
	OrderNumber string `json:"order_number,omitempty"`

	// Warning carries a non-blocking problem surfaced to the user, such as
	// a failed address save during the shipping -> review transition.
	Warning string `json:"warning,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`

	// CartCleared guards the cart-clear side effect so it fires at most once.
	CartCleared bool `json:"cart_cleared"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Total returns the order total: cart subtotal plus shipping fee when a
// quote has been derived.
func (s *CheckoutSession) Total() int64 {
	total := s.Cart.Subtotal()
	if s.Quote != nil {
		total += s.Quote.Fee
	}
	return total
}

// IsTerminal reports whether the session has reached a final state. A failed
// session is not terminal: the user may retry from review.
func (s *CheckoutSession) IsTerminal() bool {
	return s.Step == StepComplete
}
