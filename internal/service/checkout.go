package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soukly/storefront-checkout/internal/domain"
	"github.com/soukly/storefront-checkout/internal/repository"
	"github.com/soukly/storefront-checkout/internal/shipping"
	"github.com/soukly/storefront-checkout/internal/submit"
	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
)

// CartClient is the slice of the cart service the checkout flow uses.
type CartClient interface {
	Get(ctx context.Context) (domain.CartSnapshot, error)
	Clear(ctx context.Context) error
}

// OrderSubmitter places the assembled order with the order service.
type OrderSubmitter interface {
	Submit(ctx context.Context, payload submit.OrderPayload) (string, error)
}

// AddressBook is the slice of the address cache the checkout flow uses.
type AddressBook interface {
	EnsureLoaded(ctx context.Context, userID string) ([]domain.Address, error)
	Snapshot(userID string) ([]domain.Address, bool)
	DefaultAddress(userID string) (domain.Address, bool)
	Add(ctx context.Context, userID string, input domain.AddressInput) (domain.Address, error)
}

// EventPublisher publishes checkout lifecycle events.
type EventPublisher interface {
	PublishCheckoutStarted(ctx context.Context, session *domain.CheckoutSession) error
	PublishOrderPlaced(ctx context.Context, session *domain.CheckoutSession) error
	PublishCheckoutFailed(ctx context.Context, session *domain.CheckoutSession, reason string, rejected bool) error
}

// CheckoutService drives a checkout session through
// shipping -> review -> submitting -> complete, with submitting -> failed
// on error and an explicit user-initiated retry path back through review.
type CheckoutService struct {
	repo      repository.SessionRepository
	cart      CartClient
	addresses AddressBook
	submitter OrderSubmitter
	producer  EventPublisher
	logger    *slog.Logger

	// inFlight guards PlaceOrder per session: a second submit request for a
	// session that is already submitting is a no-op, never a second order.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	repo repository.SessionRepository,
	cart CartClient,
	addresses AddressBook,
	submitter OrderSubmitter,
	producer EventPublisher,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		repo:      repo,
		cart:      cart,
		addresses: addresses,
		submitter: submitter,
		producer:  producer,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
	}
}

// Start opens a checkout session for the user's current cart. If the user
// already has an active non-terminal session it is returned as-is so a page
// reload does not lose an in-progress form. The saved-address default, when
// one loads, pre-fills the form; a failed address load is reported as a
// warning and the form falls back to collecting a new address.
func (s *CheckoutService) Start(ctx context.Context, userID string) (*domain.CheckoutSession, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("user id is required")
	}

	if existing, err := s.repo.GetByUser(ctx, userID); err == nil && !existing.IsTerminal() {
		return existing, nil
	}

	snapshot, err := s.cart.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch cart for checkout: %w", err)
	}
	if snapshot.IsEmpty() {
		return nil, apperrors.ValidationRejected("cart is empty")
	}

	now := time.Now().UTC()
	session := &domain.CheckoutSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Step:      domain.StepShipping,
		Form:      domain.NewCheckoutForm(),
		Cart:      snapshot,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.addresses.EnsureLoaded(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "address book unavailable at checkout start",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		session.Warning = "saved addresses could not be loaded"
	} else if addr, ok := s.addresses.DefaultAddress(userID); ok {
		session.Form.SelectSaved(addr)
		session.Quote = s.quoteFor(session.Form.Governorate)
	}

	if err := s.repo.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save checkout session: %w", err)
	}

	if err := s.producer.PublishCheckoutStarted(ctx, session); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout.started event",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "checkout session started",
		slog.String("session_id", session.ID),
		slog.String("user_id", userID),
		slog.Int("item_count", snapshot.ItemCount()),
	)

	return session, nil
}

// Get retrieves a session, scoped to its owner.
func (s *CheckoutService) Get(ctx context.Context, userID, sessionID string) (*domain.CheckoutSession, error) {
	return s.ownedSession(ctx, userID, sessionID)
}

// FormUpdate carries the shipping form fields of an update request. The
// whole form is applied as given; field-level merge rules only apply to
// auto-fill sources, never to explicit user edits.
type FormUpdate struct {
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Street            string `json:"street"`
	City              string `json:"city"`
	Governorate       string `json:"governorate"`
	PostalCode        string `json:"postal_code"`
	Notes             string `json:"notes"`
	PersistNewAddress bool   `json:"persist_new_address"`
}

// UpdateForm applies user edits to the shipping form. Editing any locality
// field while a saved address is selected switches the form to new-address
// mode; the shipping quote is re-derived from the governorate on every
// update so nothing displayed can go stale.
func (s *CheckoutService) UpdateForm(ctx context.Context, userID, sessionID string, update FormUpdate) (*domain.CheckoutSession, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Step != domain.StepShipping {
		return nil, apperrors.Conflict("form can only be edited on the shipping step")
	}

	if update.Governorate != "" && !shipping.IsValid(update.Governorate) {
		return nil, apperrors.ValidationRejected("governorate is not supported")
	}

	form := &session.Form
	localityChanged := form.Street != update.Street ||
		form.City != update.City ||
		form.Governorate != update.Governorate ||
		form.PostalCode != update.PostalCode

	form.FirstName = update.FirstName
	form.LastName = update.LastName
	form.Email = update.Email
	form.Phone = update.Phone
	form.Street = update.Street
	form.City = update.City
	form.Governorate = update.Governorate
	form.PostalCode = update.PostalCode
	form.Notes = update.Notes
	form.PersistNewAddress = update.PersistNewAddress

	if form.Mode == domain.ModeUsingSaved && localityChanged {
		form.Mode = domain.ModeCreatingNew
		form.SelectedAddressID = ""
	}

	session.Quote = s.quoteFor(form.Governorate)

	if err := s.saveTouched(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SelectAddress switches the form to the saved address with the given id.
// An id that no longer resolves, because the address was deleted meanwhile,
// falls back to new-address mode with cleared locality fields; contact
// fields survive the fallback.
func (s *CheckoutService) SelectAddress(ctx context.Context, userID, sessionID, addressID string) (*domain.CheckoutSession, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Step != domain.StepShipping {
		return nil, apperrors.Conflict("address can only be selected on the shipping step")
	}

	addrs, err := s.addresses.EnsureLoaded(ctx, userID)
	if err != nil {
		return nil, err
	}

	selected := resolveAddress(addrs, addressID)

	if selected == nil {
		session.Form.SelectNew()
		session.Quote = nil
		session.Warning = "the selected address is no longer available"
	} else {
		session.Form.SelectSaved(*selected)
		session.Quote = s.quoteFor(session.Form.Governorate)
		session.Warning = ""
	}

	if err := s.saveTouched(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SelectNew switches the form to new-address mode, clearing locality fields
// and the quote derived from them. Contact fields and notes are preserved.
func (s *CheckoutService) SelectNew(ctx context.Context, userID, sessionID string) (*domain.CheckoutSession, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Step != domain.StepShipping {
		return nil, apperrors.Conflict("address mode can only be changed on the shipping step")
	}

	session.Form.SelectNew()
	session.Quote = nil

	if err := s.saveTouched(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ContinueToReview validates the form and advances shipping -> review. When
// the user asked to persist a new address, the save happens here; a failed
// save is surfaced as a warning but never blocks the transition, because
// persisting an address is a convenience, not a precondition of ordering.
func (s *CheckoutService) ContinueToReview(ctx context.Context, userID, sessionID string) (*domain.CheckoutSession, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Step != domain.StepShipping {
		return nil, apperrors.Conflict("can only continue to review from the shipping step")
	}

	// A saved address can disappear underneath the session (deleted from
	// another tab). Re-resolve it before validating; on a miss the form
	// falls back to new-address mode and the user stays on shipping.
	if session.Form.Mode == domain.ModeUsingSaved {
		if addrs, loadErr := s.addresses.EnsureLoaded(ctx, userID); loadErr == nil && resolveAddress(addrs, session.Form.SelectedAddressID) == nil {
			session.Form.SelectNew()
			session.Quote = nil
			session.Warning = "the selected address is no longer available"
			if err := s.saveTouched(ctx, session); err != nil {
				return nil, err
			}
			return session, nil
		}
	}

	if err := session.Form.Validate(); err != nil {
		return nil, err
	}

	session.Quote = s.quoteFor(session.Form.Governorate)
	if session.Quote == nil {
		return nil, apperrors.ValidationRejected("governorate is not supported")
	}

	session.Warning = ""
	if session.Form.Mode == domain.ModeCreatingNew && session.Form.PersistNewAddress {
		s.persistNewAddress(ctx, session)
	}

	session.Step = domain.StepReview
	if err := s.saveTouched(ctx, session); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "checkout advanced to review",
		slog.String("session_id", session.ID),
		slog.Int64("total", session.Total()),
	)

	return session, nil
}

// persistNewAddress saves the form's address to the address book. The first
// saved address becomes the default; that is a request-construction rule
// applied here, not something the address book decides.
func (s *CheckoutService) persistNewAddress(ctx context.Context, session *domain.CheckoutSession) {
	isDefault := false
	if snapshot, ok := s.addresses.Snapshot(session.UserID); ok && len(snapshot) == 0 {
		isDefault = true
	}

	saved, err := s.addresses.Add(ctx, session.UserID, session.Form.AddressInput(isDefault))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to save new address during checkout",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		session.Warning = "your address could not be saved, but you can still place the order"
		return
	}

	session.Form.Mode = domain.ModeUsingSaved
	session.Form.SelectedAddressID = saved.ID
}

// Back returns review -> shipping, or failed -> review for a retry. No form
// data is lost on the way back.
func (s *CheckoutService) Back(ctx context.Context, userID, sessionID string) (*domain.CheckoutSession, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.Step {
	case domain.StepReview:
		session.Step = domain.StepShipping
	case domain.StepFailed:
		session.Step = domain.StepReview
		session.FailureReason = ""
	default:
		return nil, apperrors.Conflict("cannot go back from the current step")
	}

	if err := s.saveTouched(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Retry moves a failed session back to review so the user can submit again.
// Retries are always explicit user actions; nothing in this service resubmits
// on its own.
func (s *CheckoutService) Retry(ctx context.Context, userID, sessionID string) (*domain.CheckoutSession, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Step != domain.StepFailed {
		return nil, apperrors.Conflict("only a failed checkout can be retried")
	}

	session.Step = domain.StepReview
	session.FailureReason = ""

	if err := s.saveTouched(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// PlaceOrder submits the order. Exactly one request is sent per user action:
// a re-entrant call while the session is already submitting is a no-op that
// returns the current state. On success the session completes, records the
// order number, and clears the cart exactly once. On failure the session
// moves to failed with all form data preserved, and the classified error is
// returned alongside it.
func (s *CheckoutService) PlaceOrder(ctx context.Context, userID, sessionID string) (*domain.CheckoutSession, error) {
	s.mu.Lock()
	if _, busy := s.inFlight[sessionID]; busy {
		s.mu.Unlock()
		session, err := s.ownedSession(ctx, userID, sessionID)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	s.inFlight[sessionID] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, sessionID)
		s.mu.Unlock()
	}()

	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.Step {
	case domain.StepReview:
		// The only step a submit may start from.
	case domain.StepSubmitting:
		// Another instance holds the submit; report state, do not resend.
		return session, nil
	case domain.StepComplete:
		// Idempotent success: the order already exists.
		return session, nil
	default:
		return nil, apperrors.Conflict("order can only be placed from the review step")
	}

	if session.Quote == nil {
		return nil, apperrors.Internal(errors.New("review session has no shipping quote"))
	}

	session.Step = domain.StepSubmitting
	if err := s.saveTouched(ctx, session); err != nil {
		return nil, err
	}

	payload := submit.BuildPayload(session.Cart, session.Form, *session.Quote)
	orderNumber, submitErr := s.submitter.Submit(ctx, payload)
	if submitErr != nil {
		return s.failSubmission(ctx, session, submitErr)
	}

	session.Step = domain.StepComplete
	session.OrderNumber = orderNumber
	s.clearCartOnce(ctx, session)

	if err := s.saveTouched(ctx, session); err != nil {
		return nil, err
	}

	if err := s.producer.PublishOrderPlaced(ctx, session); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order_placed event",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order placed",
		slog.String("session_id", session.ID),
		slog.String("order_number", orderNumber),
		slog.Int64("total", session.Total()),
	)

	return session, nil
}

// failSubmission records a submit failure and hands the classified error
// back for the transport layer to surface.
func (s *CheckoutService) failSubmission(ctx context.Context, session *domain.CheckoutSession, submitErr error) (*domain.CheckoutSession, error) {
	session.Step = domain.StepFailed
	session.FailureReason = failureMessage(submitErr)

	if err := s.saveTouched(ctx, session); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist failed checkout",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	rejected := submit.IsRejection(submitErr)
	if err := s.producer.PublishCheckoutFailed(ctx, session, session.FailureReason, rejected); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout.failed event",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.WarnContext(ctx, "order submission failed",
		slog.String("session_id", session.ID),
		slog.Bool("rejected", rejected),
		slog.String("error", submitErr.Error()),
	)

	return session, submitErr
}

// clearCartOnce fires the cart-clear side effect at most once per session.
// A clear failure is logged and surfaced as a warning; the order already
// exists, so the failure never rolls the checkout back.
func (s *CheckoutService) clearCartOnce(ctx context.Context, session *domain.CheckoutSession) {
	if session.CartCleared {
		return
	}
	if err := s.cart.Clear(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear cart after order placement",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		session.Warning = "your order was placed but the cart could not be cleared"
		return
	}
	session.CartCleared = true
}

func failureMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// quoteFor derives the shipping quote for a governorate, or nil when none
// is selected yet. The quote is always re-derived, never cached, so the
// review step, the summary, and the submitted payload cannot drift.
func (s *CheckoutService) quoteFor(governorate string) *domain.ShippingQuote {
	if governorate == "" {
		return nil
	}
	quote, err := shipping.QuoteFor(governorate)
	if err != nil {
		return nil
	}
	return &quote
}

// resolveAddress finds an address by id in a snapshot, or nil.
func resolveAddress(addrs []domain.Address, id string) *domain.Address {
	if id == "" {
		return nil
	}
	for i := range addrs {
		if addrs[i].ID == id {
			return &addrs[i]
		}
	}
	return nil
}

func (s *CheckoutService) ownedSession(ctx context.Context, userID, sessionID string) (*domain.CheckoutSession, error) {
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, apperrors.NotFound("checkout session", sessionID)
	}
	return session, nil
}

func (s *CheckoutService) saveTouched(ctx context.Context, session *domain.CheckoutSession) error {
	session.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, session); err != nil {
		return fmt.Errorf("save checkout session: %w", err)
	}
	return nil
}
