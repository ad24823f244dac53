package domain

import (
	"regexp"

	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
	"github.com/soukly/storefront-checkout/pkg/validator"
)

// Form mode constants: whether the shipping form mirrors a saved address or
// collects a new one.
const (
	ModeUsingSaved  = "saved"
	ModeCreatingNew = "new"
)

// emailRe accepts the practical shape of an email address; full RFC grammar
// is the address service's problem.
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Contact holds the contact fields of the checkout form. They are fed by two
// independent sources (profile auto-fill and address selection) and must never
// clobber explicit user edits.
type Contact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// MergeContactFields fills empty fields of existing from incoming. Non-empty
// fields in existing always win: user-entered contact data is never
// overwritten by a later auto-fill or address selection.
func MergeContactFields(existing, incoming Contact) Contact {
	if existing.FirstName == "" {
		existing.FirstName = incoming.FirstName
	}
	if existing.LastName == "" {
		existing.LastName = incoming.LastName
	}
	if existing.Email == "" {
		existing.Email = incoming.Email
	}
	if existing.Phone == "" {
		existing.Phone = incoming.Phone
	}
	return existing
}

// CheckoutForm is the in-progress shipping form. It only ever holds copies of
// address field values; SelectedAddressID is resolved against the address
// book by id, never held as a reference.
type CheckoutForm struct {
	Contact

	Street      string `json:"street"`
	City        string `json:"city"`
	Governorate string `json:"governorate"`
	PostalCode  string `json:"postal_code"`
	Notes       string `json:"notes"`

	SelectedAddressID string `json:"selected_address_id,omitempty"`
	Mode              string `json:"mode"`
	PersistNewAddress bool   `json:"persist_new_address"`
}

// NewCheckoutForm returns a form in new-address mode.
func NewCheckoutForm() CheckoutForm {
	return CheckoutForm{Mode: ModeCreatingNew}
}

// PopulateFromAddress copies the address's locality fields into the form.
// Locality fields are always overwritten; contact fields are untouched here
// because a saved address carries none.
func (f *CheckoutForm) PopulateFromAddress(a Address) {
	f.Street = a.Street
	f.City = a.City
	f.Governorate = a.Governorate
	f.PostalCode = a.PostalCode
}

// PopulateContact merges profile contact data into the form, filling only
// fields the user has not typed into.
func (f *CheckoutForm) PopulateContact(incoming Contact) {
	f.Contact = MergeContactFields(f.Contact, incoming)
}

// SelectSaved switches the form to a saved address and copies its fields in.
func (f *CheckoutForm) SelectSaved(a Address) {
	f.Mode = ModeUsingSaved
	f.SelectedAddressID = a.ID
	f.PopulateFromAddress(a)
}

// SelectNew switches the form to new-address mode, clearing only the locality
// fields. Contact fields and notes survive the switch.
func (f *CheckoutForm) SelectNew() {
	f.Mode = ModeCreatingNew
	f.SelectedAddressID = ""
	f.Street = ""
	f.City = ""
	f.Governorate = ""
	f.PostalCode = ""
}

// AddressInput extracts the form's locality fields as an address-service
// input. isDefault is a request-construction decision made by the caller.
func (f *CheckoutForm) AddressInput(isDefault bool) AddressInput {
	return AddressInput{
		Street:      f.Street,
		City:        f.City,
		Governorate: f.Governorate,
		PostalCode:  f.PostalCode,
		IsDefault:   isDefault,
	}
}

// Validate checks the form for submission: required fields first, then
// format checks. The first violation wins and its message is user-facing.
func (f *CheckoutForm) Validate() error {
	required := []struct {
		value   string
		message string
	}{
		{f.FirstName, "first name is required"},
		{f.LastName, "last name is required"},
		{f.Email, "email is required"},
		{f.Phone, "phone is required"},
		{f.Street, "street address is required"},
		{f.Governorate, "governorate is required"},
	}
	for _, field := range required {
		if field.value == "" {
			return apperrors.ValidationRejected(field.message)
		}
	}

	if !emailRe.MatchString(f.Email) {
		return apperrors.ValidationRejected("email address is not valid")
	}
	if !validator.IsEgyptianMobile(f.Phone) {
		return apperrors.ValidationRejected("phone must be a valid mobile number (01X followed by 8 digits)")
	}
	return nil
}
