package domain

// Address is a saved shipping address in a user's address book. The ID is
// assigned by the address service; it is empty for addresses that have not
// been persisted yet.
type Address struct {
	ID          string `json:"id,omitempty"`
	Street      string `json:"street"`
	City        string `json:"city"`
	Governorate string `json:"governorate"`
	PostalCode  string `json:"postal_code,omitempty"`
	IsDefault   bool   `json:"is_default"`
}

// AddressInput carries the fields for creating or updating an address.
type AddressInput struct {
	Street      string `json:"street"`
	City        string `json:"city"`
	Governorate string `json:"governorate"`
	PostalCode  string `json:"postal_code,omitempty"`
	IsDefault   bool   `json:"is_default"`
}
