package cart

import "github.com/xenking/platter/internal/domain/apperr"

// StoreMismatchError is returned when an item is added for a store other than
// the one the cart is bound to. It is an expected outcome: the customer must
// clear the cart or switch its store first.
type StoreMismatchError struct {
	CartStoreID string
	StoreID     string
}

func (e *StoreMismatchError) Error() string {
	return "item belongs to a different store than the cart; clear the cart to switch stores"
}

// Kind implements apperr categorization.
func (e *StoreMismatchError) Kind() apperr.Kind { return apperr.StoreMismatch }

// Quantity bounds of a single line.
const (
	MinQuantity = 1
	MaxQuantity = 99
)

func validateQuantity(q int) error {
	if q < MinQuantity || q > MaxQuantity {
		return apperr.New(apperr.InvalidInput, "quantity must be between %d and %d", MinQuantity, MaxQuantity)
	}
	return nil
}

func validateCustomer(customerID string) error {
	if customerID == "" {
		return apperr.New(apperr.InvalidInput, "customer id required")
	}
	return nil
}
