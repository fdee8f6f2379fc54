// Package apperr defines the error categories shared by the ordering engines.
//
// Domain packages return typed errors that report their category through a
// Kind method. Anything without a category is Internal.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind is a stable, user-facing error category.
type Kind uint8

const (
	// Internal is any failure not anticipated by the domain rules.
	Internal Kind = iota
	// NotFound means a referenced entity does not resolve.
	NotFound
	// Unavailable means an entity exists but is not sellable in the store.
	Unavailable
	// InvalidSelection means modifier selection rules were violated.
	InvalidSelection
	// StoreMismatch means an operation targets a store other than the cart's.
	StoreMismatch
	// CouponInvalid means a coupon cannot be used.
	CouponInvalid
	// InvalidTransition means an order status edge is not permitted.
	InvalidTransition
	// EmptyCart means an order was requested for a cart without items.
	EmptyCart
	// MissingStore means no store (or order type) is bound where one is required.
	MissingStore
	// InvalidInput means a request argument is malformed or out of range.
	InvalidInput
)

var kindNames = [...]string{
	Internal:          "internal",
	NotFound:          "not_found",
	Unavailable:       "unavailable",
	InvalidSelection:  "invalid_selection",
	StoreMismatch:     "store_mismatch",
	CouponInvalid:     "coupon_invalid",
	InvalidTransition: "invalid_transition",
	EmptyCart:         "empty_cart",
	MissingStore:      "missing_store",
	InvalidInput:      "invalid_input",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is a categorized error with a user-facing message.
type Error struct {
	K   Kind
	Msg string
	Err error // optional cause, kept for errors.Is
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }

// Kind implements the categorized error contract.
func (e *Error) Kind() Kind { return e.K }

// New returns a categorized error with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{K: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap is New with err kept as the cause. The message does not include err.
func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{K: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

type kinded interface {
	error
	Kind() Kind
}

// KindOf reports the category of the first typed error in err's chain, or
// Internal when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return Internal
}

// Is reports whether err carries the given category.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsExpected reports whether err is a domain outcome rather than an internal
// failure.
func IsExpected(err error) bool {
	return err != nil && KindOf(err) != Internal
}
