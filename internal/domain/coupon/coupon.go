// Package coupon validates, redeems and issues discount coupons.
package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/apperr"
)

// DiscountKind enumerates the supported coupon discount strategies.
type DiscountKind string

const (
	// DiscountPercentage takes a percentage off the base value.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixed takes a fixed amount off the base value, floored at zero.
	DiscountFixed DiscountKind = "fixed"
)

// Valid reports whether k is a known discount kind.
func (k DiscountKind) Valid() bool {
	return k == DiscountPercentage || k == DiscountFixed
}

var (
	// ErrNotFound is returned by a Repository when no coupon has the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrCodeTaken is returned by Repository.Create when the code is in use.
	ErrCodeTaken = errors.New("coupon code already exists")
)

// Coupon is a discount that can be applied to an order.
type Coupon struct {
	ID            string
	Code          string
	Kind          DiscountKind
	Value         decimal.Decimal
	UsesRemaining *int // nil means unlimited
	Active        bool
	ExpiresAt     *time.Time
	CustomerID    string // empty means anyone
	CreatedAt     time.Time
}

// Unlimited reports whether the coupon has no use limit.
func (c *Coupon) Unlimited() bool {
	return c.UsesRemaining == nil
}

// Repository persists coupons.
type Repository interface {
	// FindByCode returns the coupon or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// FindByCodeForUpdate returns the coupon locked for the enclosing
	// transaction, or ErrNotFound.
	FindByCodeForUpdate(ctx context.Context, code string) (*Coupon, error)
	// ConsumeUse decrements a limited coupon's remaining uses only while it is
	// above zero, deactivating the coupon when the count reaches zero. It
	// reports false when no use was left to consume.
	ConsumeUse(ctx context.Context, id string) (bool, error)
	// Create inserts the coupon and fills in its ID and CreatedAt. A duplicate
	// code yields ErrCodeTaken without aborting the enclosing transaction.
	Create(ctx context.Context, c *Coupon) error
}

// Reason explains why a coupon cannot be used.
type Reason string

const (
	ReasonNotFound      Reason = "not_found"
	ReasonInactive      Reason = "inactive"
	ReasonExpired       Reason = "expired"
	ReasonExhausted     Reason = "exhausted"
	ReasonWrongCustomer Reason = "wrong_customer"
)

// InvalidError is returned when a coupon cannot be used.
type InvalidError struct {
	Code   string
	Reason Reason
}

func (e *InvalidError) Error() string {
	switch e.Reason {
	case ReasonNotFound:
		return fmt.Sprintf("coupon %q not found", e.Code)
	case ReasonInactive:
		return fmt.Sprintf("coupon %q is inactive", e.Code)
	case ReasonExpired:
		return fmt.Sprintf("coupon %q has expired", e.Code)
	case ReasonExhausted:
		return fmt.Sprintf("coupon %q has no uses remaining", e.Code)
	case ReasonWrongCustomer:
		return fmt.Sprintf("coupon %q is not valid for this customer", e.Code)
	default:
		return fmt.Sprintf("coupon %q is invalid", e.Code)
	}
}

// Kind implements apperr categorization.
func (e *InvalidError) Kind() apperr.Kind { return apperr.CouponInvalid }

// NormalizeCode canonicalizes a customer-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// check returns why c cannot be used by customerID at now, or "" when it can.
func check(c *Coupon, customerID string, now time.Time) Reason {
	switch {
	case c.UsesRemaining != nil && *c.UsesRemaining <= 0:
		// A used-up coupon is also deactivated; report the more specific reason.
		return ReasonExhausted
	case !c.Active:
		return ReasonInactive
	case c.ExpiresAt != nil && !now.Before(*c.ExpiresAt):
		return ReasonExpired
	case c.CustomerID != "" && c.CustomerID != customerID:
		return ReasonWrongCustomer
	}
	return ""
}
