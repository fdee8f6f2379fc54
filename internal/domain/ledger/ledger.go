// Package ledger tracks per-customer spend aggregates that drive loyalty
// rewards.
package ledger

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a customer has no ledger yet.
var ErrNotFound = errors.New("ledger not found")

// Ledger is a customer's spend aggregate.
type Ledger struct {
	CustomerID       string
	LifetimeSpend    decimal.Decimal
	MonthlySpend     decimal.Decimal
	LifetimeOrders   int
	MonthlyOrders    int
	SpendSinceCoupon decimal.Decimal // never negative
	LastOrderAt      *time.Time
}

// Repository updates ledgers with atomic increments only; it never writes a
// value computed from an earlier read.
type Repository interface {
	// RecordFulfilledOrder adds amount to every spend aggregate, increments the
	// order counters and sets the last-order time, creating the ledger when
	// the customer has none. It returns the post-increment ledger.
	RecordFulfilledOrder(ctx context.Context, customerID string, amount decimal.Decimal, at time.Time) (*Ledger, error)
	// ConsumeLoyaltyThreshold subtracts threshold from the spend accumulated
	// since the last loyalty coupon, flooring at zero, and returns the result.
	ConsumeLoyaltyThreshold(ctx context.Context, customerID string, threshold decimal.Decimal) (*Ledger, error)
	// Get returns the ledger or ErrNotFound.
	Get(ctx context.Context, customerID string) (*Ledger, error)
}
