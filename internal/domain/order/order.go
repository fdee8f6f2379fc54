package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/apperr"
	"github.com/xenking/platter/internal/domain/catalog"
)

// ErrNotFound is returned by a Repository when the order does not exist in
// the requested scope.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of an order.
type Status string

const (
	StatusAwaitingPayment  Status = "AWAITING_PAYMENT"
	StatusPending          Status = "PENDING"
	StatusInPreparation    Status = "IN_PREPARATION"
	StatusReadyForDelivery Status = "READY_FOR_DELIVERY"
	StatusReadyForPickup   Status = "READY_FOR_PICKUP"
	StatusOutForDelivery   Status = "OUT_FOR_DELIVERY"
	StatusFulfilled        Status = "FULFILLED"
	StatusCanceled         Status = "CANCELED"
)

// transitions is the adjacency table of legal status edges. Terminal states
// have no entry.
var transitions = map[Status][]Status{
	StatusAwaitingPayment:  {StatusPending, StatusCanceled},
	StatusPending:          {StatusInPreparation, StatusCanceled},
	StatusInPreparation:    {StatusReadyForDelivery, StatusReadyForPickup, StatusCanceled},
	StatusReadyForDelivery: {StatusOutForDelivery},
	StatusReadyForPickup:   {StatusFulfilled},
	StatusOutForDelivery:   {StatusFulfilled},
}

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusAwaitingPayment,
		StatusPending,
		StatusInPreparation,
		StatusReadyForDelivery,
		StatusReadyForPickup,
		StatusOutForDelivery,
		StatusFulfilled,
		StatusCanceled,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses() {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing edges.
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusCanceled
}

// Initial reports whether an order may be created in s.
func (s Status) Initial() bool {
	return s == StatusPending || s == StatusAwaitingPayment
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	return transitions[s]
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, s := range from.Next() {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned for an edge not in the transition table.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("order is already %s", e.From)
	}
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// Kind implements apperr categorization.
func (e *TransitionError) Kind() apperr.Kind { return apperr.InvalidTransition }

// Order is an immutable record of a purchase; only Status changes after
// creation.
type Order struct {
	ID           string
	StoreID      string
	CustomerID   string // empty for anonymous orders
	OrderType    catalog.OrderType
	Status       Status
	BaseValue    decimal.Decimal
	ChargedValue decimal.Decimal
	CouponID     string
	CouponCode   string
	Notes        string
	Items        []Line
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Discount returns the amount taken off by the coupon.
func (o *Order) Discount() decimal.Decimal {
	return o.BaseValue.Sub(o.ChargedValue)
}

// Line is an order item copied from a cart item.
type Line struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Modifiers   []LineModifier
}

// LineModifier is a modifier selection copied onto an order line.
type LineModifier struct {
	ModifierID string
	GroupID    string
	Name       string
	ExtraPrice decimal.Decimal
}

// Repository persists orders.
type Repository interface {
	// Create inserts the order with copies of its lines and selections.
	Create(ctx context.Context, o *Order) error
	// Get returns the order with its lines, or ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate returns the order scoped to storeID and locks it for the
	// enclosing transaction, or ErrNotFound.
	GetForUpdate(ctx context.Context, id, storeID string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
}
