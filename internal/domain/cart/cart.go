// Package cart implements the per-customer cart engine: store-scoped item
// validation, price freezing and store-switch revalidation.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/catalog"
	"github.com/xenking/platter/internal/domain/pricing"
)

var (
	// ErrNotFound is returned by a Repository when the customer has no cart.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned by a Repository when an item is not in the
	// customer's cart.
	ErrItemNotFound = errors.New("cart item not found")
)

// Cart is a customer's in-progress selection, bound to at most one store.
type Cart struct {
	CustomerID string
	StoreID    string // empty when unbound
	OrderType  catalog.OrderType
	Items      []Item // creation order
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Item is one cart line with its frozen unit price.
type Item struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Modifiers   []ItemModifier
	CreatedAt   time.Time
}

// ItemModifier is a chosen modifier with its frozen extra price.
type ItemModifier struct {
	ModifierID string
	GroupID    string
	Name       string
	ExtraPrice decimal.Decimal
}

// Bound reports whether the cart is bound to a store.
func (c *Cart) Bound() bool {
	return c.StoreID != ""
}

// Item returns the item with the given id.
func (c *Cart) Item(id string) (*Item, bool) {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// Subtotal returns Σ (unit + Σ modifiers) × quantity at currency precision.
func (c *Cart) Subtotal() decimal.Decimal {
	lines := make([]pricing.Line, len(c.Items))
	for i := range c.Items {
		lines[i] = c.Items[i].Line()
	}
	return pricing.Subtotal(lines)
}

// Line returns the item's priced shape.
func (i *Item) Line() pricing.Line {
	prices := make([]decimal.Decimal, len(i.Modifiers))
	for j, m := range i.Modifiers {
		prices[j] = m.ExtraPrice
	}
	return pricing.Line{UnitPrice: i.UnitPrice, ModifierPrices: prices, Quantity: i.Quantity}
}

// Repository persists carts. Reads return items in creation order with
// selections and display names loaded. Every mutating method must be called
// inside a transaction that already holds the cart lock (Ensure or
// GetForUpdate).
type Repository interface {
	// Ensure creates the customer's cart when missing and returns it locked.
	Ensure(ctx context.Context, customerID string) (*Cart, error)
	// GetForUpdate returns the cart locked for the transaction, or ErrNotFound.
	GetForUpdate(ctx context.Context, customerID string) (*Cart, error)
	// Get returns the cart without locking, or ErrNotFound.
	Get(ctx context.Context, customerID string) (*Cart, error)

	SetStore(ctx context.Context, customerID, storeID string) error
	SetOrderType(ctx context.Context, customerID string, t catalog.OrderType) error

	AddItem(ctx context.Context, customerID string, item *Item) error
	SetItemQuantity(ctx context.Context, customerID, itemID string, quantity int) error
	SetItemPrice(ctx context.Context, itemID string, price decimal.Decimal) error
	DeleteItem(ctx context.Context, customerID, itemID string) error
	ClearItems(ctx context.Context, customerID string) error

	AddItemModifier(ctx context.Context, itemID string, m ItemModifier) error
	SetItemModifierPrice(ctx context.Context, itemID, modifierID string, price decimal.Decimal) error
	DeleteItemModifier(ctx context.Context, itemID, modifierID string) error
}

// View is a cart with its computed subtotal.
type View struct {
	*Cart
	Subtotal decimal.Decimal
}

func newView(c *Cart) *View {
	return &View{Cart: c, Subtotal: c.Subtotal()}
}
