// Package catalog models the shared product taxonomy and its store-scoped
// listings, and resolves what is sellable in a store at what price.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by a Reader when the requested row does not exist.
	ErrNotFound = errors.New("catalog entry not found")
)

// OrderType is how an order reaches the customer.
type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePickup   OrderType = "pickup"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	return t == OrderTypeDelivery || t == OrderTypePickup
}

// Store is a tenant that sells a subset of the catalog.
type Store struct {
	ID             string
	Name           string
	Delivers       bool
	DeliveryRadius decimal.Decimal // kilometres
}

// Product is a global catalog entry.
type Product struct {
	ID       string
	Name     string
	Category string
	Groups   []Group // declared order
}

// Group is a customization group owned by a product.
type Group struct {
	ID        string
	ProductID string
	Name      string
	MinSelect int
	MaxSelect int
	Position  int
	Modifiers []Modifier // display order
}

// Modifier is one choosable option of a Group.
type Modifier struct {
	ID        string
	GroupID   string
	Name      string
	IsDefault bool
	Position  int
}

// ProductListing grants a product a price and availability in one store.
type ProductListing struct {
	StoreID    string
	ProductID  string
	BasePrice  decimal.Decimal
	Available  bool
	PromoPrice decimal.NullDecimal
	PromoLabel string
}

// ModifierListing grants a modifier an extra price and availability in one store.
type ModifierListing struct {
	StoreID    string
	ModifierID string
	ExtraPrice decimal.Decimal
	Available  bool
}

// Reader is the read side of the catalog. Implementations must read fresh
// from the enclosing transaction; listing reads may lock the row against
// concurrent availability changes.
type Reader interface {
	GetStore(ctx context.Context, id string) (*Store, error)
	// GetProduct returns the product with its groups and modifiers loaded.
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetProductListing(ctx context.Context, storeID, productID string) (*ProductListing, error)
	GetModifierListing(ctx context.Context, storeID, modifierID string) (*ModifierListing, error)
}

// FindModifier returns the modifier and its group when id belongs to one of
// the product's groups.
func (p *Product) FindModifier(id string) (*Modifier, *Group, bool) {
	for gi := range p.Groups {
		g := &p.Groups[gi]
		for mi := range g.Modifiers {
			if g.Modifiers[mi].ID == id {
				return &g.Modifiers[mi], g, true
			}
		}
	}
	return nil, nil, false
}

// Group returns the group with the given id.
func (p *Product) Group(id string) (*Group, bool) {
	for i := range p.Groups {
		if p.Groups[i].ID == id {
			return &p.Groups[i], true
		}
	}
	return nil, false
}

// Default returns the group's default modifier, if it declares one.
func (g *Group) Default() (*Modifier, bool) {
	for i := range g.Modifiers {
		if g.Modifiers[i].IsDefault {
			return &g.Modifiers[i], true
		}
	}
	return nil, false
}

// Mandatory reports whether at least one modifier must be chosen.
func (g *Group) Mandatory() bool {
	return g.MinSelect > 0
}
