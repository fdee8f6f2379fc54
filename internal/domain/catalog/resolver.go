package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ResolvedProduct is a product together with its listing in one store.
type ResolvedProduct struct {
	*Product
	Listing *ProductListing
}

// Price returns the listing's effective price: the promotional price when one
// is set, the base price otherwise.
func (p *ResolvedProduct) Price() decimal.Decimal {
	return p.Listing.Price()
}

// Price returns the promotional price when one is set, the base price otherwise.
func (l *ProductListing) Price() decimal.Decimal {
	if l.PromoPrice.Valid {
		return l.PromoPrice.Decimal
	}
	return l.BasePrice
}

// Resolver answers whether products and modifiers are sellable in a store.
// It holds no state; every call reads through the Reader, so callers get
// fresh availability inside their own transaction.
type Resolver struct {
	catalog Reader
}

// NewResolver returns a Resolver reading from the given catalog.
func NewResolver(catalog Reader) *Resolver {
	return &Resolver{catalog: catalog}
}

// Store returns the store or a NotFoundError.
func (r *Resolver) Store(ctx context.Context, storeID string) (*Store, error) {
	s, err := r.catalog.GetStore(ctx, storeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Entity: EntityStore, ID: storeID}
		}
		return nil, errors.Wrapf(err, "get store %s", storeID)
	}
	return s, nil
}

// Product returns the product definition regardless of store, or a
// NotFoundError.
func (r *Resolver) Product(ctx context.Context, productID string) (*Product, error) {
	p, err := r.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Entity: EntityProduct, ID: productID}
		}
		return nil, errors.Wrapf(err, "get product %s", productID)
	}
	return p, nil
}

// ResolveProduct returns the product and its listing in storeID. A product
// that does not exist yields a NotFoundError; one that is not listed or is
// listed as unavailable yields an UnavailableError.
func (r *Resolver) ResolveProduct(ctx context.Context, storeID, productID string) (*ResolvedProduct, error) {
	p, err := r.Product(ctx, productID)
	if err != nil {
		return nil, err
	}

	l, err := r.catalog.GetProductListing(ctx, storeID, productID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, &UnavailableError{Entity: EntityProduct, ID: productID, Name: p.Name, StoreID: storeID}
	case err != nil:
		return nil, errors.Wrapf(err, "get listing of product %s in store %s", productID, storeID)
	case !l.Available:
		return nil, &UnavailableError{Entity: EntityProduct, ID: productID, Name: p.Name, StoreID: storeID}
	}

	return &ResolvedProduct{Product: p, Listing: l}, nil
}

// ResolveModifier returns the listing of m in storeID, or an UnavailableError
// when it is not listed or not available there.
func (r *Resolver) ResolveModifier(ctx context.Context, storeID string, m *Modifier) (*ModifierListing, error) {
	l, err := r.catalog.GetModifierListing(ctx, storeID, m.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, &UnavailableError{Entity: EntityModifier, ID: m.ID, Name: m.Name, StoreID: storeID}
	case err != nil:
		return nil, errors.Wrapf(err, "get listing of option %s in store %s", m.ID, storeID)
	case !l.Available:
		return nil, &UnavailableError{Entity: EntityModifier, ID: m.ID, Name: m.Name, StoreID: storeID}
	}
	return l, nil
}

// Unavailable reports whether err means "not sellable here" as opposed to a
// lookup or infrastructure failure.
func Unavailable(err error) bool {
	var u *UnavailableError
	return errors.As(err, &u)
}
