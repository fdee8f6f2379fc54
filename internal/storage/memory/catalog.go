package memory

import (
	"context"
	"slices"

	"github.com/xenking/platter/internal/domain/catalog"
)

// Catalog returns the catalog.Reader view of the store.
func (s *Store) Catalog() catalog.Reader { return catalogRepo{s} }

type catalogRepo struct{ s *Store }

func (r catalogRepo) GetStore(ctx context.Context, id string) (out *catalog.Store, err error) {
	err = r.s.view(ctx, func(st *state) error {
		v, ok := st.stores[id]
		if !ok {
			return catalog.ErrNotFound
		}
		out = &v
		return nil
	})
	return out, err
}

func (r catalogRepo) GetProduct(ctx context.Context, id string) (out *catalog.Product, err error) {
	err = r.s.view(ctx, func(st *state) error {
		v, ok := st.products[id]
		if !ok {
			return catalog.ErrNotFound
		}
		out = cloneProduct(v)
		return nil
	})
	return out, err
}

func (r catalogRepo) GetProductListing(ctx context.Context, storeID, productID string) (out *catalog.ProductListing, err error) {
	err = r.s.view(ctx, func(st *state) error {
		v, ok := st.productListings[listingKey{storeID, productID}]
		if !ok {
			return catalog.ErrNotFound
		}
		out = &v
		return nil
	})
	return out, err
}

func (r catalogRepo) GetModifierListing(ctx context.Context, storeID, modifierID string) (out *catalog.ModifierListing, err error) {
	err = r.s.view(ctx, func(st *state) error {
		v, ok := st.modifierListings[listingKey{storeID, modifierID}]
		if !ok {
			return catalog.ErrNotFound
		}
		out = &v
		return nil
	})
	return out, err
}

// PutStore inserts or replaces a store.
func (s *Store) PutStore(ctx context.Context, v catalog.Store) error {
	return s.view(ctx, func(st *state) error {
		st.stores[v.ID] = v
		return nil
	})
}

// PutProduct inserts or replaces a product with its groups and modifiers.
// Groups and modifiers are ordered by Position.
func (s *Store) PutProduct(ctx context.Context, v catalog.Product) error {
	p := cloneProduct(v)
	slices.SortStableFunc(p.Groups, func(a, b catalog.Group) int { return a.Position - b.Position })
	for i := range p.Groups {
		g := &p.Groups[i]
		g.ProductID = p.ID
		slices.SortStableFunc(g.Modifiers, func(a, b catalog.Modifier) int { return a.Position - b.Position })
		for j := range g.Modifiers {
			g.Modifiers[j].GroupID = g.ID
		}
	}
	return s.view(ctx, func(st *state) error {
		st.products[p.ID] = *p
		return nil
	})
}

// PutProductListing inserts or replaces a product listing.
func (s *Store) PutProductListing(ctx context.Context, v catalog.ProductListing) error {
	return s.view(ctx, func(st *state) error {
		st.productListings[listingKey{v.StoreID, v.ProductID}] = v
		return nil
	})
}

// PutModifierListing inserts or replaces a modifier listing.
func (s *Store) PutModifierListing(ctx context.Context, v catalog.ModifierListing) error {
	return s.view(ctx, func(st *state) error {
		st.modifierListings[listingKey{v.StoreID, v.ModifierID}] = v
		return nil
	})
}

func cloneProduct(v catalog.Product) *catalog.Product {
	p := v
	p.Groups = make([]catalog.Group, len(v.Groups))
	for i, g := range v.Groups {
		g.Modifiers = slices.Clone(g.Modifiers)
		p.Groups[i] = g
	}
	return &p
}

// modifierOf finds a modifier and its group in the product.
func (st *state) modifierOf(productID, modifierID string) (catalog.Modifier, catalog.Group, bool) {
	p, ok := st.products[productID]
	if !ok {
		return catalog.Modifier{}, catalog.Group{}, false
	}
	for _, g := range p.Groups {
		for _, m := range g.Modifiers {
			if m.ID == modifierID {
				return m, g, true
			}
		}
	}
	return catalog.Modifier{}, catalog.Group{}, false
}
