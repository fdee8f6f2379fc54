package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/platter/internal/domain/catalog"
)

var _ catalog.Reader = (*CatalogRepository)(nil)

// CatalogRepository reads the catalog and store listings.
type CatalogRepository struct {
	db *DB
}

const getStoreSQL = `SELECT id, name, delivers, delivery_radius_km FROM stores WHERE id = $1`

func (r *CatalogRepository) GetStore(ctx context.Context, id string) (*catalog.Store, error) {
	var s catalog.Store
	err := r.db.q(ctx).QueryRow(ctx, getStoreSQL, id).Scan(&s.ID, &s.Name, &s.Delivers, &s.DeliveryRadius)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get store: %w", err)
	}
	return &s, nil
}

const (
	getProductSQL = `SELECT id, name, category FROM products WHERE id = $1`

	listGroupsSQL = `SELECT id, product_id, name, min_select, max_select, position
FROM customization_groups
WHERE product_id = $1
ORDER BY position, id`

	listModifiersSQL = `SELECT m.id, m.group_id, m.name, m.is_default, m.position
FROM modifiers m
JOIN customization_groups g ON g.id = m.group_id
WHERE g.product_id = $1
ORDER BY m.position, m.id`
)

func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	q := r.db.q(ctx)

	var p catalog.Product
	err := q.QueryRow(ctx, getProductSQL, id).Scan(&p.ID, &p.Name, &p.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	rows, err := q.Query(ctx, listGroupsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	p.Groups, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Group, error) {
		var g catalog.Group
		err := row.Scan(&g.ID, &g.ProductID, &g.Name, &g.MinSelect, &g.MaxSelect, &g.Position)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan groups: %w", err)
	}

	rows, err = q.Query(ctx, listModifiersSQL, id)
	if err != nil {
		return nil, fmt.Errorf("list modifiers: %w", err)
	}
	mods, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Modifier, error) {
		var m catalog.Modifier
		err := row.Scan(&m.ID, &m.GroupID, &m.Name, &m.IsDefault, &m.Position)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan modifiers: %w", err)
	}

	for _, m := range mods {
		if g, ok := p.Group(m.GroupID); ok {
			g.Modifiers = append(g.Modifiers, m)
		}
	}
	return &p, nil
}

// Listing reads take a share lock so an availability change cannot commit
// between validation and the write that depends on it.
const (
	getProductListingSQL = `SELECT store_id, product_id, base_price, available, promo_price, promo_label
FROM product_listings
WHERE store_id = $1 AND product_id = $2
FOR SHARE`

	getModifierListingSQL = `SELECT store_id, modifier_id, extra_price, available
FROM modifier_listings
WHERE store_id = $1 AND modifier_id = $2
FOR SHARE`
)

func (r *CatalogRepository) GetProductListing(ctx context.Context, storeID, productID string) (*catalog.ProductListing, error) {
	var l catalog.ProductListing
	err := r.db.q(ctx).QueryRow(ctx, getProductListingSQL, storeID, productID).Scan(
		&l.StoreID, &l.ProductID, &l.BasePrice, &l.Available, &l.PromoPrice, &l.PromoLabel,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product listing: %w", err)
	}
	return &l, nil
}

func (r *CatalogRepository) GetModifierListing(ctx context.Context, storeID, modifierID string) (*catalog.ModifierListing, error) {
	var l catalog.ModifierListing
	err := r.db.q(ctx).QueryRow(ctx, getModifierListingSQL, storeID, modifierID).Scan(
		&l.StoreID, &l.ModifierID, &l.ExtraPrice, &l.Available,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get modifier listing: %w", err)
	}
	return &l, nil
}

const (
	upsertStoreSQL = `INSERT INTO stores (id, name, delivers, delivery_radius_km)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    delivers = EXCLUDED.delivers,
    delivery_radius_km = EXCLUDED.delivery_radius_km`

	upsertProductSQL = `INSERT INTO products (id, name, category)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category`

	upsertGroupSQL = `INSERT INTO customization_groups (id, product_id, name, min_select, max_select, position)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    product_id = EXCLUDED.product_id,
    name = EXCLUDED.name,
    min_select = EXCLUDED.min_select,
    max_select = EXCLUDED.max_select,
    position = EXCLUDED.position`

	upsertModifierSQL = `INSERT INTO modifiers (id, group_id, name, is_default, position)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    group_id = EXCLUDED.group_id,
    name = EXCLUDED.name,
    is_default = EXCLUDED.is_default,
    position = EXCLUDED.position`

	upsertProductListingSQL = `INSERT INTO product_listings (store_id, product_id, base_price, available, promo_price, promo_label)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (store_id, product_id) DO UPDATE SET
    base_price = EXCLUDED.base_price,
    available = EXCLUDED.available,
    promo_price = EXCLUDED.promo_price,
    promo_label = EXCLUDED.promo_label`

	upsertModifierListingSQL = `INSERT INTO modifier_listings (store_id, modifier_id, extra_price, available)
VALUES ($1, $2, $3, $4)
ON CONFLICT (store_id, modifier_id) DO UPDATE SET
    extra_price = EXCLUDED.extra_price,
    available = EXCLUDED.available`
)

// PutStore inserts or replaces a store.
func (d *DB) PutStore(ctx context.Context, s catalog.Store) error {
	if _, err := d.q(ctx).Exec(ctx, upsertStoreSQL, s.ID, s.Name, s.Delivers, s.DeliveryRadius); err != nil {
		return fmt.Errorf("upsert store %s: %w", s.ID, err)
	}
	return nil
}

// PutProduct inserts or replaces a product with its groups and modifiers.
func (d *DB) PutProduct(ctx context.Context, p catalog.Product) error {
	b := &pgx.Batch{}
	b.Queue(upsertProductSQL, p.ID, p.Name, p.Category)
	for _, g := range p.Groups {
		b.Queue(upsertGroupSQL, g.ID, p.ID, g.Name, g.MinSelect, g.MaxSelect, g.Position)
		for _, m := range g.Modifiers {
			b.Queue(upsertModifierSQL, m.ID, g.ID, m.Name, m.IsDefault, m.Position)
		}
	}
	if err := d.q(ctx).SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}

// PutProductListing inserts or replaces a product listing.
func (d *DB) PutProductListing(ctx context.Context, l catalog.ProductListing) error {
	_, err := d.q(ctx).Exec(ctx, upsertProductListingSQL,
		l.StoreID, l.ProductID, l.BasePrice, l.Available, l.PromoPrice, l.PromoLabel)
	if err != nil {
		return fmt.Errorf("upsert product listing %s/%s: %w", l.StoreID, l.ProductID, err)
	}
	return nil
}

// PutModifierListing inserts or replaces a modifier listing.
func (d *DB) PutModifierListing(ctx context.Context, l catalog.ModifierListing) error {
	_, err := d.q(ctx).Exec(ctx, upsertModifierListingSQL, l.StoreID, l.ModifierID, l.ExtraPrice, l.Available)
	if err != nil {
		return fmt.Errorf("upsert modifier listing %s/%s: %w", l.StoreID, l.ModifierID, err)
	}
	return nil
}
