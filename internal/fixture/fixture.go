// Package fixture loads catalog, coupon and API key seed data from YAML.
package fixture

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/catalog"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/txn"
)

// Fixture is the document layout of a seed file.
type Fixture struct {
	Stores   []Store   `yaml:"stores"`
	Products []Product `yaml:"products"`
	Coupons  []Coupon  `yaml:"coupons"`
	APIKeys  []APIKey  `yaml:"api_keys"`
}

// Store is a store with the products and modifiers it sells.
type Store struct {
	ID             string          `yaml:"id"`
	Name           string          `yaml:"name"`
	Delivers       bool            `yaml:"delivers"`
	DeliveryRadius decimal.Decimal `yaml:"delivery_radius_km"`
	Menu           []Listing       `yaml:"menu"`
	Modifiers      []ModifierPrice `yaml:"modifiers"`
}

// Listing prices a product in a store. Available defaults to true.
type Listing struct {
	Product    string           `yaml:"product"`
	Price      decimal.Decimal  `yaml:"price"`
	Available  *bool            `yaml:"available"`
	PromoPrice *decimal.Decimal `yaml:"promo_price"`
	PromoLabel string           `yaml:"promo_label"`
}

// ModifierPrice prices a modifier in a store. Available defaults to true.
type ModifierPrice struct {
	Modifier  string          `yaml:"modifier"`
	Extra     decimal.Decimal `yaml:"extra"`
	Available *bool           `yaml:"available"`
}

type Product struct {
	ID       string  `yaml:"id"`
	Name     string  `yaml:"name"`
	Category string  `yaml:"category"`
	Groups   []Group `yaml:"groups"`
}

type Group struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Min       int        `yaml:"min"`
	Max       int        `yaml:"max"`
	Modifiers []Modifier `yaml:"modifiers"`
}

type Modifier struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Default bool   `yaml:"default"`
}

type Coupon struct {
	Code      string              `yaml:"code"`
	Kind      coupon.DiscountKind `yaml:"kind"`
	Value     decimal.Decimal     `yaml:"value"`
	Uses      *int                `yaml:"uses"`
	ExpiresAt *time.Time          `yaml:"expires_at"`
	Customer  string              `yaml:"customer"`
}

// APIKey is an operator key in plain text; only its hash is stored.
type APIKey struct {
	Key    string   `yaml:"key"`
	Name   string   `yaml:"name"`
	Store  string   `yaml:"store"`
	Scopes []string `yaml:"scopes"`
}

// Parse decodes a fixture document. Unknown fields are rejected.
func Parse(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode fixture")
	}
	return &f, nil
}

// Load reads and parses the fixture at path.
func Load(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open fixture")
	}
	defer func() { _ = file.Close() }()

	return Parse(file)
}

// Target is a store the fixture can be written to.
type Target interface {
	txn.Transactor
	PutStore(ctx context.Context, s catalog.Store) error
	PutProduct(ctx context.Context, p catalog.Product) error
	PutProductListing(ctx context.Context, l catalog.ProductListing) error
	PutModifierListing(ctx context.Context, l catalog.ModifierListing) error
	APIKeys() auth.Repository
}

// Stats counts what Apply wrote.
type Stats struct {
	Stores, Products, Listings, Coupons, APIKeys int
	// CouponsSkipped counts coupons whose code already existed.
	CouponsSkipped int
}

// Apply writes the fixture to t in one transaction. Catalog rows and keys are
// upserted; coupons are created through engine and existing codes are left
// untouched, so applying a fixture twice is safe.
func (f *Fixture) Apply(ctx context.Context, t Target, engine *coupon.Engine, pepper []byte) (Stats, error) {
	var st Stats
	err := t.WithTransaction(ctx, func(ctx context.Context) error {
		st = Stats{}
		for _, p := range f.Products {
			if err := t.PutProduct(ctx, p.product()); err != nil {
				return errors.Wrapf(err, "put product %s", p.ID)
			}
			st.Products++
		}
		for _, s := range f.Stores {
			if err := f.applyStore(ctx, t, s, &st); err != nil {
				return errors.Wrapf(err, "store %s", s.ID)
			}
		}
		for _, c := range f.Coupons {
			_, err := engine.Create(ctx, coupon.CreateRequest{
				Code:       c.Code,
				Kind:       c.Kind,
				Value:      c.Value,
				Uses:       c.Uses,
				ExpiresAt:  c.ExpiresAt,
				CustomerID: c.Customer,
			})
			switch {
			case errors.Is(err, coupon.ErrCodeTaken):
				st.CouponsSkipped++
			case err != nil:
				return errors.Wrapf(err, "coupon %s", c.Code)
			default:
				st.Coupons++
			}
		}
		for _, k := range f.APIKeys {
			if k.Key == "" {
				return errors.Errorf("api key %q: empty key", k.Name)
			}
			if err := t.APIKeys().Create(ctx, &auth.APIKeyInfo{
				KeyHash: auth.HashKey(pepper, k.Key),
				Name:    k.Name,
				StoreID: k.Store,
				Scopes:  k.Scopes,
			}); err != nil {
				return errors.Wrapf(err, "api key %q", k.Name)
			}
			st.APIKeys++
		}
		return nil
	})
	return st, err
}

func (f *Fixture) applyStore(ctx context.Context, t Target, s Store, st *Stats) error {
	if err := t.PutStore(ctx, catalog.Store{
		ID:             s.ID,
		Name:           s.Name,
		Delivers:       s.Delivers,
		DeliveryRadius: s.DeliveryRadius,
	}); err != nil {
		return errors.Wrap(err, "put store")
	}
	st.Stores++

	for _, l := range s.Menu {
		pl := catalog.ProductListing{
			StoreID:    s.ID,
			ProductID:  l.Product,
			BasePrice:  l.Price,
			Available:  available(l.Available),
			PromoLabel: l.PromoLabel,
		}
		if l.PromoPrice != nil {
			pl.PromoPrice = decimal.NullDecimal{Decimal: *l.PromoPrice, Valid: true}
		}
		if err := t.PutProductListing(ctx, pl); err != nil {
			return errors.Wrapf(err, "list product %s", l.Product)
		}
		st.Listings++
	}
	for _, m := range s.Modifiers {
		if err := t.PutModifierListing(ctx, catalog.ModifierListing{
			StoreID:    s.ID,
			ModifierID: m.Modifier,
			ExtraPrice: m.Extra,
			Available:  available(m.Available),
		}); err != nil {
			return errors.Wrapf(err, "list modifier %s", m.Modifier)
		}
		st.Listings++
	}
	return nil
}

func (p Product) product() catalog.Product {
	out := catalog.Product{ID: p.ID, Name: p.Name, Category: p.Category}
	for gi, g := range p.Groups {
		group := catalog.Group{
			ID:        g.ID,
			ProductID: p.ID,
			Name:      g.Name,
			MinSelect: g.Min,
			MaxSelect: g.Max,
			Position:  gi,
		}
		for mi, m := range g.Modifiers {
			group.Modifiers = append(group.Modifiers, catalog.Modifier{
				ID:        m.ID,
				GroupID:   g.ID,
				Name:      m.Name,
				IsDefault: m.Default,
				Position:  mi,
			})
		}
		out.Groups = append(out.Groups, group)
	}
	return out
}

func available(v *bool) bool {
	return v == nil || *v
}
