// Package memory is an in-process implementation of every repository, used by
// tests and the local development mode.
//
// A transaction holds a single store-wide lock and restores a snapshot taken
// at its start when it fails, which gives serializable semantics. All writes
// replace map values instead of mutating shared slices or pointers, so a
// snapshot is a set of shallow map copies.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/cart"
	"github.com/xenking/platter/internal/domain/catalog"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/ledger"
	"github.com/xenking/platter/internal/domain/order"
)

type listingKey struct {
	storeID string
	id      string
}

type cartRow struct {
	storeID   string
	orderType catalog.OrderType
	createdAt time.Time
	updatedAt time.Time
}

type itemRow struct {
	customerID string
	productID  string
	quantity   int
	unitPrice  decimal.Decimal
	modifiers  []cart.ItemModifier
	seq        int64
	createdAt  time.Time
}

type state struct {
	stores           map[string]catalog.Store
	products         map[string]catalog.Product
	productListings  map[listingKey]catalog.ProductListing
	modifierListings map[listingKey]catalog.ModifierListing

	carts map[string]cartRow
	items map[string]itemRow

	orders  map[string]order.Order
	coupons map[string]coupon.Coupon // by code
	ledgers map[string]ledger.Ledger
	apikeys map[string]auth.APIKeyInfo // by hash

	seq int64
}

func newState() *state {
	return &state{
		stores:           make(map[string]catalog.Store),
		products:         make(map[string]catalog.Product),
		productListings:  make(map[listingKey]catalog.ProductListing),
		modifierListings: make(map[listingKey]catalog.ModifierListing),
		carts:            make(map[string]cartRow),
		items:            make(map[string]itemRow),
		orders:           make(map[string]order.Order),
		coupons:          make(map[string]coupon.Coupon),
		ledgers:          make(map[string]ledger.Ledger),
		apikeys:          make(map[string]auth.APIKeyInfo),
	}
}

func (s *state) clone() *state {
	return &state{
		stores:           maps.Clone(s.stores),
		products:         maps.Clone(s.products),
		productListings:  maps.Clone(s.productListings),
		modifierListings: maps.Clone(s.modifierListings),
		carts:            maps.Clone(s.carts),
		items:            maps.Clone(s.items),
		orders:           maps.Clone(s.orders),
		coupons:          maps.Clone(s.coupons),
		ledgers:          maps.Clone(s.ledgers),
		apikeys:          maps.Clone(s.apikeys),
		seq:              s.seq,
	}
}

// Store holds all data in memory.
type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: newState(), now: time.Now}
}

type txKey struct{}

// txState marks a context that holds the store lock.
type txState struct {
	store *Store
}

func (s *Store) inTx(ctx context.Context) bool {
	t, ok := ctx.Value(txKey{}).(*txState)
	return ok && t.store == s
}

// WithTransaction runs fn while holding the store lock. When fn fails every
// change it made is discarded. Nested calls join the outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, &txState{store: s})); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// view runs fn against the current data, taking the lock unless ctx already
// holds it.
func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if !s.inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.data)
}

// Ping always succeeds; it backs the readiness check in memory mode.
func (s *Store) Ping(context.Context) error {
	return nil
}

func (st *state) nextSeq() int64 {
	st.seq++
	return st.seq
}
