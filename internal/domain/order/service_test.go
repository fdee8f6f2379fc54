package order_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/platter/internal/domain/apperr"
	"github.com/xenking/platter/internal/domain/cart"
	"github.com/xenking/platter/internal/domain/catalog"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/order"
	"github.com/xenking/platter/internal/storage/memory"
)

var d = decimal.RequireFromString

type env struct {
	store   *memory.Store
	carts   *cart.Service
	orders  *order.Service
	status  *order.StatusMachine
	coupons *coupon.Engine
}

func setup(t *testing.T, cfg order.Config) *env {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.PutStore(ctx, catalog.Store{ID: "X", Name: "Downtown", Delivers: true}))
	require.NoError(t, s.PutStore(ctx, catalog.Store{ID: "Y", Name: "Airport"}))
	require.NoError(t, s.PutProduct(ctx, catalog.Product{
		ID: "burger", Name: "Burger",
		Groups: []catalog.Group{{
			ID: "extras", Name: "Extras", MaxSelect: 2,
			Modifiers: []catalog.Modifier{{ID: "bacon", Name: "Bacon"}},
		}},
	}))
	require.NoError(t, s.PutProduct(ctx, catalog.Product{ID: "soda", Name: "Soda"}))
	for _, l := range []catalog.ProductListing{
		{StoreID: "X", ProductID: "burger", BasePrice: d("20.00"), Available: true},
		{StoreID: "X", ProductID: "soda", BasePrice: d("2.50"), Available: true},
		{StoreID: "Y", ProductID: "burger", BasePrice: d("12.00"), Available: true},
	} {
		require.NoError(t, s.PutProductListing(ctx, l))
	}
	require.NoError(t, s.PutModifierListing(ctx, catalog.ModifierListing{
		StoreID: "X", ModifierID: "bacon", ExtraPrice: d("5.00"), Available: true,
	}))

	resolver := catalog.NewResolver(s.Catalog())
	coupons := coupon.NewEngine(s.Coupons(), coupon.DefaultLoyalty())
	return &env{
		store:   s,
		carts:   cart.NewService(s, s.Carts(), resolver),
		orders:  order.NewService(s, s.Carts(), s.Orders(), resolver, coupons, cfg),
		status:  order.NewStatusMachine(s, s.Orders(), s.Ledgers(), coupons, cfg),
		coupons: coupons,
	}
}

// fillCart puts 2 × burger with bacon (50.00) into the customer's cart at X
// for pickup.
func (e *env) fillCart(t *testing.T, customerID string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.carts.AddItem(ctx, customerID, cart.AddItemRequest{
		StoreID: "X", ProductID: "burger", Quantity: 2, ModifierIDs: []string{"bacon"},
	})
	require.NoError(t, err)
	_, err = e.carts.SetOrderType(ctx, customerID, catalog.OrderTypePickup)
	require.NoError(t, err)
}

func (e *env) addCoupon(t *testing.T, code string, kind coupon.DiscountKind, value string, uses *int) {
	t.Helper()
	_, err := e.coupons.Create(context.Background(), coupon.CreateRequest{
		Code: code, Kind: kind, Value: d(value), Uses: uses,
	})
	require.NoError(t, err)
}

func intPtr(v int) *int { return &v }

func TestCreateOrder_FromCart(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	e.fillCart(t, "alice")

	o, err := e.orders.CreateOrder(ctx, order.CreateRequest{CustomerID: "alice", Notes: "ring twice"})
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "X", o.StoreID)
	assert.Equal(t, "alice", o.CustomerID)
	assert.Equal(t, catalog.OrderTypePickup, o.OrderType)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, d("50.00").Equal(o.BaseValue))
	assert.True(t, d("50.00").Equal(o.ChargedValue))
	assert.Equal(t, "ring twice", o.Notes)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Burger", o.Items[0].ProductName)
	assert.Equal(t, 2, o.Items[0].Quantity)
	require.Len(t, o.Items[0].Modifiers, 1)
	assert.True(t, d("5.00").Equal(o.Items[0].Modifiers[0].ExtraPrice))

	view, err := e.carts.View(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, view.Items, "cart items are consumed")
	assert.Equal(t, "X", view.StoreID, "cart row survives")

	stored, err := e.orders.GetOrder(ctx, o.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, o.Items, stored.Items)
}

func TestCreateOrder_TrimsNotes(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	e.fillCart(t, "alice")

	padded := "  " + strings.Repeat("x", order.MaxNotesLength) + "\n\t "
	o, err := e.orders.CreateOrder(ctx, order.CreateRequest{CustomerID: "alice", Notes: padded})
	require.NoError(t, err, "surrounding whitespace does not count towards the limit")
	assert.Equal(t, strings.Repeat("x", order.MaxNotesLength), o.Notes)
}

func TestCreateOrder_ChargesFrozenPrices(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	e.fillCart(t, "alice")

	require.NoError(t, e.store.PutProductListing(ctx, catalog.ProductListing{
		StoreID: "X", ProductID: "burger", BasePrice: d("99.00"), Available: true,
	}))

	o, err := e.orders.CreateOrder(ctx, order.CreateRequest{CustomerID: "alice"})
	require.NoError(t, err)
	assert.True(t, d("50.00").Equal(o.ChargedValue))
}

func TestCreateOrder_InitialStatus(t *testing.T) {
	cfg := order.DefaultConfig()
	cfg.InitialStatus = order.StatusAwaitingPayment
	e := setup(t, cfg)
	e.fillCart(t, "alice")

	o, err := e.orders.CreateOrder(context.Background(), order.CreateRequest{CustomerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusAwaitingPayment, o.Status)
}

func TestCreateOrder_Coupons(t *testing.T) {
	tests := []struct {
		name  string
		kind  coupon.DiscountKind
		value string
		want  string
	}{
		{name: "percentage", kind: coupon.DiscountPercentage, value: "10", want: "45.00"},
		{name: "fixed", kind: coupon.DiscountFixed, value: "12.50", want: "37.50"},
		{name: "fixed larger than base", kind: coupon.DiscountFixed, value: "80", want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := setup(t, order.DefaultConfig())
			e.addCoupon(t, "DEAL", tt.kind, tt.value, intPtr(5))
			e.fillCart(t, "alice")

			o, err := e.orders.CreateOrder(ctx, order.CreateRequest{CustomerID: "alice", CouponCode: "deal"})
			require.NoError(t, err)
			assert.True(t, d("50.00").Equal(o.BaseValue))
			assert.True(t, d(tt.want).Equal(o.ChargedValue), "charged %s", o.ChargedValue)
			assert.Equal(t, "DEAL", o.CouponCode)
			assert.NotEmpty(t, o.CouponID)

			v, err := e.coupons.Validate(ctx, "DEAL", "alice")
			require.NoError(t, err)
			assert.Equal(t, 4, *v.Coupon.UsesRemaining)
		})
	}
}

func TestCreateOrder_RollsBack(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(t *testing.T, e *env)
		req      order.CreateRequest
		wantKind apperr.Kind
		wantMsg  string
	}{
		{
			name:     "nonexistent coupon",
			req:      order.CreateRequest{CustomerID: "alice", CouponCode: "NOPE"},
			wantKind: apperr.CouponInvalid,
			wantMsg:  "not found",
		},
		{
			name: "product became unavailable",
			prepare: func(t *testing.T, e *env) {
				require.NoError(t, e.store.PutProductListing(context.Background(), catalog.ProductListing{
					StoreID: "X", ProductID: "burger", BasePrice: d("20.00"), Available: false,
				}))
			},
			req:      order.CreateRequest{CustomerID: "alice"},
			wantKind: apperr.Unavailable,
			wantMsg:  `"Burger"`,
		},
		{
			name: "option became unavailable",
			prepare: func(t *testing.T, e *env) {
				require.NoError(t, e.store.PutModifierListing(context.Background(), catalog.ModifierListing{
					StoreID: "X", ModifierID: "bacon", ExtraPrice: d("5.00"), Available: false,
				}))
			},
			req:      order.CreateRequest{CustomerID: "alice", CouponCode: "LIMITED"},
			wantKind: apperr.Unavailable,
			wantMsg:  `"Bacon"`,
		},
		{
			name:     "notes too long",
			req:      order.CreateRequest{CustomerID: "alice", Notes: strings.Repeat("x", order.MaxNotesLength+1)},
			wantKind: apperr.InvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := setup(t, order.DefaultConfig())
			e.addCoupon(t, "LIMITED", coupon.DiscountFixed, "5", intPtr(1))
			e.fillCart(t, "alice")
			if tt.prepare != nil {
				tt.prepare(t, e)
			}

			_, err := e.orders.CreateOrder(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err), err.Error())
			assert.Contains(t, err.Error(), tt.wantMsg)

			assert.Zero(t, e.store.OrderCount())
			view, err := e.carts.View(ctx, "alice")
			require.NoError(t, err)
			assert.Len(t, view.Items, 1, "cart is untouched")
			v, err := e.coupons.Validate(ctx, "LIMITED", "alice")
			require.NoError(t, err)
			assert.True(t, v.Valid, "coupon use is restored")
		})
	}
}

func TestCreateOrder_StructuralFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("no cart", func(t *testing.T) {
		e := setup(t, order.DefaultConfig())
		_, err := e.orders.CreateOrder(ctx, order.CreateRequest{CustomerID: "alice"})
		assert.Equal(t, apperr.EmptyCart, apperr.KindOf(err))
	})

	t.Run("cart without store", func(t *testing.T) {
		e := setup(t, order.DefaultConfig())
		_, err := e.carts.SetOrderType(ctx, "alice", catalog.OrderTypePickup)
		require.NoError(t, err)
		_, err = e.orders.CreateOrder(ctx, order.CreateRequest{CustomerID: "alice"})
		assert.Equal(t, apperr.MissingStore, apperr.KindOf(err))
	})

	t.Run("cart without order type", func(t *testing.T) {
		e := setup(t, order.DefaultConfig())
		_, err := e.carts.AddItem(ctx, "alice", cart.AddItemRequest{StoreID: "X", ProductID: "soda", Quantity: 1})
		require.NoError(t, err)
		_, err = e.orders.CreateOrder(ctx, order.CreateRequest{CustomerID: "alice"})
		assert.Equal(t, apperr.MissingStore, apperr.KindOf(err))
	})

	t.Run("emptied cart", func(t *testing.T) {
		e := setup(t, order.DefaultConfig())
		e.fillCart(t, "alice")
		_, err := e.carts.Clear(ctx, "alice")
		require.NoError(t, err)
		_, err = e.orders.CreateOrder(ctx, order.CreateRequest{CustomerID: "alice"})
		assert.Equal(t, apperr.EmptyCart, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "cart is empty")
	})

	t.Run("delivery from a pickup-only store", func(t *testing.T) {
		e := setup(t, order.DefaultConfig())
		_, err := e.carts.SetOrderType(ctx, "alice", catalog.OrderTypeDelivery)
		require.NoError(t, err)
		_, err = e.carts.AddItem(ctx, "alice", cart.AddItemRequest{StoreID: "Y", ProductID: "burger", Quantity: 1})
		require.NoError(t, err)
		_, err = e.orders.CreateOrder(ctx, order.CreateRequest{CustomerID: "alice"})
		assert.Equal(t, apperr.Unavailable, apperr.KindOf(err))
	})
}

func TestCreateOrder_Anonymous(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())

	o, err := e.orders.CreateOrder(ctx, order.CreateRequest{Inline: &order.InlineCart{
		StoreID:   "X",
		OrderType: catalog.OrderTypeDelivery,
		Items: []order.InlineItem{
			{ProductID: "burger", Quantity: 1, ModifierIDs: []string{"bacon", "bacon"}},
			{ProductID: "soda", Quantity: 2},
		},
	}})
	require.NoError(t, err)
	assert.Empty(t, o.CustomerID)
	assert.True(t, d("30.00").Equal(o.ChargedValue))
	require.Len(t, o.Items, 2)
	assert.Len(t, o.Items[0].Modifiers, 1)

	_, err = e.orders.CreateOrder(ctx, order.CreateRequest{})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))

	_, err = e.orders.CreateOrder(ctx, order.CreateRequest{Inline: &order.InlineCart{
		StoreID: "X", OrderType: catalog.OrderTypePickup,
	}})
	assert.Equal(t, apperr.EmptyCart, apperr.KindOf(err))

	_, err = e.orders.CreateOrder(ctx, order.CreateRequest{Inline: &order.InlineCart{
		StoreID: "Y", OrderType: catalog.OrderTypePickup,
		Items: []order.InlineItem{{ProductID: "burger", Quantity: 1, ModifierIDs: []string{"bacon"}}},
	}})
	assert.Equal(t, apperr.Unavailable, apperr.KindOf(err))
}

func TestCreateOrder_LastCouponUseRace(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	e.addCoupon(t, "LAST", coupon.DiscountFixed, "5", intPtr(1))
	e.fillCart(t, "alice")
	e.fillCart(t, "bob")

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, customer := range []string{"alice", "bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.orders.CreateOrder(ctx, order.CreateRequest{CustomerID: customer, CouponCode: "LAST"})
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		var invalid *coupon.InvalidError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, coupon.ReasonExhausted, invalid.Reason)
		lost++
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 1, e.store.OrderCount())
}

func TestGetOrder_NotFound(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	o := e.placeOrder(t, "alice", order.StatusPending, "10.00")

	_, err := e.orders.GetOrder(ctx, "missing", "alice")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	_, err = e.orders.GetOrder(ctx, o.ID, "mallory")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err), "other customers cannot read the order")

	_, err = e.orders.GetOrder(ctx, o.ID, "")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestGetOrder_AnonymousOrderIsNotReadable(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	o := e.placeOrder(t, "", order.StatusPending, "10.00")

	_, err := e.orders.GetOrder(ctx, o.ID, "")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err), "anonymous callers cannot read anonymous orders")

	_, err = e.orders.GetOrder(ctx, o.ID, "alice")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

// placeOrder stores an order directly, bypassing the cart.
func (e *env) placeOrder(t *testing.T, customerID string, status order.Status, charged string) *order.Order {
	t.Helper()
	o := &order.Order{
		ID:           "o-" + customerID + "-" + string(status),
		StoreID:      "X",
		CustomerID:   customerID,
		OrderType:    catalog.OrderTypePickup,
		Status:       status,
		BaseValue:    d(charged),
		ChargedValue: d(charged),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, e.store.Orders().Create(context.Background(), o))
	return o
}
