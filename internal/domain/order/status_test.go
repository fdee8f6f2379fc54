package order_test

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/platter/internal/domain/apperr"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/ledger"
	"github.com/xenking/platter/internal/domain/order"
	"github.com/xenking/platter/pkg/retry"
)

func TestTransition_FulfillmentIssuesLoyaltyCoupon(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	require.NoError(t, e.store.PutLedger(ctx, ledger.Ledger{
		CustomerID:       "alice",
		LifetimeSpend:    d("80.00"),
		MonthlySpend:     d("80.00"),
		LifetimeOrders:   3,
		MonthlyOrders:    3,
		SpendSinceCoupon: d("80.00"),
	}))
	o := e.placeOrder(t, "alice", order.StatusReadyForPickup, "30.00")

	res, err := e.status.Transition(ctx, o.ID, "X", order.StatusFulfilled)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, order.StatusFulfilled, res.Order.Status)
	require.NotNil(t, res.Loyalty)
	assert.Equal(t, "alice", res.Loyalty.CustomerID)
	assert.Equal(t, coupon.DiscountFixed, res.Loyalty.Kind)

	l, err := e.store.Ledgers().Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, d("10.00").Equal(l.SpendSinceCoupon), "overflow carries forward, got %s", l.SpendSinceCoupon)
	assert.True(t, d("110.00").Equal(l.LifetimeSpend))
	assert.True(t, d("110.00").Equal(l.MonthlySpend))
	assert.Equal(t, 4, l.LifetimeOrders)
	assert.Equal(t, 4, l.MonthlyOrders)
	require.NotNil(t, l.LastOrderAt)

	owned := e.store.CouponsOwnedBy("alice")
	require.Len(t, owned, 1)
	assert.Equal(t, res.Loyalty.Code, owned[0].Code)

	stored, err := e.orders.GetOrder(ctx, o.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, order.StatusFulfilled, stored.Status)
}

func TestTransition_BelowThreshold(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	o := e.placeOrder(t, "bob", order.StatusOutForDelivery, "42.00")

	res, err := e.status.Transition(ctx, o.ID, "X", order.StatusFulfilled)
	require.NoError(t, err)
	assert.Nil(t, res.Loyalty)

	l, err := e.store.Ledgers().Get(ctx, "bob")
	require.NoError(t, err, "ledger is created on first fulfillment")
	assert.True(t, d("42.00").Equal(l.SpendSinceCoupon))
	assert.Empty(t, e.store.CouponsOwnedBy("bob"))
}

func TestTransition_AnonymousOrderSkipsLedger(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	o := e.placeOrder(t, "", order.StatusReadyForPickup, "500.00")

	res, err := e.status.Transition(ctx, o.ID, "X", order.StatusFulfilled)
	require.NoError(t, err)
	assert.Nil(t, res.Loyalty)
	_, err = e.store.Ledgers().Get(ctx, "")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestTransition_SameStatusIsNoop(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	o := e.placeOrder(t, "alice", order.StatusPending, "120.00")

	res, err := e.status.Transition(ctx, o.ID, "X", order.StatusPending)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, order.StatusPending, res.Order.Status)

	_, err = e.store.Ledgers().Get(ctx, "alice")
	assert.ErrorIs(t, err, ledger.ErrNotFound, "ledger is untouched")

	f := e.placeOrder(t, "alice", order.StatusFulfilled, "120.00")
	res, err = e.status.Transition(ctx, f.ID, "X", order.StatusFulfilled)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Nil(t, res.Loyalty, "repeated fulfillment does not pay out again")
}

func TestTransition_Path(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	o := e.placeOrder(t, "alice", order.StatusAwaitingPayment, "10.00")

	for _, next := range []order.Status{
		order.StatusPending,
		order.StatusInPreparation,
		order.StatusReadyForDelivery,
		order.StatusOutForDelivery,
		order.StatusFulfilled,
	} {
		res, err := e.status.Transition(ctx, o.ID, "X", next)
		require.NoError(t, err, "to %s", next)
		assert.Equal(t, next, res.Order.Status)
	}
}

func TestTransition_Rejections(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	fulfilled := e.placeOrder(t, "alice", order.StatusFulfilled, "10.00")
	pending := e.placeOrder(t, "alice", order.StatusPending, "10.00")

	tests := []struct {
		name     string
		orderID  string
		storeID  string
		target   order.Status
		wantKind apperr.Kind
	}{
		{name: "terminal state", orderID: fulfilled.ID, storeID: "X", target: order.StatusPending, wantKind: apperr.InvalidTransition},
		{name: "skipping a step", orderID: pending.ID, storeID: "X", target: order.StatusFulfilled, wantKind: apperr.InvalidTransition},
		{name: "other store", orderID: pending.ID, storeID: "Y", target: order.StatusInPreparation, wantKind: apperr.NotFound},
		{name: "unknown order", orderID: "missing", storeID: "X", target: order.StatusInPreparation, wantKind: apperr.NotFound},
		{name: "unknown status", orderID: pending.ID, storeID: "X", target: "PENDENTE", wantKind: apperr.InvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.status.Transition(ctx, tt.orderID, tt.storeID, tt.target)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}

	stored, err := e.orders.GetOrder(ctx, pending.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, stored.Status)
}

// collidingCoupons rejects every insert as a duplicate code.
type collidingCoupons struct {
	coupon.Repository
}

func (collidingCoupons) Create(context.Context, *coupon.Coupon) error {
	return coupon.ErrCodeTaken
}

func TestTransition_LoyaltyFailureAbortsTransition(t *testing.T) {
	ctx := context.Background()
	e := setup(t, order.DefaultConfig())
	require.NoError(t, e.store.PutLedger(ctx, ledger.Ledger{CustomerID: "alice", SpendSinceCoupon: d("95.00")}))
	o := e.placeOrder(t, "alice", order.StatusReadyForPickup, "30.00")

	failing := coupon.NewEngine(collidingCoupons{e.store.Coupons()}, coupon.DefaultLoyalty())
	machine := order.NewStatusMachine(e.store, e.store.Orders(), e.store.Ledgers(), failing, order.DefaultConfig())

	_, err := machine.Transition(ctx, o.ID, "X", order.StatusFulfilled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, retry.ErrExhausted))
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))

	stored, err := e.orders.GetOrder(ctx, o.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, order.StatusReadyForPickup, stored.Status)

	l, err := e.store.Ledgers().Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, d("95.00").Equal(l.SpendSinceCoupon))
	assert.Zero(t, l.LifetimeOrders)
}

func TestTransition_ThresholdDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := order.DefaultConfig()
	cfg.LoyaltyThreshold = decimal.Zero
	e := setup(t, cfg)
	o := e.placeOrder(t, "alice", order.StatusReadyForPickup, "300.00")

	res, err := e.status.Transition(ctx, o.ID, "X", order.StatusFulfilled)
	require.NoError(t, err)
	assert.Nil(t, res.Loyalty)
}
