package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/apperr"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/ledger"
	"github.com/xenking/platter/internal/domain/txn"
	"github.com/xenking/platter/internal/telemetry"
)

// TransitionResult is the outcome of a status transition.
type TransitionResult struct {
	Order *Order
	// Changed is false when the order was already in the target status.
	Changed bool
	// Loyalty is the coupon issued by this transition, if any.
	Loyalty *coupon.Coupon
}

// StatusMachine moves orders through their lifecycle and settles the
// customer's ledger on fulfillment.
type StatusMachine struct {
	tx      txn.Transactor
	orders  Repository
	ledgers ledger.Repository
	coupons *coupon.Engine
	cfg     Config

	tracer trace.Tracer
	now    func() time.Time
}

// NewStatusMachine creates a StatusMachine.
func NewStatusMachine(
	tx txn.Transactor,
	orders Repository,
	ledgers ledger.Repository,
	coupons *coupon.Engine,
	cfg Config,
	opts ...telemetry.Option,
) *StatusMachine {
	t := telemetry.New(opts...)
	return &StatusMachine{
		tx:      tx,
		orders:  orders,
		ledgers: ledgers,
		coupons: coupons,
		cfg:     cfg,
		tracer:  t.Tracer(),
		now:     time.Now,
	}
}

// Transition moves the order, scoped to storeID, to target. Requesting the
// current status is a no-op. Entering FULFILLED on a customer's order adds the
// charged value to their ledger; once the spend since the last loyalty coupon
// reaches the threshold a coupon is issued and the threshold is subtracted,
// carrying any overflow. Coupon issuance failure aborts the whole transition.
func (m *StatusMachine) Transition(ctx context.Context, orderID, storeID string, target Status) (*TransitionResult, error) {
	ctx, span := m.tracer.Start(ctx, "order.Transition", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status.target", string(target)),
	))
	defer span.End()

	if !target.Valid() {
		return nil, apperr.New(apperr.InvalidInput, "unknown status %q", target)
	}

	var res *TransitionResult
	err := m.tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := m.orders.GetForUpdate(ctx, orderID, storeID)
		if errors.Is(err, ErrNotFound) {
			return apperr.New(apperr.NotFound, "order %s not found", orderID)
		}
		if err != nil {
			return errors.Wrap(err, "lock order")
		}

		if o.Status == target {
			res = &TransitionResult{Order: o}
			return nil
		}
		if !CanTransition(o.Status, target) {
			return &TransitionError{From: o.Status, To: target}
		}

		now := m.now()
		if err := m.orders.UpdateStatus(ctx, o.ID, target, now); err != nil {
			return errors.Wrap(err, "update status")
		}
		o.Status = target
		o.UpdatedAt = now
		res = &TransitionResult{Order: o, Changed: true}

		if target == StatusFulfilled && o.CustomerID != "" {
			issued, err := m.settle(ctx, o, now)
			if err != nil {
				return err
			}
			res.Loyalty = issued
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Changed {
		zctx.From(ctx).Info("Order status changed",
			zap.String("order_id", orderID),
			zap.String("status", string(target)),
		)
	}
	return res, nil
}

func (m *StatusMachine) settle(ctx context.Context, o *Order, at time.Time) (*coupon.Coupon, error) {
	l, err := m.ledgers.RecordFulfilledOrder(ctx, o.CustomerID, o.ChargedValue, at)
	if err != nil {
		return nil, errors.Wrap(err, "record fulfilled order")
	}
	if !m.cfg.LoyaltyThreshold.IsPositive() || l.SpendSinceCoupon.LessThan(m.cfg.LoyaltyThreshold) {
		return nil, nil
	}

	issued, err := m.coupons.IssueLoyalty(ctx, o.CustomerID)
	if err != nil {
		return nil, err
	}
	if _, err := m.ledgers.ConsumeLoyaltyThreshold(ctx, o.CustomerID, m.cfg.LoyaltyThreshold); err != nil {
		return nil, errors.Wrap(err, "consume loyalty threshold")
	}
	return issued, nil
}
