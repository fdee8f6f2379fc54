package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/ledger"
)

// Ledgers returns the ledger.Repository view of the store.
func (s *Store) Ledgers() ledger.Repository { return ledgerRepo{s} }

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) RecordFulfilledOrder(ctx context.Context, customerID string, amount decimal.Decimal, at time.Time) (out *ledger.Ledger, err error) {
	err = r.s.view(ctx, func(st *state) error {
		l, ok := st.ledgers[customerID]
		if !ok {
			l = ledger.Ledger{CustomerID: customerID}
		}
		l.LifetimeSpend = l.LifetimeSpend.Add(amount)
		l.MonthlySpend = l.MonthlySpend.Add(amount)
		l.LifetimeOrders++
		l.MonthlyOrders++
		l.SpendSinceCoupon = l.SpendSinceCoupon.Add(amount)
		ts := at
		l.LastOrderAt = &ts
		st.ledgers[customerID] = l
		out = &l
		return nil
	})
	return out, err
}

func (r ledgerRepo) ConsumeLoyaltyThreshold(ctx context.Context, customerID string, threshold decimal.Decimal) (out *ledger.Ledger, err error) {
	err = r.s.view(ctx, func(st *state) error {
		l, ok := st.ledgers[customerID]
		if !ok {
			return ledger.ErrNotFound
		}
		l.SpendSinceCoupon = decimal.Max(l.SpendSinceCoupon.Sub(threshold), decimal.Zero)
		st.ledgers[customerID] = l
		out = &l
		return nil
	})
	return out, err
}

func (r ledgerRepo) Get(ctx context.Context, customerID string) (out *ledger.Ledger, err error) {
	err = r.s.view(ctx, func(st *state) error {
		l, ok := st.ledgers[customerID]
		if !ok {
			return ledger.ErrNotFound
		}
		out = &l
		return nil
	})
	return out, err
}

// PutLedger inserts or replaces a customer's ledger.
func (s *Store) PutLedger(ctx context.Context, l ledger.Ledger) error {
	return s.view(ctx, func(st *state) error {
		st.ledgers[l.CustomerID] = l
		return nil
	})
}
