package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/ledger"
)

var _ ledger.Repository = (*LedgerRepository)(nil)

// LedgerRepository persists per-customer spend aggregates.
type LedgerRepository struct {
	db *DB
}

const ledgerColumns = `customer_id, lifetime_spend, monthly_spend, lifetime_orders, monthly_orders,
    spend_since_coupon, last_order_at`

const (
	recordFulfilledOrderSQL = `INSERT INTO customer_ledgers AS l (` + ledgerColumns + `)
VALUES ($1, $2, $2, 1, 1, $2, $3)
ON CONFLICT (customer_id) DO UPDATE SET
    lifetime_spend = l.lifetime_spend + EXCLUDED.lifetime_spend,
    monthly_spend = l.monthly_spend + EXCLUDED.monthly_spend,
    lifetime_orders = l.lifetime_orders + 1,
    monthly_orders = l.monthly_orders + 1,
    spend_since_coupon = l.spend_since_coupon + EXCLUDED.spend_since_coupon,
    last_order_at = EXCLUDED.last_order_at
RETURNING ` + ledgerColumns

	consumeLoyaltyThresholdSQL = `UPDATE customer_ledgers
SET spend_since_coupon = GREATEST(spend_since_coupon - $2, 0)
WHERE customer_id = $1
RETURNING ` + ledgerColumns

	getLedgerSQL = `SELECT ` + ledgerColumns + ` FROM customer_ledgers WHERE customer_id = $1`
)

func (r *LedgerRepository) RecordFulfilledOrder(ctx context.Context, customerID string, amount decimal.Decimal, at time.Time) (*ledger.Ledger, error) {
	l, err := r.one(ctx, recordFulfilledOrderSQL, customerID, amount, at)
	if err != nil {
		return nil, fmt.Errorf("record fulfilled order: %w", err)
	}
	return l, nil
}

func (r *LedgerRepository) ConsumeLoyaltyThreshold(ctx context.Context, customerID string, threshold decimal.Decimal) (*ledger.Ledger, error) {
	l, err := r.one(ctx, consumeLoyaltyThresholdSQL, customerID, threshold)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("consume loyalty threshold: %w", err)
	}
	return l, err
}

func (r *LedgerRepository) Get(ctx context.Context, customerID string) (*ledger.Ledger, error) {
	return r.one(ctx, getLedgerSQL, customerID)
}

func (r *LedgerRepository) one(ctx context.Context, query string, args ...any) (*ledger.Ledger, error) {
	rows, err := r.db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	l, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (*ledger.Ledger, error) {
		var l ledger.Ledger
		err := row.Scan(&l.CustomerID, &l.LifetimeSpend, &l.MonthlySpend, &l.LifetimeOrders,
			&l.MonthlyOrders, &l.SpendSinceCoupon, &l.LastOrderAt)
		return &l, err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return l, err
}
