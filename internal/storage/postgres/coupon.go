package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/platter/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository persists coupons.
type CouponRepository struct {
	db *DB
}

const (
	getCouponByCodeSQL = `SELECT id, code, kind, value, uses_remaining, active, expires_at, customer_id, created_at
FROM coupons WHERE code = $1`

	// The decrement is conditional so two redemptions racing for the last
	// use cannot both succeed.
	consumeCouponUseSQL = `UPDATE coupons
SET uses_remaining = uses_remaining - 1,
    active = active AND uses_remaining - 1 > 0
WHERE id = $1 AND uses_remaining > 0`

	insertCouponSQL = `INSERT INTO coupons (id, code, kind, value, uses_remaining, active, expires_at, customer_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (code) DO NOTHING
RETURNING created_at`
)

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.find(ctx, getCouponByCodeSQL, code)
}

func (r *CouponRepository) FindByCodeForUpdate(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.find(ctx, getCouponByCodeSQL+" FOR UPDATE", code)
}

func (r *CouponRepository) find(ctx context.Context, query, code string) (*coupon.Coupon, error) {
	rows, err := r.db.q(ctx).Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("query coupon: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, coupon.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon %s: %w", code, err)
	}
	return c, nil
}

func scanCoupon(row pgx.CollectableRow) (*coupon.Coupon, error) {
	var (
		c          coupon.Coupon
		kind       string
		customerID *string
	)
	if err := row.Scan(
		&c.ID, &c.Code, &kind, &c.Value, &c.UsesRemaining, &c.Active, &c.ExpiresAt, &customerID, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	c.Kind = coupon.DiscountKind(kind)
	c.CustomerID = deref(customerID)
	return &c, nil
}

func (r *CouponRepository) ConsumeUse(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.q(ctx).Exec(ctx, consumeCouponUseSQL, id)
	if err != nil {
		return false, fmt.Errorf("consume coupon use: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	id := uuid.New().String()
	var createdAt time.Time
	err := r.db.q(ctx).QueryRow(ctx, insertCouponSQL,
		id, c.Code, string(c.Kind), c.Value, c.UsesRemaining, c.Active, c.ExpiresAt, nullString(c.CustomerID),
	).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return coupon.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert coupon: %w", err)
	}
	c.ID, c.CreatedAt = id, createdAt
	return nil
}
