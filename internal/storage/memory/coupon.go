package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/xenking/platter/internal/domain/coupon"
)

// Coupons returns the coupon.Repository view of the store.
func (s *Store) Coupons() coupon.Repository { return couponRepo{s} }

type couponRepo struct{ s *Store }

func (r couponRepo) FindByCode(ctx context.Context, code string) (out *coupon.Coupon, err error) {
	err = r.s.view(ctx, func(st *state) error {
		c, ok := st.coupons[code]
		if !ok {
			return coupon.ErrNotFound
		}
		out = cloneCoupon(c)
		return nil
	})
	return out, err
}

func (r couponRepo) FindByCodeForUpdate(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.FindByCode(ctx, code)
}

func (r couponRepo) ConsumeUse(ctx context.Context, id string) (ok bool, err error) {
	err = r.s.view(ctx, func(st *state) error {
		for code, c := range st.coupons {
			if c.ID != id {
				continue
			}
			if c.UsesRemaining == nil || *c.UsesRemaining <= 0 {
				return nil
			}
			left := *c.UsesRemaining - 1
			c.UsesRemaining = &left
			if left == 0 {
				c.Active = false
			}
			st.coupons[code] = c
			ok = true
			return nil
		}
		return nil
	})
	return ok, err
}

func (r couponRepo) Create(ctx context.Context, c *coupon.Coupon) error {
	return r.s.view(ctx, func(st *state) error {
		if _, taken := st.coupons[c.Code]; taken {
			return coupon.ErrCodeTaken
		}
		c.ID = uuid.New().String()
		c.CreatedAt = r.s.now()
		st.coupons[c.Code] = *cloneCoupon(*c)
		return nil
	})
}

// CouponsOwnedBy returns the coupons restricted to customerID.
func (s *Store) CouponsOwnedBy(customerID string) (out []coupon.Coupon) {
	_ = s.view(context.Background(), func(st *state) error {
		for _, c := range st.coupons {
			if c.CustomerID == customerID {
				out = append(out, *cloneCoupon(c))
			}
		}
		return nil
	})
	return out
}

func cloneCoupon(c coupon.Coupon) *coupon.Coupon {
	if c.UsesRemaining != nil {
		v := *c.UsesRemaining
		c.UsesRemaining = &v
	}
	if c.ExpiresAt != nil {
		v := *c.ExpiresAt
		c.ExpiresAt = &v
	}
	return &c
}
