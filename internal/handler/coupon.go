package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/coupon"
)

func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	v, err := h.coupons.Validate(r.Context(), r.PathValue("code"), r.Header.Get(CustomerIDHeader))
	if err != nil {
		writeError(w, r, "coupon.Validate", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(v.Code) })
			e.Field("valid", func(e *jx.Encoder) { e.Bool(v.Valid) })
			if !v.Valid {
				e.Field("reason", func(e *jx.Encoder) { e.Str(string(v.Reason)) })
				return
			}
			e.Field("kind", func(e *jx.Encoder) { e.Str(string(v.Coupon.Kind)) })
			e.Field("value", func(e *jx.Encoder) { money(e, v.Coupon.Value) })
			if v.Coupon.ExpiresAt != nil {
				e.Field("expiresAt", func(e *jx.Encoder) { e.Str(v.Coupon.ExpiresAt.UTC().Format(time.RFC3339)) })
			}
		})
	})
}

// createCoupon issues an operator coupon. Keys scoped to a single store may
// not create platform-wide coupons.
func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request, key *auth.APIKeyInfo) {
	if !key.HasScope(auth.ScopeCouponsWrite) || key.StoreID != "" {
		writeMessage(w, http.StatusForbidden, "api key not allowed to "+auth.ScopeCouponsWrite)
		return
	}

	var req coupon.CreateRequest
	err := decodeBody(w, r, func(d *jx.Decoder, field string) error {
		switch field {
		case "code":
			v, err := d.Str()
			req.Code = v
			return err
		case "kind":
			v, err := d.Str()
			req.Kind = coupon.DiscountKind(v)
			return err
		case "value":
			v, err := decodeDecimal(d)
			req.Value = v
			return err
		case "uses":
			v, err := d.Int()
			req.Uses = &v
			return err
		case "expiresAt":
			s, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return errors.Wrap(err, "expiresAt")
			}
			req.ExpiresAt = &t
			return nil
		case "customerId":
			v, err := d.Str()
			req.CustomerID = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(w, r, "coupon.Create", err)
		return
	}

	c, err := h.coupons.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, "coupon.Create", err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(c.Kind)) })
		e.Field("value", func(e *jx.Encoder) { money(e, c.Value) })
		e.Field("usesRemaining", func(e *jx.Encoder) {
			if c.UsesRemaining == nil {
				e.Null()
				return
			}
			e.Int(*c.UsesRemaining)
		})
		e.Field("active", func(e *jx.Encoder) { e.Bool(c.Active) })
		e.Field("expiresAt", func(e *jx.Encoder) {
			if c.ExpiresAt == nil {
				e.Null()
				return
			}
			e.Str(c.ExpiresAt.UTC().Format(time.RFC3339))
		})
		e.Field("customerId", func(e *jx.Encoder) { optStr(e, c.CustomerID) })
	})
}
