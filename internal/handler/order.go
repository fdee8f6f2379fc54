package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/catalog"
	"github.com/xenking/platter/internal/domain/order"
)

// createOrder places an order from the caller's cart, or from the inline
// "cart" payload when the caller is anonymous.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	req := order.CreateRequest{CustomerID: r.Header.Get(CustomerIDHeader)}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "couponCode":
			req.CouponCode, err = d.Str()
		case "notes":
			req.Notes, err = d.Str()
		case "cart":
			req.Inline, err = decodeInlineCart(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, "order.CreateOrder", err)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, "order.CreateOrder", err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func decodeInlineCart(d *jx.Decoder) (*order.InlineCart, error) {
	var c order.InlineCart
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "storeId":
			v, err := d.Str()
			c.StoreID = v
			return err
		case "orderType":
			v, err := d.Str()
			c.OrderType = catalog.OrderType(v)
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var it order.InlineItem
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "productId":
						it.ProductID, err = d.Str()
					case "quantity":
						it.Quantity, err = d.Int()
					case "modifierIds":
						it.ModifierIDs, err = decodeStrings(d)
					default:
						err = d.Skip()
					}
					return err
				})
				c.Items = append(c.Items, it)
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), r.PathValue("orderId"), r.Header.Get(CustomerIDHeader))
	if err != nil {
		writeError(w, r, "order.GetOrder", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, key *auth.APIKeyInfo) {
	storeID := r.PathValue("storeId")
	if !authorize(w, key, auth.ScopeOrdersStatus, storeID) {
		return
	}

	var target string
	err := decodeBody(w, r, func(d *jx.Decoder, field string) error {
		if field == "status" {
			var err error
			target, err = d.Str()
			return err
		}
		return d.Skip()
	})
	if err != nil {
		writeError(w, r, "order.Transition", err)
		return
	}

	res, err := h.status.Transition(r.Context(), r.PathValue("orderId"), storeID, order.Status(target))
	if err != nil {
		writeError(w, r, "order.Transition", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, res.Order) })
			e.Field("changed", func(e *jx.Encoder) { e.Bool(res.Changed) })
			if res.Loyalty != nil {
				e.Field("loyaltyCoupon", func(e *jx.Encoder) { encodeCoupon(e, res.Loyalty) })
			}
		})
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("storeId", func(e *jx.Encoder) { e.Str(o.StoreID) })
		e.Field("customerId", func(e *jx.Encoder) { optStr(e, o.CustomerID) })
		e.Field("orderType", func(e *jx.Encoder) { e.Str(string(o.OrderType)) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("baseValue", func(e *jx.Encoder) { money(e, o.BaseValue) })
		e.Field("discount", func(e *jx.Encoder) { money(e, o.Discount()) })
		e.Field("chargedValue", func(e *jx.Encoder) { money(e, o.ChargedValue) })
		e.Field("couponCode", func(e *jx.Encoder) { optStr(e, o.CouponCode) })
		e.Field("notes", func(e *jx.Encoder) { e.Str(o.Notes) })
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, l := range o.Items {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Str(l.ID) })
					e.Field("productId", func(e *jx.Encoder) { e.Str(l.ProductID) })
					e.Field("productName", func(e *jx.Encoder) { e.Str(l.ProductName) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
					e.Field("unitPrice", func(e *jx.Encoder) { money(e, l.UnitPrice) })
					e.Field("modifiers", func(e *jx.Encoder) {
						e.ArrStart()
						for _, m := range l.Modifiers {
							encodeSelection(e, m.ModifierID, m.GroupID, m.Name, m.ExtraPrice)
						}
						e.ArrEnd()
					})
				})
			}
			e.ArrEnd()
		})
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(o.UpdatedAt.UTC().Format(time.RFC3339)) })
	})
}

func encodeSelection(e *jx.Encoder, modifierID, groupID, name string, price decimal.Decimal) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("modifierId", func(e *jx.Encoder) { e.Str(modifierID) })
		e.Field("groupId", func(e *jx.Encoder) { e.Str(groupID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(name) })
		e.Field("extraPrice", func(e *jx.Encoder) { money(e, price) })
	})
}
