package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/platter/internal/domain/cart"
	"github.com/xenking/platter/internal/domain/catalog"
)

func (h *Handler) viewCart(w http.ResponseWriter, r *http.Request, customerID string) {
	v, err := h.carts.View(r.Context(), customerID)
	if err != nil {
		writeError(w, r, "cart.View", err)
		return
	}
	writeCart(w, http.StatusOK, v)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request, customerID string) {
	var req cart.AddItemRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "storeId":
			req.StoreID, err = d.Str()
		case "productId":
			req.ProductID, err = d.Str()
		case "quantity":
			req.Quantity, err = d.Int()
		case "modifierIds":
			req.ModifierIDs, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, "cart.AddItem", err)
		return
	}

	v, err := h.carts.AddItem(r.Context(), customerID, req)
	if err != nil {
		writeError(w, r, "cart.AddItem", err)
		return
	}
	writeCart(w, http.StatusCreated, v)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request, customerID string) {
	var quantity int
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key == "quantity" {
			var err error
			quantity, err = d.Int()
			return err
		}
		return d.Skip()
	})
	if err != nil {
		writeError(w, r, "cart.UpdateItemQuantity", err)
		return
	}

	v, err := h.carts.UpdateItemQuantity(r.Context(), customerID, r.PathValue("itemId"), quantity)
	if err != nil {
		writeError(w, r, "cart.UpdateItemQuantity", err)
		return
	}
	writeCart(w, http.StatusOK, v)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request, customerID string) {
	v, err := h.carts.RemoveItem(r.Context(), customerID, r.PathValue("itemId"))
	if err != nil {
		writeError(w, r, "cart.RemoveItem", err)
		return
	}
	writeCart(w, http.StatusOK, v)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request, customerID string) {
	v, err := h.carts.Clear(r.Context(), customerID)
	if err != nil {
		writeError(w, r, "cart.Clear", err)
		return
	}
	writeCart(w, http.StatusOK, v)
}

func (h *Handler) changeStore(w http.ResponseWriter, r *http.Request, customerID string) {
	var storeID string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key == "storeId" {
			var err error
			storeID, err = d.Str()
			return err
		}
		return d.Skip()
	})
	if err != nil {
		writeError(w, r, "cart.ChangeStore", err)
		return
	}

	res, err := h.carts.ChangeStore(r.Context(), customerID, storeID)
	if err != nil {
		writeError(w, r, "cart.ChangeStore", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("cart", func(e *jx.Encoder) { encodeCart(e, res.View) })
			e.Field("warnings", func(e *jx.Encoder) {
				e.ArrStart()
				for _, wr := range res.Warnings {
					encodeWarning(e, wr)
				}
				e.ArrEnd()
			})
		})
	})
}

func (h *Handler) setOrderType(w http.ResponseWriter, r *http.Request, customerID string) {
	var t string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key == "orderType" {
			var err error
			t, err = d.Str()
			return err
		}
		return d.Skip()
	})
	if err != nil {
		writeError(w, r, "cart.SetOrderType", err)
		return
	}

	v, err := h.carts.SetOrderType(r.Context(), customerID, catalog.OrderType(t))
	if err != nil {
		writeError(w, r, "cart.SetOrderType", err)
		return
	}
	writeCart(w, http.StatusOK, v)
}

func writeCart(w http.ResponseWriter, status int, v *cart.View) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeCart(e, v) })
}

func encodeCart(e *jx.Encoder, v *cart.View) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("customerId", func(e *jx.Encoder) { e.Str(v.CustomerID) })
		e.Field("storeId", func(e *jx.Encoder) { optStr(e, v.StoreID) })
		e.Field("orderType", func(e *jx.Encoder) { optStr(e, string(v.OrderType)) })
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for i := range v.Items {
				encodeCartItem(e, &v.Items[i])
			}
			e.ArrEnd()
		})
		e.Field("subtotal", func(e *jx.Encoder) { money(e, v.Subtotal) })
	})
}

func encodeCartItem(e *jx.Encoder, it *cart.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
		e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
		e.Field("productName", func(e *jx.Encoder) { e.Str(it.ProductName) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("unitPrice", func(e *jx.Encoder) { money(e, it.UnitPrice) })
		e.Field("modifiers", func(e *jx.Encoder) {
			e.ArrStart()
			for _, m := range it.Modifiers {
				encodeSelection(e, m.ModifierID, m.GroupID, m.Name, m.ExtraPrice)
			}
			e.ArrEnd()
		})
		e.Field("lineTotal", func(e *jx.Encoder) { money(e, it.Line().Total()) })
	})
}

func encodeWarning(e *jx.Encoder, w cart.Warning) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(w.Kind)) })
		e.Field("itemId", func(e *jx.Encoder) { e.Str(w.ItemID) })
		if w.ModifierID != "" {
			e.Field("modifierId", func(e *jx.Encoder) { e.Str(w.ModifierID) })
		}
		e.Field("message", func(e *jx.Encoder) { e.Str(w.Message) })
	})
}

func optStr(e *jx.Encoder, s string) {
	if s == "" {
		e.Null()
		return
	}
	e.Str(s)
}
