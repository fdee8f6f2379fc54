package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/cart"
	"github.com/xenking/platter/internal/domain/catalog"
)

// Carts returns the cart.Repository view of the store.
func (s *Store) Carts() cart.Repository { return cartRepo{s} }

type cartRepo struct{ s *Store }

func (r cartRepo) Ensure(ctx context.Context, customerID string) (out *cart.Cart, err error) {
	err = r.s.view(ctx, func(st *state) error {
		if _, ok := st.carts[customerID]; !ok {
			now := r.s.now()
			st.carts[customerID] = cartRow{createdAt: now, updatedAt: now}
		}
		out = st.loadCart(customerID)
		return nil
	})
	return out, err
}

func (r cartRepo) GetForUpdate(ctx context.Context, customerID string) (*cart.Cart, error) {
	return r.Get(ctx, customerID)
}

func (r cartRepo) Get(ctx context.Context, customerID string) (out *cart.Cart, err error) {
	err = r.s.view(ctx, func(st *state) error {
		if _, ok := st.carts[customerID]; !ok {
			return cart.ErrNotFound
		}
		out = st.loadCart(customerID)
		return nil
	})
	return out, err
}

func (r cartRepo) SetStore(ctx context.Context, customerID, storeID string) error {
	return r.updateCart(ctx, customerID, func(c *cartRow) { c.storeID = storeID })
}

func (r cartRepo) SetOrderType(ctx context.Context, customerID string, t catalog.OrderType) error {
	return r.updateCart(ctx, customerID, func(c *cartRow) { c.orderType = t })
}

func (r cartRepo) AddItem(ctx context.Context, customerID string, item *cart.Item) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.carts[customerID]; !ok {
			return cart.ErrNotFound
		}
		now := r.s.now()
		item.CreatedAt = now
		st.items[item.ID] = itemRow{
			customerID: customerID,
			productID:  item.ProductID,
			quantity:   item.Quantity,
			unitPrice:  item.UnitPrice,
			modifiers:  slices.Clone(item.Modifiers),
			seq:        st.nextSeq(),
			createdAt:  now,
		}
		st.touch(customerID, now)
		return nil
	})
}

func (r cartRepo) SetItemQuantity(ctx context.Context, customerID, itemID string, quantity int) error {
	return r.updateItem(ctx, customerID, itemID, func(it *itemRow) { it.quantity = quantity })
}

func (r cartRepo) SetItemPrice(ctx context.Context, itemID string, price decimal.Decimal) error {
	return r.updateItem(ctx, "", itemID, func(it *itemRow) { it.unitPrice = price })
}

func (r cartRepo) DeleteItem(ctx context.Context, customerID, itemID string) error {
	return r.s.view(ctx, func(st *state) error {
		it, ok := st.items[itemID]
		if !ok || it.customerID != customerID {
			return cart.ErrItemNotFound
		}
		delete(st.items, itemID)
		st.touch(customerID, r.s.now())
		return nil
	})
}

func (r cartRepo) ClearItems(ctx context.Context, customerID string) error {
	return r.s.view(ctx, func(st *state) error {
		for id, it := range st.items {
			if it.customerID == customerID {
				delete(st.items, id)
			}
		}
		st.touch(customerID, r.s.now())
		return nil
	})
}

func (r cartRepo) AddItemModifier(ctx context.Context, itemID string, m cart.ItemModifier) error {
	return r.updateItem(ctx, "", itemID, func(it *itemRow) {
		it.modifiers = append(slices.Clone(it.modifiers), m)
	})
}

func (r cartRepo) SetItemModifierPrice(ctx context.Context, itemID, modifierID string, price decimal.Decimal) error {
	return r.updateItem(ctx, "", itemID, func(it *itemRow) {
		mods := slices.Clone(it.modifiers)
		for i := range mods {
			if mods[i].ModifierID == modifierID {
				mods[i].ExtraPrice = price
			}
		}
		it.modifiers = mods
	})
}

func (r cartRepo) DeleteItemModifier(ctx context.Context, itemID, modifierID string) error {
	return r.updateItem(ctx, "", itemID, func(it *itemRow) {
		it.modifiers = slices.DeleteFunc(slices.Clone(it.modifiers), func(m cart.ItemModifier) bool {
			return m.ModifierID == modifierID
		})
	})
}

func (r cartRepo) updateCart(ctx context.Context, customerID string, fn func(*cartRow)) error {
	return r.s.view(ctx, func(st *state) error {
		c, ok := st.carts[customerID]
		if !ok {
			return cart.ErrNotFound
		}
		fn(&c)
		c.updatedAt = r.s.now()
		st.carts[customerID] = c
		return nil
	})
}

// updateItem applies fn to a copy of the item row. An empty customerID skips
// the ownership check.
func (r cartRepo) updateItem(ctx context.Context, customerID, itemID string, fn func(*itemRow)) error {
	return r.s.view(ctx, func(st *state) error {
		it, ok := st.items[itemID]
		if !ok || (customerID != "" && it.customerID != customerID) {
			return cart.ErrItemNotFound
		}
		fn(&it)
		st.items[itemID] = it
		st.touch(it.customerID, r.s.now())
		return nil
	})
}

func (st *state) touch(customerID string, now time.Time) {
	if c, ok := st.carts[customerID]; ok {
		c.updatedAt = now
		st.carts[customerID] = c
	}
}

func (st *state) loadCart(customerID string) *cart.Cart {
	row := st.carts[customerID]
	c := &cart.Cart{
		CustomerID: customerID,
		StoreID:    row.storeID,
		OrderType:  row.orderType,
		CreatedAt:  row.createdAt,
		UpdatedAt:  row.updatedAt,
	}

	type seqItem struct {
		seq  int64
		item cart.Item
	}
	var items []seqItem
	for id, it := range st.items {
		if it.customerID != customerID {
			continue
		}
		mods := make([]cart.ItemModifier, len(it.modifiers))
		for i, m := range it.modifiers {
			if def, g, ok := st.modifierOf(it.productID, m.ModifierID); ok {
				m.Name = def.Name
				m.GroupID = g.ID
			}
			mods[i] = m
		}
		items = append(items, seqItem{seq: it.seq, item: cart.Item{
			ID:          id,
			ProductID:   it.productID,
			ProductName: st.products[it.productID].Name,
			Quantity:    it.quantity,
			UnitPrice:   it.unitPrice,
			Modifiers:   mods,
			CreatedAt:   it.createdAt,
		}})
	}
	slices.SortFunc(items, func(a, b seqItem) int { return cmp.Compare(a.seq, b.seq) })

	c.Items = make([]cart.Item, len(items))
	for i, it := range items {
		c.Items[i] = it.item
	}
	return c
}
