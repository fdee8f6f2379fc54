package memory

import (
	"context"
	"slices"
	"time"

	"github.com/xenking/platter/internal/domain/order"
)

// Orders returns the order.Repository view of the store.
func (s *Store) Orders() order.Repository { return orderRepo{s} }

type orderRepo struct{ s *Store }

func (r orderRepo) Create(ctx context.Context, o *order.Order) error {
	return r.s.view(ctx, func(st *state) error {
		st.orders[o.ID] = *cloneOrder(o)
		return nil
	})
}

func (r orderRepo) Get(ctx context.Context, id string) (out *order.Order, err error) {
	err = r.s.view(ctx, func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		out = cloneOrder(&o)
		return nil
	})
	return out, err
}

func (r orderRepo) GetForUpdate(ctx context.Context, id, storeID string) (out *order.Order, err error) {
	err = r.s.view(ctx, func(st *state) error {
		o, ok := st.orders[id]
		if !ok || o.StoreID != storeID {
			return order.ErrNotFound
		}
		out = cloneOrder(&o)
		return nil
	})
	return out, err
}

func (r orderRepo) UpdateStatus(ctx context.Context, id string, status order.Status, at time.Time) error {
	return r.s.view(ctx, func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		o.Status = status
		o.UpdatedAt = at
		st.orders[id] = o
		return nil
	})
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() (n int) {
	_ = s.view(context.Background(), func(st *state) error {
		n = len(st.orders)
		return nil
	})
	return n
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = make([]order.Line, len(o.Items))
	for i, l := range o.Items {
		l.Modifiers = slices.Clone(l.Modifiers)
		cp.Items[i] = l
	}
	return &cp
}
