package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/platter/internal/domain/catalog"
	"github.com/xenking/platter/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository persists orders and their copied lines.
type OrderRepository struct {
	db *DB
}

const (
	insertOrderSQL = `INSERT INTO orders (id, store_id, customer_id, order_type, status,
    base_value, charged_value, coupon_id, coupon_code, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, position, product_id, product_name, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertOrderItemModifierSQL = `INSERT INTO order_item_modifiers (order_item_id, position, modifier_id, group_id, name, extra_price)
VALUES ($1, $2, $3, $4, $5, $6)`
)

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	b := &pgx.Batch{}
	b.Queue(insertOrderSQL,
		o.ID, o.StoreID, nullString(o.CustomerID), string(o.OrderType), string(o.Status),
		o.BaseValue, o.ChargedValue, nullString(o.CouponID), o.CouponCode, o.Notes,
		o.CreatedAt, o.UpdatedAt,
	)
	for i, l := range o.Items {
		b.Queue(insertOrderItemSQL, l.ID, o.ID, i, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice)
		for j, m := range l.Modifiers {
			b.Queue(insertOrderItemModifierSQL, l.ID, j, m.ModifierID, m.GroupID, m.Name, m.ExtraPrice)
		}
	}
	if err := r.db.q(ctx).SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

const (
	getOrderSQL = `SELECT id, store_id, customer_id, order_type, status, base_value, charged_value,
    coupon_id, coupon_code, notes, created_at, updated_at
FROM orders`

	listOrderItemsSQL = `SELECT id, product_id, product_name, quantity, unit_price
FROM order_items
WHERE order_id = $1
ORDER BY position`

	listOrderItemModifiersSQL = `SELECT oim.order_item_id, oim.modifier_id, oim.group_id, oim.name, oim.extra_price
FROM order_item_modifiers oim
JOIN order_items oi ON oi.id = oim.order_item_id
WHERE oi.order_id = $1
ORDER BY oi.position, oim.position`
)

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.load(ctx, getOrderSQL+` WHERE id = $1`, id)
}

func (r *OrderRepository) GetForUpdate(ctx context.Context, id, storeID string) (*order.Order, error) {
	return r.load(ctx, getOrderSQL+` WHERE id = $1 AND store_id = $2 FOR UPDATE`, id, storeID)
}

func (r *OrderRepository) load(ctx context.Context, query string, args ...any) (*order.Order, error) {
	q := r.db.q(ctx)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err = q.Query(ctx, listOrderItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Line, error) {
		var l order.Line
		err := row.Scan(&l.ID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan order items: %w", err)
	}

	rows, err = q.Query(ctx, listOrderItemModifiersSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("list order item modifiers: %w", err)
	}
	defer rows.Close()
	byLine := make(map[string]int, len(o.Items))
	for i, l := range o.Items {
		byLine[l.ID] = i
	}
	for rows.Next() {
		var (
			lineID string
			m      order.LineModifier
		)
		if err := rows.Scan(&lineID, &m.ModifierID, &m.GroupID, &m.Name, &m.ExtraPrice); err != nil {
			return nil, fmt.Errorf("scan order item modifier: %w", err)
		}
		if i, ok := byLine[lineID]; ok {
			o.Items[i].Modifiers = append(o.Items[i].Modifiers, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item modifiers: %w", err)
	}

	return o, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o          order.Order
		customerID *string
		couponID   *string
		orderType  string
		status     string
	)
	err := row.Scan(
		&o.ID, &o.StoreID, &customerID, &orderType, &status, &o.BaseValue, &o.ChargedValue,
		&couponID, &o.CouponCode, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.CustomerID = deref(customerID)
	o.CouponID = deref(couponID)
	o.OrderType = catalog.OrderType(orderType)
	o.Status = order.Status(status)
	return &o, nil
}

const updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status, at time.Time) error {
	tag, err := r.db.q(ctx).Exec(ctx, updateOrderStatusSQL, id, string(status), at)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}
