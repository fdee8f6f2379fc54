package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/cart"
	"github.com/xenking/platter/internal/domain/catalog"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository persists carts keyed by customer id.
type CartRepository struct {
	db *DB
}

const (
	ensureCartSQL = `INSERT INTO carts (customer_id) VALUES ($1) ON CONFLICT (customer_id) DO NOTHING`

	getCartSQL = `SELECT customer_id, store_id, order_type, created_at, updated_at
FROM carts WHERE customer_id = $1`

	listCartItemsSQL = `SELECT ci.id, ci.product_id, p.name, ci.quantity, ci.unit_price, ci.created_at
FROM cart_items ci
JOIN products p ON p.id = ci.product_id
WHERE ci.customer_id = $1
ORDER BY ci.seq`

	listCartItemModifiersSQL = `SELECT cim.item_id, cim.modifier_id, m.group_id, m.name, cim.extra_price
FROM cart_item_modifiers cim
JOIN cart_items ci ON ci.id = cim.item_id
JOIN modifiers m ON m.id = cim.modifier_id
WHERE ci.customer_id = $1
ORDER BY cim.seq`
)

func (r *CartRepository) Ensure(ctx context.Context, customerID string) (*cart.Cart, error) {
	if _, err := r.db.q(ctx).Exec(ctx, ensureCartSQL, customerID); err != nil {
		return nil, fmt.Errorf("ensure cart: %w", err)
	}
	return r.GetForUpdate(ctx, customerID)
}

func (r *CartRepository) GetForUpdate(ctx context.Context, customerID string) (*cart.Cart, error) {
	return r.load(ctx, getCartSQL+" FOR UPDATE", customerID)
}

func (r *CartRepository) Get(ctx context.Context, customerID string) (*cart.Cart, error) {
	return r.load(ctx, getCartSQL, customerID)
}

func (r *CartRepository) load(ctx context.Context, query, customerID string) (*cart.Cart, error) {
	q := r.db.q(ctx)

	var (
		c         cart.Cart
		storeID   *string
		orderType *string
	)
	err := q.QueryRow(ctx, query, customerID).Scan(&c.CustomerID, &storeID, &orderType, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cart.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	c.StoreID = deref(storeID)
	c.OrderType = catalog.OrderType(deref(orderType))

	rows, err := q.Query(ctx, listCartItemsSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.CreatedAt)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan cart items: %w", err)
	}

	rows, err = q.Query(ctx, listCartItemModifiersSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("list cart item modifiers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			itemID string
			m      cart.ItemModifier
		)
		if err := rows.Scan(&itemID, &m.ModifierID, &m.GroupID, &m.Name, &m.ExtraPrice); err != nil {
			return nil, fmt.Errorf("scan cart item modifier: %w", err)
		}
		if it, ok := c.Item(itemID); ok {
			it.Modifiers = append(it.Modifiers, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart item modifiers: %w", err)
	}

	return &c, nil
}

const (
	setCartStoreSQL     = `UPDATE carts SET store_id = $2, updated_at = now() WHERE customer_id = $1`
	setCartOrderTypeSQL = `UPDATE carts SET order_type = $2, updated_at = now() WHERE customer_id = $1`
	touchCartSQL        = `UPDATE carts SET updated_at = now() WHERE customer_id = $1`
)

func (r *CartRepository) SetStore(ctx context.Context, customerID, storeID string) error {
	return r.updateCart(ctx, setCartStoreSQL, customerID, nullString(storeID))
}

func (r *CartRepository) SetOrderType(ctx context.Context, customerID string, t catalog.OrderType) error {
	return r.updateCart(ctx, setCartOrderTypeSQL, customerID, nullString(string(t)))
}

func (r *CartRepository) updateCart(ctx context.Context, query, customerID string, value *string) error {
	tag, err := r.db.q(ctx).Exec(ctx, query, customerID, value)
	if err != nil {
		return fmt.Errorf("update cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

const (
	insertCartItemSQL = `INSERT INTO cart_items (id, customer_id, product_id, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`

	insertCartItemModifierSQL = `INSERT INTO cart_item_modifiers (item_id, modifier_id, extra_price)
VALUES ($1, $2, $3)`
)

func (r *CartRepository) AddItem(ctx context.Context, customerID string, item *cart.Item) error {
	q := r.db.q(ctx)

	err := q.QueryRow(ctx, insertCartItemSQL,
		item.ID, customerID, item.ProductID, item.Quantity, item.UnitPrice,
	).Scan(&item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert cart item: %w", err)
	}

	if len(item.Modifiers) > 0 {
		b := &pgx.Batch{}
		for _, m := range item.Modifiers {
			b.Queue(insertCartItemModifierSQL, item.ID, m.ModifierID, m.ExtraPrice)
		}
		if err := q.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("insert cart item modifiers: %w", err)
		}
	}

	if _, err := q.Exec(ctx, touchCartSQL, customerID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

const (
	setCartItemQuantitySQL = `UPDATE cart_items SET quantity = $3 WHERE customer_id = $1 AND id = $2`
	setCartItemPriceSQL    = `UPDATE cart_items SET unit_price = $2 WHERE id = $1`
	deleteCartItemSQL      = `DELETE FROM cart_items WHERE customer_id = $1 AND id = $2`
	clearCartItemsSQL      = `DELETE FROM cart_items WHERE customer_id = $1`
)

func (r *CartRepository) SetItemQuantity(ctx context.Context, customerID, itemID string, quantity int) error {
	if err := r.execItem(ctx, setCartItemQuantitySQL, customerID, itemID, quantity); err != nil {
		return err
	}
	return r.touch(ctx, customerID)
}

func (r *CartRepository) SetItemPrice(ctx context.Context, itemID string, price decimal.Decimal) error {
	return r.execItem(ctx, setCartItemPriceSQL, itemID, price)
}

func (r *CartRepository) DeleteItem(ctx context.Context, customerID, itemID string) error {
	if err := r.execItem(ctx, deleteCartItemSQL, customerID, itemID); err != nil {
		return err
	}
	return r.touch(ctx, customerID)
}

func (r *CartRepository) ClearItems(ctx context.Context, customerID string) error {
	if _, err := r.db.q(ctx).Exec(ctx, clearCartItemsSQL, customerID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	return r.touch(ctx, customerID)
}

const (
	setCartItemModifierPriceSQL = `UPDATE cart_item_modifiers SET extra_price = $3 WHERE item_id = $1 AND modifier_id = $2`
	deleteCartItemModifierSQL   = `DELETE FROM cart_item_modifiers WHERE item_id = $1 AND modifier_id = $2`
)

func (r *CartRepository) AddItemModifier(ctx context.Context, itemID string, m cart.ItemModifier) error {
	if _, err := r.db.q(ctx).Exec(ctx, insertCartItemModifierSQL, itemID, m.ModifierID, m.ExtraPrice); err != nil {
		return fmt.Errorf("insert cart item modifier: %w", err)
	}
	return nil
}

func (r *CartRepository) SetItemModifierPrice(ctx context.Context, itemID, modifierID string, price decimal.Decimal) error {
	if _, err := r.db.q(ctx).Exec(ctx, setCartItemModifierPriceSQL, itemID, modifierID, price); err != nil {
		return fmt.Errorf("update cart item modifier: %w", err)
	}
	return nil
}

func (r *CartRepository) DeleteItemModifier(ctx context.Context, itemID, modifierID string) error {
	if _, err := r.db.q(ctx).Exec(ctx, deleteCartItemModifierSQL, itemID, modifierID); err != nil {
		return fmt.Errorf("delete cart item modifier: %w", err)
	}
	return nil
}

// execItem runs a statement addressing one cart item and maps a miss to
// cart.ErrItemNotFound.
func (r *CartRepository) execItem(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.q(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

func (r *CartRepository) touch(ctx context.Context, customerID string) error {
	if _, err := r.db.q(ctx).Exec(ctx, touchCartSQL, customerID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
