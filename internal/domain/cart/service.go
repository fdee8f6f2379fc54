package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/apperr"
	"github.com/xenking/platter/internal/domain/catalog"
	"github.com/xenking/platter/internal/domain/pricing"
	"github.com/xenking/platter/internal/domain/txn"
	"github.com/xenking/platter/internal/telemetry"
)

// AddItemRequest describes an item to add to a cart.
type AddItemRequest struct {
	StoreID     string
	ProductID   string
	Quantity    int
	ModifierIDs []string
}

// Service is the cart engine. Every mutating operation runs in one
// transaction that holds the cart row lock for its duration.
type Service struct {
	tx       txn.Transactor
	carts    Repository
	resolver *catalog.Resolver

	tracer   trace.Tracer
	warnings metric.Int64Counter
	newID    func() string
}

// NewService creates a cart Service.
func NewService(
	tx txn.Transactor,
	carts Repository,
	resolver *catalog.Resolver,
	opts ...telemetry.Option,
) *Service {
	t := telemetry.New(opts...)
	return &Service{
		tx:       tx,
		carts:    carts,
		resolver: resolver,
		tracer:   t.Tracer(),
		warnings: t.Counter("platter.cart.store_switch.warnings", "Adjustments reported when a cart changes store"),
		newID:    func() string { return uuid.New().String() },
	}
}

// View returns the customer's cart. A customer without a cart gets an empty,
// unbound view with a zero subtotal.
func (s *Service) View(ctx context.Context, customerID string) (*View, error) {
	if err := validateCustomer(customerID); err != nil {
		return nil, err
	}
	c, err := s.carts.Get(ctx, customerID)
	if errors.Is(err, ErrNotFound) {
		return newView(&Cart{CustomerID: customerID}), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return newView(c), nil
}

// AddItem validates the product and its selection against the target store,
// freezes the current prices onto a new line and binds an unbound cart to the
// store. Adding for a store other than the bound one is a StoreMismatchError.
func (s *Service) AddItem(ctx context.Context, customerID string, req AddItemRequest) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "cart.AddItem", trace.WithAttributes(
		attribute.String("store.id", req.StoreID),
		attribute.String("product.id", req.ProductID),
	))
	defer span.End()

	if err := validateCustomer(customerID); err != nil {
		return nil, err
	}
	if req.StoreID == "" {
		return nil, apperr.New(apperr.MissingStore, "store id required")
	}
	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}

	var view *View
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		c, err := s.carts.Ensure(ctx, customerID)
		if err != nil {
			return errors.Wrap(err, "ensure cart")
		}
		if c.Bound() && c.StoreID != req.StoreID {
			return &StoreMismatchError{CartStoreID: c.StoreID, StoreID: req.StoreID}
		}
		if _, err := s.resolver.Store(ctx, req.StoreID); err != nil {
			return err
		}

		p, err := s.resolver.ResolveProduct(ctx, req.StoreID, req.ProductID)
		if err != nil {
			return err
		}

		ids := catalog.Dedupe(req.ModifierIDs)
		mods := make([]ItemModifier, 0, len(ids))
		for _, id := range ids {
			m, g, ok := p.FindModifier(id)
			if !ok {
				return &catalog.ForeignModifierError{ModifierID: id, ProductID: p.ID}
			}
			l, err := s.resolver.ResolveModifier(ctx, req.StoreID, m)
			if err != nil {
				return err
			}
			mods = append(mods, ItemModifier{
				ModifierID: m.ID,
				GroupID:    g.ID,
				Name:       m.Name,
				ExtraPrice: pricing.Freeze(l.ExtraPrice),
			})
		}
		if err := catalog.ValidateSelection(p.Groups, ids); err != nil {
			return err
		}

		if !c.Bound() {
			if err := s.carts.SetStore(ctx, customerID, req.StoreID); err != nil {
				return errors.Wrap(err, "bind store")
			}
		}

		item := &Item{
			ID:          s.newID(),
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    req.Quantity,
			UnitPrice:   pricing.Freeze(p.Price()),
			Modifiers:   mods,
		}
		if err := s.carts.AddItem(ctx, customerID, item); err != nil {
			return errors.Wrap(err, "add item")
		}

		view, err = s.reload(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// UpdateItemQuantity sets the quantity of one line. Prices stay frozen.
func (s *Service) UpdateItemQuantity(ctx context.Context, customerID, itemID string, quantity int) (*View, error) {
	if err := validateCustomer(customerID); err != nil {
		return nil, err
	}
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	var view *View
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.lock(ctx, customerID); err != nil {
			return err
		}
		if err := s.carts.SetItemQuantity(ctx, customerID, itemID, quantity); err != nil {
			return itemErr(err, itemID)
		}
		var err error
		view, err = s.reload(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// RemoveItem deletes one line. The cart keeps its store binding.
func (s *Service) RemoveItem(ctx context.Context, customerID, itemID string) (*View, error) {
	if err := validateCustomer(customerID); err != nil {
		return nil, err
	}

	var view *View
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.lock(ctx, customerID); err != nil {
			return err
		}
		if err := s.carts.DeleteItem(ctx, customerID, itemID); err != nil {
			return itemErr(err, itemID)
		}
		var err error
		view, err = s.reload(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Clear removes every line. The store binding and order type are kept.
func (s *Service) Clear(ctx context.Context, customerID string) (*View, error) {
	if err := validateCustomer(customerID); err != nil {
		return nil, err
	}

	var view *View
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		c, err := s.carts.GetForUpdate(ctx, customerID)
		if errors.Is(err, ErrNotFound) {
			view = newView(&Cart{CustomerID: customerID})
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "lock cart")
		}
		if len(c.Items) > 0 {
			if err := s.carts.ClearItems(ctx, customerID); err != nil {
				return errors.Wrap(err, "clear items")
			}
		}
		view, err = s.reload(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// SetOrderType sets how the order will be fulfilled. Delivery requires the
// bound store, if any, to deliver.
func (s *Service) SetOrderType(ctx context.Context, customerID string, t catalog.OrderType) (*View, error) {
	if err := validateCustomer(customerID); err != nil {
		return nil, err
	}
	if !t.Valid() {
		return nil, apperr.New(apperr.InvalidInput, "unknown order type %q", t)
	}

	var view *View
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		c, err := s.carts.Ensure(ctx, customerID)
		if err != nil {
			return errors.Wrap(err, "ensure cart")
		}
		if t == catalog.OrderTypeDelivery && c.Bound() {
			store, err := s.resolver.Store(ctx, c.StoreID)
			if err != nil {
				return err
			}
			if !store.Delivers {
				return apperr.New(apperr.Unavailable, "store %q does not deliver", store.Name)
			}
		}
		if err := s.carts.SetOrderType(ctx, customerID, t); err != nil {
			return errors.Wrap(err, "set order type")
		}
		view, err = s.reload(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Service) lock(ctx context.Context, customerID string) (*Cart, error) {
	c, err := s.carts.GetForUpdate(ctx, customerID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "cart not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock cart")
	}
	return c, nil
}

func (s *Service) reload(ctx context.Context, customerID string) (*View, error) {
	c, err := s.carts.Get(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "reload cart")
	}
	return newView(c), nil
}

func itemErr(err error, itemID string) error {
	if errors.Is(err, ErrItemNotFound) {
		return apperr.New(apperr.NotFound, "cart item %s not found", itemID)
	}
	return errors.Wrap(err, "update item")
}

func logger(ctx context.Context) *zap.Logger {
	return zctx.From(ctx).Named("cart")
}
