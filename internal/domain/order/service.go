package order

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/apperr"
	"github.com/xenking/platter/internal/domain/cart"
	"github.com/xenking/platter/internal/domain/catalog"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/pricing"
	"github.com/xenking/platter/internal/domain/txn"
	"github.com/xenking/platter/internal/telemetry"
)

// MaxNotesLength bounds the free-text notes of an order, in characters.
const MaxNotesLength = 500

// Config tunes order creation and fulfillment.
type Config struct {
	// InitialStatus is the status new orders start in.
	InitialStatus Status
	// LoyaltyThreshold is the spend since the last loyalty coupon that
	// triggers a new one.
	LoyaltyThreshold decimal.Decimal
}

// DefaultConfig returns orders starting in PENDING and a loyalty threshold of
// 100.00.
func DefaultConfig() Config {
	return Config{
		InitialStatus:    StatusPending,
		LoyaltyThreshold: decimal.NewFromInt(100),
	}
}

// InlineItem is an item of an anonymous order.
type InlineItem struct {
	ProductID   string
	Quantity    int
	ModifierIDs []string
}

// InlineCart is the cart payload of an anonymous order. Its prices are frozen
// when the order is created.
type InlineCart struct {
	StoreID   string
	OrderType catalog.OrderType
	Items     []InlineItem
}

// CreateRequest holds the input for creating an order. A non-empty CustomerID
// selects the customer's persisted cart; otherwise Inline is required.
type CreateRequest struct {
	CustomerID string
	Inline     *InlineCart
	CouponCode string
	Notes      string
}

// Service converts carts into orders.
type Service struct {
	tx       txn.Transactor
	carts    cart.Repository
	orders   Repository
	resolver *catalog.Resolver
	coupons  *coupon.Engine
	cfg      Config

	tracer  trace.Tracer
	created metric.Int64Counter
	newID   func() string
	now     func() time.Time
}

// NewService creates an order Service.
func NewService(
	tx txn.Transactor,
	carts cart.Repository,
	orders Repository,
	resolver *catalog.Resolver,
	coupons *coupon.Engine,
	cfg Config,
	opts ...telemetry.Option,
) *Service {
	t := telemetry.New(opts...)
	return &Service{
		tx:       tx,
		carts:    carts,
		orders:   orders,
		resolver: resolver,
		coupons:  coupons,
		cfg:      cfg,
		tracer:   t.Tracer(),
		created:  t.Counter("platter.orders.created", "Orders created"),
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
}

// source is the cart an order is built from.
type source struct {
	storeID   string
	orderType catalog.OrderType
	lines     []Line
	persisted bool
}

// CreateOrder converts the request's cart into an order in one transaction.
// Availability of every product and modifier is re-checked in the cart's
// store, but the cart's frozen prices are charged. The coupon, if any, is
// redeemed in the same transaction, and a persisted cart is emptied on
// success. Any failure leaves no trace.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder", trace.WithAttributes(
		attribute.Bool("order.anonymous", req.CustomerID == ""),
		attribute.Bool("order.coupon", req.CouponCode != ""),
	))
	defer span.End()

	req.Notes = strings.TrimSpace(req.Notes)
	if utf8.RuneCountInString(req.Notes) > MaxNotesLength {
		return nil, apperr.New(apperr.InvalidInput, "notes must be at most %d characters", MaxNotesLength)
	}

	var o *Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		src, err := s.loadSource(ctx, req)
		if err != nil {
			return err
		}

		switch {
		case src.storeID == "":
			return apperr.New(apperr.MissingStore, "cart has no store")
		case !src.orderType.Valid():
			return apperr.New(apperr.MissingStore, "cart has no order type")
		case len(src.lines) == 0:
			return apperr.New(apperr.EmptyCart, "cart is empty")
		}

		store, err := s.resolver.Store(ctx, src.storeID)
		if err != nil {
			return err
		}
		if src.orderType == catalog.OrderTypeDelivery && !store.Delivers {
			return apperr.New(apperr.Unavailable, "store %q does not deliver", store.Name)
		}

		if err := s.recheck(ctx, src); err != nil {
			return err
		}

		priced := make([]pricing.Line, len(src.lines))
		for i := range src.lines {
			priced[i] = src.lines[i].priced()
		}
		base := pricing.Subtotal(priced)

		o = &Order{
			ID:           s.newID(),
			StoreID:      src.storeID,
			CustomerID:   req.CustomerID,
			OrderType:    src.orderType,
			Status:       s.cfg.InitialStatus,
			BaseValue:    base,
			ChargedValue: base,
			Notes:        req.Notes,
			Items:        src.lines,
		}
		if req.CouponCode != "" {
			c, err := s.coupons.Redeem(ctx, req.CouponCode, req.CustomerID)
			if err != nil {
				return err
			}
			o.CouponID = c.ID
			o.CouponCode = c.Code
			o.ChargedValue = c.Apply(base)
		}

		now := s.now()
		o.CreatedAt, o.UpdatedAt = now, now
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		if src.persisted {
			if err := s.carts.ClearItems(ctx, req.CustomerID); err != nil {
				return errors.Wrap(err, "clear cart")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.created.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store.id", o.StoreID),
		attribute.String("order.type", string(o.OrderType)),
	))
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("store_id", o.StoreID),
		zap.String("charged", o.ChargedValue.StringFixed(pricing.Precision)),
	)
	return o, nil
}

// GetOrder returns the customer's order by id. Orders placed by another
// customer, and anonymous orders, are reported as not found.
func (s *Service) GetOrder(ctx context.Context, id, customerID string) (*Order, error) {
	if customerID == "" {
		return nil, apperr.New(apperr.NotFound, "order %s not found", id)
	}
	o, err := s.orders.Get(ctx, id)
	if errors.Is(err, ErrNotFound) || (err == nil && o.CustomerID != customerID) {
		return nil, apperr.New(apperr.NotFound, "order %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

func (s *Service) loadSource(ctx context.Context, req CreateRequest) (*source, error) {
	if req.CustomerID != "" {
		c, err := s.carts.GetForUpdate(ctx, req.CustomerID)
		if errors.Is(err, cart.ErrNotFound) {
			return nil, apperr.New(apperr.EmptyCart, "cart is empty")
		}
		if err != nil {
			return nil, errors.Wrap(err, "lock cart")
		}
		return fromCart(c), nil
	}

	if req.Inline == nil {
		return nil, apperr.New(apperr.InvalidInput, "anonymous orders require a cart")
	}
	return s.freezeInline(ctx, req.Inline)
}

func fromCart(c *cart.Cart) *source {
	src := &source{
		storeID:   c.StoreID,
		orderType: c.OrderType,
		lines:     make([]Line, len(c.Items)),
		persisted: true,
	}
	for i, it := range c.Items {
		mods := make([]LineModifier, len(it.Modifiers))
		for j, m := range it.Modifiers {
			mods[j] = LineModifier{
				ModifierID: m.ModifierID,
				GroupID:    m.GroupID,
				Name:       m.Name,
				ExtraPrice: m.ExtraPrice,
			}
		}
		src.lines[i] = Line{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Modifiers:   mods,
		}
	}
	return src
}

// freezeInline validates an anonymous cart the way the cart engine validates
// an added item and freezes the current prices onto it.
func (s *Service) freezeInline(ctx context.Context, in *InlineCart) (*source, error) {
	src := &source{storeID: in.StoreID, orderType: in.OrderType}
	if in.StoreID == "" {
		return src, nil
	}
	for _, it := range in.Items {
		if it.Quantity < cart.MinQuantity || it.Quantity > cart.MaxQuantity {
			return nil, apperr.New(apperr.InvalidInput, "quantity must be between %d and %d", cart.MinQuantity, cart.MaxQuantity)
		}
		p, err := s.resolver.ResolveProduct(ctx, in.StoreID, it.ProductID)
		if err != nil {
			return nil, err
		}
		ids := catalog.Dedupe(it.ModifierIDs)
		mods := make([]LineModifier, 0, len(ids))
		for _, id := range ids {
			m, g, ok := p.FindModifier(id)
			if !ok {
				return nil, &catalog.ForeignModifierError{ModifierID: id, ProductID: p.ID}
			}
			l, err := s.resolver.ResolveModifier(ctx, in.StoreID, m)
			if err != nil {
				return nil, err
			}
			mods = append(mods, LineModifier{
				ModifierID: m.ID,
				GroupID:    g.ID,
				Name:       m.Name,
				ExtraPrice: pricing.Freeze(l.ExtraPrice),
			})
		}
		src.lines = append(src.lines, Line{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    it.Quantity,
			UnitPrice:   pricing.Freeze(p.Price()),
			Modifiers:   mods,
		})
	}
	return src, nil
}

// recheck re-resolves every product and modifier of src in its store and
// re-runs the selection rules. Frozen prices are left untouched.
func (s *Service) recheck(ctx context.Context, src *source) error {
	for i := range src.lines {
		l := &src.lines[i]
		p, err := s.resolver.ResolveProduct(ctx, src.storeID, l.ProductID)
		if err != nil {
			return err
		}
		l.ProductName = p.Name

		ids := make([]string, len(l.Modifiers))
		for j := range l.Modifiers {
			sel := &l.Modifiers[j]
			m, _, ok := p.FindModifier(sel.ModifierID)
			if !ok {
				return &catalog.ForeignModifierError{ModifierID: sel.ModifierID, ProductID: p.ID}
			}
			if _, err := s.resolver.ResolveModifier(ctx, src.storeID, m); err != nil {
				return err
			}
			ids[j] = sel.ModifierID
		}
		if err := catalog.ValidateSelection(p.Groups, ids); err != nil {
			return err
		}
		l.ID = s.newID()
	}
	return nil
}

func (l *Line) priced() pricing.Line {
	prices := make([]decimal.Decimal, len(l.Modifiers))
	for i, m := range l.Modifiers {
		prices[i] = m.ExtraPrice
	}
	return pricing.Line{UnitPrice: l.UnitPrice, ModifierPrices: prices, Quantity: l.Quantity}
}
