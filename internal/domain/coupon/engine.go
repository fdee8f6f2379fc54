package coupon

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/apperr"
	"github.com/xenking/platter/internal/telemetry"
	"github.com/xenking/platter/pkg/retry"
)

// LoyaltyConfig describes the coupons issued by the loyalty trigger.
type LoyaltyConfig struct {
	Value    decimal.Decimal
	Prefix   string
	Validity time.Duration
	Attempts int
}

// DefaultLoyalty returns the stock loyalty coupon: 10.00 off, valid for 30
// days, with up to 5 code generation attempts.
func DefaultLoyalty() LoyaltyConfig {
	return LoyaltyConfig{
		Value:    decimal.NewFromInt(10),
		Prefix:   "LOYAL",
		Validity: 30 * 24 * time.Hour,
		Attempts: 5,
	}
}

// Verdict is the outcome of a read-only coupon check.
type Verdict struct {
	Code   string
	Valid  bool
	Reason Reason // empty when Valid
	Coupon *Coupon
}

// CreateRequest describes an operator-issued coupon.
type CreateRequest struct {
	Code       string
	Kind       DiscountKind
	Value      decimal.Decimal
	Uses       *int
	ExpiresAt  *time.Time
	CustomerID string
}

// Engine validates, redeems and issues coupons.
type Engine struct {
	coupons Repository
	loyalty LoyaltyConfig
	now     func() time.Time
	code    func() (string, error)

	tracer   trace.Tracer
	redeemed metric.Int64Counter
	issued   metric.Int64Counter
}

// NewEngine creates an Engine backed by the given Repository.
func NewEngine(coupons Repository, loyalty LoyaltyConfig, opts ...telemetry.Option) *Engine {
	t := telemetry.New(opts...)
	e := &Engine{
		coupons:  coupons,
		loyalty:  loyalty,
		now:      time.Now,
		tracer:   t.Tracer(),
		redeemed: t.Counter("platter.coupons.redeemed", "Coupons redeemed by orders"),
		issued:   t.Counter("platter.loyalty.issued", "Loyalty coupons issued"),
	}
	e.code = func() (string, error) { return GenerateCode(e.loyalty.Prefix) }
	return e
}

// Validate checks whether code can be used by customerID without changing any
// state. An empty customerID stands for an anonymous order.
func (e *Engine) Validate(ctx context.Context, code, customerID string) (*Verdict, error) {
	code = NormalizeCode(code)
	c, err := e.coupons.FindByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return &Verdict{Code: code, Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if r := check(c, customerID, e.now()); r != "" {
		return &Verdict{Code: code, Reason: r, Coupon: c}, nil
	}
	return &Verdict{Code: code, Valid: true, Coupon: c}, nil
}

// Redeem checks code like Validate and consumes one use of a limited coupon.
// It must run inside the transaction that persists the consuming order, so a
// rollback restores the use. Concurrent redeemers of a coupon's last use are
// serialized on the coupon row; the loser gets ReasonExhausted.
func (e *Engine) Redeem(ctx context.Context, code, customerID string) (*Coupon, error) {
	ctx, span := e.tracer.Start(ctx, "coupon.Redeem")
	defer span.End()

	code = NormalizeCode(code)
	c, err := e.coupons.FindByCodeForUpdate(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, &InvalidError{Code: code, Reason: ReasonNotFound}
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock coupon")
	}
	if r := check(c, customerID, e.now()); r != "" {
		return nil, &InvalidError{Code: code, Reason: r}
	}

	if !c.Unlimited() {
		ok, err := e.coupons.ConsumeUse(ctx, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "consume coupon use")
		}
		if !ok {
			return nil, &InvalidError{Code: code, Reason: ReasonExhausted}
		}
		left := *c.UsesRemaining - 1
		c.UsesRemaining = &left
		c.Active = left > 0
	}

	e.redeemed.Add(ctx, 1, metric.WithAttributes(attribute.String("coupon.kind", string(c.Kind))))
	return c, nil
}

// IssueLoyalty creates a single-use fixed-amount coupon owned by customerID.
// Its code is regenerated on collision; exhausting the attempts is an error
// that must abort the enclosing transaction.
func (e *Engine) IssueLoyalty(ctx context.Context, customerID string) (*Coupon, error) {
	ctx, span := e.tracer.Start(ctx, "coupon.IssueLoyalty")
	defer span.End()

	if customerID == "" {
		return nil, errors.New("loyalty coupon requires a customer")
	}

	expires := e.now().Add(e.loyalty.Validity)
	var issued *Coupon
	_, err := retry.Regenerate(ctx, e.loyalty.Attempts, e.code,
		func(ctx context.Context, code string) error {
			uses := 1
			c := &Coupon{
				Code:          code,
				Kind:          DiscountFixed,
				Value:         e.loyalty.Value,
				UsesRemaining: &uses,
				Active:        true,
				ExpiresAt:     &expires,
				CustomerID:    customerID,
			}
			if err := e.coupons.Create(ctx, c); err != nil {
				return err
			}
			issued = c
			return nil
		},
		func(err error) bool { return errors.Is(err, ErrCodeTaken) },
	)
	if err != nil {
		return nil, errors.Wrap(err, "issue loyalty coupon")
	}

	e.issued.Add(ctx, 1)
	zctx.From(ctx).Info("Loyalty coupon issued",
		zap.String("customer_id", customerID),
		zap.String("code", issued.Code),
	)
	return issued, nil
}

// Create inserts an operator-defined coupon.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Coupon, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, apperr.New(apperr.InvalidInput, "coupon code required")
	}
	if !req.Kind.Valid() {
		return nil, apperr.New(apperr.InvalidInput, "unknown discount kind %q", req.Kind)
	}
	if !req.Value.IsPositive() {
		return nil, apperr.New(apperr.InvalidInput, "discount value must be positive")
	}
	if req.Kind == DiscountPercentage && req.Value.GreaterThan(hundred) {
		return nil, apperr.New(apperr.InvalidInput, "percentage discount cannot exceed 100")
	}
	if req.Uses != nil && *req.Uses < 1 {
		return nil, apperr.New(apperr.InvalidInput, "uses must be at least 1")
	}

	c := &Coupon{
		Code:          code,
		Kind:          req.Kind,
		Value:         req.Value,
		UsesRemaining: req.Uses,
		Active:        true,
		ExpiresAt:     req.ExpiresAt,
		CustomerID:    req.CustomerID,
	}
	if err := e.coupons.Create(ctx, c); err != nil {
		if errors.Is(err, ErrCodeTaken) {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "coupon code %q already exists", code)
		}
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of the random part of a generated code.
const CodeLength = 8

// GenerateCode returns PREFIX-XXXXXXXX with the suffix drawn uniformly from
// A-Z0-9 using crypto/rand. The prefix is normalized like any looked-up code.
func GenerateCode(prefix string) (string, error) {
	prefix = NormalizeCode(prefix)
	// 252 is the largest multiple of 36 below 256.
	const limit = 252
	out := make([]byte, 0, len(prefix)+1+CodeLength)
	out = append(out, prefix...)
	out = append(out, '-')

	buf := make([]byte, CodeLength*2)
	for len(out) < cap(out) {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "read random")
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == cap(out) {
				break
			}
		}
	}
	return string(out), nil
}
