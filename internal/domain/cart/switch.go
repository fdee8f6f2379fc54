package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/apperr"
	"github.com/xenking/platter/internal/domain/catalog"
	"github.com/xenking/platter/internal/domain/pricing"
)

// WarningKind classifies an adjustment made while switching stores.
type WarningKind string

const (
	WarningItemRemoved      WarningKind = "item_removed"
	WarningOptionRemoved    WarningKind = "option_removed"
	WarningOptionDefaulted  WarningKind = "option_defaulted"
	WarningMandatoryMissing WarningKind = "mandatory_option_unavailable"
)

// Warning is a customer-visible note about one adjustment.
type Warning struct {
	Kind       WarningKind
	ItemID     string
	ModifierID string
	Message    string
}

// StoreChange is the result of ChangeStore.
type StoreChange struct {
	*View
	Warnings []Warning
}

// ChangeStore rebinds the cart to storeID and revalidates every line against
// it in creation order:
//
//  1. a line whose product is not sellable there is removed;
//  2. otherwise its unit price is re-frozen from the new listing;
//  3. each selection that is unavailable there is dropped, the rest are
//     re-frozen;
//  4. a mandatory group left short is topped up with its default modifier when
//     that is available, and the line is removed when it still falls short.
//
// Every adjustment yields one Warning. The rebinding and all adjustments
// commit together. Switching to the already bound store changes nothing.
func (s *Service) ChangeStore(ctx context.Context, customerID, storeID string) (*StoreChange, error) {
	ctx, span := s.tracer.Start(ctx, "cart.ChangeStore", trace.WithAttributes(
		attribute.String("store.id", storeID),
	))
	defer span.End()

	if err := validateCustomer(customerID); err != nil {
		return nil, err
	}
	if storeID == "" {
		return nil, apperr.New(apperr.MissingStore, "store id required")
	}

	var res *StoreChange
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.resolver.Store(ctx, storeID); err != nil {
			return err
		}
		c, err := s.carts.Ensure(ctx, customerID)
		if err != nil {
			return errors.Wrap(err, "ensure cart")
		}
		if c.StoreID == storeID {
			res = &StoreChange{View: newView(c)}
			return nil
		}

		var warnings []Warning
		for i := range c.Items {
			w, err := s.revalidate(ctx, customerID, storeID, &c.Items[i])
			if err != nil {
				return errors.Wrapf(err, "revalidate item %s", c.Items[i].ID)
			}
			warnings = append(warnings, w...)
		}

		if err := s.carts.SetStore(ctx, customerID, storeID); err != nil {
			return errors.Wrap(err, "bind store")
		}
		view, err := s.reload(ctx, customerID)
		if err != nil {
			return err
		}
		res = &StoreChange{View: view, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if n := len(res.Warnings); n > 0 {
		s.warnings.Add(ctx, int64(n), metric.WithAttributes(attribute.String("store.id", storeID)))
		logger(ctx).Info("Cart adjusted for new store",
			zap.String("store_id", storeID),
			zap.Int("warnings", n),
		)
	}
	return res, nil
}

// revalidate applies the store-switch rules to one line and returns the
// warnings it produced.
func (s *Service) revalidate(ctx context.Context, customerID, storeID string, item *Item) ([]Warning, error) {
	p, err := s.resolver.ResolveProduct(ctx, storeID, item.ProductID)
	if err != nil {
		if catalog.Unavailable(err) || apperr.Is(err, apperr.NotFound) {
			if err := s.carts.DeleteItem(ctx, customerID, item.ID); err != nil && !errors.Is(err, ErrItemNotFound) {
				return nil, errors.Wrap(err, "delete item")
			}
			return []Warning{{
				Kind:    WarningItemRemoved,
				ItemID:  item.ID,
				Message: fmt.Sprintf("Item '%s' removed (unavailable at new store).", item.ProductName),
			}}, nil
		}
		return nil, err
	}

	if price := pricing.Freeze(p.Price()); !price.Equal(item.UnitPrice) {
		if err := s.carts.SetItemPrice(ctx, item.ID, price); err != nil {
			return nil, errors.Wrap(err, "reprice item")
		}
	}

	var warnings []Warning
	selected := make(map[string]struct{}, len(item.Modifiers))
	for _, sel := range item.Modifiers {
		m, _, ok := p.FindModifier(sel.ModifierID)
		var l *catalog.ModifierListing
		if ok {
			l, err = s.resolver.ResolveModifier(ctx, storeID, m)
			if err != nil && !catalog.Unavailable(err) {
				return nil, err
			}
		}
		if l == nil {
			if err := s.carts.DeleteItemModifier(ctx, item.ID, sel.ModifierID); err != nil {
				return nil, errors.Wrap(err, "drop option")
			}
			warnings = append(warnings, Warning{
				Kind:       WarningOptionRemoved,
				ItemID:     item.ID,
				ModifierID: sel.ModifierID,
				Message: fmt.Sprintf("Option '%s' removed from item '%s' (unavailable at new store).",
					sel.Name, item.ProductName),
			})
			continue
		}

		selected[sel.ModifierID] = struct{}{}
		if price := pricing.Freeze(l.ExtraPrice); !price.Equal(sel.ExtraPrice) {
			if err := s.carts.SetItemModifierPrice(ctx, item.ID, sel.ModifierID, price); err != nil {
				return nil, errors.Wrap(err, "reprice option")
			}
		}
	}

	for gi := range p.Groups {
		g := &p.Groups[gi]
		if !g.Mandatory() {
			continue
		}
		count := 0
		for _, m := range g.Modifiers {
			if _, ok := selected[m.ID]; ok {
				count++
			}
		}
		if count >= g.MinSelect {
			continue
		}

		if def, ok := g.Default(); ok {
			if _, already := selected[def.ID]; !already {
				l, err := s.resolver.ResolveModifier(ctx, storeID, def)
				switch {
				case err == nil:
					if err := s.carts.AddItemModifier(ctx, item.ID, ItemModifier{
						ModifierID: def.ID,
						GroupID:    g.ID,
						Name:       def.Name,
						ExtraPrice: pricing.Freeze(l.ExtraPrice),
					}); err != nil {
						return nil, errors.Wrap(err, "apply default option")
					}
					selected[def.ID] = struct{}{}
					count++
					warnings = append(warnings, Warning{
						Kind:       WarningOptionDefaulted,
						ItemID:     item.ID,
						ModifierID: def.ID,
						Message: fmt.Sprintf("Option for '%s' on item '%s' changed to default '%s'.",
							g.Name, item.ProductName, def.Name),
					})
				case !catalog.Unavailable(err):
					return nil, err
				}
			}
		}

		if count < g.MinSelect {
			if err := s.carts.DeleteItem(ctx, customerID, item.ID); err != nil && !errors.Is(err, ErrItemNotFound) {
				return nil, errors.Wrap(err, "delete item")
			}
			warnings = append(warnings, Warning{
				Kind:    WarningMandatoryMissing,
				ItemID:  item.ID,
				Message: fmt.Sprintf("Item '%s' removed (mandatory option unavailable at new store).", item.ProductName),
			})
			return warnings, nil
		}
	}

	return warnings, nil
}
