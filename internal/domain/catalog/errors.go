package catalog

import (
	"fmt"

	"github.com/xenking/platter/internal/domain/apperr"
)

// Entity names used in error messages.
const (
	EntityStore    = "store"
	EntityProduct  = "product"
	EntityModifier = "option"
)

// NotFoundError indicates a store, product or modifier id does not resolve.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Kind implements apperr categorization.
func (e *NotFoundError) Kind() apperr.Kind { return apperr.NotFound }

// UnavailableError indicates an entity exists but is not listed, or is listed
// as unavailable, in the store.
type UnavailableError struct {
	Entity  string
	ID      string
	Name    string
	StoreID string
}

func (e *UnavailableError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ID
	}
	return fmt.Sprintf("%s %q is not available at this store", e.Entity, name)
}

// Kind implements apperr categorization.
func (e *UnavailableError) Kind() apperr.Kind { return apperr.Unavailable }

// Selection bounds.
const (
	BoundMin = "min"
	BoundMax = "max"
)

// SelectionError indicates a group's selection-count bound was violated.
type SelectionError struct {
	Group string
	Bound string
	Limit int
	Got   int
}

func (e *SelectionError) Error() string {
	if e.Bound == BoundMin {
		return fmt.Sprintf("option group %q requires at least %d selection(s), got %d", e.Group, e.Limit, e.Got)
	}
	return fmt.Sprintf("option group %q allows at most %d selection(s), got %d", e.Group, e.Limit, e.Got)
}

// Kind implements apperr categorization.
func (e *SelectionError) Kind() apperr.Kind { return apperr.InvalidSelection }

// ForeignModifierError indicates a modifier is not part of any of the
// product's customization groups.
type ForeignModifierError struct {
	ModifierID string
	ProductID  string
}

func (e *ForeignModifierError) Error() string {
	return fmt.Sprintf("option %s does not belong to this product", e.ModifierID)
}

// Kind implements apperr categorization.
func (e *ForeignModifierError) Kind() apperr.Kind { return apperr.InvalidSelection }
