package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidCartState = errors.New("invalid cart state")
	ErrProductNotFound  = errors.New("product not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrOutcomeUnknown marks a write whose commit result could not be observed.
	ErrOutcomeUnknown = errors.New("outcome unknown")

	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrOutOfStock      = errors.New("not enough stock")
	ErrItemNotInCart   = errors.New("item not in cart")
	ErrOrderNotFound   = errors.New("order not found")
	ErrInvalidProduct  = errors.New("invalid product")
)

type InsufficientStockError struct {
	ProductID uuid.UUID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// IsBusiness reports whether err is a rule violation rather than an
// infrastructure failure.
func IsBusiness(err error) bool {
	var ise *InsufficientStockError
	switch {
	case errors.As(err, &ise),
		errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrInvalidCartState),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrOutOfStock),
		errors.Is(err, ErrItemNotInCart),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrInvalidProduct):
		return true
	}
	return false
}
