package checkout

import (
	"errors"
	"fmt"

	"github.com/ariefcatur/retail-checkout/internal/domain"
)

type Code string

const (
	CodeEmptyCart         Code = "EMPTY_CART"
	CodeInvalidCartState  Code = "INVALID_CART_STATE"
	CodeProductNotFound   Code = "PRODUCT_NOT_FOUND"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeStoreUnavailable  Code = "STORE_UNAVAILABLE"
	CodeOutcomeUnknown    Code = "CHECKOUT_OUTCOME_UNKNOWN"
)

// Error is the only error type Checkout returns. Detail is safe to show to
// the customer; the wrapped Err is for logs and errors.Is/As.
type Error struct {
	Code   Code
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry without first re-reading
// its order history.
func (e *Error) Retryable() bool {
	return e.Code == CodeStoreUnavailable
}

func newError(code Code, detail string, err error) *Error {
	return &Error{Code: code, Detail: detail, Err: err}
}

// classifyReserve maps a ReserveStock failure to its checkout error. Nothing
// has been applied unless the store flagged the commit as unobservable.
func classifyReserve(err error) *Error {
	var ise *domain.InsufficientStockError
	switch {
	case errors.As(err, &ise):
		return newError(CodeInsufficientStock,
			fmt.Sprintf("not enough stock for product %s: available %d, requested %d",
				ise.ProductID, ise.Available, ise.Requested),
			ise)
	case errors.Is(err, domain.ErrProductNotFound):
		return newError(CodeProductNotFound, "a product in the cart is no longer available", err)
	case errors.Is(err, domain.ErrInvalidCartState):
		return newError(CodeInvalidCartState, "cart contents are inconsistent", err)
	case errors.Is(err, domain.ErrOutcomeUnknown):
		return outcomeUnknown(err)
	default:
		return storeUnavailable(err)
	}
}

func storeUnavailable(err error) *Error {
	return newError(CodeStoreUnavailable, "store temporarily unavailable, nothing was changed",
		errors.Join(domain.ErrStoreUnavailable, err))
}

func outcomeUnknown(err error) *Error {
	return newError(CodeOutcomeUnknown, "checkout outcome unknown, check order history before retrying",
		errors.Join(domain.ErrOutcomeUnknown, err))
}
