package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ariefcatur/retail-checkout/internal/checkout"
	"github.com/ariefcatur/retail-checkout/internal/domain"
	"go.uber.org/zap"
)

const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeInvalidQuantity    = "INVALID_QUANTITY"
	CodeInvalidProduct     = "INVALID_PRODUCT"
	CodeOutOfStock         = "OUT_OF_STOCK"
	CodeItemNotInCart      = "ITEM_NOT_IN_CART"
	CodeOrderNotFound      = "ORDER_NOT_FOUND"
	CodeCheckoutInProgress = "CHECKOUT_IN_PROGRESS"
	CodeInternal           = "INTERNAL"
)

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: msg}})
}

var checkoutStatus = map[checkout.Code]int{
	checkout.CodeEmptyCart:         http.StatusBadRequest,
	checkout.CodeInvalidCartState:  http.StatusInternalServerError,
	checkout.CodeProductNotFound:   http.StatusNotFound,
	checkout.CodeInsufficientStock: http.StatusConflict,
	checkout.CodeStoreUnavailable:  http.StatusServiceUnavailable,
	checkout.CodeOutcomeUnknown:    http.StatusBadGateway,
}

// writeErr maps err onto the error schema. Unclassified errors are logged
// and reported without their text.
func writeErr(w http.ResponseWriter, logger *zap.Logger, err error) {
	var cerr *checkout.Error
	if errors.As(err, &cerr) {
		status, ok := checkoutStatus[cerr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		writeError(w, status, string(cerr.Code), cerr.Detail)
		return
	}

	var ise *domain.InsufficientStockError
	switch {
	case errors.As(err, &ise):
		writeError(w, http.StatusConflict, string(checkout.CodeInsufficientStock), ise.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, CodeInvalidQuantity, "quantity must be positive")
	case errors.Is(err, domain.ErrInvalidProduct):
		writeError(w, http.StatusBadRequest, CodeInvalidProduct, err.Error())
	case errors.Is(err, domain.ErrOutOfStock):
		writeError(w, http.StatusConflict, CodeOutOfStock, err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		writeError(w, http.StatusNotFound, string(checkout.CodeProductNotFound), "product not found")
	case errors.Is(err, domain.ErrItemNotInCart):
		writeError(w, http.StatusNotFound, CodeItemNotInCart, "item not in cart")
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, CodeOrderNotFound, "order not found")
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}
