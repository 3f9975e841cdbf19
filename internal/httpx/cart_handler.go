package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/retail-checkout/internal/cart"
	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CartHandler struct {
	Cart   *cart.Service
	Logger *zap.Logger
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(RequireUser)
		r.Get("/", h.getCart)
		r.Post("/items", h.addItem)
		r.Patch("/items/{productID}", h.updateItem)
		r.Delete("/items/{productID}", h.removeItem)
	})
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Cart.GetCart(ctx, userID(ctx))
	h.respond(w, c, err)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "product_id must be a uuid")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Cart.AddItem(ctx, userID(ctx), productID, req.Quantity)
	h.respond(w, c, err)
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := uuidParam(w, r, "productID")
	if !ok {
		return
	}
	var req UpdateItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	if (req.Quantity == nil) == (req.Action == "") {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "send exactly one of quantity or action")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	owner := userID(ctx)

	var (
		c   domain.Cart
		err error
	)
	switch {
	case req.Quantity != nil:
		c, err = h.Cart.SetQuantity(ctx, owner, productID, *req.Quantity)
	case req.Action == "increase":
		c, err = h.Cart.Increase(ctx, owner, productID)
	case req.Action == "decrease":
		c, err = h.Cart.Decrease(ctx, owner, productID)
	default:
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "action must be increase or decrease")
		return
	}
	h.respond(w, c, err)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := uuidParam(w, r, "productID")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Cart.RemoveItem(ctx, userID(ctx), productID)
	h.respond(w, c, err)
}

func (h *CartHandler) respond(w http.ResponseWriter, c domain.Cart, err error) {
	if err != nil {
		logger := h.Logger
		if logger == nil {
			logger = zap.NewNop()
		}
		writeErr(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResp(c))
}
