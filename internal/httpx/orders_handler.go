package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/retail-checkout/internal/checkout"
	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/ariefcatur/retail-checkout/internal/events"
	"github.com/ariefcatur/retail-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Checkouter interface {
	Checkout(ctx context.Context, ownerID string) (domain.Order, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
	ListOrders(ctx context.Context, ownerID string) ([]domain.Order, error)
}

type OrdersHandler struct {
	Checkout Checkouter
	Orders   OrderReader
	// Redis is optional. Without it Idempotency-Key is ignored and reads
	// go straight to the order store.
	Redis   redis.Cmdable
	Timeout time.Duration
	Logger  *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/", h.checkout)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
	})
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	owner := userID(ctx)
	log := h.logger().With(zap.String("owner_id", owner))

	key := r.Header.Get(HeaderIdempotencyKey)
	claimed := false
	if key != "" && h.Redis != nil {
		state, orderID, err := redisx.ClaimCheckout(ctx, h.Redis, owner, key)
		if err != nil {
			log.Warn("idempotency claim failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, string(checkout.CodeStoreUnavailable),
				"store temporarily unavailable, nothing was changed")
			return
		}
		switch state {
		case redisx.ClaimPending:
			writeError(w, http.StatusConflict, CodeCheckoutInProgress, "a checkout with this key is still running")
			return
		case redisx.ClaimDone:
			h.replay(ctx, w, log, owner, orderID)
			return
		}
		claimed = true
	}

	order, err := h.Checkout.Checkout(ctx, owner)
	if err != nil {
		var cerr *checkout.Error
		// an unknown outcome keeps the key pending until history is checked
		if claimed && !(errors.As(err, &cerr) && cerr.Code == checkout.CodeOutcomeUnknown) {
			rerr := settle(ctx, func(ctx context.Context) error {
				return redisx.ReleaseCheckout(ctx, h.Redis, owner, key)
			})
			if rerr != nil {
				log.Warn("idempotency release failed", zap.Error(rerr))
			}
		}
		writeErr(w, log, err)
		return
	}

	payload := events.FromOrder(order)
	if claimed {
		err := settle(ctx, func(ctx context.Context) error {
			return redisx.CompleteCheckout(ctx, h.Redis, owner, key, payload.OrderID)
		})
		if err != nil {
			log.Warn("idempotency complete failed", zap.String("order_id", payload.OrderID), zap.Error(err))
		}
	}
	_ = settle(ctx, func(ctx context.Context) error {
		h.cache(ctx, log, payload)
		return nil
	})

	writeJSON(w, http.StatusCreated, CheckoutResp{Order: payload})
}

const settleTimeout = 2 * time.Second

// settle runs f on a context that keeps ctx's values but not its deadline,
// so bookkeeping after a checkout still happens when the checkout ran out of
// time.
func settle(ctx context.Context, f func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	return f(ctx)
}

func (h *OrdersHandler) replay(ctx context.Context, w http.ResponseWriter, log *zap.Logger, owner, orderID string) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		writeErr(w, log, err)
		return
	}
	payload, err := h.load(ctx, log, owner, id)
	if err != nil {
		writeErr(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckoutResp{Order: payload, Idempotent: true})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	orders, err := h.Orders.ListOrders(ctx, userID(ctx))
	if err != nil {
		writeErr(w, h.logger(), err)
		return
	}

	out := make([]events.OrderPayload, 0, len(orders))
	for _, o := range orders {
		out = append(out, events.FromOrder(o))
	}
	writeJSON(w, http.StatusOK, OrdersResp{Orders: out})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	payload, err := h.load(ctx, h.logger(), userID(ctx), id)
	if err != nil {
		writeErr(w, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// load reads through the summary cache. Orders of other owners are
// reported as not found.
func (h *OrdersHandler) load(ctx context.Context, log *zap.Logger, owner string, id uuid.UUID) (events.OrderPayload, error) {
	if h.Redis != nil {
		p, ok, err := redisx.CachedOrder(ctx, h.Redis, id.String())
		if err != nil {
			log.Warn("order cache read failed", zap.Error(err))
		}
		if ok {
			if p.OwnerID != owner {
				return events.OrderPayload{}, domain.ErrOrderNotFound
			}
			return p, nil
		}
	}

	o, err := h.Orders.GetOrder(ctx, id)
	if err != nil {
		return events.OrderPayload{}, err
	}
	if o.OwnerID != owner {
		return events.OrderPayload{}, domain.ErrOrderNotFound
	}

	p := events.FromOrder(o)
	h.cache(ctx, log, p)
	return p, nil
}

func (h *OrdersHandler) cache(ctx context.Context, log *zap.Logger, p events.OrderPayload) {
	if h.Redis == nil {
		return
	}
	if err := redisx.CacheOrder(ctx, h.Redis, p); err != nil {
		log.Warn("order cache write failed", zap.String("order_id", p.OrderID), zap.Error(err))
	}
}

func (h *OrdersHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
