// Package checkout converts a customer's cart into an order.
//
// A checkout walks Start → Validating → Reserving → Recording → ClearingCart
// → Done. Validating and Reserving may abort; nothing is written before
// Reserving succeeds. Stock locks live only inside the catalog's ReserveStock.
// When the cart store is a port.CartLocker, checkouts of one owner run one at
// a time, so a second concurrent call sees either the full cart or the
// emptied one.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/ariefcatur/retail-checkout/internal/port"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type State string

const (
	StateStart        State = "start"
	StateValidating   State = "validating"
	StateReserving    State = "reserving"
	StateRecording    State = "recording"
	StateClearingCart State = "clearing_cart"
	StateDone         State = "done"
	StateAborted      State = "aborted"
)

// Observer receives one call per finished checkout.
type Observer interface {
	CheckoutFinished(outcome string, elapsed time.Duration)
}

type Service struct {
	catalog  port.Catalog
	carts    port.CartStore
	ledger   port.OrderLedger
	logger   *zap.Logger
	tracer   trace.Tracer
	observer Observer
	now      func() time.Time
	newID    func() uuid.UUID
}

type Option func(*Service)

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(catalog port.Catalog, carts port.CartStore, ledger port.OrderLedger, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		catalog: catalog,
		carts:   carts,
		ledger:  ledger,
		logger:  logger,
		tracer:  otel.Tracer("github.com/ariefcatur/retail-checkout/internal/checkout"),
		now:     time.Now,
		newID:   uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout places an order for everything in ownerID's cart. On failure the
// error is always a *Error.
func (s *Service) Checkout(ctx context.Context, ownerID string) (domain.Order, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "checkout", trace.WithAttributes(attribute.String("owner.id", ownerID)))
	defer span.End()

	log := s.logger.With(zap.String("owner_id", ownerID))

	order, state, cerr := s.run(ctx, ownerID, log)

	outcome := "ok"
	if cerr != nil {
		outcome = string(cerr.Code)
		span.RecordError(cerr)
		span.SetStatus(codes.Error, string(cerr.Code))
		span.SetAttributes(attribute.String("checkout.failed_state", string(state)))

		fields := []zap.Field{
			zap.String("state", string(state)),
			zap.String("code", string(cerr.Code)),
			zap.Error(cerr.Err),
		}
		if cerr.Code == CodeOutcomeUnknown {
			log.Error("checkout needs reconciliation", fields...)
		} else {
			log.Info("checkout aborted", fields...)
		}
	} else {
		span.SetAttributes(
			attribute.String("order.id", order.ID.String()),
			attribute.String("order.total", order.Total.String()),
		)
		log.Info("checkout done",
			zap.String("order_id", order.ID.String()),
			zap.String("total", order.Total.String()),
			zap.Int("lines", len(order.Lines)),
		)
	}
	if s.observer != nil {
		s.observer.CheckoutFinished(outcome, s.now().Sub(start))
	}

	if cerr != nil {
		return domain.Order{}, cerr
	}
	return order, nil
}

func (s *Service) run(ctx context.Context, ownerID string, log *zap.Logger) (domain.Order, State, *Error) {
	state := StateStart
	enter := func(next State) {
		log.Debug("checkout state", zap.String("from", string(state)), zap.String("state", string(next)))
		state = next
	}

	enter(StateValidating)
	unlock, cerr := s.lockCart(ctx, ownerID)
	if cerr != nil {
		return domain.Order{}, state, cerr
	}
	defer unlock()

	cart, cerr := s.loadCart(ctx, ownerID)
	if cerr != nil {
		return domain.Order{}, state, cerr
	}
	lines, cerr := s.snapshot(ctx, cart)
	if cerr != nil {
		return domain.Order{}, state, cerr
	}

	enter(StateReserving)
	batch := make([]domain.StockRequest, 0, len(lines))
	for _, l := range lines {
		batch = append(batch, domain.StockRequest{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	if err := s.catalog.ReserveStock(ctx, batch); err != nil {
		return domain.Order{}, state, classifyReserve(err)
	}

	enter(StateRecording)
	total, err := sumLines(lines)
	if err != nil {
		// currencies were checked while snapshotting
		return domain.Order{}, state, outcomeUnknown(err)
	}
	order := domain.Order{
		ID:        s.newID(),
		OwnerID:   ownerID,
		Lines:     lines,
		Total:     total,
		Status:    domain.OrderStatusPending,
		CreatedAt: s.now().UTC(),
	}

	if committer, ok := s.ledger.(port.OrderCommitter); ok {
		id, err := committer.CommitOrder(ctx, order)
		if err != nil {
			log.Error("order commit failed after stock was reserved", zap.Any("batch", batch), zap.Error(err))
			return domain.Order{}, state, outcomeUnknown(err)
		}
		order.ID = id
		enter(StateClearingCart)
	} else {
		id, err := s.ledger.AppendOrder(ctx, order)
		if err != nil {
			log.Error("order append failed after stock was reserved", zap.Any("batch", batch), zap.Error(err))
			return domain.Order{}, state, outcomeUnknown(err)
		}
		order.ID = id

		enter(StateClearingCart)
		if err := s.carts.ClearCart(ctx, ownerID); err != nil {
			log.Error("cart clear failed after order was recorded", zap.String("order_id", id.String()), zap.Error(err))
			return domain.Order{}, state, outcomeUnknown(err)
		}
	}

	enter(StateDone)
	return order, state, nil
}

func (s *Service) lockCart(ctx context.Context, ownerID string) (func(), *Error) {
	locker, ok := s.carts.(port.CartLocker)
	if !ok || ownerID == "" {
		return func() {}, nil
	}
	unlock, err := locker.LockCart(ctx, ownerID)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return unlock, nil
}

// loadCart re-validates what the cart boundary should already guarantee.
func (s *Service) loadCart(ctx context.Context, ownerID string) (domain.Cart, *Error) {
	if ownerID == "" {
		return domain.Cart{}, newError(CodeInvalidCartState, "cart owner is missing", domain.ErrInvalidCartState)
	}

	cart, err := s.carts.GetCart(ctx, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyCart) {
			return domain.Cart{}, newError(CodeEmptyCart, "cart is empty", domain.ErrEmptyCart)
		}
		return domain.Cart{}, storeUnavailable(err)
	}
	if cart.IsEmpty() {
		return domain.Cart{}, newError(CodeEmptyCart, "cart is empty", domain.ErrEmptyCart)
	}

	seen := make(map[uuid.UUID]struct{}, len(cart.Items))
	for _, it := range cart.Items {
		if it.Quantity <= 0 {
			return domain.Cart{}, newError(CodeInvalidCartState, "cart contents are inconsistent",
				fmt.Errorf("product %s has quantity %d: %w", it.ProductID, it.Quantity, domain.ErrInvalidCartState))
		}
		if _, dup := seen[it.ProductID]; dup {
			return domain.Cart{}, newError(CodeInvalidCartState, "cart contents are inconsistent",
				fmt.Errorf("product %s listed twice: %w", it.ProductID, domain.ErrInvalidCartState))
		}
		seen[it.ProductID] = struct{}{}
	}
	return cart, nil
}

// snapshot resolves every cart line and captures its price. The captured
// price is what the order records, whatever happens to the catalog later.
func (s *Service) snapshot(ctx context.Context, cart domain.Cart) ([]domain.OrderLine, *Error) {
	lines := make([]domain.OrderLine, 0, len(cart.Items))
	for _, it := range cart.Items {
		p, err := s.catalog.GetProduct(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				return nil, newError(CodeProductNotFound,
					fmt.Sprintf("product %s is no longer available", it.ProductID),
					fmt.Errorf("product %s: %w", it.ProductID, err))
			}
			return nil, storeUnavailable(err)
		}
		if len(lines) > 0 && lines[0].UnitPrice.Currency != p.Price.Currency {
			return nil, newError(CodeInvalidCartState, "cart mixes currencies",
				fmt.Errorf("product %s priced in %s, cart in %s: %w",
					p.ID, p.Price.Currency, lines[0].UnitPrice.Currency, domain.ErrInvalidCartState))
		}
		lines = append(lines, domain.OrderLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: p.Price,
		})
	}
	return lines, nil
}

func sumLines(lines []domain.OrderLine) (domain.Money, error) {
	total := domain.Money{Currency: lines[0].UnitPrice.Currency}
	for _, l := range lines {
		var err error
		if total, err = total.Add(l.Subtotal()); err != nil {
			return domain.Money{}, err
		}
	}
	return total, nil
}
