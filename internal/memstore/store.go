// Package memstore keeps catalog, carts and orders in process memory.
//
// It honours the same contracts as the postgres repositories, including the
// all-or-nothing reservation, but only within a single process. It backs the
// memory store driver and the unit tests.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/google/uuid"
)

type Store struct {
	mu        sync.Mutex
	products  map[uuid.UUID]domain.Product
	carts     map[string][]domain.CartItem
	cartLocks map[string]chan struct{}
	orders    []domain.Order
	now       func() time.Time
}

func New() *Store {
	return &Store{
		products:  map[uuid.UUID]domain.Product{},
		carts:     map[string][]domain.CartItem{},
		cartLocks: map[string]chan struct{}{},
		now:       time.Now,
	}
}

// ---- catalog ----

func (s *Store) GetProduct(_ context.Context, id uuid.UUID) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	filter = filter.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var matched []domain.Product
	for _, p := range s.products {
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	from := min(filter.Offset(), total)
	to := min(from+filter.Limit, total)

	return domain.NewProductPage(slices.Clone(matched[from:to]), total, filter), nil
}

func (s *Store) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, exists := s.products[p.ID]; exists {
		return domain.Product{}, fmt.Errorf("product %s already exists", p.ID)
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, id uuid.UUID, patch domain.ProductPatch) (domain.Product, error) {
	if err := patch.Validate(); err != nil {
		return domain.Product{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	p := patch.Apply(old)
	p.UpdatedAt = s.now()
	s.products[id] = p
	return p, nil
}

func (s *Store) AdjustStock(_ context.Context, id uuid.UUID, delta int) (domain.Product, error) {
	if delta == 0 {
		return domain.Product{}, domain.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if p.Stock+delta < 0 {
		return domain.Product{}, &domain.InsufficientStockError{ProductID: id, Available: p.Stock, Requested: -delta}
	}
	p.Stock += delta
	p.UpdatedAt = s.now()
	s.products[id] = p
	return p, nil
}

func (s *Store) DeleteProduct(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return false, nil
	}
	delete(s.products, id)
	return true, nil
}

// ReserveStock checks the whole batch before touching any counter.
func (s *Store) ReserveStock(_ context.Context, batch []domain.StockRequest) error {
	if err := domain.ValidateBatch(batch); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range batch {
		p, ok := s.products[req.ProductID]
		if !ok {
			return fmt.Errorf("product %s: %w", req.ProductID, domain.ErrProductNotFound)
		}
		if p.Stock < req.Quantity {
			return &domain.InsufficientStockError{
				ProductID: req.ProductID,
				Available: p.Stock,
				Requested: req.Quantity,
			}
		}
	}

	now := s.now()
	for _, req := range batch {
		p := s.products[req.ProductID]
		p.Stock -= req.Quantity
		p.UpdatedAt = now
		s.products[req.ProductID] = p
	}
	return nil
}

// ---- carts ----

func (s *Store) GetCart(_ context.Context, ownerID string) (domain.Cart, error) {
	if ownerID == "" {
		return domain.Cart{}, fmt.Errorf("ownerID is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.Cart{OwnerID: ownerID, Items: slices.Clone(s.carts[ownerID])}, nil
}

func (s *Store) UpsertItem(_ context.Context, ownerID string, productID uuid.UUID, quantity int) error {
	if ownerID == "" {
		return fmt.Errorf("ownerID is empty")
	}
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.carts[ownerID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = quantity
			return nil
		}
	}
	s.carts[ownerID] = append(items, domain.CartItem{
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: s.now(),
	})
	return nil
}

func (s *Store) MergeItem(_ context.Context, ownerID string, productID uuid.UUID, quantity, limit int) error {
	if ownerID == "" {
		return fmt.Errorf("ownerID is empty")
	}
	if quantity <= 0 || limit <= 0 {
		return domain.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.carts[ownerID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = min(items[i].Quantity+quantity, limit)
			return nil
		}
	}
	s.carts[ownerID] = append(items, domain.CartItem{
		ProductID: productID,
		Quantity:  min(quantity, limit),
		CreatedAt: s.now(),
	})
	return nil
}

func (s *Store) DeleteItem(_ context.Context, ownerID string, productID uuid.UUID) (bool, error) {
	if ownerID == "" {
		return false, fmt.Errorf("ownerID is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.carts[ownerID]
	idx := slices.IndexFunc(items, func(it domain.CartItem) bool { return it.ProductID == productID })
	if idx < 0 {
		return false, nil
	}
	s.carts[ownerID] = slices.Delete(items, idx, idx+1)
	return true, nil
}

func (s *Store) ClearCart(_ context.Context, ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("ownerID is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked(ownerID)
	return nil
}

// LockCart waits until no other checkout holds ownerID's cart.
func (s *Store) LockCart(ctx context.Context, ownerID string) (func(), error) {
	if ownerID == "" {
		return nil, fmt.Errorf("ownerID is empty")
	}

	s.mu.Lock()
	l, ok := s.cartLocks[ownerID]
	if !ok {
		l = make(chan struct{}, 1)
		s.cartLocks[ownerID] = l
	}
	s.mu.Unlock()

	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) clearLocked(ownerID string) {
	if _, ok := s.carts[ownerID]; ok {
		s.carts[ownerID] = nil
	}
}

// ---- orders ----

func (s *Store) AppendOrder(_ context.Context, order domain.Order) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendLocked(order), nil
}

func (s *Store) CommitOrder(_ context.Context, order domain.Order) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.appendLocked(order)
	s.clearLocked(order.OwnerID)
	return id, nil
}

func (s *Store) appendLocked(order domain.Order) uuid.UUID {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.Lines = slices.Clone(order.Lines)
	s.orders = append(s.orders, order)
	return order.ID
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.ID == id {
			o.Lines = slices.Clone(o.Lines)
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// ListOrders returns the owner's orders, newest first.
func (s *Store) ListOrders(_ context.Context, ownerID string) ([]domain.Order, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("ownerID is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for i := len(s.orders) - 1; i >= 0; i-- {
		o := s.orders[i]
		if o.OwnerID != ownerID {
			continue
		}
		o.Lines = slices.Clone(o.Lines)
		out = append(out, o)
	}
	return out, nil
}
