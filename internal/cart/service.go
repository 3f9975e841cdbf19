// Package cart edits a customer's cart. Quantities are checked against the
// catalog when they change, but nothing is reserved until checkout.
package cart

import (
	"context"
	"fmt"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/ariefcatur/retail-checkout/internal/port"
	"github.com/google/uuid"
)

type Service struct {
	Catalog port.Catalog
	Carts   port.CartRepository
}

func New(catalog port.Catalog, carts port.CartRepository) *Service {
	return &Service{Catalog: catalog, Carts: carts}
}

func (s *Service) GetCart(ctx context.Context, ownerID string) (domain.Cart, error) {
	return s.Carts.GetCart(ctx, ownerID)
}

// AddItem merges quantity into an existing line. The merged quantity is
// capped at the product's current stock. The merge is a single store write,
// so concurrent adds of the same product all count.
func (s *Service) AddItem(ctx context.Context, ownerID string, productID uuid.UUID, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}

	p, err := s.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.Cart{}, err
	}
	if p.Stock == 0 {
		return domain.Cart{}, domain.ErrOutOfStock
	}

	if err := s.Carts.MergeItem(ctx, ownerID, productID, quantity, p.Stock); err != nil {
		return domain.Cart{}, err
	}
	return s.Carts.GetCart(ctx, ownerID)
}

// SetQuantity replaces the line's quantity. Zero or less removes the line.
// Only an increase is checked against stock; lowering a line that stock no
// longer covers is always allowed.
func (s *Service) SetQuantity(ctx context.Context, ownerID string, productID uuid.UUID, quantity int) (domain.Cart, error) {
	c, err := s.Carts.GetCart(ctx, ownerID)
	if err != nil {
		return domain.Cart{}, err
	}
	it, ok := c.Item(productID)
	if !ok {
		return domain.Cart{}, domain.ErrItemNotInCart
	}

	if quantity <= 0 {
		return s.RemoveItem(ctx, ownerID, productID)
	}

	if quantity > it.Quantity {
		p, err := s.Catalog.GetProduct(ctx, productID)
		if err != nil {
			return domain.Cart{}, err
		}
		if quantity > p.Stock {
			return domain.Cart{}, fmt.Errorf("%w: %d left", domain.ErrOutOfStock, p.Stock)
		}
	}

	if err := s.Carts.UpsertItem(ctx, ownerID, productID, quantity); err != nil {
		return domain.Cart{}, err
	}
	return s.Carts.GetCart(ctx, ownerID)
}

func (s *Service) Increase(ctx context.Context, ownerID string, productID uuid.UUID) (domain.Cart, error) {
	return s.step(ctx, ownerID, productID, 1)
}

// Decrease at quantity 1 removes the line.
func (s *Service) Decrease(ctx context.Context, ownerID string, productID uuid.UUID) (domain.Cart, error) {
	return s.step(ctx, ownerID, productID, -1)
}

func (s *Service) step(ctx context.Context, ownerID string, productID uuid.UUID, delta int) (domain.Cart, error) {
	c, err := s.Carts.GetCart(ctx, ownerID)
	if err != nil {
		return domain.Cart{}, err
	}
	it, ok := c.Item(productID)
	if !ok {
		return domain.Cart{}, domain.ErrItemNotInCart
	}
	return s.SetQuantity(ctx, ownerID, productID, it.Quantity+delta)
}

func (s *Service) RemoveItem(ctx context.Context, ownerID string, productID uuid.UUID) (domain.Cart, error) {
	deleted, err := s.Carts.DeleteItem(ctx, ownerID, productID)
	if err != nil {
		return domain.Cart{}, err
	}
	if !deleted {
		return domain.Cart{}, domain.ErrItemNotInCart
	}
	return s.Carts.GetCart(ctx, ownerID)
}
