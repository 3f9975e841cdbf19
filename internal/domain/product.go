package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Product is owned by the catalog. Stock only changes through a reservation
// or an atomic adjustment, never by rewriting the record.
type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Category    string
	ImageURL    string
	Price       Money
	Stock       int

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ProductFilter struct {
	Search string
	Page   int
	Limit  int
}

type ProductPage struct {
	Items []Product
	Total int
	Page  int
	Pages int
	Limit int
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Normalize clamps page and limit to usable values.
func (f ProductFilter) Normalize() ProductFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

func (f ProductFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

func NewProductPage(items []Product, total int, f ProductFilter) ProductPage {
	pages := 0
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return ProductPage{
		Items: items,
		Total: total,
		Page:  f.Page,
		Pages: pages,
		Limit: f.Limit,
	}
}

// StockRequest is one element of a reservation batch.
type StockRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidProduct)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price is negative", ErrInvalidProduct)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock is negative", ErrInvalidProduct)
	}
	return nil
}

// ProductPatch changes only the fields that are set.
type ProductPatch struct {
	Name        *string
	Description *string
	Category    *string
	ImageURL    *string
	Price       *Money
}

func (p ProductPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidProduct)
	}
	if p.Price != nil && p.Price.IsNegative() {
		return fmt.Errorf("%w: price is negative", ErrInvalidProduct)
	}
	return nil
}

// Apply returns prod with the patch applied. Stock is left alone.
func (p ProductPatch) Apply(prod Product) Product {
	if p.Name != nil {
		prod.Name = *p.Name
	}
	if p.Description != nil {
		prod.Description = *p.Description
	}
	if p.Category != nil {
		prod.Category = *p.Category
	}
	if p.ImageURL != nil {
		prod.ImageURL = *p.ImageURL
	}
	if p.Price != nil {
		prod.Price = *p.Price
	}
	return prod
}

// ValidateBatch rejects empty batches, non-positive quantities and repeated
// products. A cart that produces such a batch is a defect upstream.
func ValidateBatch(batch []StockRequest) error {
	if len(batch) == 0 {
		return fmt.Errorf("empty batch: %w", ErrInvalidCartState)
	}
	seen := make(map[uuid.UUID]struct{}, len(batch))
	for _, req := range batch {
		if req.Quantity <= 0 {
			return fmt.Errorf("product %s qty %d: %w", req.ProductID, req.Quantity, ErrInvalidCartState)
		}
		if _, dup := seen[req.ProductID]; dup {
			return fmt.Errorf("duplicate product %s: %w", req.ProductID, ErrInvalidCartState)
		}
		seen[req.ProductID] = struct{}{}
	}
	return nil
}
