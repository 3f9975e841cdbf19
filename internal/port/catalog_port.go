package port

import (
	"context"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/google/uuid"
)

type Catalog interface {
	// GetProduct returns domain.ErrProductNotFound for unknown ids.
	GetProduct(ctx context.Context, id uuid.UUID) (domain.Product, error)

	// ReserveStock decrements every product in the batch, or none of them.
	// The first short product in batch order is reported as
	// *domain.InsufficientStockError.
	ReserveStock(ctx context.Context, batch []domain.StockRequest) error
}

type CatalogRepository interface {
	Catalog

	ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error)
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, patch domain.ProductPatch) (domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) (bool, error)

	// AdjustStock adds delta to the product's stock in one atomic step. A
	// delta that would take stock below zero fails with
	// *domain.InsufficientStockError and changes nothing.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (domain.Product, error)
}
