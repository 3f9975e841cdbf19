package port

import (
	"context"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/google/uuid"
)

type CartStore interface {
	// GetCart returns an empty cart when the owner has none.
	GetCart(ctx context.Context, ownerID string) (domain.Cart, error)
	ClearCart(ctx context.Context, ownerID string) error
}

type CartRepository interface {
	CartStore

	// UpsertItem sets the quantity of productID, appending it when absent.
	UpsertItem(ctx context.Context, ownerID string, productID uuid.UUID, quantity int) error
	// MergeItem adds quantity to the line in one step, appending it when
	// absent. The resulting quantity never exceeds limit.
	MergeItem(ctx context.Context, ownerID string, productID uuid.UUID, quantity, limit int) error
	DeleteItem(ctx context.Context, ownerID string, productID uuid.UUID) (bool, error)
}

// CartLocker serializes checkouts of one owner's cart. unlock must be called
// exactly once.
type CartLocker interface {
	LockCart(ctx context.Context, ownerID string) (unlock func(), err error)
}
