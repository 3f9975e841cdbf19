package port

import (
	"context"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/google/uuid"
)

type OrderLedger interface {
	AppendOrder(ctx context.Context, order domain.Order) (uuid.UUID, error)
}

// OrderCommitter records an order and empties its owner's cart atomically.
// Ledgers that implement it let checkout commit both steps in one write.
type OrderCommitter interface {
	CommitOrder(ctx context.Context, order domain.Order) (uuid.UUID, error)
}

type OrderRepository interface {
	OrderLedger
	OrderCommitter

	GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
	ListOrders(ctx context.Context, ownerID string) ([]domain.Order, error)
}
