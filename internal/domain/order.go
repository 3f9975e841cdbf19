package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFulfilled OrderStatus = "FULFILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Checkout only ever produces PENDING orders; the table is the extension point
// for a later fulfilment flow.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusFulfilled: true, OrderStatusCancelled: true},
	OrderStatusFulfilled: {},
	OrderStatusCancelled: {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

type Order struct {
	ID      uuid.UUID
	OwnerID string
	Lines   []OrderLine
	Total   Money
	Status  OrderStatus

	CreatedAt time.Time
}

// OrderLine keeps the unit price captured at checkout.
type OrderLine struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice Money
}

func (l OrderLine) Subtotal() Money {
	return l.UnitPrice.Mul(l.Quantity)
}
