package domain

import (
	"time"

	"github.com/google/uuid"
)

type Cart struct {
	OwnerID string
	Items   []CartItem
}

type CartItem struct {
	ProductID uuid.UUID
	Quantity  int

	CreatedAt time.Time
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Item returns the line for productID, if present.
func (c Cart) Item(productID uuid.UUID) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return CartItem{}, false
}
