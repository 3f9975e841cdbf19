package httpx

import (
	"time"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/ariefcatur/retail-checkout/internal/events"
)

type ProductResp struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	Price       string    `json:"price"`
	Currency    string    `json:"currency"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProductPageResp struct {
	Items []ProductResp `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
	Limit int           `json:"limit"`
}

type ProductReq struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Price       string `json:"price"`
	Currency    string `json:"currency,omitempty"`
	Stock       int    `json:"stock"`
}

// ProductUpdateReq changes only the fields present. Stock is adjusted
// through StockAdjustReq.
type ProductUpdateReq struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	Price       *string `json:"price,omitempty"`
	Currency    *string `json:"currency,omitempty"`
}

type StockAdjustReq struct {
	Delta int `json:"delta"`
}

type CartResp struct {
	OwnerID string         `json:"owner_id"`
	Items   []CartItemResp `json:"items"`
}

type CartItemResp struct {
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

type AddItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// UpdateItemReq sets Quantity or applies Action ("increase" or "decrease").
type UpdateItemReq struct {
	Quantity *int   `json:"quantity,omitempty"`
	Action   string `json:"action,omitempty"`
}

type CheckoutResp struct {
	Order      events.OrderPayload `json:"order"`
	Idempotent bool                `json:"idempotent"`
}

type OrdersResp struct {
	Orders []events.OrderPayload `json:"orders"`
}

func toProductResp(p domain.Product) ProductResp {
	return ProductResp{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		Price:       p.Price.Amount.StringFixed(2),
		Currency:    p.Price.Currency.String(),
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toCartResp(c domain.Cart) CartResp {
	items := make([]CartItemResp, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, CartItemResp{
			ProductID: it.ProductID.String(),
			Quantity:  it.Quantity,
			AddedAt:   it.CreatedAt,
		})
	}
	return CartResp{OwnerID: c.OwnerID, Items: items}
}
