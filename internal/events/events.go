package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	EventOrderPlaced = "OrderPlaced"

	// HeaderEventType lets consumers skip events without decoding them.
	HeaderEventType = "x-event-type"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// OrderPayload is the wire form of an order. It is also what the order
// cache stores.
type OrderPayload struct {
	OrderID   string        `json:"order_id"`
	OwnerID   string        `json:"owner_id"`
	Status    string        `json:"status"`
	Lines     []LinePayload `json:"lines"`
	Total     string        `json:"total"`
	Currency  string        `json:"currency"`
	CreatedAt time.Time     `json:"created_at"`
}

type LinePayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

func FromOrder(o domain.Order) OrderPayload {
	lines := make([]LinePayload, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, LinePayload{
			ProductID: l.ProductID.String(),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.Amount.StringFixed(2),
		})
	}
	return OrderPayload{
		OrderID:   o.ID.String(),
		OwnerID:   o.OwnerID,
		Status:    string(o.Status),
		Lines:     lines,
		Total:     o.Total.Amount.StringFixed(2),
		Currency:  o.Total.Currency.String(),
		CreatedAt: o.CreatedAt,
	}
}

func (p OrderPayload) Order() (domain.Order, error) {
	id, err := uuid.Parse(p.OrderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_id: %w", err)
	}
	cur, err := currency.ParseISO(p.Currency)
	if err != nil {
		return domain.Order{}, fmt.Errorf("currency[%s] is not valid: %w", p.Currency, err)
	}
	total, err := decimal.NewFromString(p.Total)
	if err != nil {
		return domain.Order{}, fmt.Errorf("total: %w", err)
	}

	lines := make([]domain.OrderLine, 0, len(p.Lines))
	for i, l := range p.Lines {
		pid, err := uuid.Parse(l.ProductID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("lines[%d].product_id: %w", i, err)
		}
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return domain.Order{}, fmt.Errorf("lines[%d].unit_price: %w", i, err)
		}
		lines = append(lines, domain.OrderLine{
			ProductID: pid,
			Quantity:  l.Quantity,
			UnitPrice: domain.NewMoney(price, cur),
		})
	}

	return domain.Order{
		ID:        id,
		OwnerID:   p.OwnerID,
		Lines:     lines,
		Total:     domain.NewMoney(total, cur),
		Status:    domain.OrderStatus(p.Status),
		CreatedAt: p.CreatedAt,
	}, nil
}

// NewOrderPlaced wraps the order in a version 1 envelope.
func NewOrderPlaced(o domain.Order, producer string, now time.Time) (Envelope, error) {
	payload, err := json.Marshal(FromOrder(o))
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    now.UTC(),
		Producer:      producer,
		CorrelationID: o.ID.String(),
		Payload:       payload,
	}, nil
}

// UnwrapPayload decodes the envelope payload into T.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
