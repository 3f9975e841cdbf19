package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{owner_id}:{idempotency_key} -> "pending" | order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Order summary cache: order_summary:{order_id} -> events.OrderPayload JSON
	KeyOrderSummary = "order_summary:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

const pendingMarker = "pending"

var (
	TTLIdempotency  = 24 * time.Hour
	TTLOrderSummary = 1 * time.Hour
	TTLDedup        = 48 * time.Hour
)
