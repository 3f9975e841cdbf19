package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/retail-checkout/internal/events"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

type ClaimState int

const (
	// ClaimAcquired means the caller owns the key and must Complete or Release it.
	ClaimAcquired ClaimState = iota
	// ClaimPending means another request holds the key and has not finished.
	ClaimPending
	// ClaimDone means the key already maps to an order.
	ClaimDone
)

// ClaimCheckout reserves an idempotency key for one checkout attempt. For
// ClaimDone the returned string is the order id.
func ClaimCheckout(ctx context.Context, rdb redis.Cmdable, ownerID, key string) (ClaimState, string, error) {
	k := fmt.Sprintf(KeyIdemCheckout, ownerID, key)

	ok, err := rdb.SetNX(ctx, k, pendingMarker, TTLIdempotency).Result()
	if err != nil {
		return 0, "", fmt.Errorf("setnx %s: %w", k, err)
	}
	if ok {
		return ClaimAcquired, "", nil
	}

	v, err := rdb.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between the two calls
		return ClaimCheckout(ctx, rdb, ownerID, key)
	case err != nil:
		return 0, "", fmt.Errorf("get %s: %w", k, err)
	case v == pendingMarker:
		return ClaimPending, "", nil
	default:
		return ClaimDone, v, nil
	}
}

func CompleteCheckout(ctx context.Context, rdb redis.Cmdable, ownerID, key, orderID string) error {
	k := fmt.Sprintf(KeyIdemCheckout, ownerID, key)
	if err := rdb.Set(ctx, k, orderID, TTLIdempotency).Err(); err != nil {
		return fmt.Errorf("set %s: %w", k, err)
	}
	return nil
}

// ReleaseCheckout frees the key so the same request can be retried.
func ReleaseCheckout(ctx context.Context, rdb redis.Cmdable, ownerID, key string) error {
	k := fmt.Sprintf(KeyIdemCheckout, ownerID, key)
	if err := rdb.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("del %s: %w", k, err)
	}
	return nil
}

func CacheOrder(ctx context.Context, rdb redis.Cmdable, p events.OrderPayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal order summary: %w", err)
	}
	k := fmt.Sprintf(KeyOrderSummary, p.OrderID)
	if err := rdb.Set(ctx, k, b, TTLOrderSummary).Err(); err != nil {
		return fmt.Errorf("set %s: %w", k, err)
	}
	return nil
}

// CachedOrder reports false when the order is not cached.
func CachedOrder(ctx context.Context, rdb redis.Cmdable, orderID string) (events.OrderPayload, bool, error) {
	k := fmt.Sprintf(KeyOrderSummary, orderID)

	b, err := rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return events.OrderPayload{}, false, nil
	}
	if err != nil {
		return events.OrderPayload{}, false, fmt.Errorf("get %s: %w", k, err)
	}

	var p events.OrderPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return events.OrderPayload{}, false, fmt.Errorf("decode %s: %w", k, err)
	}
	return p, true, nil
}

// MarkProcessed returns true the first time it sees eventID for service.
func MarkProcessed(ctx context.Context, rdb redis.Cmdable, service, eventID string) (bool, error) {
	k := fmt.Sprintf(KeyDedup, service, eventID)
	ok, err := rdb.SetNX(ctx, k, "1", TTLDedup).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", k, err)
	}
	return ok, nil
}

// ForgetProcessed undoes MarkProcessed when handling failed.
func ForgetProcessed(ctx context.Context, rdb redis.Cmdable, service, eventID string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeyDedup, service, eventID)).Err()
}
