// Package projection keeps the Redis order summaries in step with the
// order.placed topic.
package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/retail-checkout/internal/events"
	kafkax "github.com/ariefcatur/retail-checkout/internal/kafka"
	"github.com/ariefcatur/retail-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Projector struct {
	Redis       redis.Cmdable
	ServiceName string
	Logger      *zap.Logger
}

// HandleOrderPlaced is installed as the consumer handler. Malformed
// messages are logged and skipped; Redis failures are returned so the
// offset is not committed.
func (p *Projector) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	log := p.logger().With(zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset))

	if t, ok := kafkax.Header(m, events.HeaderEventType); ok && t != events.EventOrderPlaced {
		return nil
	}

	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Warn("skipping undecodable envelope", zap.Error(err))
		return nil
	}
	if env.EventType != events.EventOrderPlaced {
		return nil
	}
	log = log.With(zap.String("event_id", env.EventID))

	payload, err := events.UnwrapPayload[events.OrderPayload](env.Payload)
	if err != nil {
		log.Warn("skipping undecodable payload", zap.Error(err))
		return nil
	}
	if _, err := payload.Order(); err != nil {
		log.Warn("skipping invalid order payload", zap.Error(err))
		return nil
	}

	first, err := redisx.MarkProcessed(ctx, p.Redis, p.ServiceName, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		log.Debug("duplicate event")
		return nil
	}

	if err := redisx.CacheOrder(ctx, p.Redis, payload); err != nil {
		if ferr := redisx.ForgetProcessed(ctx, p.Redis, p.ServiceName, env.EventID); ferr != nil {
			log.Warn("dedup marker left behind", zap.Error(ferr))
		}
		return fmt.Errorf("cache order %s: %w", payload.OrderID, err)
	}

	log.Debug("order summary cached", zap.String("order_id", payload.OrderID))
	return nil
}

func (p *Projector) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
