package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/retail-checkout/internal/events"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Publisher delivers one outbox record. It must return only after the broker
// acknowledged the message.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type Relay struct {
	Pool      *pgxpool.Pool
	Publisher Publisher
	Interval  time.Duration
	Batch     int
	Logger    *zap.Logger
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		n, err := r.RelayOnce(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			r.logger().Warn("outbox relay failed", zap.Error(err))
		case n > 0:
			r.logger().Debug("outbox relayed", zap.Int("count", n))
		}

		// keep draining while full batches come back
		if err == nil && n == r.batch() {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// RelayOnce publishes one batch of pending records and marks them sent. A
// record is marked only after it was published, so delivery is at least once.
func (r *Relay) RelayOnce(ctx context.Context) (sent int, txErr error) {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if txErr != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				txErr = errors.Join(txErr, fmt.Errorf("tx.Rollback: %w", rbErr))
			}
		}
	}()

	recs, err := FetchPending(ctx, tx, r.batch())
	if err != nil {
		return 0, err
	}

	for _, rec := range recs {
		if err := r.Publisher.Publish(ctx, rec.Topic, []byte(rec.Key), rec.Payload,
			map[string]string{events.HeaderEventType: rec.EventType}); err != nil {
			perr := fmt.Errorf("publish %s: %w", rec.EventID, err)
			// keep what was already published marked
			if sent > 0 {
				if cerr := tx.Commit(ctx); cerr != nil {
					return 0, errors.Join(perr, cerr)
				}
			}
			return sent, perr
		}
		if err := MarkSent(ctx, tx, rec.ID); err != nil {
			return 0, err
		}
		sent++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("tx.Commit: %w", err)
	}
	return sent, nil
}

func (r *Relay) batch() int {
	if r.Batch <= 0 {
		return 100
	}
	return r.Batch
}

func (r *Relay) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
