package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/ariefcatur/retail-checkout/internal/events"
	"github.com/ariefcatur/retail-checkout/internal/outbox"
	"github.com/ariefcatur/retail-checkout/internal/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type orderRepository struct {
	q        DBTX
	pool     *pgxpool.Pool
	producer string
}

// NewOrder returns the order ledger. producer names this service in the
// envelopes CommitOrder writes to the outbox.
func NewOrder(pool *pgxpool.Pool, producer string) port.OrderRepository {
	return &orderRepository{
		q:        pool,
		pool:     pool,
		producer: producer,
	}
}

func NewOrderWithTx(tx pgx.Tx, producer string) port.OrderRepository {
	return &orderRepository{
		q:        tx,
		pool:     nil, // use provided transaction instead
		producer: producer,
	}
}

func (r *orderRepository) AppendOrder(ctx context.Context, order domain.Order) (uuid.UUID, error) {
	if err := validateOrder(order); err != nil {
		return uuid.Nil, err
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	return withTx(ctx, r.pool, r.q, func(q DBTX) (uuid.UUID, error) {
		return insertOrder(ctx, q, order)
	})
}

// CommitOrder appends the order, empties the owner's cart and queues the
// OrderPlaced event in one transaction.
func (r *orderRepository) CommitOrder(ctx context.Context, order domain.Order) (uuid.UUID, error) {
	if err := validateOrder(order); err != nil {
		return uuid.Nil, err
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	env, err := events.NewOrderPlaced(order, r.producer, time.Now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("events.NewOrderPlaced: %w", err)
	}

	return withTx(ctx, r.pool, r.q, func(q DBTX) (uuid.UUID, error) {
		id, err := insertOrder(ctx, q, order)
		if err != nil {
			return uuid.Nil, err
		}
		if _, err := q.Exec(ctx, `DELETE FROM cart_items WHERE owner_id = $1`, order.OwnerID); err != nil {
			return uuid.Nil, fmt.Errorf("clear cart: %w", err)
		}
		if err := outbox.Insert(ctx, q, env.EventID, env.EventType, events.TopicOrderPlaced, id.String(), env); err != nil {
			return uuid.Nil, fmt.Errorf("outbox.Insert: %w", err)
		}
		return id, nil
	})
}

func insertOrder(ctx context.Context, q DBTX, order domain.Order) (uuid.UUID, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO orders (id, owner_id, status, total_amount, total_currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, order.OwnerID, string(order.Status), order.Total.Amount, order.Total.Currency.String(), order.CreatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert order: %w", err)
	}

	for i, l := range order.Lines {
		_, err := q.Exec(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, quantity, unit_amount, unit_currency)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID, i, l.ProductID, l.Quantity, l.UnitPrice.Amount, l.UnitPrice.Currency.String())
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert order line %d: %w", i, err)
		}
	}
	return order.ID, nil
}

func (r *orderRepository) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, owner_id, status, total_amount, total_currency, created_at
		FROM orders WHERE id = $1`, id)

	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("scanOrder: %w", err)
	}

	lines, err := r.loadLines(ctx, []uuid.UUID{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines[order.ID]
	return order, nil
}

// ListOrders returns the owner's orders, newest first.
func (r *orderRepository) ListOrders(ctx context.Context, ownerID string) ([]domain.Order, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("ownerID is empty")
	}

	rows, err := r.q.Query(ctx, `
		SELECT id, owner_id, status, total_amount, total_currency, created_at
		FROM orders
		WHERE owner_id = $1
		ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []domain.Order
		ids    []uuid.UUID
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanOrder: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	lines, err := r.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]domain.OrderLine, error) {
	ids := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		ids = append(ids, id.String())
	}

	rows, err := r.q.Query(ctx, `
		SELECT order_id, product_id, quantity, unit_amount, unit_currency
		FROM order_lines
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, line_no`, ids)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.OrderLine, len(orderIDs))
	for rows.Next() {
		var (
			orderID uuid.UUID
			l       domain.OrderLine
			amount  decimal.Decimal
			cur     string
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.Quantity, &amount, &cur); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if l.UnitPrice, err = toMoney(amount, cur); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], l)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		status string
		amount decimal.Decimal
		cur    string
	)
	if err := row.Scan(&o.ID, &o.OwnerID, &status, &amount, &cur, &o.CreatedAt); err != nil {
		return domain.Order{}, err
	}

	total, err := toMoney(amount, cur)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.Total = total
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

func validateOrder(order domain.Order) error {
	if order.OwnerID == "" {
		return fmt.Errorf("ownerID is empty")
	}
	if len(order.Lines) == 0 {
		return fmt.Errorf("order has no lines")
	}
	return nil
}
