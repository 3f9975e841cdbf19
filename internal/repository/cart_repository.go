package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/ariefcatur/retail-checkout/internal/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type cartRepository struct {
	q    DBTX
	pool *pgxpool.Pool
	// lockSlots bounds the connections pinned by LockCart so queries always
	// have some left.
	lockSlots chan struct{}
}

// CartRepository is the postgres cart store. It also serializes checkouts per
// owner through LockCart.
type CartRepository interface {
	port.CartRepository
	port.CartLocker
}

func NewCart(pool *pgxpool.Pool) CartRepository {
	return &cartRepository{
		q:         pool,
		pool:      pool,
		lockSlots: make(chan struct{}, max(1, int(pool.Config().MaxConns)/2)),
	}
}

func NewCartWithTx(tx pgx.Tx) CartRepository {
	return &cartRepository{
		q:    tx,
		pool: nil, // use provided transaction instead
	}
}

func (r *cartRepository) GetCart(ctx context.Context, ownerID string) (domain.Cart, error) {
	if ownerID == "" {
		return domain.Cart{}, fmt.Errorf("ownerID is empty")
	}

	rows, err := r.q.Query(ctx, `
		SELECT product_id, quantity, created_at
		FROM cart_items
		WHERE owner_id = $1
		ORDER BY seq`, ownerID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.CreatedAt); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("rows.Err: %w", err)
	}

	return domain.Cart{
		OwnerID: ownerID,
		Items:   items,
	}, nil
}

// UpsertItem keeps the original position of an existing line.
func (r *cartRepository) UpsertItem(ctx context.Context, ownerID string, productID uuid.UUID, quantity int) error {
	if ownerID == "" {
		return fmt.Errorf("ownerID is empty")
	}
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO cart_items (owner_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		ownerID, productID, quantity)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

func (r *cartRepository) MergeItem(ctx context.Context, ownerID string, productID uuid.UUID, quantity, limit int) error {
	if ownerID == "" {
		return fmt.Errorf("ownerID is empty")
	}
	if quantity <= 0 || limit <= 0 {
		return domain.ErrInvalidQuantity
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO cart_items (owner_id, product_id, quantity)
		VALUES ($1, $2, LEAST($3::int, $4::int))
		ON CONFLICT (owner_id, product_id)
		DO UPDATE SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, $4::int)`,
		ownerID, productID, quantity, limit)
	if err != nil {
		return fmt.Errorf("merge cart item: %w", err)
	}
	return nil
}

func (r *cartRepository) DeleteItem(ctx context.Context, ownerID string, productID uuid.UUID) (bool, error) {
	if ownerID == "" {
		return false, fmt.Errorf("ownerID is empty")
	}

	tag, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE owner_id = $1 AND product_id = $2`, ownerID, productID)
	if err != nil {
		return false, fmt.Errorf("delete cart item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClearCart removes every line in one statement, so concurrent readers see
// either the full cart or an empty one.
func (r *cartRepository) ClearCart(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("ownerID is empty")
	}

	if _, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

const cartLockNamespace = "cart:"

// LockCart holds a session advisory lock for ownerID on a dedicated
// connection until unlock. Inside a transaction it takes the transaction
// scoped lock instead and unlock is a no-op.
func (r *cartRepository) LockCart(ctx context.Context, ownerID string) (func(), error) {
	if ownerID == "" {
		return nil, fmt.Errorf("ownerID is empty")
	}
	key := cartLockNamespace + ownerID

	if r.pool == nil {
		if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return nil, fmt.Errorf("lock cart: %w", err)
		}
		return func() {}, nil
	}

	select {
	case r.lockSlots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("lock cart: %w", ctx.Err())
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		<-r.lockSlots
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		// a cancelled wait may still have been granted
		discard(conn)
		<-r.lockSlots
		return nil, fmt.Errorf("lock cart: %w", err)
	}

	return func() {
		defer func() { <-r.lockSlots }()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
			discard(conn)
			return
		}
		conn.Release()
	}, nil
}

// discard closes a connection whose session may hold an advisory lock
// instead of returning it to the pool.
func discard(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = conn.Hijack().Close(ctx)
}
