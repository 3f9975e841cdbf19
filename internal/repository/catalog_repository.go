package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/ariefcatur/retail-checkout/internal/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type catalogRepository struct {
	q    DBTX
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) port.CatalogRepository {
	return &catalogRepository{
		q:    pool,
		pool: pool,
	}
}

func NewCatalogWithTx(tx pgx.Tx) port.CatalogRepository {
	return &catalogRepository{
		q:    tx,
		pool: nil, // use provided transaction instead
	}
}

const productColumns = `id, name, description, category, image_url, price_amount, price_currency, stock, created_at, updated_at`

func (r *catalogRepository) GetProduct(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	row := r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("scanProduct: %w", err)
	}
	return p, nil
}

func (r *catalogRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	filter = filter.Normalize()
	pattern := "%" + escapeLike(strings.TrimSpace(filter.Search)) + "%"

	var total int
	err := r.q.QueryRow(ctx, `SELECT count(*) FROM products WHERE name ILIKE $1`, pattern).Scan(&total)
	if err != nil {
		return domain.ProductPage{}, fmt.Errorf("count products: %w", err)
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE name ILIKE $1
		ORDER BY name, id
		LIMIT $2 OFFSET $3`, pattern, filter.Limit, filter.Offset())
	if err != nil {
		return domain.ProductPage{}, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var items []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return domain.ProductPage{}, fmt.Errorf("scanProduct: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return domain.ProductPage{}, fmt.Errorf("rows.Err: %w", err)
	}

	return domain.NewProductPage(items, total, filter), nil
}

func (r *catalogRepository) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	err := r.q.QueryRow(ctx, `
		INSERT INTO products (id, name, description, category, image_url, price_amount, price_currency, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Description, p.Category, p.ImageURL, p.Price.Amount, p.Price.Currency.String(), p.Stock,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

// UpdateProduct writes only the fields set in patch. Stock is never part of
// an update, so a stale read cannot undo concurrent reservations.
func (r *catalogRepository) UpdateProduct(ctx context.Context, id uuid.UUID, patch domain.ProductPatch) (domain.Product, error) {
	if err := patch.Validate(); err != nil {
		return domain.Product{}, err
	}

	var (
		amount *decimal.Decimal
		cur    *string
	)
	if patch.Price != nil {
		a, c := patch.Price.Amount, patch.Price.Currency.String()
		amount, cur = &a, &c
	}

	row := r.q.QueryRow(ctx, `
		UPDATE products
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    category = COALESCE($4, category),
		    image_url = COALESCE($5, image_url),
		    price_amount = COALESCE($6, price_amount),
		    price_currency = COALESCE($7, price_currency),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		id, patch.Name, patch.Description, patch.Category, patch.ImageURL, amount, cur,
	)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

// AdjustStock relies on the row lock taken by UPDATE, so it serializes with
// ReserveStock on the same product.
func (r *catalogRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (domain.Product, error) {
	if delta == 0 {
		return domain.Product{}, domain.ErrInvalidQuantity
	}

	row := r.q.QueryRow(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING `+productColumns, id, delta)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, gerr := r.GetProduct(ctx, id)
		if gerr != nil {
			return domain.Product{}, gerr
		}
		return domain.Product{}, &domain.InsufficientStockError{
			ProductID: id,
			Available: current.Stock,
			Requested: -delta,
		}
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("adjust stock: %w", err)
	}
	return p, nil
}

func (r *catalogRepository) DeleteProduct(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReserveStock locks every referenced row in id order, checks the batch in
// caller order and only then decrements. Locks are released at commit.
func (r *catalogRepository) ReserveStock(ctx context.Context, batch []domain.StockRequest) error {
	if err := domain.ValidateBatch(batch); err != nil {
		return err
	}

	_, err := withTx(ctx, r.pool, r.q, func(q DBTX) (struct{}, error) {
		return struct{}{}, reserveLocked(ctx, q, batch)
	})
	if errors.Is(err, errCommit) {
		return errors.Join(domain.ErrOutcomeUnknown, err)
	}
	return err
}

func reserveLocked(ctx context.Context, q DBTX, batch []domain.StockRequest) error {
	ids := make([]string, 0, len(batch))
	for _, req := range batch {
		ids = append(ids, req.ProductID.String())
	}

	rows, err := q.Query(ctx, `SELECT id, stock FROM products WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	stock := make(map[uuid.UUID]int, len(batch))
	for rows.Next() {
		var (
			id uuid.UUID
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			rows.Close()
			return fmt.Errorf("scan stock: %w", err)
		}
		stock[id] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows.Err: %w", err)
	}

	for _, req := range batch {
		available, ok := stock[req.ProductID]
		if !ok {
			return fmt.Errorf("product %s: %w", req.ProductID, domain.ErrProductNotFound)
		}
		if available < req.Quantity {
			return &domain.InsufficientStockError{
				ProductID: req.ProductID,
				Available: available,
				Requested: req.Quantity,
			}
		}
	}

	for _, req := range batch {
		tag, err := q.Exec(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND stock >= $2`, req.ProductID, req.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		// rows are locked, so this only trips if the lock contract is broken
		if tag.RowsAffected() != 1 {
			return &domain.InsufficientStockError{
				ProductID: req.ProductID,
				Available: stock[req.ProductID],
				Requested: req.Quantity,
			}
		}
	}
	return nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p      domain.Product
		amount decimal.Decimal
		cur    string
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Category, &p.ImageURL,
		&amount, &cur, &p.Stock, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}

	price, err := toMoney(amount, cur)
	if err != nil {
		return domain.Product{}, err
	}
	p.Price = price
	return p, nil
}

func toMoney(amount decimal.Decimal, cur string) (domain.Money, error) {
	parsed, err := currency.ParseISO(cur)
	if err != nil {
		return domain.Money{}, fmt.Errorf("currency[%s] is not valid: %w", cur, err)
	}
	return domain.Money{Amount: amount, Currency: parsed}, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
