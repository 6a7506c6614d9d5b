package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopflow/shopflow/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, quantity, created_at`

	listProductsSQL   = `SELECT ` + productColumns + ` FROM products ORDER BY id`
	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	lockStockSQL      = `SELECT quantity FROM products WHERE id = $1 FOR UPDATE`
	setStockSQL       = `UPDATE products SET quantity = $2 WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (name, description, price, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description, price = EXCLUDED.price, quantity = EXCLUDED.quantity
		RETURNING id, created_at`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// GetByID returns a single product or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// Decrement reduces the stock of a product by qty under a row lock, so
// concurrent decrements of the same product serialize and the stock never
// goes negative.
func (r *ProductRepository) Decrement(ctx context.Context, id int64, qty int) (product.StockChange, error) {
	return r.adjust(ctx, id, func(current int) (int, error) {
		if current < qty {
			return 0, &product.InsufficientStockError{ProductID: id, Requested: qty, Available: current}
		}
		return current - qty, nil
	})
}

// Restore adds qty back to the stock of a product. The result never exceeds
// product.MaxQuantity.
func (r *ProductRepository) Restore(ctx context.Context, id int64, qty int) (product.StockChange, error) {
	return r.adjust(ctx, id, func(current int) (int, error) {
		if qty > product.MaxQuantity-current {
			return 0, product.ErrStockOverflow
		}
		return current + qty, nil
	})
}

func (r *ProductRepository) adjust(ctx context.Context, id int64, next func(current int) (int, error)) (product.StockChange, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return product.StockChange{}, fmt.Errorf("beginning stock tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current int
	if err := tx.QueryRow(ctx, lockStockSQL, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.StockChange{}, product.ErrNotFound
		}
		return product.StockChange{}, fmt.Errorf("locking product %d: %w", id, err)
	}

	updated, err := next(current)
	if err != nil {
		return product.StockChange{}, err
	}
	if _, err := tx.Exec(ctx, setStockSQL, id, updated); err != nil {
		return product.StockChange{}, fmt.Errorf("updating stock of product %d: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return product.StockChange{}, fmt.Errorf("committing stock of product %d: %w", id, err)
	}
	return product.StockChange{ProductID: id, Previous: current, Current: updated}, nil
}

// Upsert inserts the product or updates the one with the same name,
// filling in ID and CreatedAt. Used by the seeder.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, upsertProductSQL, p.Name, p.Description, p.Price, p.Quantity).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.Name, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity, &p.CreatedAt)
	return p, err
}
