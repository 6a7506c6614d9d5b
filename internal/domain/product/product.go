package product

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrInvalidQuantity is returned for non-positive stock adjustments.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// MaxQuantity is the largest stock a product can hold.
const MaxQuantity = math.MaxInt32

// ErrStockOverflow is returned when a restore would push the stock past
// MaxQuantity.
var ErrStockOverflow = errors.New("stock would exceed 2147483647")

// InsufficientStockError indicates a decrement would drive stock below zero.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Product represents a catalog item with its on-hand stock.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int
	CreatedAt   time.Time
}

// StockChange reports the stock level around a decrement or restore.
type StockChange struct {
	ProductID int64
	Previous  int
	Current   int
}

// Repository defines persistence operations for the product catalog.
//
// Decrement and Restore must be atomic per product row: concurrent callers
// for the same product are serialized by the store.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	Decrement(ctx context.Context, id int64, qty int) (StockChange, error)
	Restore(ctx context.Context, id int64, qty int) (StockChange, error)
}
