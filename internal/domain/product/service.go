package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Service exposes the stock operations of the product store.
type Service struct {
	repo Repository
}

// NewService creates a product Service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns every product in the catalog.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// GetByID returns a single product or ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// Stock returns the on-hand quantity of a product, or 0 when it does not exist.
func (s *Service) Stock(ctx context.Context, id int64) (int, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "stock of product %d", id)
	}
	return p.Quantity, nil
}

// CheckAvailability reports whether qty units of the product can be ordered.
// Non-positive quantities and unknown products are never available.
func (s *Service) CheckAvailability(ctx context.Context, id int64, qty int) (bool, error) {
	if qty <= 0 {
		return false, nil
	}
	stock, err := s.Stock(ctx, id)
	if err != nil {
		return false, err
	}
	if stock < qty {
		zctx.From(ctx).Info("Product not available",
			zap.Int64("product_id", id),
			zap.Int("requested", qty),
			zap.Int("available", stock),
		)
		return false, nil
	}
	return true, nil
}

// Decrement atomically removes qty units from stock. It fails with
// *InsufficientStockError when the result would be negative.
func (s *Service) Decrement(ctx context.Context, id int64, qty int) (StockChange, error) {
	if qty <= 0 {
		return StockChange{}, ErrInvalidQuantity
	}
	change, err := s.repo.Decrement(ctx, id, qty)
	if err != nil {
		return StockChange{}, err
	}
	zctx.From(ctx).Info("Stock decremented",
		zap.Int64("product_id", id),
		zap.Int("previous", change.Previous),
		zap.Int("current", change.Current),
	)
	return change, nil
}

// Restore atomically returns qty units to stock, typically after a
// cancellation or a failed order.
func (s *Service) Restore(ctx context.Context, id int64, qty int) (StockChange, error) {
	if qty <= 0 {
		return StockChange{}, ErrInvalidQuantity
	}
	if qty > MaxQuantity {
		return StockChange{}, ErrStockOverflow
	}
	change, err := s.repo.Restore(ctx, id, qty)
	if err != nil {
		return StockChange{}, err
	}
	zctx.From(ctx).Info("Stock restored",
		zap.Int64("product_id", id),
		zap.Int("previous", change.Previous),
		zap.Int("current", change.Current),
	)
	return change, nil
}
