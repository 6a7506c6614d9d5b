package order

import "fmt"

// ValidationError indicates a malformed create or update request. It is
// always returned before any collaborator is called.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

// InsufficientStockError indicates the product store cannot cover a line.
// Available is -1 when the store did not report it.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	if e.Available < 0 {
		return fmt.Sprintf("insufficient stock for product %d: requested %d", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InventoryUpdateFailedError is returned when a stock decrement fails after
// the order was persisted. The order has been deleted and earlier
// decrements restored by the time the caller sees it.
type InventoryUpdateFailedError struct {
	OrderID   int64
	ProductID int64
	Err       error
}

func (e *InventoryUpdateFailedError) Error() string {
	return fmt.Sprintf("inventory update failed for product %d of order %d: %v", e.ProductID, e.OrderID, e.Err)
}

func (e *InventoryUpdateFailedError) Unwrap() error { return e.Err }

func (e *InventoryUpdateFailedError) Is(target error) bool { return target == ErrDownstream }
