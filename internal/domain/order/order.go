package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCanceled  Status = "CANCELED"
	StatusCompleted Status = "COMPLETED"
)

var statuses = []Status{
	StatusPending, StatusConfirmed, StatusShipped,
	StatusDelivered, StatusCanceled, StatusCompleted,
}

// ParseStatus converts s (case-insensitive) into a Status.
func ParseStatus(s string) (Status, error) {
	want := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range statuses {
		if st == want {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Reason: "unknown status " + strings.TrimSpace(s)}
}

// Cancelable reports whether an order in this status may still be canceled.
// Delivered orders are final and canceled ones were already restocked.
func (s Status) Cancelable() bool {
	return s != StatusDelivered && s != StatusCanceled
}

// Final reports whether the status may no longer change. A canceled order
// has had its stock returned.
func (s Status) Final() bool {
	return s == StatusCanceled
}

// Order is a customer order with its line items.
type Order struct {
	ID           int64
	UserID       int64
	Username     string
	Items        []Item
	TotalPrice   decimal.Decimal
	Status       Status
	DeliveryDate *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Item is a single order line. UnitPrice is captured at order time.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal returns UnitPrice × Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// New builds a PENDING order stamped with now. TotalPrice is the sum of the
// item subtotals.
func New(userID int64, username string, items []Item, deliveryDate *time.Time, now time.Time) *Order {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	now = now.UTC()
	return &Order{
		UserID:       userID,
		Username:     username,
		Items:        items,
		TotalPrice:   total.Round(2),
		Status:       StatusPending,
		DeliveryDate: deliveryDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Repository defines persistence operations for orders and their items.
type Repository interface {
	// Create stores the order and its items atomically and assigns ids.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	// ListByUser returns the user's orders, newest first. No orders yields an
	// empty slice.
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	// UpdateStatus sets the status of a non-final order under the same row
	// lock as Cancel. Final orders yield ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) (*Order, error)
	// Cancel moves a cancelable order to CANCELED in a single check-and-set.
	// It returns ErrNotFound or ErrInvalidTransition otherwise.
	Cancel(ctx context.Context, id int64, at time.Time) (*Order, error)
	// Delete removes the order and its items. Only used to compensate a
	// failed creation.
	Delete(ctx context.Context, id int64) error
}

// Sentinel errors of the order workflow.
var (
	ErrNotFound          = errors.New("order not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrPermissionDenied  = errors.New("user is not allowed to place orders")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDownstream        = errors.New("downstream call failed")
)
