package order

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProductInfo is the product store's view of a product as needed for pricing.
type ProductInfo struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	Quantity int
}

// UserInfo is the user store's view of a customer.
type UserInfo struct {
	ID       int64
	Username string
	Email    string
	FullName string
	Phone    string
	Address  string
	Active   bool
}

// CustomerInfo is the contact data a customer entered with an order.
type CustomerInfo struct {
	FullName string
	Email    string
	Phone    string
	Address  string
}

// IsZero reports whether no field is set.
func (c CustomerInfo) IsZero() bool {
	return c == CustomerInfo{}
}

// ProductClient talks to the product store.
//
// GetProduct returns an error matching ErrProductNotFound for unknown ids.
// DecrementStock returns *InsufficientStockError when the store refuses the
// decrement; every other failure matches ErrDownstream.
type ProductClient interface {
	GetProduct(ctx context.Context, id int64) (*ProductInfo, error)
	DecrementStock(ctx context.Context, id int64, qty int) error
	RestoreStock(ctx context.Context, id int64, qty int) error
}

// UserClient talks to the user store. Lookups of unknown users return an
// error matching ErrUserNotFound.
type UserClient interface {
	GetByID(ctx context.Context, id int64) (*UserInfo, error)
	GetByUsername(ctx context.Context, username string) (*UserInfo, error)
	CheckPermission(ctx context.Context, username string) (bool, error)
}

// ProfileSaver stores customer contact data in the user store. It replaces
// every field, so callers pass a complete profile.
type ProfileSaver interface {
	SaveCustomerInfo(ctx context.Context, username string, c CustomerInfo) error
}

// CartClient removes ordered products from a customer's cart.
type CartClient interface {
	RemoveItem(ctx context.Context, username string, productID int64) error
}

// Confirmation is the payload of an order confirmation notification.
type Confirmation struct {
	Email      string
	OrderID    int64
	Status     Status
	Items      []Item
	TotalPrice decimal.Decimal
}

// Notifier dispatches order confirmations.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, c Confirmation) error
}
