package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/shopflow/shopflow/internal/domain/order"
)

var (
	_ order.CartClient = (*CartClient)(nil)
	_ order.Notifier   = (*NotificationClient)(nil)
)

// CartClient calls the cart service.
type CartClient struct {
	e endpoint
}

// NewCartClient returns a CartClient for the cart service at baseURL.
func NewCartClient(baseURL string, hc *http.Client) *CartClient {
	return &CartClient{e: newEndpoint(baseURL, hc)}
}

// RemoveItem deletes the product from the user's cart. A product that is
// not in the cart is not an error.
func (c *CartClient) RemoveItem(ctx context.Context, username string, productID int64) error {
	path := "/api/cart/" + url.PathEscape(username) + "/items/" + strconv.FormatInt(productID, 10)
	_, err := c.e.do(ctx, http.MethodDelete, path, nil, nil, nil)
	if statusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}

// NotificationClient calls the notification service.
type NotificationClient struct {
	e endpoint
}

// NewNotificationClient returns a NotificationClient for the notification
// service at baseURL.
func NewNotificationClient(baseURL string, hc *http.Client) *NotificationClient {
	return &NotificationClient{e: newEndpoint(baseURL, hc)}
}

type confirmationItem struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type confirmationRequest struct {
	Email      string             `json:"email"`
	OrderID    int64              `json:"orderId"`
	Status     string             `json:"status"`
	Items      []confirmationItem `json:"items"`
	TotalPrice decimal.Decimal    `json:"totalPrice"`
}

// SendOrderConfirmation asks the notification service to email c.
func (c *NotificationClient) SendOrderConfirmation(ctx context.Context, conf order.Confirmation) error {
	req := confirmationRequest{
		Email:      conf.Email,
		OrderID:    conf.OrderID,
		Status:     string(conf.Status),
		Items:      make([]confirmationItem, 0, len(conf.Items)),
		TotalPrice: conf.TotalPrice,
	}
	for _, it := range conf.Items {
		req.Items = append(req.Items, confirmationItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	_, err := c.e.do(ctx, http.MethodPost, "/api/notifications/email", nil, req, nil)
	return err
}
