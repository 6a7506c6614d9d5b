package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/shopflow/shopflow/internal/domain/order"
)

var _ order.ProductClient = (*ProductClient)(nil)

// ProductClient calls the product service.
type ProductClient struct {
	e endpoint
}

// NewProductClient returns a ProductClient for the product service at baseURL.
func NewProductClient(baseURL string, hc *http.Client) *ProductClient {
	return &ProductClient{e: newEndpoint(baseURL, hc)}
}

type productResponse struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// stockErrorResponse is the body of a refused decrement.
type stockErrorResponse struct {
	Message        string `json:"message"`
	AvailableStock *int   `json:"availableStock"`
}

// GetProduct fetches a product. Unknown ids yield *order.ProductNotFoundError.
func (c *ProductClient) GetProduct(ctx context.Context, id int64) (*order.ProductInfo, error) {
	var p productResponse
	if _, err := c.e.do(ctx, http.MethodGet, "/api/products/"+strconv.FormatInt(id, 10), nil, nil, &p); err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, &order.ProductNotFoundError{ProductID: id}
		}
		return nil, err
	}
	return &order.ProductInfo{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Quantity: p.Quantity,
	}, nil
}

// DecrementStock reduces the product's stock by qty. A refusal by the
// product service yields *order.InsufficientStockError.
func (c *ProductClient) DecrementStock(ctx context.Context, id int64, qty int) error {
	raw, err := c.e.do(ctx, http.MethodPut, stockPath(id, "updateQuantity"), quantityQuery(qty), nil, nil)
	switch statusOf(err) {
	case 0:
		return err
	case http.StatusNotFound:
		return &order.ProductNotFoundError{ProductID: id}
	case http.StatusBadRequest, http.StatusConflict:
		available := -1
		var body stockErrorResponse
		if json.Unmarshal(raw, &body) == nil && body.AvailableStock != nil {
			available = *body.AvailableStock
		}
		return &order.InsufficientStockError{ProductID: id, Requested: qty, Available: available}
	default:
		return err
	}
}

// RestoreStock returns qty units to the product's stock.
func (c *ProductClient) RestoreStock(ctx context.Context, id int64, qty int) error {
	_, err := c.e.do(ctx, http.MethodPut, stockPath(id, "restoreQuantity"), quantityQuery(qty), nil, nil)
	if statusOf(err) == http.StatusNotFound {
		return &order.ProductNotFoundError{ProductID: id}
	}
	return err
}

func stockPath(id int64, action string) string {
	return "/api/products/" + strconv.FormatInt(id, 10) + "/" + action
}

func quantityQuery(qty int) url.Values {
	return url.Values{"quantity": {strconv.Itoa(qty)}}
}
