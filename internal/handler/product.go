package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/shopflow/shopflow/internal/domain/product"
)

// ProductService is the product catalog as used by the HTTP layer.
type ProductService interface {
	List(ctx context.Context) ([]product.Product, error)
	GetByID(ctx context.Context, id int64) (*product.Product, error)
	Stock(ctx context.Context, id int64) (int, error)
	CheckAvailability(ctx context.Context, id int64, qty int) (bool, error)
	Decrement(ctx context.Context, id int64, qty int) (product.StockChange, error)
	Restore(ctx context.Context, id int64, qty int) (product.StockChange, error)
}

// ProductHandler serves the product service API.
type ProductHandler struct {
	products ProductService
}

// NewProductHandler returns a ProductHandler backed by svc.
func NewProductHandler(svc ProductService) *ProductHandler {
	return &ProductHandler{products: svc}
}

// Routes registers the product endpoints on r.
func (h *ProductHandler) Routes(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/check", h.check)
		r.Get("/{id}", h.get)
		r.Get("/{id}/stock", h.stock)
		r.Put("/{id}/updateQuantity", h.decrement)
		r.Put("/{id}/restoreQuantity", h.restore)
	})
}

type productResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Quantity    int       `json:"quantity"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
		Quantity:    p.Quantity,
		CreatedAt:   p.CreatedAt,
	}
}

type availabilityResponse struct {
	ProductID         int64 `json:"productId"`
	AvailableStock    int   `json:"availableStock"`
	RequestedQuantity int   `json:"requestedQuantity"`
	IsAvailable       bool  `json:"isAvailable"`
}

type stockChangeResponse struct {
	Success       bool  `json:"success"`
	ProductID     int64 `json:"productId"`
	PreviousStock int   `json:"previousStock"`
	NewStock      int   `json:"newStock"`
	ReducedBy     int   `json:"reducedBy,omitempty"`
	RestoredBy    int   `json:"restoredBy,omitempty"`
}

type insufficientStockResponse struct {
	Message           string `json:"message"`
	ProductID         int64  `json:"productId"`
	AvailableStock    int    `json:"availableStock"`
	RequestedQuantity int    `json:"requestedQuantity"`
}

func (h *ProductHandler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]productResponse, len(products))
	for i := range products {
		resp[i] = toProductResponse(&products[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ProductHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid product id")
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *ProductHandler) stock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid product id")
		return
	}
	n, err := h.products.Stock(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *ProductHandler) check(w http.ResponseWriter, r *http.Request) {
	id, err := parseQueryID(r, "productId")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	qty, ok := queryInt(r, "quantity")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "quantity must be an integer")
		return
	}

	ctx := r.Context()
	available, err := h.products.CheckAvailability(ctx, id, qty)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	stock, err := h.products.Stock(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		ProductID:         id,
		AvailableStock:    stock,
		RequestedQuantity: qty,
		IsAvailable:       available,
	})
}

func (h *ProductHandler) decrement(w http.ResponseWriter, r *http.Request) {
	id, qty, ok := h.adjustParams(w, r)
	if !ok {
		return
	}
	change, err := h.products.Decrement(r.Context(), id, qty)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stockChangeResponse{
		Success:       true,
		ProductID:     id,
		PreviousStock: change.Previous,
		NewStock:      change.Current,
		ReducedBy:     qty,
	})
}

func (h *ProductHandler) restore(w http.ResponseWriter, r *http.Request) {
	id, qty, ok := h.adjustParams(w, r)
	if !ok {
		return
	}
	change, err := h.products.Restore(r.Context(), id, qty)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stockChangeResponse{
		Success:       true,
		ProductID:     id,
		PreviousStock: change.Previous,
		NewStock:      change.Current,
		RestoredBy:    qty,
	})
}

func (h *ProductHandler) adjustParams(w http.ResponseWriter, r *http.Request) (int64, int, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid product id")
		return 0, 0, false
	}
	qty, ok := queryInt(r, "quantity")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "quantity must be an integer")
		return 0, 0, false
	}
	return id, qty, true
}

func parseQueryID(r *http.Request, name string) (int64, error) {
	v, ok := queryInt(r, name)
	if !ok || v <= 0 {
		return 0, errors.Errorf("%s must be a positive integer", name)
	}
	return int64(v), nil
}

// writeError maps product catalog errors to HTTP responses.
func (h *ProductHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *product.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusBadRequest, insufficientStockResponse{
			Message:           "Insufficient stock",
			ProductID:         stockErr.ProductID,
			AvailableStock:    stockErr.Available,
			RequestedQuantity: stockErr.Requested,
		})
	case errors.Is(err, product.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, product.ErrInvalidQuantity),
		errors.Is(err, product.ErrStockOverflow):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		writeInternal(w, r, "internal server error", err)
	}
}
