package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/shopflow/shopflow/internal/domain/order"
)

// OrderService is the order workflow as used by the HTTP layer.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	GetByID(ctx context.Context, id int64) (*order.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*order.Order, error)
	Cancel(ctx context.Context, id int64) (*order.Order, error)
}

// OrderHandler serves the order service API.
type OrderHandler struct {
	orders OrderService
}

// NewOrderHandler returns an OrderHandler backed by svc.
func NewOrderHandler(svc OrderService) *OrderHandler {
	return &OrderHandler{orders: svc}
}

// Routes registers the order endpoints on r.
func (h *OrderHandler) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/user/{userId}", h.listByUser)
		r.Get("/{id}", h.get)
		r.Put("/{id}/status", h.updateStatus)
		r.Put("/{id}/cancel", h.cancel)
	})
}

type orderItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// orderRequest accepts both the single product form and the items form.
// A client supplied status is ignored: new orders always start PENDING.
type orderRequest struct {
	UserID           int64              `json:"userId"`
	CustomerUsername string             `json:"customerUsername"`
	ProductID        int64              `json:"productId"`
	Quantity         int                `json:"quantity"`
	Items            []orderItemRequest `json:"items"`
	DeliveryDate     *time.Time         `json:"deliveryDate"`
	CustomerName     string             `json:"customerName"`
	CustomerEmail    string             `json:"customerEmail"`
	CustomerPhone    string             `json:"customerPhone"`
	CustomerAddress  string             `json:"customerAddress"`
}

type orderItemResponse struct {
	ID        int64   `json:"id"`
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type orderResponse struct {
	ID               int64               `json:"id"`
	UserID           int64               `json:"userId"`
	CustomerUsername string              `json:"customerUsername"`
	ProductID        int64               `json:"productId,omitempty"`
	Quantity         int                 `json:"quantity,omitempty"`
	Items            []orderItemResponse `json:"items"`
	TotalPrice       float64             `json:"totalPrice"`
	Status           string              `json:"status"`
	DeliveryDate     *time.Time          `json:"deliveryDate,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

type orderEnvelope struct {
	Message string         `json:"message"`
	ID      int64          `json:"id,omitempty"`
	Order   *orderResponse `json:"order,omitempty"`
}

func toOrderResponse(o *order.Order) *orderResponse {
	resp := &orderResponse{
		ID:               o.ID,
		UserID:           o.UserID,
		CustomerUsername: o.Username,
		Items:            make([]orderItemResponse, len(o.Items)),
		TotalPrice:       o.TotalPrice.InexactFloat64(),
		Status:           string(o.Status),
		DeliveryDate:     o.DeliveryDate,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	for i, it := range o.Items {
		resp.Items[i] = orderItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
		}
	}
	if len(o.Items) == 1 {
		resp.ProductID = o.Items[0].ProductID
		resp.Quantity = o.Items[0].Quantity
	}
	return resp
}

func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	cr := order.CreateRequest{
		UserID:       req.UserID,
		Username:     req.CustomerUsername,
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
		DeliveryDate: req.DeliveryDate,
		Customer: order.CustomerInfo{
			FullName: req.CustomerName,
			Email:    req.CustomerEmail,
			Phone:    req.CustomerPhone,
			Address:  req.CustomerAddress,
		},
	}
	for _, it := range req.Items {
		cr.Items = append(cr.Items, order.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	o, err := h.orders.CreateOrder(r.Context(), cr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderEnvelope{
		Message: "Order created successfully",
		ID:      o.ID,
		Order:   toOrderResponse(o),
	})
}

func (h *OrderHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) listByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userId")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid user id")
		return
	}
	orders, err := h.orders.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]*orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), id, r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderEnvelope{
		Message: "Order status updated to " + string(o.Status),
		Order:   toOrderResponse(o),
	})
}

func (h *OrderHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.orders.Cancel(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeMessage(w, http.StatusBadRequest, "order cannot be canceled: not found")
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderEnvelope{
		Message: "Order canceled successfully",
		Order:   toOrderResponse(o),
	})
}

// writeError maps order workflow errors to HTTP responses.
func (h *OrderHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invErr   *order.InventoryUpdateFailedError
		validErr *order.ValidationError
	)
	switch {
	case errors.As(err, &invErr) && errors.Is(invErr.Err, order.ErrInsufficientStock):
		// Another order took the stock between the check and the decrement.
		writeMessage(w, http.StatusBadRequest, invErr.Err.Error())
	case errors.As(err, &invErr):
		writeInternal(w, r, "inventory update failed, the order was not placed", err)
	case errors.As(err, &validErr):
		writeMessage(w, http.StatusBadRequest, validErr.Error())
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrUserNotFound),
		errors.Is(err, order.ErrProductNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrPermissionDenied):
		writeMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrInsufficientStock):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrInvalidTransition):
		writeMessage(w, http.StatusBadRequest, "order status cannot change from its current status")
	case errors.Is(err, order.ErrDownstream):
		writeInternal(w, r, "a dependent service is unavailable", err)
	default:
		writeInternal(w, r, "internal server error", err)
	}
}
