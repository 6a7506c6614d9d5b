package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopflow/shopflow/internal/domain/order"
	"github.com/shopflow/shopflow/internal/domain/product"
	"github.com/shopflow/shopflow/internal/domain/user"
)

// --- Mock implementations ---

type mockOrderService struct {
	lastCreate order.CreateRequest
	lastStatus string
	order      *order.Order
	orders     []order.Order
	err        error
}

func (m *mockOrderService) CreateOrder(_ context.Context, req order.CreateRequest) (*order.Order, error) {
	m.lastCreate = req
	return m.order, m.err
}

func (m *mockOrderService) GetByID(_ context.Context, _ int64) (*order.Order, error) {
	return m.order, m.err
}

func (m *mockOrderService) ListByUser(_ context.Context, _ int64) ([]order.Order, error) {
	return m.orders, m.err
}

func (m *mockOrderService) UpdateStatus(_ context.Context, _ int64, status string) (*order.Order, error) {
	m.lastStatus = status
	return m.order, m.err
}

func (m *mockOrderService) Cancel(_ context.Context, _ int64) (*order.Order, error) {
	return m.order, m.err
}

type mockProductService struct {
	products  []product.Product
	stock     int
	available bool
	change    product.StockChange
	err       error
}

func (m *mockProductService) List(_ context.Context) ([]product.Product, error) {
	return m.products, m.err
}

func (m *mockProductService) GetByID(_ context.Context, id int64) (*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockProductService) Stock(_ context.Context, _ int64) (int, error) {
	return m.stock, m.err
}

func (m *mockProductService) CheckAvailability(_ context.Context, _ int64, _ int) (bool, error) {
	return m.available, m.err
}

func (m *mockProductService) Decrement(_ context.Context, _ int64, _ int) (product.StockChange, error) {
	return m.change, m.err
}

func (m *mockProductService) Restore(_ context.Context, _ int64, _ int) (product.StockChange, error) {
	return m.change, m.err
}

type mockUserService struct {
	user        *user.User
	allowed     bool
	lastReq     user.RegisterRequest
	lastProfile user.Profile
	err         error
}

func (m *mockUserService) FindByUsername(_ context.Context, _ string) (*user.User, error) {
	return m.user, m.err
}

func (m *mockUserService) FindByID(_ context.Context, _ int64) (*user.User, error) {
	return m.user, m.err
}

func (m *mockUserService) CheckPermission(_ context.Context, _ string) (bool, error) {
	return m.allowed, m.err
}

func (m *mockUserService) Register(_ context.Context, req user.RegisterRequest) (*user.Session, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &user.Session{User: m.user, Token: "tok"}, nil
}

func (m *mockUserService) Login(_ context.Context, _, _ string) (*user.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &user.Session{User: m.user, Token: "tok"}, nil
}

func (m *mockUserService) UpdateProfile(_ context.Context, _ string, p user.Profile) (*user.User, error) {
	m.lastProfile = p
	return m.user, m.err
}

// --- Helpers ---

type routes interface {
	Routes(r chi.Router)
}

func serve(t *testing.T, h routes, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := chi.NewRouter()
	h.Routes(r)

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, rd))

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func testOrder(items ...order.Item) *order.Order {
	o := order.New(1, "alice", items, nil, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	o.ID = 42
	return o
}

func line(productID int64, qty int, price string) order.Item {
	return order.Item{ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

// --- Order tests ---

func TestCreateOrder(t *testing.T) {
	svc := &mockOrderService{order: testOrder(line(7, 2, "9.99"))}
	w, body := serve(t, NewOrderHandler(svc), http.MethodPost, "/orders/",
		`{"customerUsername":"alice","productId":7,"quantity":2,"status":"SHIPPED"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "Order created successfully", body["message"])
	assert.EqualValues(t, 42, body["id"])

	o := body["order"].(map[string]any)
	assert.Equal(t, "PENDING", o["status"])
	assert.EqualValues(t, 7, o["productId"])
	assert.EqualValues(t, 2, o["quantity"])
	assert.InDelta(t, 19.98, o["totalPrice"], 0.0001)

	assert.Equal(t, "alice", svc.lastCreate.Username)
	assert.EqualValues(t, 7, svc.lastCreate.ProductID)
	assert.Equal(t, 2, svc.lastCreate.Quantity)
	assert.True(t, svc.lastCreate.Customer.IsZero())
}

func TestCreateOrder_CustomerInfo(t *testing.T) {
	svc := &mockOrderService{order: testOrder(line(7, 1, "9.99"))}
	w, _ := serve(t, NewOrderHandler(svc), http.MethodPost, "/orders/",
		`{"customerUsername":"alice","productId":7,"quantity":1,
		  "customerName":"Alice A","customerEmail":"a@example.com","customerPhone":"555","customerAddress":"1 Main St"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, order.CustomerInfo{
		FullName: "Alice A", Email: "a@example.com", Phone: "555", Address: "1 Main St",
	}, svc.lastCreate.Customer)
}

func TestCreateOrder_Items(t *testing.T) {
	svc := &mockOrderService{order: testOrder(line(1, 1, "5.00"), line(2, 3, "1.50"))}
	w, body := serve(t, NewOrderHandler(svc), http.MethodPost, "/orders/",
		`{"userId":1,"items":[{"productId":1,"quantity":1},{"productId":2,"quantity":3}],"deliveryDate":"2026-02-01T10:00:00Z"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, svc.lastCreate.Items, 2)
	assert.Equal(t, order.ItemRequest{ProductID: 2, Quantity: 3}, svc.lastCreate.Items[1])
	require.NotNil(t, svc.lastCreate.DeliveryDate)
	assert.Equal(t, 2026, svc.lastCreate.DeliveryDate.Year())

	o := body["order"].(map[string]any)
	assert.NotContains(t, o, "productId", "multi-item orders carry no top-level product")
	assert.Len(t, o["items"], 2)
}

func TestCreateOrder_MalformedBody(t *testing.T) {
	svc := &mockOrderService{}
	for _, body := range []string{"", "{", `{"quantity":"two"}`} {
		w, resp := serve(t, NewOrderHandler(svc), http.MethodPost, "/orders/", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
		assert.NotEmpty(t, resp["message"])
	}
}

func TestMalformedBody_FixedMessage(t *testing.T) {
	for _, tt := range []struct {
		name   string
		h      routes
		target string
		body   string
	}{
		{"order type mismatch", NewOrderHandler(&mockOrderService{}), "/orders/", `{"quantity":"two"}`},
		{"order truncated", NewOrderHandler(&mockOrderService{}), "/orders/", `{"userId":`},
		{"register type mismatch", NewUserHandler(&mockUserService{}), "/api/users/register", `{"username":7}`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := serve(t, tt.h, http.MethodPost, tt.target, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "malformed JSON body", resp["message"])
		})
	}
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	for _, tt := range []struct {
		name   string
		err    error
		status int
		key    string
	}{
		{"validation", &order.ValidationError{Field: "quantity", Reason: "must be greater than 0"}, http.StatusBadRequest, "message"},
		{"user not found", order.ErrUserNotFound, http.StatusNotFound, "message"},
		{"product not found", &order.ProductNotFoundError{ProductID: 9}, http.StatusNotFound, "message"},
		{"permission denied", order.ErrPermissionDenied, http.StatusForbidden, "message"},
		{"insufficient stock", &order.InsufficientStockError{ProductID: 1, Requested: 5, Available: 2}, http.StatusBadRequest, "message"},
		{"stock taken concurrently", &order.InventoryUpdateFailedError{
			OrderID: 1, ProductID: 1, Err: &order.InsufficientStockError{ProductID: 1, Requested: 5, Available: -1},
		}, http.StatusBadRequest, "message"},
		{"inventory failed", &order.InventoryUpdateFailedError{
			OrderID: 1, ProductID: 1, Err: errors.Wrap(order.ErrDownstream, "decrement stock"),
		}, http.StatusInternalServerError, "error"},
		{"downstream", errors.Wrap(order.ErrDownstream, "product store"), http.StatusInternalServerError, "error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "error"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{err: tt.err}
			w, body := serve(t, NewOrderHandler(svc), http.MethodPost, "/orders/", `{"userId":1,"productId":1,"quantity":5}`)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, body, tt.key)
		})
	}
}

func TestErrorBodiesHideInternals(t *testing.T) {
	svc := &mockOrderService{err: errors.New("pq: password authentication failed for user admin")}
	w, _ := serve(t, NewOrderHandler(svc), http.MethodGet, "/orders/1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestGetOrder(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := &mockOrderService{order: testOrder(line(7, 1, "2.50"))}
		w, body := serve(t, NewOrderHandler(svc), http.MethodGet, "/orders/42", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 42, body["id"])
		assert.Equal(t, "alice", body["customerUsername"])
	})

	t.Run("not found", func(t *testing.T) {
		svc := &mockOrderService{err: order.ErrNotFound}
		w, body := serve(t, NewOrderHandler(svc), http.MethodGet, "/orders/42", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NotEmpty(t, body["message"])
	})

	t.Run("bad id", func(t *testing.T) {
		w, _ := serve(t, NewOrderHandler(&mockOrderService{}), http.MethodGet, "/orders/abc", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListOrdersByUser_Empty(t *testing.T) {
	svc := &mockOrderService{orders: []order.Order{}}
	w, _ := serve(t, NewOrderHandler(svc), http.MethodGet, "/orders/user/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestUpdateOrderStatus(t *testing.T) {
	o := testOrder(line(1, 1, "1.00"))
	o.Status = order.StatusShipped
	svc := &mockOrderService{order: o}

	w, body := serve(t, NewOrderHandler(svc), http.MethodPut, "/orders/42/status?status=shipped", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "shipped", svc.lastStatus)
	assert.Equal(t, "Order status updated to SHIPPED", body["message"])

	svc.err = &order.ValidationError{Field: "status", Reason: "unknown status LOST"}
	w, _ = serve(t, NewOrderHandler(svc), http.MethodPut, "/orders/42/status?status=lost", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateOrderStatus_CanceledOrder(t *testing.T) {
	svc := &mockOrderService{err: order.ErrInvalidTransition}

	w, body := serve(t, NewOrderHandler(svc), http.MethodPut, "/orders/42/status?status=PENDING", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "PENDING", svc.lastStatus)
	assert.Equal(t, "order status cannot change from its current status", body["message"])
}

func TestCancelOrder(t *testing.T) {
	t.Run("canceled", func(t *testing.T) {
		o := testOrder(line(1, 1, "1.00"))
		o.Status = order.StatusCanceled
		w, body := serve(t, NewOrderHandler(&mockOrderService{order: o}), http.MethodPut, "/orders/42/cancel", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "CANCELED", body["order"].(map[string]any)["status"])
	})

	t.Run("delivered", func(t *testing.T) {
		svc := &mockOrderService{err: errors.Wrap(order.ErrInvalidTransition, "order 42 is DELIVERED")}
		w, _ := serve(t, NewOrderHandler(svc), http.MethodPut, "/orders/42/cancel", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("absent", func(t *testing.T) {
		svc := &mockOrderService{err: order.ErrNotFound}
		w, _ := serve(t, NewOrderHandler(svc), http.MethodPut, "/orders/42/cancel", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// --- Product tests ---

func widget() product.Product {
	return product.Product{ID: 1, Name: "Widget", Price: decimal.RequireFromString("12.50"), Quantity: 4}
}

func TestListProducts(t *testing.T) {
	svc := &mockProductService{products: []product.Product{widget()}}
	w, _ := serve(t, NewProductHandler(svc), http.MethodGet, "/api/products/", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []productResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Widget", got[0].Name)
	assert.InDelta(t, 12.5, got[0].Price, 0.0001)
}

func TestGetProduct(t *testing.T) {
	svc := &mockProductService{products: []product.Product{widget()}}

	w, body := serve(t, NewProductHandler(svc), http.MethodGet, "/api/products/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, body["quantity"])

	w, _ = serve(t, NewProductHandler(svc), http.MethodGet, "/api/products/2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProductStock(t *testing.T) {
	w, _ := serve(t, NewProductHandler(&mockProductService{stock: 17}), http.MethodGet, "/api/products/1/stock", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "17", strings.TrimSpace(w.Body.String()))
}

func TestCheckAvailability(t *testing.T) {
	svc := &mockProductService{stock: 3, available: true}
	w, body := serve(t, NewProductHandler(svc), http.MethodGet, "/api/products/check?productId=1&quantity=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{
		"productId":         float64(1),
		"availableStock":    float64(3),
		"requestedQuantity": float64(2),
		"isAvailable":       true,
	}, body)

	w, _ = serve(t, NewProductHandler(svc), http.MethodGet, "/api/products/check?productId=x&quantity=2", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateQuantity(t *testing.T) {
	t.Run("decremented", func(t *testing.T) {
		svc := &mockProductService{change: product.StockChange{ProductID: 1, Previous: 5, Current: 3}}
		w, body := serve(t, NewProductHandler(svc), http.MethodPut, "/api/products/1/updateQuantity?quantity=2", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, body["success"])
		assert.EqualValues(t, 5, body["previousStock"])
		assert.EqualValues(t, 3, body["newStock"])
		assert.EqualValues(t, 2, body["reducedBy"])
	})

	t.Run("insufficient", func(t *testing.T) {
		svc := &mockProductService{err: &product.InsufficientStockError{ProductID: 1, Requested: 9, Available: 3}}
		w, body := serve(t, NewProductHandler(svc), http.MethodPut, "/api/products/1/updateQuantity?quantity=9", "")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.EqualValues(t, 3, body["availableStock"])
		assert.EqualValues(t, 9, body["requestedQuantity"])
	})

	t.Run("not found", func(t *testing.T) {
		svc := &mockProductService{err: product.ErrNotFound}
		w, _ := serve(t, NewProductHandler(svc), http.MethodPut, "/api/products/1/updateQuantity?quantity=1", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid quantity", func(t *testing.T) {
		svc := &mockProductService{err: product.ErrInvalidQuantity}
		w, _ := serve(t, NewProductHandler(svc), http.MethodPut, "/api/products/1/updateQuantity?quantity=0", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRestoreQuantity(t *testing.T) {
	svc := &mockProductService{change: product.StockChange{ProductID: 1, Previous: 3, Current: 5}}
	w, body := serve(t, NewProductHandler(svc), http.MethodPut, "/api/products/1/restoreQuantity?quantity=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["restoredBy"])
	assert.NotContains(t, body, "reducedBy")
}

func TestRestoreQuantity_Overflow(t *testing.T) {
	svc := &mockProductService{err: product.ErrStockOverflow}
	w, body := serve(t, NewProductHandler(svc), http.MethodPut, "/api/products/1/restoreQuantity?quantity=3000000000", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "stock would exceed 2147483647", body["message"])
}

// --- User tests ---

func alice() *user.User {
	return &user.User{
		ID:           1,
		Username:     "alice",
		PasswordHash: "$2a$10$secret",
		Email:        "alice@example.com",
		Role:         user.RoleUser,
		Active:       true,
	}
}

func TestGetUser(t *testing.T) {
	svc := &mockUserService{user: alice()}

	w, body := serve(t, NewUserHandler(svc), http.MethodGet, "/api/users/alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", body["username"])
	assert.NotContains(t, w.Body.String(), "secret")
	assert.NotContains(t, body, "token")

	w, _ = serve(t, NewUserHandler(svc), http.MethodGet, "/api/users/id/1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	svc.err = user.ErrNotFound
	w, _ = serve(t, NewUserHandler(svc), http.MethodGet, "/api/users/bob", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckPermission(t *testing.T) {
	w, _ := serve(t, NewUserHandler(&mockUserService{allowed: true}), http.MethodGet, "/api/users/alice/check", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", strings.TrimSpace(w.Body.String()))
}

func TestRegister(t *testing.T) {
	svc := &mockUserService{user: alice()}
	w, body := serve(t, NewUserHandler(svc), http.MethodPost, "/api/users/register",
		`{"username":"alice","password":"pw","email":"alice@example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "tok", body["token"])
	assert.Equal(t, "pw", svc.lastReq.Password)

	svc.err = errors.Wrap(user.ErrUsernameTaken, "create user")
	w, _ = serve(t, NewUserHandler(svc), http.MethodPost, "/api/users/register", `{"username":"alice","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_PasswordTooLong(t *testing.T) {
	svc := &mockUserService{err: user.ErrPasswordTooLong}
	w, body := serve(t, NewUserHandler(svc), http.MethodPost, "/api/users/register",
		`{"username":"alice","password":"`+strings.Repeat("x", 73)+`"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "password must be at most 72 bytes", body["message"])
	assert.NotContains(t, body, "error")
}

func TestLogin(t *testing.T) {
	for _, tt := range []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"bad credentials", user.ErrInvalidCredentials, http.StatusUnauthorized},
		{"disabled", user.ErrAccountDisabled, http.StatusForbidden},
	} {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUserService{user: alice(), err: tt.err}
			w, _ := serve(t, NewUserHandler(svc), http.MethodPost, "/api/users/login", `{"username":"alice","password":"pw"}`)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestUpdateInfo(t *testing.T) {
	svc := &mockUserService{user: alice()}
	w, _ := serve(t, NewUserHandler(svc), http.MethodPut, "/api/users/updateInfo",
		`{"username":"alice","fullName":"Alice A","phone":"555"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.Profile{FullName: "Alice A", Phone: "555"}, svc.lastProfile)

	svc.err = user.ErrUsernameRequired
	w, _ = serve(t, NewUserHandler(svc), http.MethodPut, "/api/users/updateInfo", `{"fullName":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
