package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CreateRequest holds the input for placing an order. Either Items or the
// single ProductID/Quantity pair must be set, and either UserID or Username.
type CreateRequest struct {
	UserID       int64
	Username     string
	ProductID    int64
	Quantity     int
	Items        []ItemRequest
	DeliveryDate *time.Time
	// Customer is saved to the user's profile once the order is placed.
	// Blank fields keep the stored values.
	Customer CustomerInfo
}

// ItemRequest is one requested order line.
type ItemRequest struct {
	ProductID int64
	Quantity  int
}

// Config controls the orchestration policy.
type Config struct {
	// StrictAuthorization enables the user store permission check. Disabling
	// it lets any resolvable user order and is meant for development only.
	StrictAuthorization bool
	// MinDeliveryLead is the minimum distance between now and a requested
	// delivery date.
	MinDeliveryLead time.Duration
	// CompensationTimeout bounds the rollback calls, which run detached from
	// the request context so a client timeout cannot interrupt them.
	CompensationTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithMeter records workflow counters on meter.
func WithMeter(meter metric.Meter) Option {
	return func(s *Service) { s.meter = meter }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCart enables cart cleanup after an order is placed.
func WithCart(c CartClient) Option {
	return func(s *Service) { s.cart = c }
}

// WithProfileSaver enables saving the customer data of an order to the
// user's profile.
func WithProfileSaver(p ProfileSaver) Option {
	return func(s *Service) { s.profiles = p }
}

// WithNotifier enables order confirmation notifications.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// Service orchestrates order creation across the user and product stores
// and manages the order lifecycle.
type Service struct {
	orders   Repository
	products ProductClient
	users    UserClient
	cart     CartClient
	notifier Notifier
	profiles ProfileSaver

	cfg     Config
	now     func() time.Time
	meter   metric.Meter
	metrics *metrics
}

// NewService creates an order Service with the required collaborators.
func NewService(
	orders Repository,
	products ProductClient,
	users UserClient,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = 10 * time.Second
	}
	s := &Service{
		orders:   orders,
		products: products,
		users:    users,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	m, err := newMetrics(s.meter)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}
	s.metrics = m
	return s, nil
}

// CreateOrder validates the request, resolves and authorizes the user,
// prices every line, persists the order, reserves stock and runs the
// best-effort side effects. Stock reservation failures roll the order back.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	lines, err := s.validate(req)
	if err != nil {
		s.metrics.reject(ctx, "validation")
		return nil, err
	}

	u, err := s.resolveUser(ctx, req)
	if err != nil {
		s.metrics.reject(ctx, "user")
		return nil, err
	}
	ctx = zctx.With(ctx, zap.String("username", u.Username), zap.Int64("user_id", u.ID))

	if err := s.authorize(ctx, u.Username); err != nil {
		s.metrics.reject(ctx, "permission")
		return nil, err
	}

	items, err := s.priceItems(ctx, lines)
	if err != nil {
		s.metrics.reject(ctx, "product")
		return nil, err
	}

	o := New(u.ID, u.Username, items, req.DeliveryDate, s.now())
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	ctx = zctx.With(ctx, zap.Int64("order_id", o.ID))
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int64("order.id", o.ID),
		attribute.Int("order.items", len(o.Items)),
	)
	lg := zctx.From(ctx)
	lg.Info("Order persisted", zap.String("total", o.TotalPrice.StringFixed(2)), zap.Int("items", len(o.Items)))

	if err := s.reserveStock(ctx, o); err != nil {
		return nil, err
	}

	s.saveCustomer(ctx, u, req.Customer)
	s.clearCart(ctx, o)
	s.notify(ctx, o, u)

	updated, err := s.orders.UpdateStatus(ctx, o.ID, StatusCompleted, s.now())
	if err != nil {
		// Stock is already taken; the order stays PENDING for manual follow-up.
		lg.Error("Finalize order status", zap.Error(err))
	} else {
		o = updated
	}

	s.metrics.created.Add(ctx, 1)
	lg.Info("Order created", zap.String("status", string(o.Status)))
	return o, nil
}

// validate normalizes the request into order lines without calling any
// collaborator.
func (s *Service) validate(req CreateRequest) ([]ItemRequest, error) {
	lines := req.Items
	if len(lines) == 0 {
		if req.ProductID == 0 && req.Quantity == 0 {
			return nil, &ValidationError{Field: "items", Reason: "order must contain at least one product"}
		}
		lines = []ItemRequest{{ProductID: req.ProductID, Quantity: req.Quantity}}
	}
	for _, l := range lines {
		if l.ProductID <= 0 {
			return nil, &ValidationError{Field: "productId", Reason: "must be a positive id"}
		}
		if l.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Reason: "must be greater than 0"}
		}
	}
	if req.UserID <= 0 && req.Username == "" {
		return nil, &ValidationError{Field: "user", Reason: "userId or customerUsername is required"}
	}
	if req.DeliveryDate != nil && s.cfg.MinDeliveryLead > 0 {
		earliest := s.now().Add(s.cfg.MinDeliveryLead)
		if req.DeliveryDate.Before(earliest) {
			return nil, &ValidationError{
				Field:  "deliveryDate",
				Reason: "must be at least " + s.cfg.MinDeliveryLead.String() + " from now",
			}
		}
	}
	return lines, nil
}

func (s *Service) resolveUser(ctx context.Context, req CreateRequest) (*UserInfo, error) {
	var (
		u   *UserInfo
		err error
	)
	if req.UserID > 0 {
		u, err = s.users.GetByID(ctx, req.UserID)
	} else {
		u, err = s.users.GetByUsername(ctx, req.Username)
	}
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			zctx.From(ctx).Warn("User not found",
				zap.Int64("user_id", req.UserID),
				zap.String("username", req.Username),
			)
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "resolve user")
	}
	if u.Username == "" {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *Service) authorize(ctx context.Context, username string) error {
	lg := zctx.From(ctx)
	if !s.cfg.StrictAuthorization {
		lg.Warn("Permission check bypassed: strict authorization disabled")
		return nil
	}
	ok, err := s.users.CheckPermission(ctx, username)
	if err != nil {
		return errors.Wrap(err, "check permission")
	}
	if !ok {
		lg.Warn("Permission denied")
		return ErrPermissionDenied
	}
	return nil
}

// priceItems fetches every product in list order, rejects the first line
// that cannot be covered and captures unit prices.
func (s *Service) priceItems(ctx context.Context, lines []ItemRequest) ([]Item, error) {
	lg := zctx.From(ctx)
	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		p, err := s.products.GetProduct(ctx, l.ProductID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				lg.Warn("Product not found", zap.Int64("product_id", l.ProductID))
				return nil, &ProductNotFoundError{ProductID: l.ProductID}
			}
			return nil, errors.Wrapf(err, "get product %d", l.ProductID)
		}
		if p.Quantity < l.Quantity {
			lg.Warn("Insufficient stock",
				zap.Int64("product_id", l.ProductID),
				zap.Int("requested", l.Quantity),
				zap.Int("available", p.Quantity),
			)
			return nil, &InsufficientStockError{ProductID: l.ProductID, Requested: l.Quantity, Available: p.Quantity}
		}
		items = append(items, Item{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
		})
	}
	return items, nil
}

// reserveStock decrements every line. The first failure restores the lines
// already decremented and deletes the persisted order.
func (s *Service) reserveStock(ctx context.Context, o *Order) error {
	done := make([]Item, 0, len(o.Items))
	for _, it := range o.Items {
		if err := s.products.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			zctx.From(ctx).Error("Decrement stock, rolling back order",
				zap.Int64("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err),
			)
			trace.SpanFromContext(ctx).AddEvent("order.compensate",
				trace.WithAttributes(attribute.Int64("product.id", it.ProductID)))
			s.compensate(ctx, o, done)
			s.metrics.compensated.Add(ctx, 1)
			return &InventoryUpdateFailedError{OrderID: o.ID, ProductID: it.ProductID, Err: err}
		}
		done = append(done, it)
	}
	return nil
}

func (s *Service) compensate(ctx context.Context, o *Order, decremented []Item) {
	lg := zctx.From(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()

	for _, it := range decremented {
		if err := s.products.RestoreStock(ctx, it.ProductID, it.Quantity); err != nil {
			lg.Error("Restore stock during rollback, manual reconciliation required",
				zap.Int64("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err),
			)
		}
	}
	if err := s.orders.Delete(ctx, o.ID); err != nil {
		lg.Error("Delete order during rollback, manual reconciliation required", zap.Error(err))
		return
	}
	lg.Info("Order rolled back", zap.Int("restored_items", len(decremented)))
}

func (s *Service) saveCustomer(ctx context.Context, u *UserInfo, c CustomerInfo) {
	if s.profiles == nil || c.IsZero() {
		return
	}
	stored := CustomerInfo{FullName: u.FullName, Email: u.Email, Phone: u.Phone, Address: u.Address}
	merged := CustomerInfo{
		FullName: orElse(c.FullName, stored.FullName),
		Email:    orElse(c.Email, stored.Email),
		Phone:    orElse(c.Phone, stored.Phone),
		Address:  orElse(c.Address, stored.Address),
	}
	if merged == stored {
		return
	}
	if err := s.profiles.SaveCustomerInfo(ctx, u.Username, merged); err != nil {
		s.metrics.sideEffectFailed(ctx, "profile")
		zctx.From(ctx).Warn("Save customer info", zap.Error(err))
	}
}

func orElse(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

func (s *Service) clearCart(ctx context.Context, o *Order) {
	lg := zctx.From(ctx)
	if s.cart == nil {
		lg.Debug("Cart service not configured, skipping cart cleanup")
		return
	}
	for _, it := range o.Items {
		if err := s.cart.RemoveItem(ctx, o.Username, it.ProductID); err != nil {
			s.metrics.sideEffectFailed(ctx, "cart")
			lg.Warn("Remove item from cart", zap.Int64("product_id", it.ProductID), zap.Error(err))
		}
	}
}

func (s *Service) notify(ctx context.Context, o *Order, u *UserInfo) {
	lg := zctx.From(ctx)
	if s.notifier == nil {
		lg.Debug("Notification service not configured, skipping confirmation")
		return
	}
	if u.Email == "" {
		lg.Warn("No email for user, skipping confirmation")
		return
	}
	err := s.notifier.SendOrderConfirmation(ctx, Confirmation{
		Email:      u.Email,
		OrderID:    o.ID,
		Status:     StatusCompleted,
		Items:      o.Items,
		TotalPrice: o.TotalPrice,
	})
	if err != nil {
		s.metrics.sideEffectFailed(ctx, "notification")
		lg.Warn("Send order confirmation", zap.Error(err))
	}
}

// GetByID returns the order or ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id int64) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListByUser returns the user's orders; an unknown user simply has none.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders of user %d", userID)
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

// UpdateStatus sets the order status to the parsed value of status.
// CANCELED is only reachable through Cancel, which returns the stock, and a
// canceled order cannot be reopened.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*Order, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if st == StatusCanceled {
		return nil, ErrInvalidTransition
	}
	o, err := s.orders.UpdateStatus(ctx, id, st, s.now())
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Order status updated", zap.Int64("order_id", id), zap.String("status", string(st)))
	return o, nil
}

// Cancel moves the order to CANCELED and returns its stock. Delivered and
// already canceled orders fail with ErrInvalidTransition. Restocking is
// best effort.
func (s *Service) Cancel(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.Cancel(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	lg := zctx.From(ctx).With(zap.Int64("order_id", id))
	for _, it := range o.Items {
		if err := s.products.RestoreStock(ctx, it.ProductID, it.Quantity); err != nil {
			lg.Error("Restore stock after cancel, manual reconciliation required",
				zap.Int64("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err),
			)
		}
	}
	lg.Info("Order canceled")
	return o, nil
}
