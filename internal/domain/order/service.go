package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/internal/domain/promo"
)

const instrumentationName = "github.com/xenking/order-desk/internal/domain/order"

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	UserID     string
	Items      []ItemSpec
	CouponCode string
}

// UpdateRequest holds the input for replacing an order. An empty Items
// leaves the current lines untouched; an empty CouponCode keeps the
// current promo code.
type UpdateRequest struct {
	UserID     string
	OrderID    string
	Items      []ItemSpec
	CouponCode string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for order timestamps and promo
// activity checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the publisher notified after each committed mutation.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithInactivePromos makes promo resolution accept any existing code,
// ignoring its enabled flag and validity window.
func WithInactivePromos(allow bool) Option {
	return func(s *Service) { s.allowInactivePromo = allow }
}

// WithTracerProvider sets the tracer provider for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider for service counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

type serviceMetrics struct {
	created       metric.Int64Counter
	updated       metric.Int64Counter
	deleted       metric.Int64Counter
	stockRejected metric.Int64Counter
	promoRejected metric.Int64Counter
}

// Service implements the order pricing and stock workflow.
type Service struct {
	store              Store
	events             Publisher
	now                func() time.Time
	allowInactivePromo bool

	tracer        trace.Tracer
	meterProvider metric.MeterProvider
	metrics       serviceMetrics
}

// NewService creates an order Service backed by store.
func NewService(store Store, opts ...Option) (*Service, error) {
	s := &Service{
		store:         store,
		now:           time.Now,
		tracer:        tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meterProvider: metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	meter := s.meterProvider.Meter(instrumentationName)
	var err error
	if s.metrics.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders placed")); err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	if s.metrics.updated, err = meter.Int64Counter("orders.updated",
		metric.WithDescription("Orders replaced")); err != nil {
		return nil, errors.Wrap(err, "orders.updated counter")
	}
	if s.metrics.deleted, err = meter.Int64Counter("orders.deleted",
		metric.WithDescription("Orders deleted")); err != nil {
		return nil, errors.Wrap(err, "orders.deleted counter")
	}
	if s.metrics.stockRejected, err = meter.Int64Counter("orders.stock_rejected",
		metric.WithDescription("Order mutations rejected for insufficient stock")); err != nil {
		return nil, errors.Wrap(err, "orders.stock_rejected counter")
	}
	if s.metrics.promoRejected, err = meter.Int64Counter("orders.promo_rejected",
		metric.WithDescription("Order mutations rejected for an invalid promo code")); err != nil {
		return nil, errors.Wrap(err, "orders.promo_rejected counter")
	}

	return s, nil
}

// CreateOrder places a new order for req.UserID. Items are built in the
// given order, the promo code is resolved and totals are computed, all in
// one transaction: on any error nothing is persisted and no stock moves.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Int("order.items", len(req.Items)),
	))
	defer span.End()

	var created *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o := &Order{
			ID:        uuid.New().String(),
			UserID:    req.UserID,
			CreatedAt: s.now().UTC(),
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		products, err := tx.LockProducts(ctx, productIDs(nil, req.Items))
		if err != nil {
			return errors.Wrap(err, "lock products")
		}
		if err := buildItems(ctx, tx, o, products, req.Items); err != nil {
			return err
		}
		if err := s.applyPromo(ctx, tx, o, req.CouponCode); err != nil {
			return err
		}

		o.Recompute()
		if err := tx.SaveTotals(ctx, o); err != nil {
			return errors.Wrap(err, "save totals")
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	s.metrics.created.Add(ctx, 1)
	s.publish(ctx, EventCreated, created)
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", created.ID),
		zap.Int("items", len(created.Items)),
		zap.Stringer("total", created.TotalPrice),
		zap.Stringer("discount", created.Discount),
	)
	return created, nil
}

// UpdateOrder replaces the lines and/or promo code of an existing order.
// When new items are given, the stock held by the current lines is
// restored before the new lines are built.
func (s *Service) UpdateOrder(ctx context.Context, req UpdateRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Update", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("order.id", req.OrderID),
		attribute.Int("order.items", len(req.Items)),
	))
	defer span.End()

	var updated *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, req.UserID, req.OrderID)
		if err != nil {
			return err
		}

		if len(req.Items) > 0 {
			products, err := tx.LockProducts(ctx, productIDs(o.Items, req.Items))
			if err != nil {
				return errors.Wrap(err, "lock products")
			}
			if err := reverseStock(ctx, tx, o, products); err != nil {
				return err
			}
			if err := buildItems(ctx, tx, o, products, req.Items); err != nil {
				return err
			}
		}
		if err := s.applyPromo(ctx, tx, o, req.CouponCode); err != nil {
			return err
		}

		o.Recompute()
		if err := tx.SaveTotals(ctx, o); err != nil {
			return errors.Wrap(err, "save totals")
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	s.metrics.updated.Add(ctx, 1)
	s.publish(ctx, EventUpdated, updated)
	return updated, nil
}

// DeleteOrder removes an order and returns the stock its lines held.
func (s *Service) DeleteOrder(ctx context.Context, userID, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "order.Delete", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("order.id", orderID),
	))
	defer span.End()

	var deleted *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, userID, orderID)
		if err != nil {
			return err
		}
		products, err := tx.LockProducts(ctx, productIDs(o.Items, nil))
		if err != nil {
			return errors.Wrap(err, "lock products")
		}
		if err := reverseStock(ctx, tx, o, products); err != nil {
			return err
		}
		if err := tx.DeleteOrder(ctx, o.ID); err != nil {
			return errors.Wrap(err, "delete order")
		}
		deleted = o
		return nil
	})
	if err != nil {
		return s.fail(ctx, span, err)
	}

	s.metrics.deleted.Add(ctx, 1)
	s.publish(ctx, EventDeleted, deleted)
	return nil
}

// GetOrder returns an order owned by userID.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// ListOrders returns all orders owned by userID, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// buildItems creates one line per spec, in order, decrementing the stock of
// the locked products as it goes.
func buildItems(ctx context.Context, tx Tx, o *Order, products map[string]*product.Product, specs []ItemSpec) error {
	for _, spec := range specs {
		item, err := buildItem(ctx, tx, o, products[spec.ProductID], spec)
		if err != nil {
			return err
		}
		o.Items = append(o.Items, *item)
	}
	return nil
}

// buildItem checks stock on the locked product row, decrements it and
// inserts the line priced at unit price times quantity. p is nil when the
// product does not exist.
func buildItem(ctx context.Context, tx Tx, o *Order, p *product.Product, spec ItemSpec) (*Item, error) {
	if spec.Quantity <= 0 {
		return nil, &InvalidQuantityError{ProductID: spec.ProductID, Quantity: spec.Quantity}
	}
	if p == nil {
		return nil, &ProductNotFoundError{ProductID: spec.ProductID}
	}
	if spec.Quantity > p.Stock {
		return nil, &InsufficientStockError{
			ProductID: p.ID,
			Requested: spec.Quantity,
			Available: p.Stock,
		}
	}

	p.Stock -= spec.Quantity
	if err := tx.SetStock(ctx, p.ID, p.Stock); err != nil {
		return nil, errors.Wrapf(err, "decrement stock of product %s", p.ID)
	}

	item := &Item{
		OrderID:   o.ID,
		ProductID: p.ID,
		Quantity:  spec.Quantity,
		Price:     p.LinePrice(spec.Quantity),
	}
	if err := tx.InsertItem(ctx, item); err != nil {
		return nil, errors.Wrapf(err, "insert item for product %s", p.ID)
	}
	return item, nil
}

// reverseStock returns the quantity of every current line to its product
// and deletes the lines.
func reverseStock(ctx context.Context, tx Tx, o *Order, products map[string]*product.Product) error {
	for _, item := range o.Items {
		p, ok := products[item.ProductID]
		if !ok {
			return errors.Errorf("product %s of item %d is missing", item.ProductID, item.ID)
		}
		p.Stock += item.Quantity
		if err := tx.SetStock(ctx, p.ID, p.Stock); err != nil {
			return errors.Wrapf(err, "restore stock of product %s", p.ID)
		}
	}
	if err := tx.DeleteItems(ctx, o.ID); err != nil {
		return errors.Wrap(err, "delete items")
	}
	o.Items = nil
	return nil
}

// applyPromo resolves code and attaches it to o. An empty code keeps the
// current promo.
func (s *Service) applyPromo(ctx context.Context, tx Tx, o *Order, code string) error {
	if code == "" {
		return nil
	}
	p, err := s.resolvePromo(ctx, tx, code)
	if err != nil {
		return err
	}
	o.Promo = p
	return nil
}

func (s *Service) resolvePromo(ctx context.Context, tx Tx, code string) (*promo.PromoCode, error) {
	p, err := tx.FindPromoByCode(ctx, code)
	if err != nil {
		if errors.Is(err, promo.ErrNotFound) {
			return nil, ErrInvalidPromoCode
		}
		return nil, errors.Wrap(err, "find promo code")
	}
	if !s.allowInactivePromo && !p.ActiveAt(s.now()) {
		zctx.From(ctx).Debug("Promo code outside its active window", zap.String("code", code))
		return nil, ErrInvalidPromoCode
	}
	return p, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error) error {
	kind := KindOf(err)
	span.SetAttributes(attribute.String("order.error_kind", string(kind)))

	switch kind {
	case KindInsufficientStock:
		s.metrics.stockRejected.Add(ctx, 1)
	case KindInvalidPromoCode:
		s.metrics.promoRejected.Add(ctx, 1)
	case KindInternal:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	zctx.From(ctx).Debug("Order rejected", zap.String("kind", string(kind)), zap.Error(err))
	return err
}

func (s *Service) publish(ctx context.Context, typ EventType, o *Order) {
	if s.events == nil {
		return
	}
	e := Event{Type: typ, Order: *o, OccurredAt: s.now().UTC()}
	if err := s.events.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", string(typ)),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// productIDs returns the sorted, de-duplicated product ids referenced by
// the current lines and the requested specs. Sorting gives every
// transaction the same lock order.
func productIDs(items []Item, specs []ItemSpec) []string {
	ids := make([]string, 0, len(items)+len(specs))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	for _, spec := range specs {
		ids = append(ids, spec.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
