package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/internal/domain/promo"
)

// Order is a user's purchase: an ordered list of line items, an optional
// promo code and the totals derived from both.
type Order struct {
	ID         string
	UserID     string
	Items      []Item
	Promo      *promo.PromoCode
	TotalPrice decimal.Decimal
	Discount   decimal.Decimal
	CreatedAt  time.Time
}

// CouponCode returns the code of the attached promo, or "".
func (o *Order) CouponCode() string {
	if o.Promo == nil {
		return ""
	}
	return o.Promo.Code
}

// Item is a single order line. Price is frozen at creation time.
type Item struct {
	ID        int64
	OrderID   string
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// ItemSpec is a requested order line: a product reference and a quantity.
type ItemSpec struct {
	ProductID string
	Quantity  int
}

// Store persists orders. Every mutation of an order and of the stock it
// holds goes through InTx so that it either fully applies or not at all.
type Store interface {
	// InTx runs fn in a single transaction. The transaction is committed
	// when fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Get returns the order with its items and promo when owned by userID.
	Get(ctx context.Context, userID, orderID string) (*Order, error)
	// List returns all orders of userID, newest first.
	List(ctx context.Context, userID string) ([]Order, error)
}

// Tx is the set of operations available inside a Store transaction.
type Tx interface {
	// LockProducts locks the rows of the given products for the rest of
	// the transaction and returns them keyed by id. Unknown ids are absent
	// from the result.
	LockProducts(ctx context.Context, ids []string) (map[string]*product.Product, error)
	// SetStock overwrites the stock of a locked product.
	SetStock(ctx context.Context, productID string, stock int) error
	// FindPromoByCode looks a promo code up by exact match.
	FindPromoByCode(ctx context.Context, code string) (*promo.PromoCode, error)
	// CreateOrder inserts the order row (without items).
	CreateOrder(ctx context.Context, o *Order) error
	// LockOrder locks and loads an order owned by userID, with its items
	// and promo code. It returns ErrNotFound when there is no such order.
	LockOrder(ctx context.Context, userID, orderID string) (*Order, error)
	// InsertItem inserts an order line and assigns item.ID.
	InsertItem(ctx context.Context, item *Item) error
	// DeleteItems removes every line of the order.
	DeleteItems(ctx context.Context, orderID string) error
	// SaveTotals persists the promo reference, total and discount.
	SaveTotals(ctx context.Context, o *Order) error
	// DeleteOrder removes the order and its lines.
	DeleteOrder(ctx context.Context, orderID string) error
}
