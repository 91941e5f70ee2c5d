package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/internal/domain/promo"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, total_price, discount, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	getOrderSQL = `SELECT id, user_id, promo_code_id, total_price, discount, created_at
		FROM orders WHERE id = $1 AND user_id = $2`

	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersSQL = `SELECT id, user_id, promo_code_id, total_price, discount, created_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`

	listItemsSQL = `SELECT id, order_id, product_id, quantity, price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`

	insertItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4) RETURNING id`

	deleteItemsSQL = `DELETE FROM order_items WHERE order_id = $1`

	saveTotalsSQL = `UPDATE orders SET promo_code_id = $2, total_price = $3, discount = $4 WHERE id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

var (
	_ order.Store = (*OrderStore)(nil)
	_ order.Tx    = (*orderTx)(nil)
)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// InTx runs fn in a read-committed transaction. Row locks taken through the
// Tx serialise competing stock updates.
func (s *OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, &orderTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// Get returns the order with its items and promo when owned by userID.
func (s *OrderStore) Get(ctx context.Context, userID, orderID string) (*order.Order, error) {
	return loadOrder(ctx, s.pool, getOrderSQL, userID, orderID)
}

// List returns the orders of userID, newest first.
func (s *OrderStore) List(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, listOrdersSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	records, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if len(records) == 0 {
		return []order.Order{}, nil
	}

	orders := make([]order.Order, len(records))
	for i := range records {
		orders[i] = records[i].Order
	}
	if err := attachItems(ctx, s.pool, orders); err != nil {
		return nil, err
	}
	if err := attachPromos(ctx, s.pool, orders, records); err != nil {
		return nil, err
	}
	return orders, nil
}

type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) LockProducts(ctx context.Context, ids []string) (map[string]*product.Product, error) {
	return lockProducts(ctx, t.tx, ids)
}

func (t *orderTx) SetStock(ctx context.Context, productID string, stock int) error {
	return setStock(ctx, t.tx, productID, stock)
}

func (t *orderTx) FindPromoByCode(ctx context.Context, code string) (*promo.PromoCode, error) {
	return findPromoByCode(ctx, t.tx, code)
}

func (t *orderTx) CreateOrder(ctx context.Context, o *order.Order) error {
	_, err := t.tx.Exec(ctx, insertOrderSQL, o.ID, o.UserID, o.TotalPrice, o.Discount, o.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

func (t *orderTx) LockOrder(ctx context.Context, userID, orderID string) (*order.Order, error) {
	return loadOrder(ctx, t.tx, lockOrderSQL, userID, orderID)
}

func (t *orderTx) InsertItem(ctx context.Context, item *order.Item) error {
	err := t.tx.QueryRow(ctx, insertItemSQL,
		item.OrderID, item.ProductID, item.Quantity, item.Price,
	).Scan(&item.ID)
	if err != nil {
		return errors.Wrapf(err, "insert item of order %q", item.OrderID)
	}
	return nil
}

func (t *orderTx) DeleteItems(ctx context.Context, orderID string) error {
	if _, err := t.tx.Exec(ctx, deleteItemsSQL, orderID); err != nil {
		return errors.Wrapf(err, "delete items of order %q", orderID)
	}
	return nil
}

func (t *orderTx) SaveTotals(ctx context.Context, o *order.Order) error {
	var promoID *string
	if o.Promo != nil {
		promoID = &o.Promo.ID
	}
	if _, err := t.tx.Exec(ctx, saveTotalsSQL, o.ID, promoID, o.TotalPrice, o.Discount); err != nil {
		return errors.Wrapf(err, "save totals of order %q", o.ID)
	}
	return nil
}

func (t *orderTx) DeleteOrder(ctx context.Context, orderID string) error {
	if _, err := t.tx.Exec(ctx, deleteOrderSQL, orderID); err != nil {
		return errors.Wrapf(err, "delete order %q", orderID)
	}
	return nil
}

// orderRecord is an order row before its items and promo are attached.
type orderRecord struct {
	order.Order
	promoID *string
}

func scanOrder(row pgx.CollectableRow) (orderRecord, error) {
	var r orderRecord
	err := row.Scan(&r.ID, &r.UserID, &r.promoID, &r.TotalPrice, &r.Discount, &r.CreatedAt)
	return r, err
}

func loadOrder(ctx context.Context, q querier, query, userID, orderID string) (*order.Order, error) {
	rows, err := q.Query(ctx, query, orderID, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", orderID)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", orderID)
	}

	orders := []order.Order{r.Order}
	if err := attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	if err := attachPromos(ctx, q, orders, []orderRecord{r}); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// attachItems loads the items of all orders with one query, keeping each
// order's items in insertion order.
func attachItems(ctx context.Context, q querier, orders []order.Order) error {
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.Query(ctx, listItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list order items")
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price)
		return it, err
	})
	if err != nil {
		return errors.Wrap(err, "list order items")
	}

	for _, it := range items {
		o := &orders[index[it.OrderID]]
		o.Items = append(o.Items, it)
	}
	return nil
}

func attachPromos(ctx context.Context, q querier, orders []order.Order, records []orderRecord) error {
	var ids []string
	for _, r := range records {
		if r.promoID != nil {
			ids = append(ids, *r.promoID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	promos, err := promosByID(ctx, q, ids)
	if err != nil {
		return err
	}
	for i, r := range records {
		if r.promoID != nil {
			orders[i].Promo = promos[*r.promoID]
		}
	}
	return nil
}
