package order

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/internal/domain/promo"
)

// memStore is an in-memory Store. Transactions are serialised by a single
// mutex and rolled back by restoring a snapshot.
type memStore struct {
	mu         sync.Mutex
	products   map[string]product.Product
	promos     map[string]promo.PromoCode
	orders     map[string]*Order
	nextItemID int64
}

func newMemStore(products ...product.Product) *memStore {
	s := &memStore{
		products: make(map[string]product.Product, len(products)),
		promos:   make(map[string]promo.PromoCode),
		orders:   make(map[string]*Order),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) addPromo(p promo.PromoCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promos[p.Code] = p
}

func (s *memStore) stock(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type memSnapshot struct {
	products   map[string]product.Product
	orders     map[string]*Order
	nextItemID int64
}

func (s *memStore) snapshot() memSnapshot {
	orders := make(map[string]*Order, len(s.orders))
	for id, o := range s.orders {
		orders[id] = cloneOrder(o)
	}
	products := make(map[string]product.Product, len(s.products))
	for id, p := range s.products {
		products[id] = p
	}
	return memSnapshot{products: products, orders: orders, nextItemID: s.nextItemID}
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.products = snap.products
		s.orders = snap.orders
		s.nextItemID = snap.nextItemID
		return err
	}
	return nil
}

func (s *memStore) Get(_ context.Context, userID, orderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *memStore) List(_ context.Context, userID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

type memTx struct {
	s *memStore
}

func (t *memTx) LockProducts(_ context.Context, ids []string) (map[string]*product.Product, error) {
	out := make(map[string]*product.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out[id] = &p
		}
	}
	return out, nil
}

func (t *memTx) SetStock(_ context.Context, productID string, stock int) error {
	p := t.s.products[productID]
	p.Stock = stock
	t.s.products[productID] = p
	return nil
}

func (t *memTx) FindPromoByCode(_ context.Context, code string) (*promo.PromoCode, error) {
	p, ok := t.s.promos[code]
	if !ok {
		return nil, promo.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) CreateOrder(_ context.Context, o *Order) error {
	t.s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *memTx) LockOrder(_ context.Context, userID, orderID string) (*Order, error) {
	o, ok := t.s.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (t *memTx) InsertItem(_ context.Context, item *Item) error {
	t.s.nextItemID++
	item.ID = t.s.nextItemID
	o := t.s.orders[item.OrderID]
	o.Items = append(o.Items, *item)
	return nil
}

func (t *memTx) DeleteItems(_ context.Context, orderID string) error {
	t.s.orders[orderID].Items = nil
	return nil
}

func (t *memTx) SaveTotals(_ context.Context, o *Order) error {
	stored := t.s.orders[o.ID]
	stored.Promo = o.Promo
	stored.TotalPrice = o.TotalPrice
	stored.Discount = o.Discount
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, orderID string) error {
	delete(t.s.orders, orderID)
	return nil
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	return &c
}
