package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-desk/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, stock FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, stock FROM products WHERE id = $1`

	lockProductsSQL = `SELECT id, name, price, stock FROM products
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	setStockSQL = `UPDATE products SET stock = $2 WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, price, stock)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// Upsert inserts the products or overwrites existing rows with the same id,
// in one transaction.
func (r *ProductRepository) Upsert(ctx context.Context, products []product.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range products {
			batch.Queue(upsertProductSQL, p.ID, p.Name, p.Price, p.Stock)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "upsert products")
		}
		return nil
	})
}

// lockProducts locks the given product rows in id order so that concurrent
// transactions always acquire them in the same sequence.
func lockProducts(ctx context.Context, q querier, ids []string) (map[string]*product.Product, error) {
	if len(ids) == 0 {
		return map[string]*product.Product{}, nil
	}
	rows, err := q.Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lock products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "lock products")
	}

	out := make(map[string]*product.Product, len(products))
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func setStock(ctx context.Context, q querier, id string, stock int) error {
	tag, err := q.Exec(ctx, setStockSQL, id, stock)
	if err != nil {
		return errors.Wrapf(err, "set stock of product %q", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(product.ErrNotFound, "set stock of product %q", id)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	return p, err
}
