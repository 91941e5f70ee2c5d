package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-desk/internal/domain/promo"
)

const promoColumns = `id, coupon_code, coupon_name, type, fixed_amount, discount_percentage,
		max_discount_amount, is_active, start_at, ended_at`

const (
	findPromoByCodeSQL = `SELECT ` + promoColumns + ` FROM promo_codes WHERE coupon_code = $1`

	getPromosByIDsSQL = `SELECT ` + promoColumns + ` FROM promo_codes WHERE id = ANY($1)`

	listActivePromosSQL = `SELECT ` + promoColumns + ` FROM promo_codes
		WHERE is_active AND start_at <= $1 AND ended_at >= $1
		ORDER BY coupon_code`

	getActivePromoSQL = `SELECT ` + promoColumns + ` FROM promo_codes
		WHERE id = $1 AND is_active AND start_at <= $2 AND ended_at >= $2`

	listPromoCodesSQL = `SELECT coupon_code FROM promo_codes`

	upsertPromoSQL = `INSERT INTO promo_codes (` + promoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (coupon_code) DO UPDATE SET
			coupon_name = EXCLUDED.coupon_name,
			type = EXCLUDED.type,
			fixed_amount = EXCLUDED.fixed_amount,
			discount_percentage = EXCLUDED.discount_percentage,
			max_discount_amount = EXCLUDED.max_discount_amount,
			is_active = EXCLUDED.is_active,
			start_at = EXCLUDED.start_at,
			ended_at = EXCLUDED.ended_at`
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// FindByCode looks a promo code up by exact, case-sensitive match.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.PromoCode, error) {
	return findPromoByCode(ctx, r.pool, code)
}

// ListActive returns the codes that are enabled and inside their validity
// window at now.
func (r *PromoRepository) ListActive(ctx context.Context, now time.Time) ([]promo.PromoCode, error) {
	rows, err := r.pool.Query(ctx, listActivePromosSQL, now)
	if err != nil {
		return nil, errors.Wrap(err, "list active promo codes")
	}
	return pgx.CollectRows(rows, scanPromo)
}

// GetActive returns the promo code with the given id if it is active at now.
func (r *PromoRepository) GetActive(ctx context.Context, id string, now time.Time) (*promo.PromoCode, error) {
	rows, err := r.pool.Query(ctx, getActivePromoSQL, id, now)
	if err != nil {
		return nil, errors.Wrapf(err, "get promo code %q", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get promo code %q", id)
	}
	return &p, nil
}

// Codes returns every stored coupon code.
func (r *PromoRepository) Codes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listPromoCodesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list promo codes")
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Upsert inserts promo codes or overwrites existing ones with the same code.
func (r *PromoRepository) Upsert(ctx context.Context, codes []promo.PromoCode) error {
	if len(codes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range codes {
		batch.Queue(upsertPromoSQL,
			p.ID, p.Code, p.Name, string(p.Type), p.FixedAmount, p.DiscountPercentage,
			p.MaxDiscountAmount, p.IsActive, p.StartAt, p.EndedAt,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert promo codes")
	}
	return nil
}

func findPromoByCode(ctx context.Context, q querier, code string) (*promo.PromoCode, error) {
	rows, err := q.Query(ctx, findPromoByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find promo code %q", code)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find promo code %q", code)
	}
	return &p, nil
}

// promosByID loads the promo codes with the given ids keyed by id.
func promosByID(ctx context.Context, q querier, ids []string) (map[string]*promo.PromoCode, error) {
	out := make(map[string]*promo.PromoCode, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, getPromosByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get promo codes")
	}
	codes, err := pgx.CollectRows(rows, scanPromo)
	if err != nil {
		return nil, errors.Wrap(err, "get promo codes")
	}
	for i := range codes {
		out[codes[i].ID] = &codes[i]
	}
	return out, nil
}

func scanPromo(row pgx.CollectableRow) (promo.PromoCode, error) {
	var (
		p   promo.PromoCode
		typ string
	)
	err := row.Scan(
		&p.ID, &p.Code, &p.Name, &typ, &p.FixedAmount, &p.DiscountPercentage,
		&p.MaxDiscountAmount, &p.IsActive, &p.StartAt, &p.EndedAt,
	)
	p.Type = promo.Type(typ)
	return p, err
}
