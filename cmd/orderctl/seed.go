package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/internal/domain/promo"
	"github.com/xenking/order-desk/internal/repository"
)

func newSeedCmd(opts *globalOptions) *cobra.Command {
	var (
		productsFile string
		skipPromos   bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load catalog products and demo promo codes",
		Long: `Upsert products (with stock) from a JSON file and a demo set of promo codes.

Examples:
  orderctl seed                                   # db/seed/products.json + demo promos
  orderctl seed --products-file catalog.json      # custom catalog
  orderctl seed --skip-promos                     # products only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), opts, productsFile, skipPromos)
		},
	}
	cmd.Flags().StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	cmd.Flags().BoolVar(&skipPromos, "skip-promos", false, "do not create the demo promo codes")
	return cmd
}

func runSeed(ctx context.Context, opts *globalOptions, productsFile string, skipPromos bool) error {
	slog.Info("reading products file", slog.String("path", productsFile))
	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	products, err := decodeProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products file")
	}

	pool, err := opts.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("upserting products", slog.Int("count", len(products)))
	if err := repository.NewProductRepository(pool).Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if skipPromos {
		return nil
	}
	codes := demoPromos(time.Now())
	if err := repository.NewPromoRepository(pool).Upsert(ctx, codes); err != nil {
		return errors.Wrap(err, "seed promo codes")
	}
	for _, p := range codes {
		slog.Info("upserted promo code", slog.String("code", p.Code), slog.String("name", p.Name))
	}

	slog.Info("seed completed")
	return nil
}

// decodeProducts parses a JSON array of {"id","name","price","stock"}.
// Prices may be JSON strings or numbers.
func decodeProducts(data []byte) ([]product.Product, error) {
	var products []product.Product
	d := jx.DecodeBytes(data)
	err := d.Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				p.ID, err = d.Str()
			case "name":
				p.Name, err = d.Str()
			case "price":
				p.Price, err = decodeDecimal(d)
			case "stock":
				p.Stock, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		if p.ID == "" || p.Name == "" {
			return errors.Errorf("product #%d: id and name are required", len(products)+1)
		}
		if p.Price.IsNegative() || p.Stock < 0 {
			return errors.Errorf("product %s: price and stock must not be negative", p.ID)
		}
		products = append(products, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// decodeDecimal reads a decimal written either as a JSON number or string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.New("expected number or numeric string")
	}
}

// demoPromos returns a promo code of each kind, valid for a year from now.
func demoPromos(now time.Time) []promo.PromoCode {
	start := now.UTC().Truncate(24 * time.Hour)
	end := start.AddDate(1, 0, 0)
	return []promo.PromoCode{
		{
			ID:          "demo-fiveoff",
			Code:        "FIVEOFF",
			Name:        "5 off any order",
			Type:        promo.TypeFixed,
			FixedAmount: decimal.NewFromInt(5),
			IsActive:    true,
			StartAt:     start,
			EndedAt:     end,
		},
		{
			ID:                 "demo-happyhours",
			Code:               "HAPPYHOURS",
			Name:               "Happy Hours: 18% off, up to 10",
			Type:               promo.TypePercentage,
			DiscountPercentage: decimal.NewFromInt(18),
			MaxDiscountAmount:  decimal.NewFromInt(10),
			IsActive:           true,
			StartAt:            start,
			EndedAt:            end,
		},
		{
			ID:                 "demo-halfoff",
			Code:               "HALFOFF",
			Name:               "50% off, up to 25",
			Type:               promo.TypePercentage,
			DiscountPercentage: decimal.NewFromInt(50),
			MaxDiscountAmount:  decimal.NewFromInt(25),
			IsActive:           true,
			StartAt:            start,
			EndedAt:            end,
		},
	}
}
