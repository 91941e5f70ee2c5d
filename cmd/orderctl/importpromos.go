package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-desk/internal/domain/promo"
	"github.com/xenking/order-desk/internal/repository"
)

const (
	promoFilePattern = "*.jsonl.gz"
	bloomFPR         = 0.001
	minBloomCapacity = 1024
	upsertBatchSize  = 1000
	maxLineBytes     = 64 << 10
	progressEvery    = 100_000
)

var hundred = decimal.NewFromInt(100)

// promoStore is the subset of the promo repository the importer needs.
type promoStore interface {
	Codes(ctx context.Context) ([]string, error)
	FindByCode(ctx context.Context, code string) (*promo.PromoCode, error)
	Upsert(ctx context.Context, codes []promo.PromoCode) error
}

// importStats summarises an import run.
type importStats struct {
	Files    int
	Lines    int
	Invalid  int
	Existing int
	Imported int
}

func newImportPromosCmd(opts *globalOptions) *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "import-promos",
		Short: "Bulk import promo codes from gzip'd JSON-lines files",
		Long: `Stream every *.jsonl.gz file in --data-dir concurrently and insert the
promo codes that are not stored yet. Existing codes are never overwritten.

Each line is one promo code:
  {"coupon_code":"SPRING10","coupon_name":"Spring sale","type":"percentage",
   "discount_percentage":"10","max_discount_amount":"15","is_active":true,
   "start_at":"2026-03-01T00:00:00Z","ended_at":"2026-06-01T00:00:00Z"}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			files, err := filepath.Glob(filepath.Join(dataDir, promoFilePattern))
			if err != nil {
				return errors.Wrap(err, "list promo files")
			}
			if len(files) == 0 {
				return errors.Errorf("no %s files in %s", promoFilePattern, dataDir)
			}
			sort.Strings(files)

			pool, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			stats, err := importPromos(ctx, repository.NewPromoRepository(pool), files)
			if err != nil {
				return err
			}
			slog.Info("promo import completed",
				slog.Int("files", stats.Files),
				slog.Int("lines", stats.Lines),
				slog.Int("invalid", stats.Invalid),
				slog.Int("existing", stats.Existing),
				slog.Int("imported", stats.Imported),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz promo files")
	return cmd
}

// fileResult holds the new codes found in a single file, in file order.
type fileResult struct {
	codes    []promo.PromoCode
	lines    int
	invalid  int
	existing int
}

// importPromos inserts every valid promo code from files that the store does
// not already hold. When several files define the same code the first file
// (in the given order) wins.
func importPromos(ctx context.Context, store promoStore, files []string) (importStats, error) {
	stats := importStats{Files: len(files)}

	existing, err := store.Codes(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "load existing codes")
	}
	filter := bloom.NewWithEstimates(uint(max(len(existing), minBloomCapacity)), bloomFPR)
	for _, code := range existing {
		filter.AddString(code)
	}
	slog.Info("existing codes loaded", slog.Int("count", len(existing)))

	results := make([]fileResult, len(files))
	g, gCtx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			res, err := scanPromoFile(gCtx, path, filter, store)
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	seen := make(map[string]struct{})
	var fresh []promo.PromoCode
	for _, res := range results {
		stats.Lines += res.lines
		stats.Invalid += res.invalid
		stats.Existing += res.existing
		for _, p := range res.codes {
			if _, dup := seen[p.Code]; dup {
				continue
			}
			seen[p.Code] = struct{}{}
			fresh = append(fresh, p)
		}
	}

	for start := 0; start < len(fresh); start += upsertBatchSize {
		batch := fresh[start:min(start+upsertBatchSize, len(fresh))]
		if err := store.Upsert(ctx, batch); err != nil {
			return stats, errors.Wrap(err, "write promo codes")
		}
		stats.Imported += len(batch)
		slog.Info("write progress", slog.Int("written", stats.Imported), slog.Int("total", len(fresh)))
	}
	return stats, nil
}

// scanPromoFile streams one gzip'd JSON-lines file. The bloom filter answers
// "definitely new" for most codes; positives are confirmed by exact lookup.
func scanPromoFile(ctx context.Context, path string, filter *bloom.BloomFilter, store promoStore) (fileResult, error) {
	var res fileResult

	f, err := os.Open(path)
	if err != nil {
		return res, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return res, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	local := make(map[string]struct{})
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		res.lines++
		if res.lines%progressEvery == 0 {
			slog.Info("scan progress", slog.String("file", filepath.Base(path)), slog.Int("lines", res.lines))
		}

		p, err := parsePromoLine(line)
		if err != nil {
			res.invalid++
			slog.Warn("skipping invalid promo line",
				slog.String("file", filepath.Base(path)),
				slog.Int("line", res.lines),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, dup := local[p.Code]; dup {
			continue
		}
		local[p.Code] = struct{}{}

		if filter.TestString(p.Code) {
			_, err := store.FindByCode(ctx, p.Code)
			switch {
			case err == nil:
				res.existing++
				continue
			case !errors.Is(err, promo.ErrNotFound):
				return res, errors.Wrapf(err, "look up %q", p.Code)
			}
		}
		p.ID = uuid.NewString()
		res.codes = append(res.codes, p)
	}
	if err := scanner.Err(); err != nil {
		return res, errors.Wrap(err, "scan")
	}
	return res, nil
}

// parsePromoLine decodes and validates a single promo code definition.
func parsePromoLine(line []byte) (promo.PromoCode, error) {
	p := promo.PromoCode{IsActive: true}
	var hasStart, hasEnd bool

	d := jx.DecodeBytes(line)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "coupon_code":
			p.Code, err = d.Str()
			p.Code = strings.TrimSpace(p.Code)
		case "coupon_name":
			p.Name, err = d.Str()
		case "type":
			var s string
			s, err = d.Str()
			p.Type = promo.Type(strings.ToLower(s))
		case "fixed_amount":
			p.FixedAmount, err = decodeDecimal(d)
		case "discount_percentage":
			p.DiscountPercentage, err = decodeDecimal(d)
		case "max_discount_amount":
			p.MaxDiscountAmount, err = decodeDecimal(d)
		case "is_active":
			p.IsActive, err = d.Bool()
		case "start_at":
			p.StartAt, err = decodeTime(d)
			hasStart = true
		case "ended_at":
			p.EndedAt, err = decodeTime(d)
			hasEnd = true
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return p, errors.Wrap(err, "decode")
	}

	switch {
	case p.Code == "":
		return p, errors.New("coupon_code is required")
	case !p.Type.Valid():
		return p, errors.Errorf("unknown type %q", p.Type)
	case !hasStart || !hasEnd:
		return p, errors.New("start_at and ended_at are required")
	case p.EndedAt.Before(p.StartAt):
		return p, errors.New("ended_at is before start_at")
	case p.FixedAmount.IsNegative() || p.MaxDiscountAmount.IsNegative():
		return p, errors.New("amounts must not be negative")
	case p.DiscountPercentage.IsNegative() || p.DiscountPercentage.GreaterThan(hundred):
		return p, errors.New("discount_percentage must be between 0 and 100")
	}
	return p, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse time")
	}
	return t.UTC(), nil
}
