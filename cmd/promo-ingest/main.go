// Command promo-ingest issues coupon-gated promotions in bulk from gzip files
// of coupon codes. Every accepted code becomes its own promotion cloned from
// a template promotion; codes found in more than one file are rejected.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wassimD28/store-go/internal/domain/promotion"
	"github.com/wassimD28/store-go/internal/ingest"
	"github.com/wassimD28/store-go/internal/storage/postgres"
)

type options struct {
	databaseURL   string
	pattern       string
	storeID       string
	templateID    string
	maxUses       int
	batchSize     int
	expectedCodes uint
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.pattern, "files", "data/coupons*.gz", "glob of gzip files with one coupon code per line")
	flag.StringVar(&opts.storeID, "store", "", "store that owns the template promotion")
	flag.StringVar(&opts.templateID, "template", "", "promotion to clone for every accepted code")
	flag.IntVar(&opts.maxUses, "max-uses", 1, "usage cap of each issued coupon (0 = unlimited)")
	flag.IntVar(&opts.batchSize, "batch-size", 1000, "promotions inserted per database round trip")
	flag.UintVar(&opts.expectedCodes, "expected-codes", 10_000_000, "expected codes per file, sizes the bloom filters")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" || opts.storeID == "" || opts.templateID == "" {
		lg.Fatal("--database-url (or DATABASE_URL), --store and --template are required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Promotion ingest failed", zap.Error(err))
	}
	lg.Info("Promotion ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	files, err := filepath.Glob(opts.pattern)
	if err != nil {
		return errors.Wrap(err, "expand file pattern")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", opts.pattern)
	}
	sort.Strings(files)

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewPromotionRepository(pool)
	tmpl, err := repo.FindByID(ctx, opts.storeID, opts.templateID)
	if err != nil {
		return errors.Wrap(err, "load template")
	}
	if tmpl.StoreID != opts.storeID {
		return &promotion.NotFoundError{StoreID: opts.storeID, PromotionID: tmpl.ID, Reason: promotion.ReasonWrongStore}
	}

	w := &couponWriter{
		lg:        lg,
		repo:      repo,
		template:  *tmpl,
		maxUses:   opts.maxUses,
		batchSize: opts.batchSize,
	}
	stats, err := ingest.Screen(ctx, lg, ingest.Config{
		Files:         files,
		ExpectedCodes: opts.expectedCodes,
	}, func(code string) error {
		return w.add(ctx, code)
	})
	if err != nil {
		return err
	}
	if err := w.flush(ctx); err != nil {
		return err
	}

	lg.Info("Codes processed",
		zap.Uint64("scanned", stats.Scanned),
		zap.Uint64("invalid", stats.Invalid),
		zap.Int("shared", stats.Shared),
		zap.Uint64("accepted", stats.Accepted),
		zap.Int("inserted", w.inserted),
	)
	return nil
}

// couponWriter batches cloned promotions into InsertCoupons calls.
type couponWriter struct {
	lg        *zap.Logger
	repo      *postgres.PromotionRepository
	template  promotion.Promotion
	maxUses   int
	batchSize int

	pending  []promotion.Promotion
	inserted int
}

func (w *couponWriter) add(ctx context.Context, code string) error {
	p := w.template
	p.ID = uuid.NewString()
	p.CouponCode = code
	p.UsageCount = 0
	p.MaxUses = w.maxUses
	w.pending = append(w.pending, p)

	if len(w.pending) >= w.batchSize {
		return w.flush(ctx)
	}
	return nil
}

func (w *couponWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	n, err := w.repo.InsertCoupons(ctx, w.pending)
	if err != nil {
		return errors.Wrap(err, "insert coupons")
	}
	w.inserted += n
	w.pending = w.pending[:0]
	w.lg.Info("Write progress", zap.Int("inserted", w.inserted))
	return nil
}
