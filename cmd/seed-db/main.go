// Command seed-db loads stores' categories, products and promotions from a
// JSON file into PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wassimD28/store-go/internal/storage/postgres"
	"github.com/wassimD28/store-go/internal/storage/redis"
)

func main() {
	var (
		databaseURL string
		seedFile    string
		redisAddr   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "db/seed/stores.json", "path to the seed JSON file")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address; when set, cached promotions of seeded stores are invalidated")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedFile, redisAddr); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedFile, redisAddr string) error {
	lg.Info("Reading seed file", zap.String("path", seedFile))
	data, err := os.ReadFile(seedFile)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	stores, err := parseSeed(data)
	if err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)
	promotions := postgres.NewPromotionRepository(pool)

	for _, s := range stores {
		slg := lg.With(zap.String("store", s.ID))
		for _, c := range s.Categories {
			if err := products.UpsertCategory(ctx, s.ID, c.ID, c.Name); err != nil {
				return err
			}
		}
		for _, p := range s.Products {
			if err := products.Upsert(ctx, p); err != nil {
				return err
			}
		}
		for i := range s.Promotions {
			if err := promotions.Upsert(ctx, &s.Promotions[i]); err != nil {
				return errors.Wrapf(err, "upsert promotion %q", s.Promotions[i].ID)
			}
		}
		slg.Info("Store seeded",
			zap.Int("categories", len(s.Categories)),
			zap.Int("products", len(s.Products)),
			zap.Int("promotions", len(s.Promotions)),
		)
	}

	if redisAddr == "" {
		return nil
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	defer func() { _ = rdb.Close() }()

	cache := redis.NewPromotionCache(promotions, rdb, time.Minute, lg)
	for _, s := range stores {
		if err := cache.Invalidate(ctx, s.ID); err != nil {
			return errors.Wrapf(err, "invalidate store %q", s.ID)
		}
	}
	lg.Info("Promotion cache invalidated", zap.Int("stores", len(stores)))
	return nil
}
