// Command platterctl seeds and maintains the platter database.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/fixture"
	"github.com/xenking/platter/internal/ingest"
	"github.com/xenking/platter/internal/storage/postgres"
)

func main() {
	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newApp(lg).RunContext(ctx, os.Args); err != nil {
		lg.Fatal("Command failed", zap.Error(err))
	}
}

var databaseURLFlag = &cli.StringFlag{
	Name:     "database-url",
	Usage:    "PostgreSQL connection URL",
	EnvVars:  []string{"PLATTER_DATABASE_URL", "DATABASE_URL"},
	Required: true,
}

func newApp(lg *zap.Logger) *cli.App {
	return &cli.App{
		Name:  "platterctl",
		Usage: "seed and maintain the platter database",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply the schema",
				Flags: []cli.Flag{databaseURLFlag},
				Action: func(c *cli.Context) error {
					return withDB(c, lg, func(*postgres.DB) error { return nil })
				},
			},
			{
				Name:  "seed",
				Usage: "upsert a YAML fixture of stores, products, coupons and api keys",
				Flags: []cli.Flag{
					databaseURLFlag,
					&cli.StringFlag{
						Name:  "file",
						Usage: "fixture path",
						Value: "db/seed/fixture.yaml",
					},
					&cli.StringFlag{
						Name:     "api-key-pepper",
						Usage:    "HMAC pepper for API key hashing",
						EnvVars:  []string{"PLATTER_API_KEY_PEPPER"},
						Required: true,
					},
				},
				Action: func(c *cli.Context) error { return seed(c, lg) },
			},
			{
				Name:  "import-coupons",
				Usage: "create coupons for codes shared by several gzip code lists",
				Flags: []cli.Flag{
					databaseURLFlag,
					&cli.IntFlag{Name: "min-files", Value: 2, Usage: "lists a code must appear in"},
					&cli.IntFlag{Name: "min-len", Value: 8, Usage: "shortest code considered"},
					&cli.IntFlag{Name: "max-len", Value: 10, Usage: "longest code considered"},
					&cli.UintFlag{Name: "capacity", Value: 120_000_000, Usage: "expected codes per list"},
					&cli.StringFlag{Name: "kind", Value: string(coupon.DiscountPercentage), Usage: "discount kind: percentage or fixed"},
					&cli.StringFlag{Name: "value", Value: "10", Usage: "discount value"},
					&cli.IntFlag{Name: "uses", Usage: "uses per coupon, 0 for unlimited"},
					&cli.DurationFlag{Name: "valid-for", Usage: "expiry from now, 0 for none"},
				},
				ArgsUsage: "LIST.gz...",
				Action:    func(c *cli.Context) error { return importCoupons(c, lg) },
			},
		},
	}
}

// withDB connects, migrates and runs fn.
func withDB(c *cli.Context, lg *zap.Logger, fn func(db *postgres.DB) error) error {
	pool, err := postgres.NewPool(c.Context, c.String("database-url"))
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(c.Context, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return fn(postgres.New(pool))
}

func seed(c *cli.Context, lg *zap.Logger) error {
	f, err := fixture.Load(c.String("file"))
	if err != nil {
		return err
	}
	return withDB(c, lg, func(db *postgres.DB) error {
		engine := coupon.NewEngine(db.Coupons(), coupon.DefaultLoyalty())
		st, err := f.Apply(c.Context, db, engine, []byte(c.String("api-key-pepper")))
		if err != nil {
			return errors.Wrap(err, "apply fixture")
		}
		lg.Info("Seed completed",
			zap.Int("stores", st.Stores),
			zap.Int("products", st.Products),
			zap.Int("listings", st.Listings),
			zap.Int("coupons", st.Coupons),
			zap.Int("coupons_skipped", st.CouponsSkipped),
			zap.Int("api_keys", st.APIKeys),
		)
		return nil
	})
}

func importCoupons(c *cli.Context, lg *zap.Logger) error {
	value, err := decimal.NewFromString(c.String("value"))
	if err != nil {
		return errors.Wrap(err, "parse value")
	}
	template := coupon.CreateRequest{
		Kind:  coupon.DiscountKind(c.String("kind")),
		Value: value,
	}
	if uses := c.Int("uses"); uses > 0 {
		template.Uses = &uses
	}
	if d := c.Duration("valid-for"); d > 0 {
		expires := time.Now().Add(d)
		template.ExpiresAt = &expires
	}

	finder, err := ingest.NewFinder(ingest.Config{
		Files:         c.Args().Slice(),
		MinFiles:      c.Int("min-files"),
		MinLen:        c.Int("min-len"),
		MaxLen:        c.Int("max-len"),
		Capacity:      c.Uint("capacity"),
		ProgressEvery: 10_000_000,
	}, lg)
	if err != nil {
		return err
	}
	codes, err := finder.Find(c.Context)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		lg.Info("No shared codes to import")
		return nil
	}

	return withDB(c, lg, func(db *postgres.DB) error {
		engine := coupon.NewEngine(db.Coupons(), coupon.DefaultLoyalty())
		res, err := ingest.Import(c.Context, lg, engine, codes, template)
		if err != nil {
			return err
		}
		lg.Info("Coupon import completed",
			zap.Int("created", res.Created),
			zap.Int("skipped", res.Skipped),
		)
		return nil
	})
}
