// Package postgres implements the repositories on PostgreSQL via pgx.
//
// Transactions travel in the context: repository calls made with a context
// returned by WithTransaction run on that transaction, any other call runs on
// the pool.
package postgres

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/platter/db"
	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/cart"
	"github.com/xenking/platter/internal/domain/catalog"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/ledger"
	"github.com/xenking/platter/internal/domain/order"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// DB is the PostgreSQL backend.
type DB struct {
	pool *pgxpool.Pool
}

// New returns a DB on the given pool.
func New(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

type txKey struct{}

// WithTransaction runs fn inside a READ COMMITTED transaction. Operations that
// read-then-write shared rows take row locks (SELECT ... FOR UPDATE) or use
// conditional updates, so READ COMMITTED is sufficient. A context that
// already carries a transaction runs fn in it.
func (d *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return pgx.BeginTxFunc(ctx, d.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (d *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return d.pool
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Catalog returns the catalog reader.
func (d *DB) Catalog() catalog.Reader { return &CatalogRepository{db: d} }

// Carts returns the cart repository.
func (d *DB) Carts() cart.Repository { return &CartRepository{db: d} }

// Orders returns the order repository.
func (d *DB) Orders() order.Repository { return &OrderRepository{db: d} }

// Coupons returns the coupon repository.
func (d *DB) Coupons() coupon.Repository { return &CouponRepository{db: d} }

// Ledgers returns the ledger repository.
func (d *DB) Ledgers() ledger.Repository { return &LedgerRepository{db: d} }

// APIKeys returns the API key repository.
func (d *DB) APIKeys() auth.Repository { return &APIKeyRepository{db: d} }

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
