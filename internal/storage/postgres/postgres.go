// Package postgres implements the checkout store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/db"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
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
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx. Begin on a pgx.Tx opens a
// savepoint.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ checkout.Store = (*Store)(nil)

// Store implements checkout.Store.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore returns a Store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// InTx runs fn in a read committed transaction. Row locks taken by the
// repositories (SELECT ... FOR UPDATE) serialize conflicting writers.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r checkout.Repos) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, s.repos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// Repos returns repositories that run each statement on the pool.
func (s *Store) Repos() checkout.Repos {
	return s.repos(s.pool)
}

// Products returns the catalog repository on the pool.
func (s *Store) Products() *ProductRepository {
	return &ProductRepository{db: s.pool}
}

// Coupons returns the coupon repository on the pool.
func (s *Store) Coupons() *CouponRepository {
	return &CouponRepository{db: s.pool}
}

// Promotions returns the promotion repository on the pool.
func (s *Store) Promotions() *PromotionRepository {
	return &PromotionRepository{db: s.pool}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) repos(db DBTX) checkout.Repos {
	return checkout.Repos{
		Customers:  &CustomerRepository{db: db, now: s.now},
		Orders:     &OrderRepository{db: db, now: s.now},
		Products:   &ProductRepository{db: db},
		Coupons:    &CouponRepository{db: db},
		Promotions: &PromotionRepository{db: db},
	}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
