// Package postgres wraps a lib/pq connection pool used as an alternative
// corpus source.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/labinochka/OIP/pkg/config"
	"github.com/labinochka/OIP/pkg/logger"
	"github.com/labinochka/OIP/pkg/resilience"
)

// connectTimeout bounds every connection attempt made by New together.
const connectTimeout = 10 * time.Second

type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

// New opens a pool and waits until the server answers a ping. Batch builds
// often start alongside the database, so the ping is retried.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{
		DB:     db,
		logger: logger.WithComponent("postgres").With("host", cfg.Host, "database", cfg.Database),
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	retry := resilience.RetryConfig{MaxAttempts: 4, InitialDelay: 250 * time.Millisecond, JitterFraction: 0.2}
	if err := resilience.Retry(ctx, "postgres-connect", retry, c.Ping); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	c.logger.Info("postgres connected")
	return c, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// ReadSnapshot runs fn in a read-only REPEATABLE READ transaction, so every
// statement fn issues sees the same committed state of the corpus tables.
// The transaction is always rolled back; nothing is written.
func (c *Client) ReadSnapshot(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("beginning read-only transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.logger.Warn("rolling back read-only transaction", "error", rbErr)
		}
	}()
	return fn(tx)
}
