// Package redis wraps go-redis/v9 as a byte-oriented result store: lookups
// that report a missing key as a miss, TTL writes, and prefix flushes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/labinochka/OIP/pkg/config"
	"github.com/labinochka/OIP/pkg/logger"
)

// flushBatch is the number of keys removed per UNLINK round trip.
const flushBatch = 256

type Client struct {
	rdb    redis.UniversalClient
	logger *slog.Logger
}

// NewClient connects to cfg.Addr and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	c := newClient(rdb, cfg.Addr)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return c, nil
}

func newClient(rdb redis.UniversalClient, addr string) *Client {
	return &Client{
		rdb:    rdb,
		logger: logger.WithComponent("redis").With("addr", addr),
	}
}

// Lookup returns the value stored at key. A missing key is found == false
// with a nil error.
func (c *Client) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value at key for ttl. A zero ttl keeps the key until it is
// flushed.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// FlushPrefix removes every key starting with prefix and returns how many
// were removed. Keys are collected with SCAN and unlinked in batches, so
// the server is never blocked by a single large delete.
func (c *Client) FlushPrefix(ctx context.Context, prefix string) (int64, error) {
	var (
		removed int64
		batch   = make([]string, 0, flushBatch)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Unlink(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis unlink: %w", err)
		}
		removed += n
		batch = batch[:0]
		return nil
	}

	iter := c.rdb.Scan(ctx, 0, prefix+"*", flushBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == flushBatch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan %s*: %w", prefix, err)
	}
	if err := flush(); err != nil {
		return removed, err
	}
	c.logger.Debug("prefix flushed", "prefix", prefix, "removed", removed)
	return removed, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
