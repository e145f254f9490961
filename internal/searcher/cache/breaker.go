package cache

import (
	"context"
	"time"

	"github.com/labinochka/OIP/pkg/resilience"
)

type breakerBackend struct {
	next Backend
	cb   *resilience.CircuitBreaker
}

// WithCircuitBreaker guards lookups and writes with cb. While the circuit
// is open every lookup is a miss, so queries run against the snapshot
// without waiting on an unreachable Redis. Flushes always go through.
func WithCircuitBreaker(next Backend, cb *resilience.CircuitBreaker) Backend {
	return &breakerBackend{next: next, cb: cb}
}

func (b *breakerBackend) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := b.cb.Execute(func() error {
		var err error
		value, found, err = b.next.Lookup(ctx, key)
		return err
	})
	return value, found, err
}

func (b *breakerBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.cb.Execute(func() error {
		return b.next.Set(ctx, key, value, ttl)
	})
}

func (b *breakerBackend) FlushPrefix(ctx context.Context, prefix string) (int64, error) {
	return b.next.FlushPrefix(ctx, prefix)
}
