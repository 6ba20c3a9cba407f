package paystackwebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/utilitysplit/pkg/redis"
)

const guardScope = "paystack"

// IdempotencyGuard short-circuits re-delivered callbacks by reference. It is
// a fast path only; the reconciler's dedup remains authoritative. A reference
// is marked only once the reconciler has returned a result, so a process that
// dies mid-callback leaves nothing behind to suppress the redelivery.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

// Seen reports whether reference was already reconciled.
func (g *IdempotencyGuard) Seen(ctx context.Context, reference string) (bool, error) {
	if reference == "" {
		return false, errors.New("reference is required")
	}
	seen, err := g.store.Exists(ctx, g.store.IdempotencyKey(guardScope, reference))
	if err != nil {
		return false, fmt.Errorf("read idempotency key: %w", err)
	}
	return seen, nil
}

// MarkProcessed records that reference has a reconciled outcome.
func (g *IdempotencyGuard) MarkProcessed(ctx context.Context, reference string) error {
	if reference == "" {
		return errors.New("reference is required")
	}
	if _, err := g.store.SetNX(ctx, g.store.IdempotencyKey(guardScope, reference), "1", g.ttl); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}
