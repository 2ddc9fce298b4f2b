package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"ledger/internal/cache"
	"ledger/internal/core"
)

// DefaultFillTimeout bounds a shared cache fill when none is configured.
const DefaultFillTimeout = 5 * time.Second

// CachedEngine memoizes monthly summaries per owner and month. Concurrent
// misses for one key share a single store read. The shared read outlives
// any one caller's cancellation and is bounded by fillTimeout instead.
type CachedEngine struct {
	*Engine
	monthly     cache.Cache[core.MonthlySummary]
	group       singleflight.Group
	fillTimeout time.Duration
	// generation changes on every invalidation; fills started under an
	// older generation are not stored.
	generation atomic.Uint64
}

var _ Summarizer = (*CachedEngine)(nil)

// NewCachedEngine wraps engine; a fillTimeout of zero or less means
// DefaultFillTimeout.
func NewCachedEngine(engine *Engine, monthly cache.Cache[core.MonthlySummary], fillTimeout time.Duration) *CachedEngine {
	if fillTimeout <= 0 {
		fillTimeout = DefaultFillTimeout
	}
	return &CachedEngine{Engine: engine, monthly: monthly, fillTimeout: fillTimeout}
}

func monthKey(owner core.OwnerID, month core.Month) string {
	return ownerPrefix(owner) + month.String()
}

func ownerPrefix(owner core.OwnerID) string {
	return owner.String() + "|"
}

func (c *CachedEngine) Monthly(ctx context.Context, owner core.OwnerID, month core.Month) (core.MonthlySummary, error) {
	key := monthKey(owner, month)
	if s, ok := c.monthly.Get(key); ok {
		return s, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fillTimeout)
		defer cancel()

		gen := c.generation.Load()
		s, err := c.Engine.Monthly(fillCtx, owner, month)
		if err != nil {
			return nil, err
		}
		if c.generation.Load() == gen {
			c.monthly.Set(key, s)
		}
		return s, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return core.MonthlySummary{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return core.MonthlySummary{}, res.Err
	}
	if res.Shared {
		slog.DebugContext(ctx, "Monthly summary fill shared", "key", key)
	}

	s, ok := res.Val.(core.MonthlySummary)
	if !ok {
		return core.MonthlySummary{}, fmt.Errorf("monthly summary %s: unexpected cache value %T", key, res.Val)
	}
	return s, nil
}

// Invalidate drops the cached summaries of the given months.
func (c *CachedEngine) Invalidate(owner core.OwnerID, months ...core.Month) {
	c.generation.Add(1)
	for _, m := range months {
		c.monthly.Delete(monthKey(owner, m))
	}
}

// InvalidateOwner drops every cached summary of owner.
func (c *CachedEngine) InvalidateOwner(owner core.OwnerID) {
	c.generation.Add(1)
	c.monthly.DeletePrefix(ownerPrefix(owner))
}
