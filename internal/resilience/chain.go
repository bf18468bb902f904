package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllTiersFailed is returned when every tier in a chain run fails or is
// skipped by an open breaker.
var ErrAllTiersFailed = errors.New("all synthesis tiers failed")

// Tier is one named step in a fallback run. Tiers are assembled per call
// because their composition depends on the request; the breakers guarding
// them persist in the [Chain] across calls, keyed by tier name.
type Tier[R any] struct {
	// Name identifies the tier, both for logging and for breaker identity.
	Name string

	// Run produces the tier's result.
	Run func(ctx context.Context) (R, error)

	// Direct bypasses the circuit breaker. The last-resort tier sets this:
	// a chain must never skip its final option.
	Direct bool
}

// Chain executes ordered tiers with one persistent circuit breaker per tier
// name. Safe for concurrent use.
type Chain[R any] struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewChain creates a Chain whose per-tier breakers are tuned by cfg.
// cfg.Name is overridden per tier.
func NewChain[R any](cfg BreakerConfig) *Chain[R] {
	return &Chain[R]{
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// breaker returns the persistent breaker for a tier name, creating it on
// first use.
func (c *Chain[R]) breaker(name string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[name]
	if !ok {
		cfg := c.cfg
		cfg.Name = name
		cb = NewCircuitBreaker(cfg)
		c.breakers[name] = cb
	}
	return cb
}

// Execute tries each tier in order until one succeeds, returning the result
// and the name of the tier that produced it. Tiers with open breakers are
// skipped. When every tier fails the last error is wrapped in
// [ErrAllTiersFailed].
func (c *Chain[R]) Execute(ctx context.Context, tiers []Tier[R]) (R, string, error) {
	var (
		zero    R
		lastErr error
	)
	if len(tiers) == 0 {
		return zero, "", fmt.Errorf("%w: no tiers to try", ErrAllTiersFailed)
	}

	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}

		var (
			result R
			err    error
		)
		if tier.Direct {
			result, err = tier.Run(ctx)
		} else {
			err = c.breaker(tier.Name).Execute(func() error {
				var runErr error
				result, runErr = tier.Run(ctx)
				return runErr
			})
		}
		if err == nil {
			return result, tier.Name, nil
		}

		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping tier, circuit open", "tier", tier.Name)
		} else {
			slog.Warn("tier failed, trying next", "tier", tier.Name, "error", err)
		}
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllTiersFailed, lastErr)
}
