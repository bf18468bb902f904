package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func tierOK(name, result string) Tier[string] {
	return Tier[string]{Name: name, Run: func(context.Context) (string, error) {
		return result, nil
	}}
}

func tierFail(name string) Tier[string] {
	return Tier[string]{Name: name, Run: func(context.Context) (string, error) {
		return "", errBoom
	}}
}

func TestChainFirstTierWins(t *testing.T) {
	c := NewChain[string](BreakerConfig{})

	got, tier, err := c.Execute(context.Background(), []Tier[string]{
		tierOK("primary", "a"),
		tierOK("secondary", "b"),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "a" || tier != "primary" {
		t.Errorf("got %q from %q, want a from primary", got, tier)
	}
}

func TestChainFallsThroughFailures(t *testing.T) {
	c := NewChain[string](BreakerConfig{})

	got, tier, err := c.Execute(context.Background(), []Tier[string]{
		tierFail("primary"),
		tierFail("secondary"),
		tierOK("basic", "fallback result"),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "fallback result" || tier != "basic" {
		t.Errorf("got %q from %q", got, tier)
	}
}

func TestChainAllFail(t *testing.T) {
	c := NewChain[string](BreakerConfig{})

	_, _, err := c.Execute(context.Background(), []Tier[string]{
		tierFail("primary"),
		tierFail("secondary"),
	})
	if !errors.Is(err, ErrAllTiersFailed) {
		t.Fatalf("err = %v, want ErrAllTiersFailed", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, should wrap the last tier error", err)
	}
}

func TestChainEmpty(t *testing.T) {
	c := NewChain[string](BreakerConfig{})
	if _, _, err := c.Execute(context.Background(), nil); !errors.Is(err, ErrAllTiersFailed) {
		t.Fatalf("err = %v, want ErrAllTiersFailed", err)
	}
}

func TestChainBreakersPersistAcrossRuns(t *testing.T) {
	c := NewChain[string](BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	calls := 0
	counting := Tier[string]{Name: "primary", Run: func(context.Context) (string, error) {
		calls++
		return "", errBoom
	}}
	tiers := []Tier[string]{counting, tierOK("basic", "ok")}

	// Two runs trip "primary"'s breaker; the third must skip it entirely.
	for range 3 {
		if _, tier, err := c.Execute(context.Background(), tiers); err != nil || tier != "basic" {
			t.Fatalf("tier = %q, err = %v", tier, err)
		}
	}
	if calls != 2 {
		t.Errorf("primary ran %d times, want 2 (skipped once breaker opened)", calls)
	}
}

func TestChainDirectTierBypassesBreaker(t *testing.T) {
	c := NewChain[string](BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	calls := 0
	direct := Tier[string]{
		Name:   "basic",
		Direct: true,
		Run: func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", errBoom
			}
			return "ok", nil
		},
	}

	// First run fails; with MaxFailures 1 a guarded tier would now be open.
	if _, _, err := c.Execute(context.Background(), []Tier[string]{direct}); err == nil {
		t.Fatal("first run should fail")
	}
	got, _, err := c.Execute(context.Background(), []Tier[string]{direct})
	if err != nil || got != "ok" {
		t.Fatalf("direct tier skipped: got %q, err %v", got, err)
	}
}

func TestChainCancelledContext(t *testing.T) {
	c := NewChain[string](BreakerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := c.Execute(ctx, []Tier[string]{tierOK("primary", "a")}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
