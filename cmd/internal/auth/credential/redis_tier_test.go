package credential

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisTier, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	tier, err := NewRedisTier(context.Background(), "redis://"+s.Addr(), "test")
	if err != nil {
		t.Fatalf("failed to create redis tier: %v", err)
	}
	t.Cleanup(func() { _ = tier.Close() })
	return tier, s
}

func TestNewRedisTier_BadURL(t *testing.T) {
	if _, err := NewRedisTier(context.Background(), "not a url", "p"); err == nil {
		t.Fatalf("expected error for bad url")
	}
}

func TestRedisTier_SetGetDelete(t *testing.T) {
	tier, s := setupTestRedis(t)
	ctx := context.Background()

	if err := tier.SetAll(ctx, map[string]string{keyBearer: "b", keyRefresh: "r"}); err != nil {
		t.Fatalf("SetAll: %v", err)
	}

	if got, _ := s.Get("tasklane:test:token"); got != "b" {
		t.Fatalf("raw key value=%q want=%q", got, "b")
	}

	v, ok, err := tier.Get(ctx, keyRefresh)
	if err != nil || !ok || v != "r" {
		t.Fatalf("Get refresh: v=%q ok=%v err=%v", v, ok, err)
	}

	if err := tier.Delete(ctx, keyBearer, keyRefresh); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := tier.Get(ctx, keyBearer); ok || err != nil {
		t.Fatalf("expected missing after delete: ok=%v err=%v", ok, err)
	}
}

func TestRedisTier_ProfilesAreIsolated(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()

	a, err := NewRedisTier(ctx, "redis://"+s.Addr(), "a")
	if err != nil {
		t.Fatalf("tier a: %v", err)
	}
	defer a.Close()
	b, err := NewRedisTier(ctx, "redis://"+s.Addr(), "b")
	if err != nil {
		t.Fatalf("tier b: %v", err)
	}
	defer b.Close()

	if err := a.SetAll(ctx, map[string]string{keyBearer: "only-a"}); err != nil {
		t.Fatalf("SetAll: %v", err)
	}
	if _, ok, _ := b.Get(ctx, keyBearer); ok {
		t.Fatalf("profile b sees profile a's token")
	}
}

func TestRedisTier_TTL(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()

	tier, err := NewRedisTier(ctx, "redis://"+s.Addr(), "ttl", WithRedisTTL(time.Minute))
	if err != nil {
		t.Fatalf("tier: %v", err)
	}
	defer tier.Close()

	if err := tier.SetAll(ctx, map[string]string{keyRefresh: "r"}); err != nil {
		t.Fatalf("SetAll: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, ok, _ := tier.Get(ctx, keyRefresh); ok {
		t.Fatalf("expected refresh token to expire")
	}
}

func TestStore_DurableTierOnRedis(t *testing.T) {
	durable, _ := setupTestRedis(t)
	ctx := context.Background()

	first := NewStore(NewMemoryTier(), durable)
	if err := first.Save(ctx, "bearer", "refresh", ScopeDurable); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh process only sees the durable tier.
	next := NewStore(NewMemoryTier(), durable)
	c, err := next.LoadBootCandidate(ctx)
	if err != nil {
		t.Fatalf("LoadBootCandidate: %v", err)
	}
	if c.Kind != CandidateBearer || c.BearerToken != "bearer" || c.Scope != ScopeDurable {
		t.Fatalf("candidate=%+v", c)
	}

	if err := next.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	c, err = next.LoadBootCandidate(ctx)
	if err != nil {
		t.Fatalf("LoadBootCandidate after clear: %v", err)
	}
	if c.Kind != CandidateNone {
		t.Fatalf("expected none after clear, got %v", c.Kind)
	}
}
