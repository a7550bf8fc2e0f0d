package alerts

import (
	"testing"
	"time"
)

func TestTTLCache_Expiry(t *testing.T) {
	clk := newClock(t0)
	c := newTTLCache[string, int](time.Minute, clk.Now)

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get fresh: got %v %v, want 1 true", v, ok)
	}

	clk.Advance(time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("Get at exactly ttl: expected expired")
	}
	if n := c.Purge(); n != 1 {
		t.Errorf("Purge: got %d, want 1", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len after purge: got %d, want 0", c.Len())
	}
}

func TestTTLCache_Reserve(t *testing.T) {
	clk := newClock(t0)
	c := newTTLCache[string, int](time.Minute, clk.Now)

	if !c.Reserve("k", 1) {
		t.Fatal("first Reserve: got false, want true")
	}
	if c.Reserve("k", 2) {
		t.Error("second Reserve while live: got true, want false")
	}
	clk.Advance(2 * time.Minute)
	if !c.Reserve("k", 3) {
		t.Error("Reserve after expiry: got false, want true")
	}
	c.Delete("k")
	if !c.Reserve("k", 4) {
		t.Error("Reserve after Delete: got false, want true")
	}
}

func TestTTLCache_SetUntil(t *testing.T) {
	clk := newClock(t0)
	c := newTTLCache[string, int](time.Hour, clk.Now)

	c.SetUntil("k", 1, t0.Add(time.Second))
	clk.Advance(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("Get past explicit expiry: expected miss")
	}
}
