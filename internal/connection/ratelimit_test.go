package connection

import (
	"context"
	"testing"
	"time"
)

func TestLimiterMap_AllowsBurst(t *testing.T) {
	m := NewLimiterMap()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	for range defaultBurst {
		if err := m.Wait(ctx, "conn-1"); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("burst took %v, expected immediate", elapsed)
	}
}

func TestLimiterMap_PerConnection(t *testing.T) {
	m := NewLimiterMap()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Exhausting one connection's burst must not slow another.
	for range defaultBurst {
		if err := m.Wait(ctx, "conn-1"); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	start := time.Now()
	if err := m.Wait(ctx, "conn-2"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("independent connection waited %v", elapsed)
	}
}

func TestLimiterMap_CanceledContext(t *testing.T) {
	m := NewLimiterMap()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range defaultBurst {
		_ = m.Wait(context.Background(), "conn-1")
	}
	if err := m.Wait(ctx, "conn-1"); err == nil {
		t.Fatal("expected error waiting with canceled context")
	}
}

func TestLimiterMap_Forget(t *testing.T) {
	m := NewLimiterMap()
	ctx := context.Background()

	for range defaultBurst {
		_ = m.Wait(ctx, "conn-1")
	}
	m.Forget("conn-1")

	// A forgotten connection starts with a fresh burst.
	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if err := m.Wait(waitCtx, "conn-1"); err != nil {
		t.Fatalf("Wait after Forget failed: %v", err)
	}
}
