package realtime

import (
	"testing"
	"time"
)

func TestInvocationLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	l := newInvocationLimiter(2, time.Second)
	t0 := time.Unix(1_700_000_000, 0)

	if _, ok := l.admit(t0); !ok {
		t.Fatalf("first invocation must be admitted")
	}
	if _, ok := l.admit(t0.Add(100 * time.Millisecond)); !ok {
		t.Fatalf("second invocation must be admitted")
	}

	wait, ok := l.admit(t0.Add(200 * time.Millisecond))
	if ok || wait != 800*time.Millisecond {
		t.Fatalf("third invocation ok=%v wait=%v want=false 800ms", ok, wait)
	}

	if _, ok := l.admit(t0.Add(time.Second)); !ok {
		t.Fatalf("invocation once the oldest expired must be admitted")
	}
	wait, ok = l.admit(t0.Add(time.Second + 50*time.Millisecond))
	if ok || wait != 50*time.Millisecond {
		t.Fatalf("ok=%v wait=%v want=false 50ms", ok, wait)
	}
}

func TestNewInvocationLimiter_InvalidInputsUseDefaults(t *testing.T) {
	t.Parallel()

	l := newInvocationLimiter(0, 0)
	if len(l.stamps) != rateLimitEvents || l.window != rateLimitWindow {
		t.Fatalf("limit=%d window=%v", len(l.stamps), l.window)
	}
}
