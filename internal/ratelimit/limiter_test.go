package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, cap int) (*Limiter, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	l := New(NewMemoryStore(), Options{
		HourlyCap: cap,
		Window:    time.Hour,
		BaseDelay: 2 * time.Second,
		MaxDelay:  5 * time.Minute,
		Now:       func() time.Time { return now },
	})
	return l, &now
}

func TestTryAcquireDeniesAfterCap(t *testing.T) {
	l, _ := newTestLimiter(t, 10)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d, err := l.TryAcquire(ctx, "totaljobs")
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("acquire %d should be allowed", i)
		}
	}

	d, err := l.TryAcquire(ctx, "totaljobs")
	if err != nil {
		t.Fatalf("11th acquire: %v", err)
	}
	if d.Allowed {
		t.Fatal("11th acquire should be denied")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("denied decision should carry retry-after, got %v", d.RetryAfter)
	}
}

func TestResetRestoresBudgetImmediately(t *testing.T) {
	l, _ := newTestLimiter(t, 10)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := l.TryAcquire(ctx, "totaljobs"); err != nil {
			t.Fatal(err)
		}
	}
	if d, _ := l.TryAcquire(ctx, "totaljobs"); d.Allowed {
		t.Fatal("expected denial at cap")
	}

	if err := l.Reset(ctx, "totaljobs"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	d, err := l.TryAcquire(ctx, "totaljobs")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("acquire after reset should be allowed")
	}
}

func TestWindowRolloverClearsCountAndLimitedFlag(t *testing.T) {
	l, now := newTestLimiter(t, 2)
	ctx := context.Background()

	if _, err := l.TryAcquire(ctx, "reed"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.TryAcquire(ctx, "reed"); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordThrottled(ctx, "reed", 0); err != nil {
		t.Fatal(err)
	}
	if d, _ := l.TryAcquire(ctx, "reed"); d.Allowed {
		t.Fatal("limited source must deny for the rest of the window")
	}

	*now = now.Add(61 * time.Minute)

	d, err := l.TryAcquire(ctx, "reed")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("fresh window should allow again")
	}
}

func TestBackoffLevelSurvivesRolloverUntilReset(t *testing.T) {
	l, now := newTestLimiter(t, 10)
	ctx := context.Background()

	if _, err := l.TryAcquire(ctx, "indeed"); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordThrottled(ctx, "indeed", 0); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordThrottled(ctx, "indeed", 0); err != nil {
		t.Fatal(err)
	}

	*now = now.Add(2 * time.Hour)
	if _, err := l.TryAcquire(ctx, "indeed"); err != nil {
		t.Fatal(err)
	}

	st, ok, err := l.store.Get(ctx, "indeed")
	if err != nil || !ok {
		t.Fatalf("state missing: ok=%v err=%v", ok, err)
	}
	if st.BackoffLevel != 2 {
		t.Fatalf("backoff level should survive rollover, got %d", st.BackoffLevel)
	}
	if st.Limited {
		t.Fatal("limited flag should clear on rollover")
	}

	if err := l.Reset(ctx, "indeed"); err != nil {
		t.Fatal(err)
	}
	st, ok, _ = l.store.Get(ctx, "indeed")
	if ok {
		t.Fatalf("reset should clear stored state, got %+v", st)
	}
}

func TestEffectiveDelayDoublesAndCaps(t *testing.T) {
	l, _ := newTestLimiter(t, 10)

	cases := []struct {
		level int
		want  time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{3, 16 * time.Second},
		{20, 5 * time.Minute},
	}
	for _, c := range cases {
		if got := l.effectiveDelay(c.level); got != c.want {
			t.Errorf("level %d: got %v want %v", c.level, got, c.want)
		}
	}
}

func TestStatusReportsRemainingBudget(t *testing.T) {
	l, _ := newTestLimiter(t, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.TryAcquire(ctx, "cvlibrary"); err != nil {
			t.Fatal(err)
		}
	}

	status, err := l.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	st, ok := status["cvlibrary"]
	if !ok {
		t.Fatal("expected cvlibrary in status")
	}
	if st.Remaining != 7 || st.Limit != 10 || st.Limited {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSourcesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := l.TryAcquire(ctx, "totaljobs"); err != nil {
			t.Fatal(err)
		}
	}
	if d, _ := l.TryAcquire(ctx, "totaljobs"); d.Allowed {
		t.Fatal("totaljobs should be out of budget")
	}
	d, err := l.TryAcquire(ctx, "reed")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("reed budget must not be affected by totaljobs")
	}
}
