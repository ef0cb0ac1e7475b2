// Package ratelimit gates every outbound fetch the pipeline makes. Each
// source gets a fixed one-hour window with a hard request cap; a server 429
// marks the source limited for the rest of the window and doubles its
// minimum inter-request delay for the windows after it. Denial is a hard
// stop for the caller, not backpressure: continued probing risks escalating
// anti-bot responses.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultHourlyCap = 10
	DefaultWindow    = time.Hour
	DefaultBaseDelay = 2 * time.Second
	DefaultMaxDelay  = 5 * time.Minute
)

// Decision is the answer to one acquisition attempt.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// SourceStatus is the externally visible budget summary for one source.
type SourceStatus struct {
	Remaining int  `json:"remaining"`
	Limit     int  `json:"limit"`
	Limited   bool `json:"limited"`
}

type Limiter struct {
	mu    sync.Mutex
	store Store

	limit     int
	window    time.Duration
	baseDelay time.Duration
	maxDelay  time.Duration

	// pacers are process-local; persisted state only carries the backoff
	// level they are rebuilt from.
	pacers map[string]*pacer

	now func() time.Time
}

type pacer struct {
	level   int
	limiter *rate.Limiter
}

type Options struct {
	HourlyCap int
	Window    time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Now       func() time.Time
}

func New(store Store, opts Options) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	if opts.HourlyCap <= 0 {
		opts.HourlyCap = DefaultHourlyCap
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Limiter{
		store:     store,
		limit:     opts.HourlyCap,
		window:    opts.Window,
		baseDelay: opts.BaseDelay,
		maxDelay:  opts.MaxDelay,
		pacers:    make(map[string]*pacer),
		now:       opts.Now,
	}
}

// TryAcquire consumes one request slot for the source. A denied decision
// carries the time until the window rolls over; the caller must abort its
// current run, not queue.
func (l *Limiter) TryAcquire(ctx context.Context, source string) (Decision, error) {
	if l == nil {
		return Decision{}, fmt.Errorf("nil limiter")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	st, _, err := l.store.Get(ctx, source)
	if err != nil {
		return Decision{}, err
	}

	now := l.now()
	st = l.rollover(st, now)

	if st.Limited || st.Count >= l.limit {
		retry := st.WindowStart.Add(l.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	if st.Count == 0 {
		st.WindowStart = now
	}
	st.Count++
	if err := l.store.Put(ctx, source, st); err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true}, nil
}

// Wait applies the source's current minimum inter-request delay. It is the
// pacing half of the limiter: TryAcquire enforces the budget, Wait spaces
// the requests inside it.
func (l *Limiter) Wait(ctx context.Context, source string) error {
	if l == nil {
		return fmt.Errorf("nil limiter")
	}
	l.mu.Lock()
	st, _, err := l.store.Get(ctx, source)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	p := l.pacerLocked(source, st.BackoffLevel)
	l.mu.Unlock()

	return p.Wait(ctx)
}

func (l *Limiter) RecordSuccess(ctx context.Context, source string) error {
	if l == nil {
		return fmt.Errorf("nil limiter")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok, err := l.store.Get(ctx, source)
	if err != nil || !ok {
		return err
	}
	st.LastSuccess = l.now()
	return l.store.Put(ctx, source, st)
}

// RecordThrottled flags the source limited for the remainder of the window
// and doubles the pacing delay for subsequent windows, capped at maxDelay.
// serverHint, when the response carried one, can push the window end out
// further than the default rollover.
func (l *Limiter) RecordThrottled(ctx context.Context, source string, serverHint time.Duration) error {
	if l == nil {
		return fmt.Errorf("nil limiter")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok, err := l.store.Get(ctx, source)
	if err != nil {
		return err
	}
	now := l.now()
	if !ok || st.WindowStart.IsZero() {
		st.WindowStart = now
	}
	st.Limited = true
	if l.effectiveDelay(st.BackoffLevel+1) <= l.maxDelay {
		st.BackoffLevel++
	}
	if serverHint > 0 {
		windowEnd := st.WindowStart.Add(l.window)
		if hintEnd := now.Add(serverHint); hintEnd.After(windowEnd) {
			st.WindowStart = hintEnd.Add(-l.window)
		}
	}
	delete(l.pacers, source) // rebuilt at the new level on next Wait
	return l.store.Put(ctx, source, st)
}

// Reset clears window state for one source. Only ever invoked by explicit
// operator command so a false positive can be recovered by hand.
func (l *Limiter) Reset(ctx context.Context, source string) error {
	if l == nil {
		return fmt.Errorf("nil limiter")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pacers, source)
	return l.store.Delete(ctx, source)
}

func (l *Limiter) ResetAll(ctx context.Context) error {
	if l == nil {
		return fmt.Errorf("nil limiter")
	}
	sources, err := l.store.Sources(ctx)
	if err != nil {
		return err
	}
	for _, s := range sources {
		if err := l.Reset(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (l *Limiter) Status(ctx context.Context) (map[string]SourceStatus, error) {
	if l == nil {
		return nil, fmt.Errorf("nil limiter")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	sources, err := l.store.Sources(ctx)
	if err != nil {
		return nil, err
	}
	now := l.now()
	out := make(map[string]SourceStatus, len(sources))
	for _, s := range sources {
		st, ok, err := l.store.Get(ctx, s)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		st = l.rollover(st, now)
		remaining := l.limit - st.Count
		if remaining < 0 || st.Limited {
			remaining = 0
		}
		out[s] = SourceStatus{Remaining: remaining, Limit: l.limit, Limited: st.Limited}
	}
	return out, nil
}

// rollover resets count and limited flag once the window has elapsed. The
// backoff level deliberately survives rollover; only Reset clears it.
func (l *Limiter) rollover(st State, now time.Time) State {
	if st.WindowStart.IsZero() || now.Sub(st.WindowStart) >= l.window {
		st.Count = 0
		st.WindowStart = now
		st.Limited = false
	}
	return st
}

func (l *Limiter) effectiveDelay(level int) time.Duration {
	d := l.baseDelay
	for i := 0; i < level; i++ {
		d *= 2
		if d >= l.maxDelay {
			return l.maxDelay
		}
	}
	return d
}

func (l *Limiter) pacerLocked(source string, level int) *rate.Limiter {
	p, ok := l.pacers[source]
	if !ok || p.level != level {
		p = &pacer{
			level:   level,
			limiter: rate.NewLimiter(rate.Every(l.effectiveDelay(level)), 1),
		}
		l.pacers[source] = p
	}
	return p.limiter
}
