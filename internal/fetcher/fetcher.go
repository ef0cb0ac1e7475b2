// Package fetcher retrieves full job descriptions from detail pages without
// driving a browser. Boards fingerprint the TLS handshake, so requests go
// out with rotating browser ClientHello signatures; extraction tolerates
// whatever markup comes back.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"jobradar/internal/ratelimit"
)

const (
	defaultTimeout = 20 * time.Second
	maxBodyBytes   = 4 << 20
)

// Limiter is the slice of the rate limiter the fetcher uses. Every attempt,
// including retries with a different signature, consumes budget.
type Limiter interface {
	TryAcquire(ctx context.Context, source string) (ratelimit.Decision, error)
	Wait(ctx context.Context, source string) error
	RecordSuccess(ctx context.Context, source string) error
	RecordThrottled(ctx context.Context, source string, serverHint time.Duration) error
}

// doer lets tests swap the HTTP layer out from under the signature rotation.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Fetcher struct {
	limiter Limiter
	logger  *log.Logger
	timeout time.Duration

	mu       sync.Mutex
	lastGood map[string]int // host -> signature index that last worked

	// newClient is replaced in tests; production builds an impersonating
	// client per signature.
	newClient func(sig Signature) doer
}

func New(limiter Limiter, logger *log.Logger) *Fetcher {
	f := &Fetcher{
		limiter:  limiter,
		logger:   logger,
		timeout:  defaultTimeout,
		lastGood: make(map[string]int),
	}
	f.newClient = func(sig Signature) doer { return clientFor(sig, f.timeout) }
	return f
}

// FetchFullDescription fetches and extracts the description behind a listing
// URL. It reports ok=false for every failure mode: bad URL, exhausted
// budget, block pages, network errors, or a page with no extractable body.
// It never panics and never returns an error; a miss leaves the stored
// truncated description in place.
func (f *Fetcher) FetchFullDescription(ctx context.Context, rawURL string) (string, bool) {
	if f == nil || strings.TrimSpace(rawURL) == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		f.logf("[Fetcher] unusable url | url=%q err=%v", rawURL, err)
		return "", false
	}
	host := u.Hostname()
	source := sourceKey(host)

	start := f.startIndex(host)
	for attempt := 0; attempt < len(signatures); attempt++ {
		sig := signatures[(start+attempt)%len(signatures)]

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, source); err != nil {
				return "", false
			}
			d, err := f.limiter.TryAcquire(ctx, source)
			if err != nil || !d.Allowed {
				f.logf("[Fetcher] budget exhausted | source=%s retry_after=%v", source, d.RetryAfter)
				return "", false
			}
		}

		body, status, err := f.attempt(ctx, rawURL, sig)
		switch {
		case err != nil:
			f.logf("[Fetcher] attempt failed | host=%s sig=%s err=%v", host, sig.Name, err)
			continue
		case status == http.StatusTooManyRequests:
			if f.limiter != nil {
				_ = f.limiter.RecordThrottled(ctx, source, retryAfterHint(body.header))
			}
			f.logf("[Fetcher] throttled | host=%s sig=%s", host, sig.Name)
			return "", false
		case status == http.StatusForbidden || status == http.StatusServiceUnavailable:
			// likely a fingerprint block, try the next identity
			f.logf("[Fetcher] blocked | host=%s sig=%s status=%d", host, sig.Name, status)
			continue
		case status != http.StatusOK:
			f.logf("[Fetcher] unexpected status | host=%s sig=%s status=%d", host, sig.Name, status)
			continue
		}

		if f.limiter != nil {
			_ = f.limiter.RecordSuccess(ctx, source)
		}
		f.rememberGood(host, (start+attempt)%len(signatures))

		desc, ok := ExtractDescription(body.html, host)
		if !ok {
			f.logf("[Fetcher] no description found | host=%s url=%s", host, rawURL)
			return "", false
		}
		return desc, true
	}
	return "", false
}

type fetchResult struct {
	html   string
	header http.Header
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string, sig Signature) (fetchResult, int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetchResult{}, 0, err
	}
	applyHeaders(req, sig)

	resp, err := f.newClient(sig).Do(req)
	if err != nil {
		return fetchResult{}, 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fetchResult{}, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return fetchResult{html: string(b), header: resp.Header}, resp.StatusCode, nil
}

func (f *Fetcher) startIndex(host string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastGood[host]
}

func (f *Fetcher) rememberGood(host string, idx int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastGood[host] = idx
}

func (f *Fetcher) logf(format string, args ...any) {
	if f.logger != nil {
		f.logger.Printf(format, args...)
	}
}

// sourceKey collapses a host like www.totaljobs.com to the source name the
// rate limiter keys budgets on.
func sourceKey(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if i := strings.Index(host, "."); i > 0 {
		return host[:i]
	}
	return host
}

func retryAfterHint(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
