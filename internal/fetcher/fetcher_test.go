package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"jobradar/internal/ratelimit"
)

type fakeLimiter struct {
	allowed   bool
	acquires  int
	throttled int
	successes int
	hint      time.Duration
}

func (f *fakeLimiter) TryAcquire(context.Context, string) (ratelimit.Decision, error) {
	f.acquires++
	return ratelimit.Decision{Allowed: f.allowed}, nil
}
func (f *fakeLimiter) Wait(context.Context, string) error { return nil }
func (f *fakeLimiter) RecordSuccess(context.Context, string) error {
	f.successes++
	return nil
}
func (f *fakeLimiter) RecordThrottled(_ context.Context, _ string, hint time.Duration) error {
	f.throttled++
	f.hint = hint
	return nil
}

func newTestFetcher(l Limiter) *Fetcher {
	f := New(l, nil)
	f.newClient = func(Signature) doer { return http.DefaultClient }
	return f
}

func descriptionBody() string {
	return strings.Repeat("We are looking for an engineer to join our platform team. ", 12)
}

func TestFetchFullDescriptionFromJSONLD(t *testing.T) {
	body := descriptionBody()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><head><script type="application/ld+json">
			{"@type":"JobPosting","description":"` + body + `"}
		</script></head><body></body></html>`))
	}))
	defer srv.Close()

	lim := &fakeLimiter{allowed: true}
	f := newTestFetcher(lim)

	desc, ok := f.FetchFullDescription(context.Background(), srv.URL)
	if !ok {
		t.Fatal("expected description")
	}
	if !strings.Contains(desc, "platform team") {
		t.Fatalf("unexpected description: %.80s", desc)
	}
	if lim.successes != 1 {
		t.Fatalf("expected one recorded success, got %d", lim.successes)
	}
}

func TestFetchFullDescriptionRespectsBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request must not be sent when budget is exhausted")
	}))
	defer srv.Close()

	f := newTestFetcher(&fakeLimiter{allowed: false})
	if _, ok := f.FetchFullDescription(context.Background(), srv.URL); ok {
		t.Fatal("expected failure when denied")
	}
}

func TestFetchFullDescriptionStopsOnThrottle(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	lim := &fakeLimiter{allowed: true}
	f := newTestFetcher(lim)

	if _, ok := f.FetchFullDescription(context.Background(), srv.URL); ok {
		t.Fatal("throttled fetch must report unavailable")
	}
	if hits != 1 {
		t.Fatalf("429 must stop the rotation, got %d requests", hits)
	}
	if lim.throttled != 1 {
		t.Fatal("throttle must be recorded")
	}
	if lim.hint != 2*time.Minute {
		t.Fatalf("Retry-After hint not propagated, got %v", lim.hint)
	}
}

func TestFetchFullDescriptionRotatesOnBlock(t *testing.T) {
	body := descriptionBody()
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`<html><body><div class="job-description">` + body + `</div></body></html>`))
	}))
	defer srv.Close()

	lim := &fakeLimiter{allowed: true}
	f := newTestFetcher(lim)

	desc, ok := f.FetchFullDescription(context.Background(), srv.URL)
	if !ok {
		t.Fatal("second signature should have succeeded")
	}
	if !strings.Contains(desc, "platform team") {
		t.Fatalf("unexpected description: %.80s", desc)
	}
	if hits != 2 {
		t.Fatalf("expected one retry after block, got %d requests", hits)
	}
	if lim.acquires != 2 {
		t.Fatalf("every attempt must consume budget, got %d acquisitions", lim.acquires)
	}
}

func TestFetchFullDescriptionExhaustsAllSignatures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	lim := &fakeLimiter{allowed: true}
	f := newTestFetcher(lim)

	if _, ok := f.FetchFullDescription(context.Background(), srv.URL); ok {
		t.Fatal("a host blocking every identity must report unavailable")
	}
	if hits != len(signatures) {
		t.Fatalf("every signature should get one attempt, got %d of %d", hits, len(signatures))
	}
	if lim.acquires != len(signatures) {
		t.Fatalf("every attempt must consume budget, got %d acquisitions", lim.acquires)
	}
	if lim.successes != 0 || lim.throttled != 0 {
		t.Fatalf("exhaustion must record neither success nor throttle: %+v", lim)
	}
}

func TestFetchFullDescriptionBadURL(t *testing.T) {
	f := newTestFetcher(&fakeLimiter{allowed: true})
	if _, ok := f.FetchFullDescription(context.Background(), "::not a url"); ok {
		t.Fatal("expected failure")
	}
	if _, ok := f.FetchFullDescription(context.Background(), ""); ok {
		t.Fatal("expected failure on empty url")
	}
}

func TestExtractDescriptionSelectorChain(t *testing.T) {
	body := descriptionBody()

	t.Run("site selector", func(t *testing.T) {
		html := `<html><body><div class="job-description">` + body + `</div></body></html>`
		desc, ok := ExtractDescription(html, "www.totaljobs.com")
		if !ok || !strings.Contains(desc, "platform team") {
			t.Fatalf("ok=%v desc=%.60s", ok, desc)
		}
	})

	t.Run("generic selector", func(t *testing.T) {
		long := strings.Repeat(body, 2)
		html := `<html><body><div class="listing-jobDescription-v2">` + long + `</div></body></html>`
		desc, ok := ExtractDescription(html, "unknown-board.example")
		if !ok || !strings.Contains(desc, "platform team") {
			t.Fatalf("ok=%v desc=%.60s", ok, desc)
		}
	})

	t.Run("largest block fallback", func(t *testing.T) {
		long := strings.Repeat(body, 2)
		html := `<html><body>
			<div class="nav">home jobs about</div>
			<div class="whatever">` + long + `</div>
			<div class="footer">terms privacy</div>
		</body></html>`
		desc, ok := ExtractDescription(html, "unknown-board.example")
		if !ok || !strings.Contains(desc, "platform team") {
			t.Fatalf("ok=%v desc=%.60s", ok, desc)
		}
	})

	t.Run("boilerplate only", func(t *testing.T) {
		html := `<html><body><div>too short</div></body></html>`
		if _, ok := ExtractDescription(html, "www.reed.co.uk"); ok {
			t.Fatal("short page must not yield a description")
		}
	})

	t.Run("malformed markup never fails", func(t *testing.T) {
		if _, ok := ExtractDescription("<div><<<<>??"+body, "x"); ok {
			// goquery may still salvage the text; either way no panic
			t.Log("salvaged text from malformed markup")
		}
	})
}

func TestSourceKey(t *testing.T) {
	cases := map[string]string{
		"www.totaljobs.com": "totaljobs",
		"reed.co.uk":        "reed",
		"localhost":         "localhost",
	}
	for host, want := range cases {
		if got := sourceKey(host); got != want {
			t.Errorf("sourceKey(%q) = %q, want %q", host, got, want)
		}
	}
}
