package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"jobradar/internal/domain/job"
	"jobradar/internal/ratelimit"
)

type fakeSession struct {
	pages  []string
	loads  []string
	errAt  int
	closed bool
}

func (f *fakeSession) LoadPage(_ context.Context, url string) (string, error) {
	n := len(f.loads)
	f.loads = append(f.loads, url)
	if f.errAt > 0 && n+1 == f.errAt {
		return "", errors.New("net::ERR_CONNECTION_RESET")
	}
	if n < len(f.pages) {
		return f.pages[n], nil
	}
	return "<html><body></body></html>", nil
}

func (f *fakeSession) Close() { f.closed = true }

type countingLimiter struct {
	acquires  int
	denyAfter int
	throttled int
}

func (l *countingLimiter) TryAcquire(context.Context, string) (ratelimit.Decision, error) {
	l.acquires++
	if l.denyAfter > 0 && l.acquires > l.denyAfter {
		return ratelimit.Decision{Allowed: false, RetryAfter: time.Minute}, nil
	}
	return ratelimit.Decision{Allowed: true}, nil
}
func (l *countingLimiter) Wait(context.Context, string) error          { return nil }
func (l *countingLimiter) RecordSuccess(context.Context, string) error { return nil }
func (l *countingLimiter) RecordThrottled(_ context.Context, _ string, _ time.Duration) error {
	l.throttled++
	return nil
}

func testProfile() SourceProfile {
	return SourceProfile{
		Name:    "testboard",
		BaseURL: "https://jobs.example",
		Card:    "article.card",
		Title:   "h2",
		Company: ".company",
		Link:    "h2 a",
		BuildSearchURL: func(keywords, location string, radius, page int) string {
			return fmt.Sprintf("https://jobs.example/search?q=%s&page=%d", keywords, page)
		},
	}
}

func resultPage(n int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<article class="card"><h2><a href="/job/%d">Engineer %d</a></h2><span class="company">Acme</span></article>`, i, i)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newTestNavigator(sess *fakeSession, lim Limiter, maxPages int) *Navigator {
	n := NewNavigator(lim, nil, Options{MaxPages: maxPages})
	n.newSession = func(context.Context) (session, error) { return sess, nil }
	return n
}

func TestScrapeStopsAtMaxPages(t *testing.T) {
	sess := &fakeSession{pages: []string{resultPage(5), resultPage(5), resultPage(5), resultPage(5)}}
	n := newTestNavigator(sess, &countingLimiter{}, 3)

	listings, err := n.Scrape(context.Background(), testProfile(), job.SearchConfig{Keywords: "python"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.loads) != 3 {
		t.Fatalf("pagination must stop at the page cap, loaded %d pages", len(sess.loads))
	}
	if len(listings) != 15 {
		t.Fatalf("expected 15 listings, got %d", len(listings))
	}
	if !sess.closed {
		t.Fatal("session must be closed after the run")
	}
}

func TestScrapeStopsOnEmptyPage(t *testing.T) {
	sess := &fakeSession{pages: []string{resultPage(4), resultPage(0)}}
	n := newTestNavigator(sess, &countingLimiter{}, 10)

	listings, err := n.Scrape(context.Background(), testProfile(), job.SearchConfig{Keywords: "python"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.loads) != 2 {
		t.Fatalf("empty page must end the run, loaded %d pages", len(sess.loads))
	}
	if len(listings) != 4 {
		t.Fatalf("expected 4 listings, got %d", len(listings))
	}
}

func TestScrapeReturnsPartialResultsOnError(t *testing.T) {
	sess := &fakeSession{pages: []string{resultPage(3), resultPage(3)}, errAt: 2}
	n := newTestNavigator(sess, &countingLimiter{}, 5)

	listings, err := n.Scrape(context.Background(), testProfile(), job.SearchConfig{Keywords: "python"})
	if err == nil {
		t.Fatal("expected the load error to surface")
	}
	if len(listings) != 3 {
		t.Fatalf("first page results must survive the failure, got %d", len(listings))
	}
}

func TestScrapeHonorsBudgetDenial(t *testing.T) {
	sess := &fakeSession{pages: []string{resultPage(3), resultPage(3), resultPage(3)}}
	lim := &countingLimiter{denyAfter: 2}
	n := newTestNavigator(sess, lim, 10)

	listings, err := n.Scrape(context.Background(), testProfile(), job.SearchConfig{Keywords: "python"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.loads) != 2 {
		t.Fatalf("denied acquisition must stop page loads, loaded %d", len(sess.loads))
	}
	if len(listings) != 6 {
		t.Fatalf("expected 6 listings, got %d", len(listings))
	}
}

func TestScrapeRecordsThrottleOnBlockPage(t *testing.T) {
	sess := &fakeSession{pages: []string{
		resultPage(3),
		`<html><head><title>Just a moment...</title></head><body></body></html>`,
	}}
	lim := &countingLimiter{}
	n := newTestNavigator(sess, lim, 5)

	listings, err := n.Scrape(context.Background(), testProfile(), job.SearchConfig{Keywords: "python"})
	if err != nil {
		t.Fatal(err)
	}
	if lim.throttled != 1 {
		t.Fatal("block page must be recorded as a throttle")
	}
	if len(listings) != 3 {
		t.Fatalf("expected first page results, got %d", len(listings))
	}
}

func TestParseCardsSkipsIncompleteCards(t *testing.T) {
	html := `<html><body>
		<article class="card"><h2><a href="/job/1">Engineer</a></h2><span class="company">Acme</span></article>
		<article class="card"><h2><a href="/ad">Sponsored</a></h2></article>
	</body></html>`
	listings, err := parseCards(html, testProfile())
	if err != nil {
		t.Fatal(err)
	}
	if len(listings) != 1 {
		t.Fatalf("card without a company must be dropped, got %d", len(listings))
	}
	l := listings[0]
	if l.Title != "Engineer" || l.Company != "Acme" || l.Source != "testboard" {
		t.Fatalf("unexpected listing: %+v", l)
	}
	if l.URL != "https://jobs.example/job/1" {
		t.Fatalf("relative link must be absolutized, got %q", l.URL)
	}
	if l.Status != job.StatusNew {
		t.Fatalf("new cards must start at status new, got %q", l.Status)
	}
}

func TestBuildSearchURLs(t *testing.T) {
	for _, name := range SourceNames() {
		p, ok := ProfileFor(name)
		if !ok {
			t.Fatalf("missing profile %q", name)
		}
		u := p.BuildSearchURL("python ai", "Manchester", 10, 2)
		if !strings.HasPrefix(u, "https://") {
			t.Errorf("%s: bad url %q", name, u)
		}
		if u == p.BuildSearchURL("python ai", "Manchester", 10, 1) {
			t.Errorf("%s: page 2 url must differ from page 1", name)
		}
	}
}

func TestBlockedPage(t *testing.T) {
	if !blockedPage("<title>Just a moment...</title>") {
		t.Fatal("cloudflare interstitial not detected")
	}
	if blockedPage(resultPage(3)) {
		t.Fatal("normal result page flagged as blocked")
	}
}
