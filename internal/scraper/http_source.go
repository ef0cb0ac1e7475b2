package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"jobradar/internal/domain/job"

	"github.com/gocolly/colly/v2"
)

// HTTPSource scrapes boards that serve their result cards in the initial
// HTML. It shares the card parser and rate limiter with the browser
// navigator; only the transport differs.
type HTTPSource struct {
	limiter  Limiter
	logger   *log.Logger
	maxPages int
	timeout  time.Duration
}

func NewHTTPSource(limiter Limiter, logger *log.Logger, maxPages int) *HTTPSource {
	if maxPages <= 0 {
		maxPages = 3
	}
	return &HTTPSource{
		limiter:  limiter,
		logger:   logger,
		maxPages: maxPages,
		timeout:  25 * time.Second,
	}
}

func (h *HTTPSource) Scrape(ctx context.Context, profile SourceProfile, cfg job.SearchConfig) ([]job.Listing, error) {
	if h == nil {
		return nil, fmt.Errorf("nil source")
	}

	var all []job.Listing
	for pageNum := 1; pageNum <= h.maxPages; pageNum++ {
		if h.limiter != nil {
			if err := h.limiter.Wait(ctx, profile.Name); err != nil {
				return all, err
			}
			d, err := h.limiter.TryAcquire(ctx, profile.Name)
			if err != nil {
				return all, err
			}
			if !d.Allowed {
				h.logf("[Scraper] budget exhausted | source=%s page=%d", profile.Name, pageNum)
				return all, nil
			}
		}

		url := profile.BuildSearchURL(cfg.Keywords, cfg.Location, cfg.Radius, pageNum)
		html, status, err := h.fetch(ctx, url)
		switch {
		case err != nil:
			h.logf("[Scraper] fetch failed | source=%s page=%d err=%v", profile.Name, pageNum, err)
			return all, err
		case status == http.StatusTooManyRequests:
			if h.limiter != nil {
				_ = h.limiter.RecordThrottled(ctx, profile.Name, 0)
			}
			h.logf("[Scraper] throttled | source=%s page=%d", profile.Name, pageNum)
			return all, nil
		case status != http.StatusOK:
			h.logf("[Scraper] unexpected status | source=%s page=%d status=%d", profile.Name, pageNum, status)
			return all, nil
		}
		if blockedPage(html) {
			if h.limiter != nil {
				_ = h.limiter.RecordThrottled(ctx, profile.Name, 0)
			}
			h.logf("[Scraper] block page detected | source=%s page=%d", profile.Name, pageNum)
			return all, nil
		}
		if h.limiter != nil {
			_ = h.limiter.RecordSuccess(ctx, profile.Name)
		}

		cards, err := parseCards(html, profile)
		if err != nil {
			return all, err
		}
		if len(cards) == 0 {
			return all, nil
		}
		all = append(all, cards...)
		h.logf("[Scraper] page extracted | source=%s page=%d cards=%d", profile.Name, pageNum, len(cards))
	}
	return all, nil
}

func (h *HTTPSource) fetch(ctx context.Context, url string) (string, int, error) {
	c := colly.NewCollector(
		colly.UserAgent(pickUserAgent()),
	)
	c.SetRequestTimeout(h.timeout)

	var (
		html   string
		status int
	)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "en-GB,en;q=0.9")
		select {
		case <-ctx.Done():
			r.Abort()
		default:
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		html = string(r.Body)
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(url); err != nil {
		// colly reports non-2xx as an error; the status captured in
		// OnError still tells us whether it was a throttle
		if status != 0 {
			return "", status, nil
		}
		return "", 0, err
	}
	c.Wait()
	return html, status, nil
}

func (h *HTTPSource) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}
