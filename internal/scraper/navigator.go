// Package scraper discovers job listings from the supported boards. Boards
// that render results client-side are driven through a stealthed headless
// browser; static boards go through a plain crawler. Both feed the same
// card parser and hand their results to the dedup engine untouched.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"jobradar/internal/domain/job"
	"jobradar/internal/ratelimit"

	"github.com/chromedp/chromedp"
)

// Limiter is the slice of the rate limiter pagination consumes. Every page
// load costs one acquisition.
type Limiter interface {
	TryAcquire(ctx context.Context, source string) (ratelimit.Decision, error)
	Wait(ctx context.Context, source string) error
	RecordSuccess(ctx context.Context, source string) error
	RecordThrottled(ctx context.Context, source string, serverHint time.Duration) error
}

// pageState drives the pagination loop. The machine is deliberately
// explicit: every page moves LoadingPage -> Extracting -> Advancing, and
// every exit path lands on Done so a run can never loop past its page cap.
type pageState int

const (
	stateLoadingPage pageState = iota
	stateExtracting
	stateAdvancing
	stateDone
)

// session is one browser tab for the duration of a scrape run. Tests swap
// in a canned implementation.
type session interface {
	LoadPage(ctx context.Context, url string) (string, error)
	Close()
}

type Options struct {
	Headless        bool
	MaxPages        int
	NavigateTimeout time.Duration
	// PageIdleTimeout bounds how long to wait for client-side rendering to
	// settle after the document is ready.
	PageIdleTimeout time.Duration
}

type Navigator struct {
	limiter Limiter
	logger  *log.Logger
	opts    Options

	newSession func(ctx context.Context) (session, error)
}

func NewNavigator(limiter Limiter, logger *log.Logger, opts Options) *Navigator {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 3
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = 30 * time.Second
	}
	if opts.PageIdleTimeout <= 0 {
		opts.PageIdleTimeout = 10 * time.Second
	}
	n := &Navigator{limiter: limiter, logger: logger, opts: opts}
	n.newSession = func(ctx context.Context) (session, error) {
		return newChromedpSession(ctx, opts)
	}
	return n
}

// Scrape walks result pages for one search config on one board and returns
// every card it parsed. Failures degrade instead of aborting: whatever was
// collected before the failure is returned alongside the error.
func (n *Navigator) Scrape(ctx context.Context, profile SourceProfile, cfg job.SearchConfig) ([]job.Listing, error) {
	if n == nil {
		return nil, fmt.Errorf("nil navigator")
	}
	sess, err := n.newSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("start browser session: %w", err)
	}
	defer sess.Close()

	var (
		all     []job.Listing
		html    string
		pageNum = 1
		runErr  error
	)

	state := stateLoadingPage
	for state != stateDone {
		switch state {
		case stateLoadingPage:
			if n.limiter != nil {
				if err := n.limiter.Wait(ctx, profile.Name); err != nil {
					runErr = err
					state = stateDone
					continue
				}
				d, err := n.limiter.TryAcquire(ctx, profile.Name)
				if err != nil {
					runErr = err
					state = stateDone
					continue
				}
				if !d.Allowed {
					n.logf("[Scraper] budget exhausted | source=%s page=%d retry_after=%v",
						profile.Name, pageNum, d.RetryAfter)
					state = stateDone
					continue
				}
			}
			url := profile.BuildSearchURL(cfg.Keywords, cfg.Location, cfg.Radius, pageNum)
			html, err = sess.LoadPage(ctx, url)
			if err != nil {
				n.logf("[Scraper] page load failed | source=%s page=%d err=%v", profile.Name, pageNum, err)
				runErr = err
				state = stateDone
				continue
			}
			if blockedPage(html) {
				if n.limiter != nil {
					_ = n.limiter.RecordThrottled(ctx, profile.Name, 0)
				}
				n.logf("[Scraper] block page detected | source=%s page=%d", profile.Name, pageNum)
				state = stateDone
				continue
			}
			if n.limiter != nil {
				_ = n.limiter.RecordSuccess(ctx, profile.Name)
			}
			state = stateExtracting

		case stateExtracting:
			cards, err := parseCards(html, profile)
			if err != nil {
				runErr = err
				state = stateDone
				continue
			}
			if len(cards) == 0 {
				// an empty result page means pagination ran past the end
				state = stateDone
				continue
			}
			all = append(all, cards...)
			n.logf("[Scraper] page extracted | source=%s page=%d cards=%d", profile.Name, pageNum, len(cards))
			state = stateAdvancing

		case stateAdvancing:
			pageNum++
			if pageNum > n.opts.MaxPages {
				state = stateDone
				continue
			}
			state = stateLoadingPage
		}
	}
	return all, runErr
}

func (n *Navigator) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}

// blockedPage spots anti-bot interstitials by their telltale copy. A block
// page parses fine but yields no cards, so without this check a block would
// look like an empty final page instead of a throttle event.
func blockedPage(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range []string{
		"just a moment",
		"verify you are human",
		"access denied",
		"unusual traffic",
		"captcha-delivery",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// chromedpSession owns one headless browser for a whole run, unlike a
// per-page allocator; boards correlate cookies across result pages and a
// fresh browser per page looks exactly like a scraper.
type chromedpSession struct {
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	browserCtx    context.Context
	timeout       time.Duration
	idle          time.Duration
}

func newChromedpSession(ctx context.Context, opts Options) (*chromedpSession, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(opts.Headless)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// start the browser and arm the stealth script before first navigation
	if err := chromedp.Run(browserCtx, chromedp.ActionFunc(injectStealth)); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}
	return &chromedpSession{
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		browserCtx:    browserCtx,
		timeout:       opts.NavigateTimeout,
		idle:          opts.PageIdleTimeout,
	}, nil
}

func (s *chromedpSession) LoadPage(ctx context.Context, url string) (string, error) {
	reqCtx, cancel := context.WithTimeout(s.browserCtx, s.timeout)
	defer cancel()

	var html string
	err := chromedp.Run(reqCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// a page that never settles still gets parsed with whatever
			// rendered so far
			err := chromedp.Poll(`document.readyState === "complete"`, nil,
				chromedp.WithPollingTimeout(s.idle)).Do(ctx)
			if errors.Is(err, chromedp.ErrPollingTimeout) {
				return nil
			}
			return err
		}),
		chromedp.ActionFunc(humanDelay),
		chromedp.ActionFunc(humanScroll),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return html, nil
}

func (s *chromedpSession) Close() {
	if s == nil {
		return
	}
	s.browserCancel()
	s.allocCancel()
}
