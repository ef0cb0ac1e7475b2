package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// userAgents is the rotation pool. All entries are current desktop browsers;
// a stale UA string is itself a detection signal.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

var viewports = [][2]int64{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
}

// stealthScript runs before any page script and papers over the usual
// headless tells: navigator.webdriver, an empty plugin list, and missing
// languages.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-GB', 'en'] });
window.chrome = window.chrome || { runtime: {} };
const origQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
	parameters.name === 'notifications'
		? Promise.resolve({ state: Notification.permission })
		: origQuery(parameters)
);
`

func pickUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

func pickViewport() (int64, int64) {
	v := viewports[rand.Intn(len(viewports))]
	return v[0], v[1]
}

func allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	w, h := pickViewport()
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(int(w), int(h)),
		chromedp.UserAgent(pickUserAgent()),
	)
}

// injectStealth registers the stealth script to run on every new document in
// the session, before the page's own scripts get a chance to probe.
func injectStealth(ctx context.Context) error {
	_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
	return err
}

// humanScroll nudges the page down in a few uneven steps so lazy-loaded
// cards render and the scroll trace does not look scripted.
func humanScroll(ctx context.Context) error {
	steps := 3 + rand.Intn(3)
	for i := 0; i < steps; i++ {
		distance := 300 + rand.Intn(400)
		script := fmt.Sprintf("window.scrollBy(0, %d);", distance)
		if err := chromedp.Evaluate(script, nil).Do(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(200+rand.Intn(500)) * time.Millisecond):
		}
	}
	return nil
}

// humanDelay sleeps for a randomized beat between page actions.
func humanDelay(ctx context.Context) error {
	d := time.Duration(1500+rand.Intn(2000)) * time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
