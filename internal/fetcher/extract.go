package fetcher

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// minDescriptionLen is the floor below which an extracted candidate is
// treated as boilerplate rather than a job description.
const minDescriptionLen = 200

// genericFloor is the stricter floor applied to the generic selector and
// largest-block fallbacks, which match far more loosely than site selectors.
const genericFloor = 500

// siteSelectors maps a host fragment to the CSS selectors known to hold the
// description on that board, in preference order.
var siteSelectors = map[string][]string{
	"totaljobs": {"div.job-description", "section[data-at='job-description']", "div[class*='JobDescription']"},
	"reed":      {"div.description", "div[itemprop='description']", "section.description"},
	"indeed":    {"div#jobDescriptionText", "div.jobsearch-jobDescriptionText"},
	"cv-library": {"div.job__description", "div.jd-details"},
}

var genericSelectors = []string{
	"div[class*='job-description']",
	"div[class*='jobDescription']",
	"div[itemprop='description']",
	"section[class*='description']",
	"article",
	"main",
}

// ExtractDescription pulls the job description out of a detail page using a
// tolerant chain: structured data first, then selectors known for the host,
// then generic description selectors, and finally the largest text block on
// the page. It returns ok=false when nothing plausible is found; it never
// fails on malformed markup.
func ExtractDescription(html, host string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}

	if desc, ok := fromJSONLD(doc); ok {
		return desc, true
	}
	if desc, ok := fromSiteSelectors(doc, host); ok {
		return desc, true
	}
	if desc, ok := fromGenericSelectors(doc); ok {
		return desc, true
	}
	return fromLargestBlock(doc)
}

// fromJSONLD looks for a schema.org JobPosting script. Boards embed these
// for search engines and they are the cleanest source when present.
func fromJSONLD(doc *goquery.Document) (string, bool) {
	var found string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload map[string]any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true // malformed script, keep looking
		}
		if t, _ := payload["@type"].(string); !strings.EqualFold(t, "JobPosting") {
			return true
		}
		raw, _ := payload["description"].(string)
		text := cleanText(htmlToText(raw))
		if len(text) >= minDescriptionLen {
			found = text
			return false
		}
		return true
	})
	return found, found != ""
}

func fromSiteSelectors(doc *goquery.Document, host string) (string, bool) {
	for fragment, selectors := range siteSelectors {
		if !strings.Contains(host, fragment) {
			continue
		}
		for _, sel := range selectors {
			text := cleanText(doc.Find(sel).First().Text())
			if len(text) >= minDescriptionLen {
				return text, true
			}
		}
	}
	return "", false
}

func fromGenericSelectors(doc *goquery.Document) (string, bool) {
	for _, sel := range genericSelectors {
		text := cleanText(doc.Find(sel).First().Text())
		if len(text) >= genericFloor {
			return text, true
		}
	}
	return "", false
}

// fromLargestBlock is the last resort: the biggest contiguous text node
// container on the page, on the theory that the description dominates a
// detail page's copy.
func fromLargestBlock(doc *goquery.Document) (string, bool) {
	var best string
	doc.Find("div, section, article").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Is("div, section, article") {
			return // prefer leaf-ish containers over page wrappers
		}
		text := cleanText(s.Text())
		if len(text) > len(best) {
			best = text
		}
	})
	if len(best) < genericFloor {
		return "", false
	}
	return best, true
}

// htmlToText strips tags from inline HTML, as found inside JSON-LD
// description fields.
func htmlToText(raw string) string {
	if !strings.Contains(raw, "<") {
		return raw
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	return doc.Text()
}

func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
