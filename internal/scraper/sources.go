package scraper

import (
	"fmt"
	"net/url"
	"strings"
)

// SourceProfile describes how to search one job board: how its result URLs
// are built and which selectors find the listing cards. Pagination is
// URL-driven for every supported board.
type SourceProfile struct {
	Name     string
	BaseURL  string
	Card     string
	Title    string
	Company  string
	Location string
	Salary   string
	Posted   string
	Link     string

	// BuildSearchURL renders the result page URL for a query and 1-based
	// page number.
	BuildSearchURL func(keywords, location string, radius, page int) string

	// RequiresBrowser marks boards that render cards client-side and need
	// the chromedp navigator; the rest go through the colly source.
	RequiresBrowser bool
}

var profiles = map[string]SourceProfile{
	"totaljobs": {
		Name:            "totaljobs",
		BaseURL:         "https://www.totaljobs.com",
		Card:            "article[data-at='job-item'], div.job-card",
		Title:           "[data-at='job-item-title'], h2 a",
		Company:         "[data-at='job-item-company-name'], .job-card-company",
		Location:        "[data-at='job-item-location'], .job-card-location",
		Salary:          "[data-at='job-item-salary-info']",
		Posted:          "[data-at='job-item-timestamp']",
		Link:            "a[data-at='job-item-title'], h2 a",
		RequiresBrowser: true,
		BuildSearchURL: func(keywords, location string, radius, page int) string {
			u := fmt.Sprintf("https://www.totaljobs.com/jobs/%s/in-%s",
				slugify(keywords), slugify(location))
			q := url.Values{}
			if radius > 0 {
				q.Set("radius", fmt.Sprint(radius))
			}
			if page > 1 {
				q.Set("page", fmt.Sprint(page))
			}
			if enc := q.Encode(); enc != "" {
				u += "?" + enc
			}
			return u
		},
	},
	"reed": {
		Name:            "reed",
		BaseURL:         "https://www.reed.co.uk",
		Card:            "article.job-result-card, article[data-qa='job-card']",
		Title:           "h2 a, [data-qa='job-card-title']",
		Company:         ".job-result-card__meta a, [data-qa='job-card-posted-by']",
		Location:        ".job-result-card__location, [data-qa='job-card-location']",
		Salary:          ".job-result-card__salary, [data-qa='job-card-salary']",
		Posted:          ".job-result-card__posted-by",
		Link:            "h2 a",
		RequiresBrowser: false,
		BuildSearchURL: func(keywords, location string, radius, page int) string {
			u := fmt.Sprintf("https://www.reed.co.uk/jobs/%s-jobs-in-%s",
				slugify(keywords), slugify(location))
			q := url.Values{}
			if radius > 0 {
				q.Set("proximity", fmt.Sprint(radius))
			}
			if page > 1 {
				q.Set("pageno", fmt.Sprint(page))
			}
			if enc := q.Encode(); enc != "" {
				u += "?" + enc
			}
			return u
		},
	},
	"indeed": {
		Name:            "indeed",
		BaseURL:         "https://uk.indeed.com",
		Card:            "div.job_seen_beacon, td.resultContent",
		Title:           "h2.jobTitle span[title], h2.jobTitle a",
		Company:         "[data-testid='company-name'], span.companyName",
		Location:        "[data-testid='text-location'], div.companyLocation",
		Salary:          ".salary-snippet-container, [data-testid='attribute_snippet_testid']",
		Posted:          "span.date",
		Link:            "h2.jobTitle a",
		RequiresBrowser: true,
		BuildSearchURL: func(keywords, location string, radius, page int) string {
			q := url.Values{}
			q.Set("q", keywords)
			q.Set("l", location)
			if radius > 0 {
				q.Set("radius", fmt.Sprint(radius))
			}
			if page > 1 {
				q.Set("start", fmt.Sprint((page-1)*10))
			}
			return "https://uk.indeed.com/jobs?" + q.Encode()
		},
	},
	"cvlibrary": {
		Name:            "cvlibrary",
		BaseURL:         "https://www.cv-library.co.uk",
		Card:            "li.results__item, article.job",
		Title:           "h2.job__title a, a.job__link",
		Company:         ".job__details-company, span.job__company-link",
		Location:        ".job__details-location, dd.job__details-value",
		Salary:          ".job__details-salary",
		Posted:          ".job__posted",
		Link:            "h2.job__title a, a.job__link",
		RequiresBrowser: false,
		BuildSearchURL: func(keywords, location string, radius, page int) string {
			u := fmt.Sprintf("https://www.cv-library.co.uk/%s-jobs-in-%s",
				slugify(keywords), slugify(location))
			q := url.Values{}
			if radius > 0 {
				q.Set("distance", fmt.Sprint(radius))
			}
			if page > 1 {
				q.Set("page", fmt.Sprint(page))
			}
			if enc := q.Encode(); enc != "" {
				u += "?" + enc
			}
			return u
		},
	},
}

// ProfileFor resolves a source name to its board profile.
func ProfileFor(name string) (SourceProfile, bool) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// SourceNames lists the supported boards in a fixed order.
func SourceNames() []string {
	return []string{"totaljobs", "reed", "indeed", "cvlibrary"}
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	return strings.Join(fields, "-")
}
