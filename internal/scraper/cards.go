package scraper

import (
	"strings"
	"time"

	"jobradar/internal/domain/job"

	"github.com/PuerkitoBio/goquery"
)

// parseCards turns one result page's HTML into listings using the board
// profile's selectors. Cards missing a title or company are dropped rather
// than half-filled; boards pad result lists with ad slots that match the
// card selector.
func parseCards(html string, p SourceProfile) ([]job.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]job.Listing, 0)
	doc.Find(p.Card).Each(func(_ int, card *goquery.Selection) {
		title := firstText(card, p.Title)
		company := firstText(card, p.Company)
		if title == "" || company == "" {
			return
		}
		out = append(out, job.Listing{
			Title:          title,
			Company:        company,
			Location:       firstText(card, p.Location),
			Salary:         firstText(card, p.Salary),
			PostedDate:     firstText(card, p.Posted),
			Description:    cardSnippet(card),
			URL:            absoluteLink(card, p),
			Source:         p.Name,
			ScrapedAt:      now,
			Status:         job.StatusNew,
			EmploymentType: "",
		})
	})
	return out, nil
}

func firstText(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	sel := card.Find(selector).First()
	if t := strings.TrimSpace(sel.Text()); t != "" {
		return t
	}
	// some boards put the text in a title attribute instead
	if t, ok := sel.Attr("title"); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

// cardSnippet grabs whatever teaser text the card carries. It is always
// truncated; the description fetcher replaces it later.
func cardSnippet(card *goquery.Selection) string {
	for _, sel := range []string{".job-snippet", "[data-at='job-item-snippet']", "p"} {
		if t := strings.TrimSpace(card.Find(sel).First().Text()); len(t) > 30 {
			return t
		}
	}
	return ""
}

func absoluteLink(card *goquery.Selection, p SourceProfile) string {
	href, ok := card.Find(p.Link).First().Attr("href")
	if !ok {
		return ""
	}
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(p.BaseURL, "/") + href
	default:
		return strings.TrimRight(p.BaseURL, "/") + "/" + href
	}
}
