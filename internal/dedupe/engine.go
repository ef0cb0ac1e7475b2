// Package dedupe decides, for every scraped listing, whether it is new or a
// re-sighting of a row already in the database. Matching is fuzzy on
// purpose: boards reformat titles and company names between visits, so an
// exact key would re-insert the same posting over and over.
package dedupe

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"jobradar/internal/domain/job"
	"jobradar/internal/repository"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/google/uuid"
)

// DefaultThreshold is the similarity score at or above which two listings
// are considered the same posting.
const DefaultThreshold = 0.85

// Stats summarizes one ingest batch.
type Stats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

type Engine struct {
	repo      repository.JobRepository
	threshold float64
	metric    *metrics.SorensenDice
	logger    *log.Logger
}

func NewEngine(repo repository.JobRepository, threshold float64, logger *log.Logger) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	m := metrics.NewSorensenDice()
	m.CaseSensitive = false
	m.NgramSize = 2
	return &Engine{repo: repo, threshold: threshold, metric: m, logger: logger}
}

// Ingest merges a batch of scraped listings into the store. Each incoming
// listing is compared against every existing row from the same source; the
// best match at or above the threshold wins. Matches against edited rows are
// skipped outright so manual corrections survive every future scrape.
func (e *Engine) Ingest(ctx context.Context, source string, batch []job.Listing) (Stats, error) {
	if e == nil || e.repo == nil {
		return Stats{}, fmt.Errorf("dedupe engine not initialized")
	}
	existing, err := e.repo.ListBySource(ctx, source)
	if err != nil {
		return Stats{}, fmt.Errorf("load existing listings: %w", err)
	}

	var stats Stats
	for _, incoming := range batch {
		incoming.Source = source
		match, score := e.bestMatch(incoming, existing)
		if match == nil {
			// mint the id here, not in the repository: the inserted row joins
			// the match set, and a re-sighting later in the same batch must
			// resolve to its real id
			if incoming.ID == uuid.Nil {
				incoming.ID = uuid.New()
			}
			if err := e.repo.Insert(ctx, incoming); err != nil {
				return stats, fmt.Errorf("insert %q: %w", incoming.Title, err)
			}
			existing = append(existing, incoming)
			stats.Added++
			continue
		}
		if match.IsEdited {
			stats.Skipped++
			continue
		}
		if err := e.repo.UpdateScraperFields(ctx, match.ID, incoming); err != nil {
			return stats, fmt.Errorf("update %s: %w", match.ID, err)
		}
		stats.Updated++
		if e.logger != nil && score < 1 {
			e.logger.Printf("[Dedupe] fuzzy match | source=%s score=%.2f title=%q", source, score, incoming.Title)
		}
	}
	return stats, nil
}

// bestMatch returns the existing listing with the highest similarity to the
// incoming one, or nil when nothing reaches the threshold.
func (e *Engine) bestMatch(incoming job.Listing, existing []job.Listing) (*job.Listing, float64) {
	key := compositeKey(incoming)
	var (
		best      *job.Listing
		bestScore float64
	)
	for i := range existing {
		score := strutil.Similarity(key, compositeKey(existing[i]), e.metric)
		if score >= e.threshold && score > bestScore {
			best = &existing[i]
			bestScore = score
		}
	}
	return best, bestScore
}

// Similarity exposes the pairwise score for diagnostics and tests.
func (e *Engine) Similarity(a, b job.Listing) float64 {
	return strutil.Similarity(compositeKey(a), compositeKey(b), e.metric)
}

func compositeKey(l job.Listing) string {
	return normalize(l.Company) + "|" + normalize(l.Title) + "|" + normalize(l.Location)
}

// normalize lowercases, strips punctuation and collapses whitespace so
// cosmetic reformatting between scrapes does not defeat the match.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
