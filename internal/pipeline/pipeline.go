// Package pipeline strings the stages together: board scraping into dedup,
// description backfill, and enrichment hand-off. Each stage is independently
// runnable; the scheduler and the ops API both drive them through the same
// entry points.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"jobradar/internal/dedupe"
	"jobradar/internal/domain/job"
	"jobradar/internal/events"
	"jobradar/internal/repository"
	"jobradar/internal/scraper"

	"github.com/google/uuid"
)

// boardScraper is one transport for walking a board's result pages.
type boardScraper interface {
	Scrape(ctx context.Context, profile scraper.SourceProfile, cfg job.SearchConfig) ([]job.Listing, error)
}

type descriptionFetcher interface {
	FetchFullDescription(ctx context.Context, url string) (string, bool)
}

// ProgressFunc receives stage progress for the dashboard. A nil func is
// allowed everywhere.
type ProgressFunc func(task, source, message string, current, total int)

type Pipeline struct {
	jobs    repository.JobRepository
	configs repository.SearchConfigRepository
	runLog  repository.ScrapeLogRepository

	dedupe    *dedupe.Engine
	browser   boardScraper
	crawler   boardScraper
	fetcher   descriptionFetcher
	publisher events.Publisher

	progress ProgressFunc
	log      *log.Logger

	fetchWorkers int
}

type Params struct {
	Jobs         repository.JobRepository
	Configs      repository.SearchConfigRepository
	RunLog       repository.ScrapeLogRepository
	Dedupe       *dedupe.Engine
	Browser      boardScraper
	Crawler      boardScraper
	Fetcher      descriptionFetcher
	Publisher    events.Publisher
	Progress     ProgressFunc
	Logger       *log.Logger
	FetchWorkers int
}

func New(p Params) *Pipeline {
	if p.Logger == nil {
		p.Logger = log.Default()
	}
	if p.FetchWorkers <= 0 {
		p.FetchWorkers = 3
	}
	if p.Publisher == nil {
		p.Publisher = events.NoopPublisher{}
	}
	return &Pipeline{
		jobs:         p.Jobs,
		configs:      p.Configs,
		runLog:       p.RunLog,
		dedupe:       p.Dedupe,
		browser:      p.Browser,
		crawler:      p.Crawler,
		fetcher:      p.Fetcher,
		publisher:    p.Publisher,
		progress:     p.Progress,
		log:          p.Logger,
		fetchWorkers: p.FetchWorkers,
	}
}

type ScrapeParams struct {
	// Sources limits the run to named boards; empty means all supported.
	Sources []string
	// ConfigIDs limits the run to specific search configs; empty means all
	// enabled configs.
	ConfigIDs []int64
}

type ScrapeSummary struct {
	Runs    int `json:"runs"`
	Found   int `json:"found"`
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// RunScrape walks every (config, source) pair, ingests the results through
// the dedup engine and appends one run-log row per pair. A failing pair is
// logged and recorded; the rest of the run carries on.
func (p *Pipeline) RunScrape(ctx context.Context, params ScrapeParams) (ScrapeSummary, error) {
	if p == nil || p.jobs == nil || p.configs == nil {
		return ScrapeSummary{}, fmt.Errorf("pipeline not initialized")
	}
	start := time.Now()
	p.log.Printf("pipeline=scrape status=started")
	defer func() {
		p.log.Printf("pipeline=scrape status=finished duration=%s", time.Since(start))
	}()

	configs, err := p.selectConfigs(ctx, params.ConfigIDs)
	if err != nil {
		return ScrapeSummary{}, err
	}
	sources := params.Sources
	if len(sources) == 0 {
		sources = scraper.SourceNames()
	}

	var summary ScrapeSummary
	for _, cfg := range configs {
		s, err := p.RunScrapeConfig(ctx, cfg, sources)
		if err != nil {
			return summary, err
		}
		summary.Runs += s.Runs
		summary.Found += s.Found
		summary.Added += s.Added
		summary.Updated += s.Updated
		summary.Skipped += s.Skipped
		summary.Failed += s.Failed
		p.log.Printf("pipeline=scrape status=ok config=%q found=%d added=%d updated=%d skipped=%d failed=%d",
			cfg.Name, s.Found, s.Added, s.Updated, s.Skipped, s.Failed)
	}
	return summary, nil
}

// RunScrapeConfig scrapes a single config, stored or ad-hoc, across the
// given sources. The CLI uses it for one-off queries.
func (p *Pipeline) RunScrapeConfig(ctx context.Context, cfg job.SearchConfig, sources []string) (ScrapeSummary, error) {
	if p == nil || p.jobs == nil {
		return ScrapeSummary{}, fmt.Errorf("pipeline not initialized")
	}
	if len(sources) == 0 {
		sources = scraper.SourceNames()
	}

	var summary ScrapeSummary
	for i, name := range sources {
		p.notify("scrape", name, fmt.Sprintf("searching %q", cfg.Keywords), i+1, len(sources))

		profile, ok := scraper.ProfileFor(name)
		if !ok {
			summary.Failed++
			continue
		}
		runStart := time.Now().UTC()
		listings, scrapeErr := p.scrapeBoard(ctx, profile, cfg)

		var stats dedupe.Stats
		var ingestErr error
		if len(listings) > 0 {
			stats, ingestErr = p.dedupe.Ingest(ctx, profile.Name, listings)
		}

		summary.Runs++
		summary.Found += len(listings)
		summary.Added += stats.Added
		summary.Updated += stats.Updated
		summary.Skipped += stats.Skipped

		runErr := scrapeErr
		if runErr == nil {
			runErr = ingestErr
		}
		if runErr != nil {
			summary.Failed++
			p.log.Printf("pipeline=scrape status=error source=%s err=%v", name, runErr)
		}
		p.appendRunLog(ctx, profile.Name, cfg, len(listings), stats.Added, runStart, runErr)
	}
	return summary, nil
}

func (p *Pipeline) scrapeBoard(ctx context.Context, profile scraper.SourceProfile, cfg job.SearchConfig) ([]job.Listing, error) {
	src := p.crawler
	if profile.RequiresBrowser {
		src = p.browser
	}
	if src == nil {
		return nil, fmt.Errorf("no scraper for source %s", profile.Name)
	}
	return src.Scrape(ctx, profile, cfg)
}

func (p *Pipeline) selectConfigs(ctx context.Context, ids []int64) ([]job.SearchConfig, error) {
	if len(ids) > 0 {
		return p.configs.ListByIDs(ctx, ids)
	}
	configs, err := p.configs.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("load search configs: %w", err)
	}
	return configs, nil
}

func (p *Pipeline) appendRunLog(ctx context.Context, source string, cfg job.SearchConfig, found, added int, startedAt time.Time, runErr error) {
	if p.runLog == nil {
		return
	}
	now := time.Now().UTC()
	entry := job.ScrapeRunLog{
		Source:      source,
		JobsFound:   found,
		JobsAdded:   added,
		StartedAt:   startedAt,
		CompletedAt: &now,
		Success:     runErr == nil,
	}
	if cfg.ID > 0 {
		id := cfg.ID
		entry.ConfigID = &id
	}
	if runErr != nil {
		entry.ErrorMessage = runErr.Error()
	}
	if err := p.runLog.Append(ctx, entry); err != nil {
		p.log.Printf("pipeline=scrape status=error step=run_log err=%v", err)
	}
}

type DescriptionSummary struct {
	Candidates int `json:"candidates"`
	Updated    int `json:"updated"`
	Missed     int `json:"missed"`
}

// FetchDescriptions backfills full descriptions for listings that only have
// a card snippet. Fetches fan out over a small worker pool; the rate
// limiter inside the fetcher keeps per-board pressure bounded regardless of
// worker count.
func (p *Pipeline) FetchDescriptions(ctx context.Context, limit int) (DescriptionSummary, error) {
	if p == nil || p.jobs == nil || p.fetcher == nil {
		return DescriptionSummary{}, fmt.Errorf("pipeline not initialized")
	}
	start := time.Now()
	p.log.Printf("pipeline=descriptions status=started")
	defer func() {
		p.log.Printf("pipeline=descriptions status=finished duration=%s", time.Since(start))
	}()

	candidates, err := p.jobs.ListNeedingDescriptions(ctx, limit)
	if err != nil {
		return DescriptionSummary{}, fmt.Errorf("list candidates: %w", err)
	}
	summary := DescriptionSummary{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return summary, nil
	}

	pool := NewWorkerPool(p.fetchWorkers, len(candidates))
	results := pool.Run(ctx)

	for i, l := range candidates {
		l := l
		i := i
		pool.Submit(func(ctx context.Context) Result {
			p.notify("descriptions", l.Source, l.Title, i+1, len(candidates))
			desc, ok := p.fetcher.FetchFullDescription(ctx, l.URL)
			if !ok {
				return Result{}
			}
			if err := p.jobs.UpdateDescription(ctx, l.ID, desc); err != nil {
				return Result{Err: err}
			}
			return Result{Updated: true}
		})
	}
	pool.Close()

	for res := range results {
		switch {
		case res.Err != nil:
			p.log.Printf("pipeline=descriptions status=error err=%v", res.Err)
			summary.Missed++
		case res.Updated:
			summary.Updated++
		default:
			summary.Missed++
		}
	}
	p.log.Printf("pipeline=descriptions summary candidates=%d updated=%d missed=%d",
		summary.Candidates, summary.Updated, summary.Missed)
	return summary, nil
}

type EnrichmentSummary struct {
	Queued int `json:"queued"`
	Failed int `json:"failed"`
}

// TriggerEnrichment publishes fully described listings to the enrichment
// queue and marks them so they are only handed over once.
func (p *Pipeline) TriggerEnrichment(ctx context.Context, limit int) (EnrichmentSummary, error) {
	if p == nil || p.jobs == nil {
		return EnrichmentSummary{}, fmt.Errorf("pipeline not initialized")
	}
	candidates, err := p.jobs.ListForEnrichment(ctx, limit)
	if err != nil {
		return EnrichmentSummary{}, fmt.Errorf("list enrichment candidates: %w", err)
	}

	var summary EnrichmentSummary
	for i, l := range candidates {
		p.notify("enrichment", l.Source, l.Title, i+1, len(candidates))
		ev := events.EnrichmentEvent{
			JobID:       l.ID.String(),
			Title:       l.Title,
			Company:     l.Company,
			Location:    l.Location,
			Description: l.Description,
			Source:      l.Source,
			URL:         l.URL,
		}
		if err := p.publisher.PublishEnrich(ctx, ev); err != nil {
			summary.Failed++
			p.log.Printf("pipeline=enrichment status=error job_id=%s err=%v", l.ID, err)
			continue
		}
		if err := p.jobs.MarkEnrichmentQueued(ctx, []uuid.UUID{l.ID}); err != nil {
			summary.Failed++
			p.log.Printf("pipeline=enrichment status=error step=mark job_id=%s err=%v", l.ID, err)
			continue
		}
		summary.Queued++
	}
	p.log.Printf("pipeline=enrichment summary queued=%d failed=%d", summary.Queued, summary.Failed)
	return summary, nil
}

func (p *Pipeline) notify(task, source, message string, current, total int) {
	if p.progress != nil {
		p.progress(task, source, message, current, total)
	}
}
