package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jobradar/internal/dedupe"
	"jobradar/internal/domain/job"
	"jobradar/internal/events"
	"jobradar/internal/repository"
	"jobradar/internal/scraper"

	"github.com/google/uuid"
)

type memJobRepo struct {
	mu       sync.Mutex
	listings []job.Listing
	queued   []uuid.UUID
}

func (m *memJobRepo) ListBySource(_ context.Context, source string) ([]job.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]job.Listing, 0)
	for _, l := range m.listings {
		if l.Source == source {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memJobRepo) Insert(_ context.Context, l job.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	m.listings = append(m.listings, l)
	return nil
}

func (m *memJobRepo) UpdateScraperFields(_ context.Context, id uuid.UUID, l job.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.listings {
		if m.listings[i].ID == id {
			m.listings[i].Description = l.Description
			return nil
		}
	}
	return repository.ErrJobNotFound
}

func (m *memJobRepo) ListNeedingDescriptions(_ context.Context, limit int) ([]job.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]job.Listing, 0)
	for _, l := range m.listings {
		if !l.HasFullDescription && l.URL != "" {
			out = append(out, l)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memJobRepo) UpdateDescription(_ context.Context, id uuid.UUID, desc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.listings {
		if m.listings[i].ID == id {
			m.listings[i].Description = desc
			m.listings[i].HasFullDescription = true
			return nil
		}
	}
	return repository.ErrJobNotFound
}

func (m *memJobRepo) ListForEnrichment(_ context.Context, limit int) ([]job.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]job.Listing, 0)
	for _, l := range m.listings {
		if l.HasFullDescription && !contains(m.queued, l.ID) {
			out = append(out, l)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memJobRepo) MarkEnrichmentQueued(_ context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, ids...)
	return nil
}

func (m *memJobRepo) Counts(context.Context) (repository.JobCounts, error) {
	return repository.JobCounts{}, nil
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type memConfigRepo struct {
	configs []job.SearchConfig
}

func (m *memConfigRepo) ListEnabled(context.Context) ([]job.SearchConfig, error) {
	return m.configs, nil
}
func (m *memConfigRepo) ListByIDs(_ context.Context, ids []int64) ([]job.SearchConfig, error) {
	out := make([]job.SearchConfig, 0)
	for _, c := range m.configs {
		for _, id := range ids {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}
func (m *memConfigRepo) SeedDefaults(context.Context) error { return nil }

type memRunLog struct {
	mu      sync.Mutex
	entries []job.ScrapeRunLog
}

func (m *memRunLog) Append(_ context.Context, e job.ScrapeRunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}
func (m *memRunLog) Recent(context.Context, int) ([]job.ScrapeRunLog, error) { return nil, nil }
func (m *memRunLog) CountSince(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

type fakeBoard struct {
	listings []job.Listing
	err      error
	calls    int
}

func (f *fakeBoard) Scrape(_ context.Context, profile scraper.SourceProfile, _ job.SearchConfig) ([]job.Listing, error) {
	f.calls++
	out := make([]job.Listing, len(f.listings))
	copy(out, f.listings)
	for i := range out {
		out[i].Source = profile.Name
	}
	return out, f.err
}

type fakeFetcher struct {
	desc string
	ok   bool
}

func (f *fakeFetcher) FetchFullDescription(context.Context, string) (string, bool) {
	return f.desc, f.ok
}

type memPublisher struct {
	mu     sync.Mutex
	events []events.EnrichmentEvent
	err    error
}

func (m *memPublisher) PublishEnrich(_ context.Context, ev events.EnrichmentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}
func (m *memPublisher) Close() {}

func card(title, company string) job.Listing {
	return job.Listing{
		Title:     title,
		Company:   company,
		Location:  "Remote",
		URL:       "https://jobs.example/" + title,
		ScrapedAt: time.Now().UTC(),
		Status:    job.StatusNew,
	}
}

func newTestPipeline(jobs *memJobRepo, configs *memConfigRepo, runLog *memRunLog, board boardScraper, f descriptionFetcher, pub events.Publisher) *Pipeline {
	return New(Params{
		Jobs:      jobs,
		Configs:   configs,
		RunLog:    runLog,
		Dedupe:    dedupe.NewEngine(jobs, 0, nil),
		Browser:   board,
		Crawler:   board,
		Fetcher:   f,
		Publisher: pub,
	})
}

func TestRunScrapeIngestsAndLogs(t *testing.T) {
	jobs := &memJobRepo{}
	configs := &memConfigRepo{configs: []job.SearchConfig{{ID: 1, Name: "python", Keywords: "python", Enabled: true}}}
	runLog := &memRunLog{}
	board := &fakeBoard{listings: []job.Listing{card("Engineer", "Acme"), card("Analyst", "Globex")}}

	p := newTestPipeline(jobs, configs, runLog, board, &fakeFetcher{}, &memPublisher{})
	summary, err := p.RunScrape(context.Background(), ScrapeParams{Sources: []string{"totaljobs"}})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Added != 2 || summary.Found != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(runLog.entries) != 1 {
		t.Fatalf("expected one run log entry, got %d", len(runLog.entries))
	}
	e := runLog.entries[0]
	if !e.Success || e.JobsFound != 2 || e.JobsAdded != 2 || e.Source != "totaljobs" {
		t.Fatalf("unexpected run log entry: %+v", e)
	}
}

func TestRunScrapeRecordsPartialFailure(t *testing.T) {
	jobs := &memJobRepo{}
	configs := &memConfigRepo{configs: []job.SearchConfig{{ID: 1, Name: "python", Keywords: "python", Enabled: true}}}
	runLog := &memRunLog{}
	board := &fakeBoard{listings: []job.Listing{card("Engineer", "Acme")}, err: errors.New("timeout on page 2")}

	p := newTestPipeline(jobs, configs, runLog, board, &fakeFetcher{}, &memPublisher{})
	summary, err := p.RunScrape(context.Background(), ScrapeParams{Sources: []string{"reed"}})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Added != 1 {
		t.Fatalf("partial results must still be ingested: %+v", summary)
	}
	if summary.Failed != 1 {
		t.Fatalf("failure must be counted: %+v", summary)
	}
	if len(runLog.entries) != 1 || runLog.entries[0].Success {
		t.Fatal("run log must record the failure")
	}
	if runLog.entries[0].ErrorMessage == "" {
		t.Fatal("run log must carry the error message")
	}
}

func TestRunScrapeAllSourcesByDefault(t *testing.T) {
	jobs := &memJobRepo{}
	configs := &memConfigRepo{configs: []job.SearchConfig{{ID: 1, Name: "python", Keywords: "python", Enabled: true}}}
	board := &fakeBoard{}

	p := newTestPipeline(jobs, configs, &memRunLog{}, board, &fakeFetcher{}, &memPublisher{})
	if _, err := p.RunScrape(context.Background(), ScrapeParams{}); err != nil {
		t.Fatal(err)
	}
	if board.calls != len(scraper.SourceNames()) {
		t.Fatalf("expected one run per source, got %d", board.calls)
	}
}

func TestFetchDescriptionsUpdatesCandidates(t *testing.T) {
	jobs := &memJobRepo{}
	a := card("Engineer", "Acme")
	a.ID = uuid.New()
	b := card("Analyst", "Globex")
	b.ID = uuid.New()
	b.HasFullDescription = true
	jobs.listings = []job.Listing{a, b}

	p := newTestPipeline(jobs, &memConfigRepo{}, &memRunLog{}, &fakeBoard{}, &fakeFetcher{desc: "full body", ok: true}, &memPublisher{})
	summary, err := p.FetchDescriptions(context.Background(), 50)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Candidates != 1 || summary.Updated != 1 || summary.Missed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	got, _ := jobs.ListNeedingDescriptions(context.Background(), 10)
	if len(got) != 0 {
		t.Fatal("updated listing should no longer be a candidate")
	}
}

func TestFetchDescriptionsCountsMisses(t *testing.T) {
	jobs := &memJobRepo{}
	a := card("Engineer", "Acme")
	a.ID = uuid.New()
	jobs.listings = []job.Listing{a}

	p := newTestPipeline(jobs, &memConfigRepo{}, &memRunLog{}, &fakeBoard{}, &fakeFetcher{ok: false}, &memPublisher{})
	summary, err := p.FetchDescriptions(context.Background(), 50)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Missed != 1 || summary.Updated != 0 {
		t.Fatalf("miss must be counted, not errored: %+v", summary)
	}
}

func TestTriggerEnrichmentQueuesOnce(t *testing.T) {
	jobs := &memJobRepo{}
	a := card("Engineer", "Acme")
	a.ID = uuid.New()
	a.HasFullDescription = true
	a.Description = "full body"
	jobs.listings = []job.Listing{a}
	pub := &memPublisher{}

	p := newTestPipeline(jobs, &memConfigRepo{}, &memRunLog{}, &fakeBoard{}, &fakeFetcher{}, pub)

	summary, err := p.TriggerEnrichment(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Queued != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(pub.events) != 1 || pub.events[0].JobID != a.ID.String() {
		t.Fatalf("unexpected events: %+v", pub.events)
	}

	summary, err = p.TriggerEnrichment(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Queued != 0 {
		t.Fatal("a queued listing must not be handed over twice")
	}
}

func TestTriggerEnrichmentPublishFailureLeavesUnmarked(t *testing.T) {
	jobs := &memJobRepo{}
	a := card("Engineer", "Acme")
	a.ID = uuid.New()
	a.HasFullDescription = true
	jobs.listings = []job.Listing{a}
	pub := &memPublisher{err: errors.New("nats down")}

	p := newTestPipeline(jobs, &memConfigRepo{}, &memRunLog{}, &fakeBoard{}, &fakeFetcher{}, pub)
	summary, err := p.TriggerEnrichment(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 1 || summary.Queued != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(jobs.queued) != 0 {
		t.Fatal("failed publish must not mark the listing queued")
	}
}
