package dedupe

import (
	"context"
	"testing"
	"time"

	"jobradar/internal/domain/job"
	"jobradar/internal/repository"

	"github.com/google/uuid"
)

type fakeJobRepo struct {
	listings []job.Listing
	inserts  int
	updates  int
}

func (f *fakeJobRepo) ListBySource(_ context.Context, source string) ([]job.Listing, error) {
	out := make([]job.Listing, 0)
	for _, l := range f.listings {
		if l.Source == source {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeJobRepo) Insert(_ context.Context, l job.Listing) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	f.listings = append(f.listings, l)
	f.inserts++
	return nil
}

func (f *fakeJobRepo) UpdateScraperFields(_ context.Context, id uuid.UUID, l job.Listing) error {
	for i := range f.listings {
		if f.listings[i].ID == id {
			if f.listings[i].IsEdited {
				return repository.ErrJobNotFound
			}
			f.listings[i].Description = l.Description
			f.listings[i].Salary = l.Salary
			f.listings[i].URL = l.URL
			f.listings[i].ScrapedAt = l.ScrapedAt
			f.updates++
			return nil
		}
	}
	return repository.ErrJobNotFound
}

func (f *fakeJobRepo) ListNeedingDescriptions(context.Context, int) ([]job.Listing, error) {
	return nil, nil
}
func (f *fakeJobRepo) UpdateDescription(context.Context, uuid.UUID, string) error { return nil }
func (f *fakeJobRepo) ListForEnrichment(context.Context, int) ([]job.Listing, error) {
	return nil, nil
}
func (f *fakeJobRepo) MarkEnrichmentQueued(context.Context, []uuid.UUID) error { return nil }
func (f *fakeJobRepo) Counts(context.Context) (repository.JobCounts, error) {
	return repository.JobCounts{}, nil
}

func listing(title, company, location string) job.Listing {
	return job.Listing{
		ID:        uuid.New(),
		Title:     title,
		Company:   company,
		Location:  location,
		Source:    "totaljobs",
		ScrapedAt: time.Now().UTC(),
		Status:    job.StatusNew,
	}
}

func TestIngestAddsUnseenListings(t *testing.T) {
	repo := &fakeJobRepo{}
	e := NewEngine(repo, 0, nil)

	stats, err := e.Ingest(context.Background(), "totaljobs", []job.Listing{
		listing("Senior Python Engineer", "Acme Ltd", "Manchester"),
		listing("DevOps Engineer", "Initech", "Remote"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Added != 2 || stats.Updated != 0 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if repo.inserts != 2 {
		t.Fatalf("expected 2 inserts, got %d", repo.inserts)
	}
}

func TestIngestUpdatesNearDuplicate(t *testing.T) {
	repo := &fakeJobRepo{}
	existing := listing("Senior Python Engineer", "Acme Ltd", "Manchester")
	repo.listings = []job.Listing{existing}

	e := NewEngine(repo, 0, nil)
	incoming := listing("Senior Python Engineer ", "ACME Ltd.", "Manchester, UK")
	incoming.Description = "refreshed body"

	stats, err := e.Ingest(context.Background(), "totaljobs", []job.Listing{incoming})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Updated != 1 || stats.Added != 0 {
		t.Fatalf("expected update, got %+v", stats)
	}
	if repo.listings[0].Description != "refreshed body" {
		t.Fatal("scraper fields should be refreshed on match")
	}
	if repo.listings[0].ID != existing.ID {
		t.Fatal("match must update in place, not replace the row")
	}
}

func TestIngestNeverOverwritesEditedRows(t *testing.T) {
	repo := &fakeJobRepo{}
	edited := listing("Senior Python Engineer", "Acme Ltd", "Manchester")
	edited.IsEdited = true
	edited.Notes = "phone screen booked"
	edited.Description = "my corrected description"
	repo.listings = []job.Listing{edited}

	e := NewEngine(repo, 0, nil)
	incoming := listing("Senior Python Engineer", "Acme Ltd", "Manchester")
	incoming.Description = "scraped description"

	stats, err := e.Ingest(context.Background(), "totaljobs", []job.Listing{incoming})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped != 1 || stats.Added != 0 || stats.Updated != 0 {
		t.Fatalf("edited match must be skipped, got %+v", stats)
	}
	if repo.listings[0].Description != "my corrected description" {
		t.Fatal("edited row was overwritten")
	}
}

// scrapedListing has no ID, like every candidate coming off the card parser.
func scrapedListing(title, company, location string) job.Listing {
	return job.Listing{
		Title:     title,
		Company:   company,
		Location:  location,
		Source:    "totaljobs",
		ScrapedAt: time.Now().UTC(),
	}
}

func TestIngestMergesDuplicateWithinOneBatch(t *testing.T) {
	repo := &fakeJobRepo{}
	e := NewEngine(repo, 0, nil)

	// a sticky listing seen on two result pages of the same run, plus an
	// unrelated listing after it
	stats, err := e.Ingest(context.Background(), "totaljobs", []job.Listing{
		scrapedListing("Senior Python Engineer", "Acme Ltd", "Manchester"),
		scrapedListing("Senior Python Engineer ", "ACME Ltd.", "Manchester, UK"),
		scrapedListing("Java Developer", "Globex", "London"),
	})
	if err != nil {
		t.Fatalf("intra-batch duplicate must not fail the batch: %v", err)
	}
	if stats.Added != 2 || stats.Updated != 1 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if repo.inserts != 2 {
		t.Fatalf("duplicate must update the freshly inserted row, got %d inserts", repo.inserts)
	}
	for _, l := range repo.listings {
		if l.ID == uuid.Nil {
			t.Fatalf("stored listing %q has no id", l.Title)
		}
	}
	found := false
	for _, l := range repo.listings {
		if l.Title == "Java Developer" {
			found = true
		}
	}
	if !found {
		t.Fatal("listing after the duplicate was dropped")
	}
}

func TestDistinctListingsAreNotMerged(t *testing.T) {
	repo := &fakeJobRepo{}
	repo.listings = []job.Listing{listing("Java Developer", "Globex", "London")}

	e := NewEngine(repo, 0, nil)
	stats, err := e.Ingest(context.Background(), "totaljobs", []job.Listing{
		listing("Python Developer", "Acme Ltd", "Manchester"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Added != 1 {
		t.Fatalf("distinct listing should insert, got %+v", stats)
	}
}

func TestSimilarityThreshold(t *testing.T) {
	e := NewEngine(&fakeJobRepo{}, 0, nil)

	a := listing("Senior Python Engineer", "Acme Ltd", "Manchester")
	b := listing("Senior Python Engineer", "ACME  Ltd", "Manchester UK")
	if score := e.Similarity(a, b); score < DefaultThreshold {
		t.Fatalf("cosmetic variants should clear the threshold, got %.2f", score)
	}

	c := listing("Frontend Developer", "Globex", "London")
	if score := e.Similarity(a, c); score >= DefaultThreshold {
		t.Fatalf("unrelated listings should stay below the threshold, got %.2f", score)
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Acme,  Ltd.!  ": "acme ltd",
		"Remote (UK)":      "remote uk",
		"DEV-OPS":          "devops",
	}
	for in, want := range cases {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
