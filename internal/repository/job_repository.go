package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"jobradar/internal/database"
	"jobradar/internal/domain/job"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrJobNotFound = errors.New("job not found")
)

// JobRepository is the row-level contract the ingestion pipeline needs:
// per-source reads for dedup matching, inserts, scraper-field updates that
// never touch user-owned columns, and the description backfill queries.
type JobRepository interface {
	ListBySource(ctx context.Context, source string) ([]job.Listing, error)
	Insert(ctx context.Context, l job.Listing) error
	UpdateScraperFields(ctx context.Context, id uuid.UUID, l job.Listing) error
	ListNeedingDescriptions(ctx context.Context, limit int) ([]job.Listing, error)
	UpdateDescription(ctx context.Context, id uuid.UUID, description string) error
	ListForEnrichment(ctx context.Context, limit int) ([]job.Listing, error)
	MarkEnrichmentQueued(ctx context.Context, ids []uuid.UUID) error
	Counts(ctx context.Context) (JobCounts, error)
}

type JobCounts struct {
	Total            int `json:"total"`
	Sources          int `json:"sources"`
	Applied          int `json:"applied"`
	Edited           int `json:"edited"`
	FullDescriptions int `json:"full_descriptions"`
}

type SQLJobRepository struct {
	db database.DB
}

func NewSQLJobRepository(db database.DB) *SQLJobRepository {
	return &SQLJobRepository{db: db}
}

const listingColumns = `id, title, company, location, description, salary,
	employment_type, posted_date, url, source, scraped_at, status,
	is_applied, is_edited, notes, has_full_description`

func scanListing(row database.Row) (job.Listing, error) {
	var l job.Listing
	var id string
	err := row.Scan(
		&id, &l.Title, &l.Company, &l.Location, &l.Description, &l.Salary,
		&l.EmploymentType, &l.PostedDate, &l.URL, &l.Source, &l.ScrapedAt,
		&l.Status, &l.IsApplied, &l.IsEdited, &l.Notes, &l.HasFullDescription,
	)
	if err != nil {
		return job.Listing{}, err
	}
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return job.Listing{}, err
	}
	l.ID = parsed
	return l, nil
}

func collectListings(rows database.Rows) ([]job.Listing, error) {
	defer rows.Close()
	out := make([]job.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLJobRepository) ListBySource(ctx context.Context, source string) ([]job.Listing, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+listingColumns+` FROM jobs WHERE source = $1 ORDER BY scraped_at DESC`,
		strings.TrimSpace(source),
	)
	if err != nil {
		return nil, err
	}
	return collectListings(rows)
}

func (r *SQLJobRepository) Insert(ctx context.Context, l job.Listing) error {
	id := l.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	status := l.Status
	if !job.ValidStatus(status) {
		status = job.StatusNew
	}
	scrapedAt := l.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO jobs (id, title, company, location, description, salary,
			employment_type, posted_date, url, source, scraped_at, status,
			is_applied, is_edited, notes, has_full_description)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		id.String(), strings.TrimSpace(l.Title), strings.TrimSpace(l.Company),
		strings.TrimSpace(l.Location), l.Description, l.Salary,
		l.EmploymentType, l.PostedDate, l.URL, strings.TrimSpace(l.Source),
		scrapedAt, status, l.IsApplied, l.IsEdited, l.Notes, l.HasFullDescription,
	)
	return err
}

// UpdateScraperFields overwrites only the columns ingestion owns. Status,
// notes and is_applied stay untouched, and is_edited rows are refused here
// as a second line of defense behind the dedup engine's check.
func (r *SQLJobRepository) UpdateScraperFields(ctx context.Context, id uuid.UUID, l job.Listing) error {
	scrapedAt := l.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}
	n, err := r.db.Exec(ctx,
		`UPDATE jobs SET description = $2, salary = $3, employment_type = $4,
			posted_date = $5, url = $6, scraped_at = $7,
			has_full_description = $8, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1 AND is_edited = FALSE`,
		id.String(), l.Description, l.Salary, l.EmploymentType,
		l.PostedDate, l.URL, scrapedAt, l.HasFullDescription,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ListNeedingDescriptions returns listings whose body looks truncated, the
// same heuristic the card-only scrape leaves behind.
func (r *SQLJobRepository) ListNeedingDescriptions(ctx context.Context, limit int) ([]job.Listing, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+listingColumns+` FROM jobs
		 WHERE has_full_description = FALSE
		   AND length(description) < 500
		   AND url <> ''
		 ORDER BY scraped_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return collectListings(rows)
}

func (r *SQLJobRepository) UpdateDescription(ctx context.Context, id uuid.UUID, description string) error {
	n, err := r.db.Exec(ctx,
		`UPDATE jobs SET description = $2, has_full_description = TRUE,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1 AND is_edited = FALSE`,
		id.String(), description,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *SQLJobRepository) ListForEnrichment(ctx context.Context, limit int) ([]job.Listing, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+listingColumns+` FROM jobs
		 WHERE has_full_description = TRUE
		   AND enrichment_queued_at IS NULL
		 ORDER BY scraped_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return collectListings(rows)
}

func (r *SQLJobRepository) MarkEnrichmentQueued(ctx context.Context, ids []uuid.UUID) error {
	now := time.Now().UTC()
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, err := r.db.Exec(ctx,
			`UPDATE jobs SET enrichment_queued_at = $2 WHERE id = $1`,
			id.String(), now,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLJobRepository) Counts(ctx context.Context) (JobCounts, error) {
	var c JobCounts
	row := r.db.QueryRow(ctx,
		`SELECT COUNT(*),
			COUNT(DISTINCT source),
			COUNT(CASE WHEN is_applied THEN 1 END),
			COUNT(CASE WHEN is_edited THEN 1 END),
			COUNT(CASE WHEN has_full_description THEN 1 END)
		 FROM jobs`,
	)
	if err := row.Scan(&c.Total, &c.Sources, &c.Applied, &c.Edited, &c.FullDescriptions); err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
			return JobCounts{}, nil
		}
		return JobCounts{}, err
	}
	return c, nil
}
