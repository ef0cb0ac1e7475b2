package repository

import (
	"context"
	"strings"
	"time"

	"jobradar/internal/database"
	"jobradar/internal/domain/job"
)

// ScrapeLogRepository appends one row per scrape attempt. Rows are never
// mutated after insert.
type ScrapeLogRepository interface {
	Append(ctx context.Context, entry job.ScrapeRunLog) error
	Recent(ctx context.Context, limit int) ([]job.ScrapeRunLog, error)
	CountSince(ctx context.Context, source string, since time.Time) (int, error)
}

type SQLScrapeLogRepository struct {
	db database.DB
}

func NewSQLScrapeLogRepository(db database.DB) *SQLScrapeLogRepository {
	return &SQLScrapeLogRepository{db: db}
}

func (r *SQLScrapeLogRepository) Append(ctx context.Context, entry job.ScrapeRunLog) error {
	startedAt := entry.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	completedAt := entry.CompletedAt
	if completedAt == nil {
		now := time.Now().UTC()
		completedAt = &now
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO scrape_log (source, search_config_id, jobs_found, jobs_added,
			started_at, completed_at, success, error_message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		strings.TrimSpace(entry.Source), entry.ConfigID, entry.JobsFound,
		entry.JobsAdded, startedAt, completedAt, entry.Success, entry.ErrorMessage,
	)
	return err
}

func (r *SQLScrapeLogRepository) Recent(ctx context.Context, limit int) ([]job.ScrapeRunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, source, search_config_id, jobs_found, jobs_added,
			started_at, completed_at, success, error_message
		 FROM scrape_log ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]job.ScrapeRunLog, 0, limit)
	for rows.Next() {
		var e job.ScrapeRunLog
		if err := rows.Scan(&e.ID, &e.Source, &e.ConfigID, &e.JobsFound,
			&e.JobsAdded, &e.StartedAt, &e.CompletedAt, &e.Success, &e.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLScrapeLogRepository) CountSince(ctx context.Context, source string, since time.Time) (int, error) {
	var n int
	row := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM scrape_log WHERE source = $1 AND started_at >= $2`,
		strings.TrimSpace(source), since,
	)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
