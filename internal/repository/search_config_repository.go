package repository

import (
	"context"
	"strings"

	"jobradar/internal/database"
	"jobradar/internal/domain/job"
)

// SearchConfigRepository reads the named search queries the scheduler works
// through. Configs are owned by the user-facing collaborator; ingestion only
// consumes them and seeds a default set on first run.
type SearchConfigRepository interface {
	ListEnabled(ctx context.Context) ([]job.SearchConfig, error)
	ListByIDs(ctx context.Context, ids []int64) ([]job.SearchConfig, error)
	SeedDefaults(ctx context.Context) error
}

type SQLSearchConfigRepository struct {
	db database.DB
}

func NewSQLSearchConfigRepository(db database.DB) *SQLSearchConfigRepository {
	return &SQLSearchConfigRepository{db: db}
}

const searchConfigColumns = `id, name, keywords, location, radius, employment_types, enabled`

func collectConfigs(rows database.Rows) ([]job.SearchConfig, error) {
	defer rows.Close()
	out := make([]job.SearchConfig, 0)
	for rows.Next() {
		var c job.SearchConfig
		if err := rows.Scan(&c.ID, &c.Name, &c.Keywords, &c.Location, &c.Radius, &c.EmploymentTypes, &c.Enabled); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEnabled returns enabled configs ordered by name so repeated scheduler
// runs process them in a stable order.
func (r *SQLSearchConfigRepository) ListEnabled(ctx context.Context) ([]job.SearchConfig, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+searchConfigColumns+` FROM search_configs WHERE enabled = TRUE ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	return collectConfigs(rows)
}

func (r *SQLSearchConfigRepository) ListByIDs(ctx context.Context, ids []int64) ([]job.SearchConfig, error) {
	out := make([]job.SearchConfig, 0, len(ids))
	for _, id := range ids {
		row := r.db.QueryRow(ctx,
			`SELECT `+searchConfigColumns+` FROM search_configs WHERE id = $1`,
			id,
		)
		var c job.SearchConfig
		if err := row.Scan(&c.ID, &c.Name, &c.Keywords, &c.Location, &c.Radius, &c.EmploymentTypes, &c.Enabled); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

var defaultConfigs = []job.SearchConfig{
	{Name: "Python AI - Remote", Keywords: "python ai", Location: "Remote", Radius: 0, EmploymentTypes: "contract,permanent,wfh"},
	{Name: "Azure DevOps - Remote", Keywords: "azure devops", Location: "Remote", Radius: 0, EmploymentTypes: "contract,permanent,wfh"},
	{Name: "Python DevOps - Remote", Keywords: "python devops", Location: "Remote", Radius: 0, EmploymentTypes: "contract,permanent,wfh"},
	{Name: "Python AI - Manchester", Keywords: "python ai", Location: "Manchester", Radius: 10, EmploymentTypes: "contract,permanent"},
	{Name: "Azure DevOps - Manchester", Keywords: "azure devops", Location: "Manchester", Radius: 10, EmploymentTypes: "contract,permanent"},
}

func (r *SQLSearchConfigRepository) SeedDefaults(ctx context.Context) error {
	for _, c := range defaultConfigs {
		_, err := r.db.Exec(ctx,
			`INSERT INTO search_configs (name, keywords, location, radius, employment_types, enabled)
			 VALUES ($1,$2,$3,$4,$5,TRUE)
			 ON CONFLICT (name) DO NOTHING`,
			strings.TrimSpace(c.Name), c.Keywords, c.Location, c.Radius, c.EmploymentTypes,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
