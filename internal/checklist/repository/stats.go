package repository

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/rollup"
	"github.com/kitchensafe/kitchensafe-backend/pkg/database"
)

// StatsRepository aggregates the per-site figures behind RAG.
type StatsRepository struct {
	db *database.DB
}

func NewStatsRepository(db *database.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// SiteStats counts, for each site, checklists created since `since` (total
// and completed) and defects not yet closed (all, those in progress, and
// those created before overdueBefore).
func (r *StatsRepository) SiteStats(ctx context.Context, siteIDs []int64, since, overdueBefore time.Time) ([]rollup.SiteStats, error) {
	query := `
		SELECT s.id AS site_id, s.organization_id, s.name AS site_name,
			COALESCE(c.total, 0) AS total_checklists,
			COALESCE(c.completed, 0) AS completed_checklists,
			COALESCE(d.open_count, 0) AS open_defects,
			COALESCE(d.in_progress, 0) AS in_progress_defects,
			COALESCE(d.overdue, 0) AS overdue_defects
		FROM sites s
		LEFT JOIN (
			SELECT site_id, COUNT(*) AS total, COUNT(*) FILTER (WHERE status = 'completed') AS completed
			FROM checklists
			WHERE created_at >= $2
			GROUP BY site_id
		) c ON c.site_id = s.id
		LEFT JOIN (
			SELECT site_id, COUNT(*) AS open_count,
				COUNT(*) FILTER (WHERE status = 'in_progress') AS in_progress,
				COUNT(*) FILTER (WHERE created_at < $3) AS overdue
			FROM defects
			WHERE status <> 'closed'
			GROUP BY site_id
		) d ON d.site_id = s.id
		WHERE s.id = ANY($1)
		ORDER BY s.id
	`
	out := []rollup.SiteStats{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &out, query, pq.Array(siteIDs), since, overdueBefore); err != nil {
		return nil, err
	}
	return out, nil
}
