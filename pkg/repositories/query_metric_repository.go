package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/resortgenius/concierge-engine/pkg/database"
	"github.com/resortgenius/concierge-engine/pkg/models"
)

// QueryMetricRepository records and summarizes answered questions.
type QueryMetricRepository interface {
	Log(ctx context.Context, m *models.QueryMetric) error
	Stats(ctx context.Context, since time.Time) (*models.QueryStats, error)
	Recent(ctx context.Context, limit int) ([]*models.QueryMetric, error)
}

type queryMetricRepository struct{}

// NewQueryMetricRepository creates a new QueryMetricRepository.
func NewQueryMetricRepository() QueryMetricRepository {
	return &queryMetricRepository{}
}

var _ QueryMetricRepository = (*queryMetricRepository)(nil)

func (r *queryMetricRepository) Log(ctx context.Context, m *models.QueryMetric) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return errNoTenantScope
	}
	m.OrgID = scope.Tenant

	query := `
		INSERT INTO query_metrics (
			org_id, session_id, query_text, question_category, source_type,
			response_time_ms, success, error_message, cache_hit, detected_language
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, NULLIF($10, ''))
		RETURNING id, created_at`

	err := scope.Conn.QueryRow(ctx, query,
		m.OrgID, m.SessionID, m.QueryText, m.Category, m.SourceType,
		m.ResponseTimeMs, m.Success, m.ErrorMessage, m.CacheHit, m.DetectedLanguage,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log query metric: %w", err)
	}
	return nil
}

func (r *queryMetricRepository) Stats(ctx context.Context, since time.Time) (*models.QueryStats, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, errNoTenantScope
	}

	stats := &models.QueryStats{
		BySource:   make(map[string]int),
		ByCategory: make(map[string]int),
	}

	err := scope.Conn.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE cache_hit),
		       COUNT(*) FILTER (WHERE NOT success),
		       COALESCE(AVG(response_time_ms), 0)
		FROM query_metrics
		WHERE created_at >= $1`, since,
	).Scan(&stats.Total, &stats.CacheHits, &stats.Failures, &stats.AvgResponseTimeMs)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize query metrics: %w", err)
	}

	if err := r.countBy(ctx, scope, "source_type", since, stats.BySource); err != nil {
		return nil, err
	}
	if err := r.countBy(ctx, scope, "question_category", since, stats.ByCategory); err != nil {
		return nil, err
	}
	return stats, nil
}

// countBy fills into with row counts grouped by column. column is always a
// constant from this file.
func (r *queryMetricRepository) countBy(ctx context.Context, scope *database.TenantScope, column string, since time.Time, into map[string]int) error {
	rows, err := scope.Conn.Query(ctx,
		fmt.Sprintf(`SELECT %s, COUNT(*) FROM query_metrics WHERE created_at >= $1 GROUP BY 1`, column), since)
	if err != nil {
		return fmt.Errorf("failed to group query metrics by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan query metric group: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

func (r *queryMetricRepository) Recent(ctx context.Context, limit int) ([]*models.QueryMetric, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, errNoTenantScope
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, org_id, session_id, query_text, question_category, source_type,
		       response_time_ms, success, COALESCE(error_message, ''), cache_hit,
		       COALESCE(detected_language, ''), created_at
		FROM query_metrics
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]*models.QueryMetric, 0)
	for rows.Next() {
		m := &models.QueryMetric{}
		if err := rows.Scan(&m.ID, &m.OrgID, &m.SessionID, &m.QueryText, &m.Category, &m.SourceType,
			&m.ResponseTimeMs, &m.Success, &m.ErrorMessage, &m.CacheHit, &m.DetectedLanguage, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan query metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query metrics: %w", err)
	}
	return metrics, nil
}
