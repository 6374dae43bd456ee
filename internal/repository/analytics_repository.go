package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/herbtrace-api/internal/models"
	"github.com/noah-isme/herbtrace-api/pkg/database"
)

// AnalyticsRepository exposes read-only aggregate queries.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Totals counts the records of every entity collection.
func (r *AnalyticsRepository) Totals(ctx context.Context) (*models.Analytics, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM harvests) AS total_harvests,
	(SELECT COUNT(*) FROM test_results) AS total_tests,
	(SELECT COUNT(*) FROM processing_batches) AS total_batches,
	(SELECT COUNT(*) FROM lots) AS total_lots`
	var totals models.Analytics
	if err := database.Conn(ctx, r.db).GetContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("query analytics totals: %w", err)
	}
	return &totals, nil
}

// GradeDistribution counts test results per quality grade.
func (r *AnalyticsRepository) GradeDistribution(ctx context.Context) ([]models.GradeCount, error) {
	const query = `SELECT quality_grade AS grade, COUNT(*) AS count FROM test_results GROUP BY quality_grade ORDER BY quality_grade`
	var grades []models.GradeCount
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &grades, query); err != nil {
		return nil, fmt.Errorf("query grade distribution: %w", err)
	}
	return grades, nil
}
