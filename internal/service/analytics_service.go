package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/herbtrace-api/internal/models"
	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
)

// AnalyticsRepository describes the persistence layer required by AnalyticsService.
type AnalyticsRepository interface {
	Totals(ctx context.Context) (*models.Analytics, error)
	GradeDistribution(ctx context.Context) ([]models.GradeCount, error)
}

// AnalyticsService summarises supply-chain activity. Results are computed per call.
type AnalyticsService struct {
	repo    AnalyticsRepository
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{repo: repo, metrics: metrics, logger: logger}
}

// Summary returns record totals and the test grade distribution.
func (s *AnalyticsService) Summary(ctx context.Context) (*models.Analytics, error) {
	start := time.Now()
	totals, err := s.repo.Totals(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load analytics")
	}
	grades, err := s.repo.GradeDistribution(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade distribution")
	}
	s.metrics.ObserveDBQuery("analytics_summary", time.Since(start))

	totals.QualityDistribution = fillGrades(grades)
	return totals, nil
}

func fillGrades(counts []models.GradeCount) []models.GradeCount {
	byGrade := make(map[models.QualityGrade]int, len(counts))
	for _, c := range counts {
		byGrade[c.Grade] += c.Count
	}
	out := make([]models.GradeCount, 0, 4)
	for _, grade := range []models.QualityGrade{models.GradeA, models.GradeB, models.GradeC, models.GradeD} {
		out = append(out, models.GradeCount{Grade: grade, Count: byGrade[grade]})
	}
	return out
}
