package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/apperrors"
	"github.com/resortgenius/concierge-engine/pkg/models"
	"github.com/resortgenius/concierge-engine/pkg/repositories"
	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

const maxStatsDays = 90

// AnalyticsService summarizes a tenant's answered questions.
type AnalyticsService interface {
	Stats(ctx context.Context, days int) (*models.QueryStats, error)
	Recent(ctx context.Context, limit int) ([]*models.QueryMetric, error)
}

type analyticsService struct {
	repo   repositories.QueryMetricRepository
	now    func() time.Time
	logger *zap.Logger
}

// NewAnalyticsService creates an AnalyticsService.
func NewAnalyticsService(repo repositories.QueryMetricRepository, logger *zap.Logger) AnalyticsService {
	return &analyticsService{
		repo:   repo,
		now:    time.Now,
		logger: logger.Named("analytics-service"),
	}
}

var _ AnalyticsService = (*analyticsService)(nil)

func (s *analyticsService) Stats(ctx context.Context, days int) (*models.QueryStats, error) {
	if _, err := tenant.Require(ctx); err != nil {
		return nil, err
	}
	if days < 1 || days > maxStatsDays {
		return nil, fmt.Errorf("days must be between 1 and %d: %w", maxStatsDays, apperrors.ErrInvalidInput)
	}
	stats, err := s.repo.Stats(ctx, s.now().AddDate(0, 0, -days))
	if err != nil {
		s.logger.Error("Failed to load query stats", zap.Int("days", days), zap.Error(err))
		return nil, err
	}
	return stats, nil
}

func (s *analyticsService) Recent(ctx context.Context, limit int) ([]*models.QueryMetric, error) {
	if _, err := tenant.Require(ctx); err != nil {
		return nil, err
	}
	if limit > 200 {
		limit = 200
	}
	return s.repo.Recent(ctx, limit)
}
