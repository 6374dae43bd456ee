package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/herbtrace-api/internal/models"
	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
)

const recentStepsLimit = 20

// SupplyChainService serves the read side of the supply chain: lots with their structural
// status and the record listings each dashboard shows.
type SupplyChainService struct {
	stores WorkflowStores
	logger *zap.Logger
}

// NewSupplyChainService constructs the service.
func NewSupplyChainService(stores WorkflowStores, logger *zap.Logger) *SupplyChainService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupplyChainService{stores: stores, logger: logger}
}

// Overview lists lots with their supply-chain status attached.
func (s *SupplyChainService) Overview(ctx context.Context, filter models.LotFilter) ([]models.LotWithStatus, *models.Pagination, error) {
	filter.Species = strings.TrimSpace(filter.Species)
	lots, total, err := s.stores.Lots.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lots")
	}
	out := make([]models.LotWithStatus, 0, len(lots))
	for _, lot := range lots {
		out = append(out, lot.WithSupplyChainStatus())
	}
	return out, pagination(filter.Page, filter.PageSize, total), nil
}

// Lot returns one lot with its supply-chain status.
func (s *SupplyChainService) Lot(ctx context.Context, id string) (*models.LotWithStatus, error) {
	lot, err := s.stores.Lots.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "lot not found", "failed to load lot")
	}
	withStatus := lot.WithSupplyChainStatus()
	return &withStatus, nil
}

// FarmerHarvests lists the harvests recorded by one farmer, newest first.
func (s *SupplyChainService) FarmerHarvests(ctx context.Context, farmerID string, page, size int) ([]models.Harvest, *models.Pagination, error) {
	return s.harvests(ctx, models.HarvestFilter{FarmerID: farmerID, Page: page, PageSize: size})
}

// PendingHarvests lists harvests still awaiting a lab test.
func (s *SupplyChainService) PendingHarvests(ctx context.Context, page, size int) ([]models.Harvest, *models.Pagination, error) {
	return s.harvests(ctx, models.HarvestFilter{Status: models.HarvestStatusPendingTesting, Page: page, PageSize: size})
}

func (s *SupplyChainService) harvests(ctx context.Context, filter models.HarvestFilter) ([]models.Harvest, *models.Pagination, error) {
	harvests, total, err := s.stores.Harvests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list harvests")
	}
	return harvests, pagination(filter.Page, filter.PageSize, total), nil
}

// TestResults lists lab results, optionally for one lot.
func (s *SupplyChainService) TestResults(ctx context.Context, filter models.TestResultFilter) ([]models.TestResult, *models.Pagination, error) {
	results, total, err := s.stores.TestResults.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list test results")
	}
	return results, pagination(filter.Page, filter.PageSize, total), nil
}

// CompletedBatches lists completed batches, most recently finished first.
func (s *SupplyChainService) CompletedBatches(ctx context.Context, page, size int) ([]models.ProcessingBatch, *models.Pagination, error) {
	filter := models.BatchFilter{Status: models.BatchStatusCompleted, Page: page, PageSize: size}
	batches, total, err := s.stores.Batches.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list processing batches")
	}
	return batches, pagination(page, size, total), nil
}

// RecentSteps returns the latest processing steps across all batches.
func (s *SupplyChainService) RecentSteps(ctx context.Context) ([]models.RecentStep, error) {
	steps, err := s.stores.Batches.RecentSteps(ctx, recentStepsLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recent steps")
	}
	return steps, nil
}

func pagination(page, size, total int) *models.Pagination {
	page, size, _ = models.Normalize(page, size, 200)
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
