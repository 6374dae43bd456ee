package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/herbtrace-api/internal/models"
	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
)

// ProvenanceService resolves consumer lookup tokens to the provenance read model.
type ProvenanceService struct {
	stores WorkflowStores
	logger *zap.Logger
}

// NewProvenanceService constructs the service.
func NewProvenanceService(stores WorkflowStores, logger *zap.Logger) *ProvenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProvenanceService{stores: stores, logger: logger}
}

// Resolve finds the lot addressed by token, trying the current lookup code, then the batch
// identifier, then the lot id, and composes its provenance.
func (s *ProvenanceService) Resolve(ctx context.Context, token string) (*models.Provenance, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lookup token is required")
	}
	lot, err := s.resolveLot(ctx, token)
	if err != nil {
		return nil, err
	}

	harvests, err := s.stores.Harvests.ListByIDs(ctx, lot.HarvestIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load harvests")
	}
	tests, err := s.stores.TestResults.ListByIDs(ctx, lot.TestResultIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load test results")
	}
	certs, err := s.stores.Certificates.ListByIDs(ctx, lot.CertificateIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificates")
	}
	var batch *models.ProcessingBatch
	if len(lot.ProcessingBatchIDs) > 0 {
		batch, err = s.stores.Batches.FindByID(ctx, lot.ProcessingBatchIDs[0])
		switch {
		case errors.Is(err, sql.ErrNoRows):
			s.logger.Warn("lot links a missing processing batch", zap.String("lot_id", lot.ID), zap.String("batch_id", lot.ProcessingBatchIDs[0]))
			batch = nil
		case err != nil:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load processing batch")
		}
	}

	provenance := ComposeProvenance(*lot, harvests, tests, batch, certs)
	return &provenance, nil
}

func (s *ProvenanceService) resolveLot(ctx context.Context, token string) (*models.Lot, error) {
	finders := []func(context.Context, string) (*models.Lot, error){
		s.stores.Lots.FindByLookupCode,
		s.stores.Lots.FindByBatchID,
		s.stores.Lots.FindByID,
	}
	for _, find := range finders {
		lot, err := find(ctx, token)
		if err == nil {
			return lot, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lookup token")
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "no lot matches the lookup token")
}

// ComposeProvenance builds the provenance read model from a lot and its linked records. The
// first harvest is the primary one. Narrative descriptions and dates prefer what the stage
// slot recorded and fall back to the presence of linked records; narrative status is the
// stage flag exactly.
func ComposeProvenance(lot models.Lot, harvests []models.Harvest, tests []models.TestResult, batch *models.ProcessingBatch, certs []models.Certificate) models.Provenance {
	var primary *models.Harvest
	if len(harvests) > 0 {
		primary = &harvests[0]
	}

	farmerName := models.UnknownFarmer
	switch {
	case primary != nil && primary.FarmerName != "":
		farmerName = primary.FarmerName
	case lot.FarmerName != "":
		farmerName = lot.FarmerName
	}

	origin := lot.Origin
	var harvestDate *time.Time
	if primary != nil {
		date := primary.HarvestDate
		harvestDate = &date
		if primary.Address != "" {
			origin = primary.Origin()
		}
	}

	wf := lot.WorkflowStatus
	narrative := []models.NarrativeEntry{
		narrativeEntry(models.StageFarmer, wf.Farmer, "Harvested by "+farmerName, harvestDate),
		narrativeEntry(models.StageLabTechnician, wf.LabTechnician,
			presence(len(tests) > 0, "Quality tests completed", "Quality tests pending"),
			firstTestDate(tests)),
		narrativeEntry(models.StageProcessor, wf.Processor,
			presence(batch != nil, "Processing completed", "Processing pending"),
			batchStartDate(batch)),
		narrativeEntry(models.StageManager, wf.Manager,
			presence(len(certs) > 0, "Final approval completed", "Final approval pending"),
			firstIssueDate(certs)),
	}

	flatTests := make([]models.ProvenanceTest, 0, len(tests))
	for _, t := range tests {
		flatTests = append(flatTests, models.ProvenanceTest{
			Category:     t.Category,
			Grade:        t.QualityGrade,
			Measurements: t.Measurements,
			Date:         t.TestDate,
		})
	}
	flatCerts := make([]models.ProvenanceCertificate, 0, len(certs))
	for _, c := range certs {
		flatCerts = append(flatCerts, models.ProvenanceCertificate{
			Number:     c.Number,
			Category:   c.Category,
			Status:     c.Status,
			IssuedBy:   c.IssuerID,
			IssuedAt:   c.IssuedAt,
			ValidUntil: c.ExpiresAt,
		})
	}

	return models.Provenance{
		LotID:             lot.ID,
		Species:           lot.Species,
		Variety:           lot.Variety,
		FarmerName:        farmerName,
		HarvestDate:       harvestDate,
		Origin:            origin,
		BatchID:           lot.BatchID,
		LookupCode:        lot.LookupCode,
		Status:            lot.Status,
		QualityGrade:      lot.QualityGrade,
		WorkflowStatus:    wf,
		SupplyChainStatus: models.ClassifySupplyChain(lot.Links()),
		Narrative:         narrative,
		TestResults:       flatTests,
		Certificates:      flatCerts,
	}
}

func narrativeEntry(stage models.Stage, slot models.StageRecord, fallback string, fallbackDate *time.Time) models.NarrativeEntry {
	entry := models.NarrativeEntry{
		Stage:       stage,
		Step:        stage.Label(),
		Description: fallback,
		Date:        fallbackDate,
		Status:      models.NarrativePending,
		CompletedBy: stage.Actor(),
	}
	if slot.Details != nil && *slot.Details != "" {
		entry.Description = *slot.Details
	}
	if slot.CompletedAt != nil {
		at := *slot.CompletedAt
		entry.Date = &at
	}
	if slot.Completed {
		entry.Status = models.NarrativeCompleted
	}
	return entry
}

func presence(present bool, yes, no string) string {
	if present {
		return yes
	}
	return no
}

func firstTestDate(tests []models.TestResult) *time.Time {
	if len(tests) == 0 {
		return nil
	}
	date := tests[0].TestDate
	return &date
}

func batchStartDate(batch *models.ProcessingBatch) *time.Time {
	if batch == nil {
		return nil
	}
	date := batch.StartDate
	return &date
}

func firstIssueDate(certs []models.Certificate) *time.Time {
	if len(certs) == 0 {
		return nil
	}
	date := certs[0].IssuedAt
	return &date
}
