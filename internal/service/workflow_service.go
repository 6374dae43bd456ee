package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/herbtrace-api/internal/dto"
	"github.com/noah-isme/herbtrace-api/internal/models"
	"github.com/noah-isme/herbtrace-api/internal/repository"
	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
)

type lotStore interface {
	Create(ctx context.Context, lot *models.Lot) error
	FindByID(ctx context.Context, id string) (*models.Lot, error)
	FindByLookupCode(ctx context.Context, code string) (*models.Lot, error)
	FindByBatchID(ctx context.Context, batchID string) (*models.Lot, error)
	FindByKey(ctx context.Context, key models.LotKey) (*models.Lot, error)
	FindByHarvest(ctx context.Context, harvestIDs ...string) (*models.Lot, error)
	AppendLink(ctx context.Context, lotID string, link models.LotLink, childID string) error
	AddQuantity(ctx context.Context, lotID string, kilograms float64) error
	MarkStage(ctx context.Context, lotID string, stage models.Stage, record models.StageRecord, status models.LotStatus, updatedBy string) error
	Finalize(ctx context.Context, lotID, lookupCode string, snapshot models.FinalSnapshot) error
	ListPending(ctx context.Context, stage models.Stage, limit int, after *models.LotCursor) ([]models.Lot, error)
	List(ctx context.Context, filter models.LotFilter) ([]models.Lot, int, error)
}

type harvestStore interface {
	Create(ctx context.Context, harvest *models.Harvest) error
	FindByID(ctx context.Context, id string) (*models.Harvest, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Harvest, error)
	List(ctx context.Context, filter models.HarvestFilter) ([]models.Harvest, int, error)
	UpdateStatus(ctx context.Context, ids []string, status models.HarvestStatus) error
}

type testResultStore interface {
	Create(ctx context.Context, result *models.TestResult) error
	FindByID(ctx context.Context, id string) (*models.TestResult, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.TestResult, error)
	List(ctx context.Context, filter models.TestResultFilter) ([]models.TestResult, int, error)
}

type batchStore interface {
	Create(ctx context.Context, batch *models.ProcessingBatch) error
	FindByID(ctx context.Context, id string) (*models.ProcessingBatch, error)
	AppendStep(ctx context.Context, batchID string, step models.ProcessingStep) error
	Finish(ctx context.Context, params repository.FinishBatchParams) error
	List(ctx context.Context, filter models.BatchFilter) ([]models.ProcessingBatch, int, error)
	RecentSteps(ctx context.Context, limit int) ([]models.RecentStep, error)
}

type certificateStore interface {
	Create(ctx context.Context, cert *models.Certificate) error
	ListByIDs(ctx context.Context, ids []string) ([]models.Certificate, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type eventNotifier interface {
	Emit(event models.Event)
}

// WorkflowStores groups the repositories the workflow engine writes to.
type WorkflowStores struct {
	Lots         lotStore
	Harvests     harvestStore
	TestResults  testResultStore
	Batches      batchStore
	Certificates certificateStore
}

// CodeGenerator mints public identifiers such as lookup codes and batch ids.
type CodeGenerator func(prefix string) string

// DefaultCodeGenerator returns "<prefix>-<unix-ms>-<random>".
func DefaultCodeGenerator(prefix string) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), random)
}

// WorkflowService is the workflow engine. It holds no per-lot state: every mutation re-reads
// the lot's stage flags inside its transaction before deciding legality.
type WorkflowService struct {
	stores    WorkflowStores
	tx        transactor
	audit     auditLogger
	notifier  eventNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	codes     CodeGenerator
	now       func() time.Time
	pageSize  int
}

// WorkflowServiceOption configures the service.
type WorkflowServiceOption func(*WorkflowService)

// WithWorkflowCodeGenerator overrides lookup code and batch id generation.
func WithWorkflowCodeGenerator(gen CodeGenerator) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if gen != nil {
			s.codes = gen
		}
	}
}

// WithWorkflowClock overrides the time source.
func WithWorkflowClock(now func() time.Time) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWorkflowNotifier sets the fan-out target.
func WithWorkflowNotifier(n eventNotifier) WorkflowServiceOption {
	return func(s *WorkflowService) {
		s.notifier = n
	}
}

// WithWorkflowAudit sets the audit trail writer.
func WithWorkflowAudit(audit auditLogger) WorkflowServiceOption {
	return func(s *WorkflowService) {
		s.audit = audit
	}
}

// WithWorkflowMetrics sets the metrics sink.
func WithWorkflowMetrics(metrics *MetricsService) WorkflowServiceOption {
	return func(s *WorkflowService) {
		s.metrics = metrics
	}
}

// WithPendingPageSize sets how many lots PendingFor reads per query.
func WithPendingPageSize(size int) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// NewWorkflowService constructs the workflow engine.
func NewWorkflowService(stores WorkflowStores, tx transactor, validate *validator.Validate, logger *zap.Logger, opts ...WorkflowServiceOption) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &WorkflowService{
		stores:    stores,
		tx:        tx,
		validator: validate,
		logger:    logger,
		codes:     DefaultCodeGenerator,
		now:       time.Now,
		pageSize:  100,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// RecordHarvest stores a harvest and completes the farmer stage of its lot, creating the
// lot for a new (species, variety, farmer) key or merging into the existing one.
func (s *WorkflowService) RecordHarvest(ctx context.Context, actor models.Actor, req dto.RecordHarvestRequest) (*dto.HarvestResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if req.Unit == "" {
		req.Unit = models.UnitKilogram
	}
	key := models.NewLotKey(req.Species, req.Variety, actor.UserID)
	kilograms := models.Kilograms(req.Quantity, req.Unit)
	now := s.now().UTC()

	result := &dto.HarvestResult{}
	var details string
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lot, err := s.stores.Lots.FindByKey(ctx, key)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			lot = &models.Lot{
				Species:    key.Species,
				Variety:    key.Variety,
				FarmerID:   key.FarmerID,
				FarmerName: actor.Name,
				Unit:       models.UnitKilogram,
				LookupCode: s.codes("QR"),
				BatchID:    s.codes("BATCH"),
				Origin:     originFromLocation(req.Location),
				UpdatedBy:  models.StageFarmer.Actor(),
			}
			if err := s.stores.Lots.Create(ctx, lot); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return appErrors.Clone(appErrors.ErrConflict, "lot was created concurrently, retry the harvest")
				}
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lot")
			}
			result.LotCreated = true
		case err != nil:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lot")
		}

		harvest := &models.Harvest{
			LotID:       lot.ID,
			FarmerID:    actor.UserID,
			FarmerName:  actor.Name,
			Species:     key.Species,
			Variety:     key.Variety,
			Quantity:    req.Quantity,
			Unit:        req.Unit,
			Latitude:    req.Location.Latitude,
			Longitude:   req.Location.Longitude,
			Address:     req.Location.Address,
			Region:      req.Location.Region,
			Country:     req.Location.Country,
			HarvestDate: req.HarvestDate.UTC(),
			PhotoRef:    req.PhotoRef,
			Notes:       req.Notes,
			Weather:     req.Weather,
			Status:      models.HarvestStatusPendingTesting,
		}
		if err := s.stores.Harvests.Create(ctx, harvest); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store harvest")
		}
		if err := s.stores.Lots.AppendLink(ctx, lot.ID, models.LinkHarvest, harvest.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link harvest")
		}
		if err := s.stores.Lots.AddQuantity(ctx, lot.ID, kilograms); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lot quantity")
		}

		details = fmt.Sprintf("Updated harvest: %skg of %s", formatKilograms(kilograms), key.Species)
		if result.LotCreated {
			details = fmt.Sprintf("Harvested %skg of %s", formatKilograms(kilograms), key.Species)
		}
		lot, err = s.completeStage(ctx, lot.ID, models.StageFarmer, details, now)
		if err != nil {
			return err
		}
		result.Harvest = harvest
		result.Lot = lot
		return nil
	})
	s.recordTransition(models.StageFarmer, err)
	if err != nil {
		return nil, err
	}

	s.emit(models.Event{Type: models.EventHarvest, Action: "recorded", LotID: result.Lot.ID, Message: details, Payload: result})
	s.emitAudit(ctx, actor, models.AuditActionHarvestRecord, "harvest", result.Harvest.ID, result.Harvest)
	return result, nil
}

// RecordTestResult stores a lab result against a harvest and completes the lab stage of the
// harvest's lot. The farmer stage must be complete.
func (s *WorkflowService) RecordTestResult(ctx context.Context, actor models.Actor, req dto.RecordTestResultRequest) (*models.TestResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	now := s.now().UTC()
	testDate := now
	if req.TestDate != nil {
		testDate = req.TestDate.UTC()
	}

	var result *models.TestResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		harvest, err := s.stores.Harvests.FindByID(ctx, req.HarvestID)
		if err != nil {
			return notFoundOr(err, "harvest not found", "failed to load harvest")
		}
		lot, err := s.loadLot(ctx, harvest.LotID)
		if err != nil {
			return err
		}
		if err := checkPrecursors(lot, models.StageLabTechnician); err != nil {
			return err
		}

		result = &models.TestResult{
			LotID:          lot.ID,
			HarvestID:      harvest.ID,
			Category:       req.Category,
			Measurements:   models.Measurements(req.Measurements),
			QualityGrade:   req.QualityGrade,
			TechnicianID:   actor.UserID,
			TechnicianName: actor.Name,
			TestDate:       testDate,
			Status:         models.TestStatusCompleted,
			Signature:      req.Signature,
			Notes:          req.Notes,
		}
		if err := s.stores.TestResults.Create(ctx, result); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store test result")
		}
		if err := s.stores.Lots.AppendLink(ctx, lot.ID, models.LinkTestResult, result.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link test result")
		}
		if err := s.stores.Harvests.UpdateStatus(ctx, []string{harvest.ID}, models.HarvestStatusTested); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update harvest status")
		}
		_, err = s.completeStage(ctx, lot.ID, models.StageLabTechnician, fmt.Sprintf("Quality testing completed - Grade: %s", req.QualityGrade), now)
		return err
	})
	s.recordTransition(models.StageLabTechnician, err)
	if err != nil {
		return nil, err
	}

	s.emit(models.Event{Type: models.EventTestResult, Action: "recorded", LotID: result.LotID, Payload: result})
	s.emitAudit(ctx, actor, models.AuditActionTestRecord, "test_result", result.ID, result)
	return result, nil
}

// CreateProcessingBatch opens a batch over harvests of one lot and completes the processor
// stage. The farmer and lab stages must be complete.
func (s *WorkflowService) CreateProcessingBatch(ctx context.Context, actor models.Actor, req dto.CreateProcessingBatchRequest) (*models.ProcessingBatch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	now := s.now().UTC()

	var batch *models.ProcessingBatch
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lot, err := s.stores.Lots.FindByHarvest(ctx, req.HarvestIDs...)
		if err != nil {
			return notFoundOr(err, "no lot found for the given harvests", "failed to load lot")
		}
		for _, id := range req.HarvestIDs {
			if !lot.HasHarvest(id) {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("harvest %s does not belong to lot %s", id, lot.ID))
			}
		}
		if err := checkPrecursors(lot, models.StageProcessor); err != nil {
			return err
		}

		facility := strings.TrimSpace(req.FacilityID)
		if facility == "" {
			facility = actor.UserID
		}
		steps := make(models.ProcessingSteps, 0, len(req.Steps))
		for _, in := range req.Steps {
			steps = append(steps, newStep(in, actor, now))
		}
		batch = &models.ProcessingBatch{
			LotID:      lot.ID,
			HarvestIDs: append([]string(nil), req.HarvestIDs...),
			Category:   req.Category,
			FacilityID: facility,
			StartDate:  req.StartDate.UTC(),
			Status:     models.BatchStatusInProgress,
			Steps:      steps,
		}
		if err := s.stores.Batches.Create(ctx, batch); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store processing batch")
		}
		if err := s.stores.Lots.AppendLink(ctx, lot.ID, models.LinkProcessingBatch, batch.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link processing batch")
		}
		_, err = s.completeStage(ctx, lot.ID, models.StageProcessor, fmt.Sprintf("Processing batch created - Type: %s", req.Category), now)
		return err
	})
	s.recordTransition(models.StageProcessor, err)
	if err != nil {
		return nil, err
	}

	s.emit(models.Event{Type: models.EventProcessingBatch, Action: "created", LotID: batch.LotID, Payload: batch})
	s.emitAudit(ctx, actor, models.AuditActionBatchCreate, "processing_batch", batch.ID, batch)
	return batch, nil
}

// AppendStep adds a step to an open batch. The caller is recorded as operator.
func (s *WorkflowService) AppendStep(ctx context.Context, actor models.Actor, batchID string, req dto.ProcessingStepInput) (*models.ProcessingBatch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	step := newStep(req, actor, s.now().UTC())

	var batch *models.ProcessingBatch
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.loadBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if isFinished(current.Status) {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("processing batch already %s", current.Status))
		}
		if err := s.stores.Batches.AppendStep(ctx, batchID, step); err != nil {
			return notFoundOr(err, "processing batch not found", "failed to append processing step")
		}
		batch, err = s.loadBatch(ctx, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(models.Event{Type: models.EventProcessingStep, Action: "appended", LotID: batch.LotID, Message: step.Name, Payload: models.RecentStep{BatchID: batch.ID, ProcessingStep: step}})
	s.emitAudit(ctx, actor, models.AuditActionStepAppend, "processing_batch", batch.ID, step)
	return batch, nil
}

// FinishBatch closes an open batch as completed or failed.
func (s *WorkflowService) FinishBatch(ctx context.Context, actor models.Actor, batchID string, req dto.FinishBatchRequest) (*models.ProcessingBatch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	endDate := s.now().UTC()
	if req.EndDate != nil {
		endDate = req.EndDate.UTC()
	}

	var batch *models.ProcessingBatch
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.loadBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if endDate.Before(current.StartDate) {
			return appErrors.Clone(appErrors.ErrValidation, "end date precedes batch start date")
		}
		err = s.stores.Batches.Finish(ctx, repository.FinishBatchParams{
			ID:             batchID,
			Status:         req.Status,
			EndDate:        endDate,
			OutputQuantity: req.OutputQuantity,
			OutputUnit:     req.OutputUnit,
			Packaging:      req.Packaging,
			QualityControl: req.QualityControl,
		})
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("processing batch already %s", current.Status))
		}
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finish processing batch")
		}
		batch, err = s.loadBatch(ctx, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(models.Event{Type: models.EventBatchFinished, Action: string(batch.Status), LotID: batch.LotID, Payload: batch})
	s.emitAudit(ctx, actor, models.AuditActionBatchFinish, "processing_batch", batch.ID, req)
	return batch, nil
}

// FinalizeLot completes the manager stage, reissues the lookup code and stores the final
// traceability snapshot. All three earlier stages must be complete.
func (s *WorkflowService) FinalizeLot(ctx context.Context, actor models.Actor, lotID string, req dto.FinalizeLotRequest) (*dto.FinalizeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	now := s.now().UTC()
	details := strings.TrimSpace(req.FinalDetails)
	if details == "" {
		details = "Final approval and certification completed"
	}

	result := &dto.FinalizeResult{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lot, err := s.completeStage(ctx, lotID, models.StageManager, details, now)
		if err != nil {
			return err
		}

		code := s.codes("FINAL-QR")
		snapshot := models.FinalSnapshot{
			LotID:              lot.ID,
			Species:            lot.Species,
			Variety:            lot.Variety,
			BatchID:            lot.BatchID,
			LookupCode:         code,
			Origin:             lot.Origin,
			FarmerName:         lot.FarmerName,
			Workflow:           lot.WorkflowStatus,
			HarvestIDs:         append([]string{}, lot.HarvestIDs...),
			TestResultIDs:      append([]string{}, lot.TestResultIDs...),
			ProcessingBatchIDs: append([]string{}, lot.ProcessingBatchIDs...),
			CertificateInfo:    req.CertificateInfo,
			GeneratedAt:        now,
		}
		if len(lot.HarvestIDs) > 0 {
			harvests, err := s.stores.Harvests.ListByIDs(ctx, lot.HarvestIDs[:1])
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load primary harvest")
			}
			if len(harvests) > 0 {
				date := harvests[0].HarvestDate
				snapshot.HarvestDate = &date
			}
		}
		if err := s.stores.Lots.Finalize(ctx, lot.ID, code, snapshot); err != nil {
			return notFoundOr(err, "lot not found", "failed to finalize lot")
		}
		lot.LookupCode = code
		lot.FinalSnapshot = &snapshot
		result.Lot = lot
		result.Snapshot = &snapshot
		return nil
	})
	s.recordTransition(models.StageManager, err)
	if err != nil {
		return nil, err
	}

	s.emit(models.Event{Type: models.EventLotFinalized, Action: "finalized", LotID: result.Lot.ID, Message: details, Payload: result.Snapshot})
	s.emitAudit(ctx, actor, models.AuditActionLotFinalize, "lot", result.Lot.ID, result.Snapshot)
	return result, nil
}

// IssueCertificate issues a certificate for a lot over one of its harvests and test results.
// Workflow flags are not touched.
func (s *WorkflowService) IssueCertificate(ctx context.Context, actor models.Actor, lotID string, req dto.IssueCertificateRequest) (*models.Certificate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	now := s.now().UTC()

	var cert *models.Certificate
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lot, err := s.loadLot(ctx, lotID)
		if err != nil {
			return err
		}
		if !lot.HasHarvest(req.HarvestID) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("harvest %s does not belong to lot %s", req.HarvestID, lot.ID))
		}
		test, err := s.stores.TestResults.FindByID(ctx, req.TestResultID)
		if err != nil {
			return notFoundOr(err, "test result not found", "failed to load test result")
		}
		if test.LotID != lot.ID {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("test result %s does not belong to lot %s", test.ID, lot.ID))
		}

		number := strings.TrimSpace(req.Number)
		if number == "" {
			number = s.codes("CERT-" + strings.ToUpper(string(req.Category)))
		}
		if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
			return appErrors.Clone(appErrors.ErrValidation, "expiry date must be in the future")
		}
		cert = &models.Certificate{
			LotID:        lot.ID,
			HarvestID:    req.HarvestID,
			TestResultID: test.ID,
			Category:     req.Category,
			Number:       number,
			IssuerID:     actor.UserID,
			IssuedAt:     now,
			ExpiresAt:    req.ExpiresAt,
			Status:       models.CertificateActive,
			Signature:    req.Signature,
			Content:      models.CertificateContent(req.Content),
		}
		if err := s.stores.Certificates.Create(ctx, cert); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return appErrors.Clone(appErrors.ErrConflict, "certificate number already exists")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
		}
		if err := s.stores.Lots.AppendLink(ctx, lot.ID, models.LinkCertificate, cert.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link certificate")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(models.Event{Type: models.EventCertificate, Action: "issued", LotID: cert.LotID, Message: cert.Number, Payload: cert})
	s.emitAudit(ctx, actor, models.AuditActionCertificateIssue, "certificate", cert.ID, cert)
	return cert, nil
}

// PendingFor yields the lots whose stage before stage is complete and whose own stage is not.
// Pages are read after the last lot yielded, so completing lots while ranging never skips one.
// Ranging over the sequence again restarts the query.
func (s *WorkflowService) PendingFor(ctx context.Context, stage models.Stage) iter.Seq2[models.Lot, error] {
	return func(yield func(models.Lot, error) bool) {
		if !stage.Valid() {
			yield(models.Lot{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown stage %q", stage)))
			return
		}
		var after *models.LotCursor
		for {
			page, err := s.stores.Lots.ListPending(ctx, stage, s.pageSize, after)
			if err != nil {
				yield(models.Lot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending lots"))
				return
			}
			for _, lot := range page {
				if !yield(lot, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			after = models.CursorOf(page[len(page)-1])
		}
	}
}

// completeStage re-reads the lot's flags, enforces the stage order and writes the stage slot.
func (s *WorkflowService) completeStage(ctx context.Context, lotID string, stage models.Stage, details string, at time.Time) (*models.Lot, error) {
	lot, err := s.loadLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if err := checkPrecursors(lot, stage); err != nil {
		return nil, err
	}
	if err := s.stores.Lots.MarkStage(ctx, lot.ID, stage, models.CompletedRecord(at, details), stage.LotStatus(), stage.Actor()); err != nil {
		return nil, notFoundOr(err, "lot not found", "failed to update workflow status")
	}
	return s.loadLot(ctx, lot.ID)
}

func (s *WorkflowService) loadLot(ctx context.Context, id string) (*models.Lot, error) {
	lot, err := s.stores.Lots.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "lot not found", "failed to load lot")
	}
	return lot, nil
}

func (s *WorkflowService) loadBatch(ctx context.Context, id string) (*models.ProcessingBatch, error) {
	batch, err := s.stores.Batches.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "processing batch not found", "failed to load processing batch")
	}
	return batch, nil
}

func (s *WorkflowService) recordTransition(stage models.Stage, err error) {
	outcome := TransitionCompleted
	switch {
	case err == nil:
	case errors.Is(err, appErrors.ErrPrecursorIncomplete):
		outcome = TransitionRejected
	default:
		outcome = TransitionFailed
	}
	s.metrics.RecordWorkflowTransition(string(stage), outcome)
}

func (s *WorkflowService) emit(event models.Event) {
	if s.notifier == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	s.notifier.Emit(event)
}

func (s *WorkflowService) emitAudit(ctx context.Context, actor models.Actor, action, resource, resourceID string, values interface{}) {
	if s.audit == nil {
		return
	}
	payload, err := json.Marshal(values)
	if err != nil {
		s.logger.Warn("failed to encode audit values", zap.String("action", action), zap.Error(err))
		payload = nil
	}
	entry := &models.AuditLog{
		UserID:     optionalString(actor.UserID),
		Action:     action,
		Resource:   resource,
		ResourceID: optionalString(resourceID),
		NewValues:  payload,
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func checkPrecursors(lot *models.Lot, stage models.Stage) error {
	if err := lot.WorkflowStatus.CheckPrecursors(stage); err != nil {
		return appErrors.CloneWrap(appErrors.ErrPrecursorIncomplete, err, err.Error())
	}
	return nil
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func newStep(in dto.ProcessingStepInput, actor models.Actor, at time.Time) models.ProcessingStep {
	operator := actor.Name
	if operator == "" {
		operator = actor.UserID
	}
	return models.ProcessingStep{
		Name:         strings.TrimSpace(in.Name),
		Details:      in.Details,
		QualityCheck: in.QualityCheck,
		Timestamp:    at,
		Operator:     operator,
	}
}

func isFinished(status models.BatchStatus) bool {
	return status == models.BatchStatusCompleted || status == models.BatchStatusFailed
}

func originFromLocation(loc dto.LocationInput) models.Origin {
	return models.Origin{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Address:   loc.Address,
		Region:    loc.Region,
		Country:   loc.Country,
	}
}

func formatKilograms(kg float64) string {
	return strconv.FormatFloat(kg, 'f', -1, 64)
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}
