package handler

import (
	"context"
	"iter"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/herbtrace-api/internal/dto"
	"github.com/noah-isme/herbtrace-api/internal/models"
	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
	"github.com/noah-isme/herbtrace-api/pkg/response"
)

const (
	defaultPendingLimit = 50
	maxPendingLimit     = 500
)

type workflowService interface {
	RecordHarvest(ctx context.Context, actor models.Actor, req dto.RecordHarvestRequest) (*dto.HarvestResult, error)
	RecordTestResult(ctx context.Context, actor models.Actor, req dto.RecordTestResultRequest) (*models.TestResult, error)
	CreateProcessingBatch(ctx context.Context, actor models.Actor, req dto.CreateProcessingBatchRequest) (*models.ProcessingBatch, error)
	AppendStep(ctx context.Context, actor models.Actor, batchID string, req dto.ProcessingStepInput) (*models.ProcessingBatch, error)
	FinishBatch(ctx context.Context, actor models.Actor, batchID string, req dto.FinishBatchRequest) (*models.ProcessingBatch, error)
	FinalizeLot(ctx context.Context, actor models.Actor, lotID string, req dto.FinalizeLotRequest) (*dto.FinalizeResult, error)
	IssueCertificate(ctx context.Context, actor models.Actor, lotID string, req dto.IssueCertificateRequest) (*models.Certificate, error)
	PendingFor(ctx context.Context, stage models.Stage) iter.Seq2[models.Lot, error]
}

// WorkflowHandler exposes the stage transitions of the supply chain.
type WorkflowHandler struct {
	service workflowService
}

// NewWorkflowHandler constructs a WorkflowHandler.
func NewWorkflowHandler(svc workflowService) *WorkflowHandler {
	return &WorkflowHandler{service: svc}
}

// RecordHarvest godoc
// @Summary Record a harvest
// @Description Stores a harvest and merges it into the lot of the same farmer and species.
// @Tags Workflow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay key"
// @Param payload body dto.RecordHarvestRequest true "Harvest payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /harvests [post]
func (h *WorkflowHandler) RecordHarvest(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RecordHarvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid harvest payload"))
		return
	}
	result, err := h.service.RecordHarvest(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// RecordTestResult godoc
// @Summary Record a lab test
// @Description Records a quality test against a harvest and completes the lab stage of its lot.
// @Tags Workflow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.RecordTestResultRequest true "Test result payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /test-results [post]
func (h *WorkflowHandler) RecordTestResult(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RecordTestResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid test result payload"))
		return
	}
	result, err := h.service.RecordTestResult(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// CreateProcessingBatch godoc
// @Summary Create a processing batch
// @Tags Workflow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateProcessingBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /processing-batches [post]
func (h *WorkflowHandler) CreateProcessingBatch(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateProcessingBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid processing batch payload"))
		return
	}
	batch, err := h.service.CreateProcessingBatch(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// AppendStep godoc
// @Summary Append a processing step
// @Tags Workflow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Param payload body dto.ProcessingStepInput true "Step payload"
// @Success 200 {object} response.Envelope
// @Router /processing-batches/{id}/steps [post]
func (h *WorkflowHandler) AppendStep(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ProcessingStepInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid processing step payload"))
		return
	}
	batch, err := h.service.AppendStep(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// FinishBatch godoc
// @Summary Finish a processing batch
// @Tags Workflow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Param payload body dto.FinishBatchRequest true "Completion payload"
// @Success 200 {object} response.Envelope
// @Router /processing-batches/{id}/finish [post]
func (h *WorkflowHandler) FinishBatch(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.FinishBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch completion payload"))
		return
	}
	batch, err := h.service.FinishBatch(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// FinalizeLot godoc
// @Summary Finalize a lot
// @Description Completes the manager stage once every earlier stage is done.
// @Tags Workflow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lot ID"
// @Param payload body dto.FinalizeLotRequest false "Approval payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lots/{id}/finalize [post]
func (h *WorkflowHandler) FinalizeLot(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.FinalizeLotRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid finalize payload"))
			return
		}
	}
	result, err := h.service.FinalizeLot(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// IssueCertificate godoc
// @Summary Issue a certificate
// @Tags Workflow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lot ID"
// @Param payload body dto.IssueCertificateRequest true "Certificate payload"
// @Success 201 {object} response.Envelope
// @Router /lots/{id}/certificates [post]
func (h *WorkflowHandler) IssueCertificate(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.IssueCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid certificate payload"))
		return
	}
	cert, err := h.service.IssueCertificate(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cert)
}

// Pending godoc
// @Summary List lots awaiting a stage
// @Description Lots whose preceding stage is complete and whose own stage is not.
// @Tags Workflow
// @Produce json
// @Security BearerAuth
// @Param stage path string true "farmer, lab_technician, processor or manager"
// @Param limit query int false "Maximum lots returned"
// @Success 200 {object} response.Envelope
// @Router /workflow/pending/{stage} [get]
func (h *WorkflowHandler) Pending(c *gin.Context) {
	stage, err := models.ParseStage(c.Param("stage"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}
	limit, err := queryInt(c, "limit", defaultPendingLimit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if limit == 0 || limit > maxPendingLimit {
		limit = maxPendingLimit
	}

	lots := make([]models.Lot, 0)
	for lot, err := range h.service.PendingFor(c.Request.Context(), stage) {
		if err != nil {
			response.Error(c, err)
			return
		}
		lots = append(lots, lot)
		if len(lots) >= limit {
			break
		}
	}
	response.JSON(c, http.StatusOK, lots, nil, map[string]interface{}{"stage": stage, "count": len(lots)})
}
