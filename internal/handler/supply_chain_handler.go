package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/herbtrace-api/internal/dto"
	"github.com/noah-isme/herbtrace-api/internal/models"
	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
	"github.com/noah-isme/herbtrace-api/pkg/response"
)

type supplyChainService interface {
	Overview(ctx context.Context, filter models.LotFilter) ([]models.LotWithStatus, *models.Pagination, error)
	Lot(ctx context.Context, id string) (*models.LotWithStatus, error)
	FarmerHarvests(ctx context.Context, farmerID string, page, size int) ([]models.Harvest, *models.Pagination, error)
	PendingHarvests(ctx context.Context, page, size int) ([]models.Harvest, *models.Pagination, error)
	TestResults(ctx context.Context, filter models.TestResultFilter) ([]models.TestResult, *models.Pagination, error)
	CompletedBatches(ctx context.Context, page, size int) ([]models.ProcessingBatch, *models.Pagination, error)
	RecentSteps(ctx context.Context) ([]models.RecentStep, error)
}

// SupplyChainHandler serves the read models of lots, harvests, tests and batches.
type SupplyChainHandler struct {
	service supplyChainService
}

// NewSupplyChainHandler constructs a SupplyChainHandler.
func NewSupplyChainHandler(svc supplyChainService) *SupplyChainHandler {
	return &SupplyChainHandler{service: svc}
}

// ListLots godoc
// @Summary List lots with their aggregated status
// @Tags SupplyChain
// @Produce json
// @Security BearerAuth
// @Param status query string false "Lot status"
// @Param species query string false "Species"
// @Param farmer_id query string false "Farmer"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lots [get]
func (h *SupplyChainHandler) ListLots(c *gin.Context) {
	var query dto.LotQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	lots, pagination, err := h.service.Overview(c.Request.Context(), models.LotFilter{
		Status:   models.LotStatus(query.Status),
		Species:  query.Species,
		FarmerID: query.FarmerID,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lots, pagination, withMeta(c, false))
}

// GetLot godoc
// @Summary Get a lot with its aggregated status
// @Tags SupplyChain
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lot ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lots/{id} [get]
func (h *SupplyChainHandler) GetLot(c *gin.Context) {
	lot, err := h.service.Lot(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lot, nil)
}

// MyHarvests godoc
// @Summary List the caller's harvests
// @Tags SupplyChain
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /harvests/mine [get]
func (h *SupplyChainHandler) MyHarvests(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var query dto.HarvestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	harvests, pagination, err := h.service.FarmerHarvests(c.Request.Context(), actor.UserID, query.Page, query.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, harvests, pagination)
}

// PendingHarvests godoc
// @Summary List harvests awaiting testing
// @Tags SupplyChain
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /harvests/pending [get]
func (h *SupplyChainHandler) PendingHarvests(c *gin.Context) {
	var query dto.HarvestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	harvests, pagination, err := h.service.PendingHarvests(c.Request.Context(), query.Page, query.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, harvests, pagination)
}

// TestResults godoc
// @Summary List test results
// @Tags SupplyChain
// @Produce json
// @Security BearerAuth
// @Param lot_id query string false "Lot"
// @Success 200 {object} response.Envelope
// @Router /test-results [get]
func (h *SupplyChainHandler) TestResults(c *gin.Context) {
	var query dto.TestResultQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	results, pagination, err := h.service.TestResults(c.Request.Context(), models.TestResultFilter{
		LotID:    query.LotID,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, pagination)
}

// CompletedBatches godoc
// @Summary List finished processing batches
// @Tags SupplyChain
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /processing-batches/completed [get]
func (h *SupplyChainHandler) CompletedBatches(c *gin.Context) {
	var query dto.BatchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	batches, pagination, err := h.service.CompletedBatches(c.Request.Context(), query.Page, query.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, pagination)
}

// RecentSteps godoc
// @Summary List the latest processing steps
// @Tags SupplyChain
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /processing-steps/recent [get]
func (h *SupplyChainHandler) RecentSteps(c *gin.Context) {
	steps, err := h.service.RecentSteps(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, steps, nil)
}
