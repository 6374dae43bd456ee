package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/herbtrace-api/internal/models"
	"github.com/noah-isme/herbtrace-api/pkg/response"
)

type provenanceService interface {
	Resolve(ctx context.Context, token string) (*models.Provenance, error)
}

// ProvenanceHandler serves the public consumer view of a lot.
type ProvenanceHandler struct {
	service provenanceService
}

// NewProvenanceHandler constructs a ProvenanceHandler.
func NewProvenanceHandler(svc provenanceService) *ProvenanceHandler {
	return &ProvenanceHandler{service: svc}
}

// Get godoc
// @Summary Resolve a provenance lookup
// @Description Accepts a lookup code, a batch identifier or a lot id. No authentication required.
// @Tags Provenance
// @Produce json
// @Param token path string true "Lookup code, batch id or lot id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /provenance/{token} [get]
func (h *ProvenanceHandler) Get(c *gin.Context) {
	provenance, err := h.service.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, provenance, nil)
}
