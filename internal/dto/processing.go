package dto

import (
	"time"

	"github.com/noah-isme/herbtrace-api/internal/models"
)

// ProcessingStepInput is one step appended to a batch. The operator is the caller.
type ProcessingStepInput struct {
	Name         string              `json:"name" validate:"required,max=120"`
	Details      string              `json:"details" validate:"max=2000"`
	QualityCheck models.QualityCheck `json:"quality_check"`
}

// CreateProcessingBatchRequest opens a processing run over harvests of one lot.
type CreateProcessingBatchRequest struct {
	HarvestIDs []string                  `json:"harvest_ids" validate:"required,min=1,dive,required"`
	Category   models.ProcessingCategory `json:"category" validate:"required,oneof=drying cleaning grinding extraction packaging"`
	FacilityID string                    `json:"facility_id" validate:"max=120"`
	StartDate  time.Time                 `json:"start_date" validate:"required"`
	Steps      []ProcessingStepInput     `json:"steps" validate:"omitempty,dive"`
}

// FinishBatchRequest closes a batch as completed or failed.
type FinishBatchRequest struct {
	Status         models.BatchStatus     `json:"status" validate:"required,oneof=completed failed"`
	EndDate        *time.Time             `json:"end_date"`
	OutputQuantity *float64               `json:"output_quantity" validate:"omitempty,gte=0"`
	OutputUnit     *string                `json:"output_unit" validate:"omitempty,oneof=kg g lbs tons liters ml"`
	Packaging      *models.Packaging      `json:"packaging"`
	QualityControl *models.QualityControl `json:"quality_control"`
}

// BatchQuery mirrors batch listing filters.
type BatchQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}
