package dto

import (
	"time"

	"github.com/noah-isme/herbtrace-api/internal/models"
)

// RecordTestResultRequest is a lab technician's test submission against a harvest.
type RecordTestResultRequest struct {
	HarvestID    string              `json:"harvest_id" validate:"required"`
	Category     models.TestCategory `json:"category" validate:"required,oneof=purity potency contamination microbial heavy_metals pesticides"`
	Measurements map[string]float64  `json:"measurements"`
	QualityGrade models.QualityGrade `json:"quality_grade" validate:"required,oneof=A B C D"`
	TestDate     *time.Time          `json:"test_date"`
	Signature    *models.Signature   `json:"signature"`
	Notes        string              `json:"notes" validate:"max=2000"`
}

// TestResultQuery mirrors test result listing filters.
type TestResultQuery struct {
	LotID    string `form:"lot_id"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
