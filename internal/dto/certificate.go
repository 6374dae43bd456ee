package dto

import (
	"time"

	"github.com/noah-isme/herbtrace-api/internal/models"
)

// IssueCertificateRequest issues a certificate for a lot.
type IssueCertificateRequest struct {
	HarvestID    string                     `json:"harvest_id" validate:"required"`
	TestResultID string                     `json:"test_result_id" validate:"required"`
	Category     models.CertificateCategory `json:"category" validate:"required,oneof=quality organic purity safety origin"`
	Number       string                     `json:"number" validate:"max=120"`
	ExpiresAt    *time.Time                 `json:"expires_at"`
	Signature    *models.Signature          `json:"signature"`
	Content      map[string]interface{}     `json:"content"`
}
