package dto

import "github.com/noah-isme/herbtrace-api/internal/models"

// FinalizeLotRequest is the manager's final approval.
type FinalizeLotRequest struct {
	FinalDetails    string                 `json:"final_details" validate:"max=2000"`
	CertificateInfo map[string]interface{} `json:"certificate_info"`
}

// FinalizeResult returns the finalized lot and its traceability snapshot.
type FinalizeResult struct {
	Lot      *models.Lot           `json:"lot"`
	Snapshot *models.FinalSnapshot `json:"snapshot"`
}

// LotQuery mirrors lot listing filters.
type LotQuery struct {
	Status   string `form:"status"`
	Species  string `form:"species"`
	FarmerID string `form:"farmer_id"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
