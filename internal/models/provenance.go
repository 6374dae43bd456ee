package models

import "time"

// NarrativeStatus is the workflow flag rendered in the narrative.
type NarrativeStatus string

const (
	NarrativeCompleted NarrativeStatus = "completed"
	NarrativePending   NarrativeStatus = "pending"
)

// UnknownFarmer is the designed fallback when no farmer name is recorded.
const UnknownFarmer = "Unknown farmer"

// NarrativeEntry is one step of the consumer-facing journey.
type NarrativeEntry struct {
	Stage       Stage           `json:"stage"`
	Step        string          `json:"step"`
	Description string          `json:"description"`
	Date        *time.Time      `json:"date"`
	Status      NarrativeStatus `json:"status"`
	CompletedBy string          `json:"completed_by"`
}

// ProvenanceTest is the flattened view of a test result.
type ProvenanceTest struct {
	Category     TestCategory `json:"category"`
	Grade        QualityGrade `json:"grade"`
	Measurements Measurements `json:"measurements"`
	Date         time.Time    `json:"date"`
}

// ProvenanceCertificate is the flattened view of a certificate.
type ProvenanceCertificate struct {
	Number     string              `json:"number"`
	Category   CertificateCategory `json:"category"`
	Status     CertificateStatus   `json:"status"`
	IssuedBy   string              `json:"issued_by"`
	IssuedAt   time.Time           `json:"issued_at"`
	ValidUntil *time.Time          `json:"valid_until,omitempty"`
}

// Provenance is the consumer-facing read model of a lot.
type Provenance struct {
	LotID             string                  `json:"lot_id"`
	Species           string                  `json:"species"`
	Variety           string                  `json:"variety"`
	FarmerName        string                  `json:"farmer_name"`
	HarvestDate       *time.Time              `json:"harvest_date,omitempty"`
	Origin            Origin                  `json:"origin"`
	BatchID           string                  `json:"batch_id"`
	LookupCode        string                  `json:"lookup_code"`
	Status            LotStatus               `json:"status"`
	QualityGrade      QualityGrade            `json:"quality_grade"`
	WorkflowStatus    WorkflowStatus          `json:"workflow_status"`
	SupplyChainStatus SupplyChainStatus       `json:"supply_chain_status"`
	Narrative         []NarrativeEntry        `json:"supply_chain"`
	TestResults       []ProvenanceTest        `json:"test_results"`
	Certificates      []ProvenanceCertificate `json:"certificates"`
}
