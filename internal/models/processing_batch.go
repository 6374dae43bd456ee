package models

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
)

// ProcessingCategory is the kind of processing run.
type ProcessingCategory string

const (
	ProcessingDrying     ProcessingCategory = "drying"
	ProcessingCleaning   ProcessingCategory = "cleaning"
	ProcessingGrinding   ProcessingCategory = "grinding"
	ProcessingExtraction ProcessingCategory = "extraction"
	ProcessingPackaging  ProcessingCategory = "packaging"
)

// BatchStatus is the overall status of a processing batch.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// QualityCheck is the pass/fail inspection recorded with a step.
type QualityCheck struct {
	Passed    bool    `json:"passed"`
	Inspector *string `json:"inspector,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// ProcessingStep is one entry of a batch's ordered step log.
type ProcessingStep struct {
	Name         string       `json:"name"`
	Details      string       `json:"details"`
	QualityCheck QualityCheck `json:"quality_check"`
	Timestamp    time.Time    `json:"timestamp"`
	Operator     string       `json:"operator"`
}

// ProcessingSteps is persisted as a JSONB array.
type ProcessingSteps []ProcessingStep

// Value marshals the steps, writing an empty array rather than null.
func (s ProcessingSteps) Value() (driver.Value, error) {
	if s == nil {
		s = ProcessingSteps{}
	}
	return jsonValue([]ProcessingStep(s), "processing steps")
}

// Scan unmarshals the steps column.
func (s *ProcessingSteps) Scan(value interface{}) error {
	out := ProcessingSteps{}
	if _, err := scanJSON(value, &out, "processing steps"); err != nil {
		return err
	}
	*s = out
	return nil
}

// Packaging describes how the batch output was packed.
type Packaging struct {
	Type     string `json:"type,omitempty"`
	Material string `json:"material,omitempty"`
	Size     string `json:"size,omitempty"`
	Label    string `json:"label,omitempty"`
}

// Value marshals packaging for the JSONB column.
func (p Packaging) Value() (driver.Value, error) { return jsonValue(p, "packaging") }

// Scan unmarshals the packaging column.
func (p *Packaging) Scan(value interface{}) error {
	*p = Packaging{}
	_, err := scanJSON(value, p, "packaging")
	return err
}

// QualityControl is the overall inspection result of a finished batch.
type QualityControl struct {
	OverallGrade    QualityGrade `json:"overall_grade,omitempty"`
	Issues          []string     `json:"issues,omitempty"`
	Recommendations string       `json:"recommendations,omitempty"`
}

// Value marshals quality control for the JSONB column.
func (q QualityControl) Value() (driver.Value, error) { return jsonValue(q, "quality control") }

// Scan unmarshals the quality_control column.
func (q *QualityControl) Scan(value interface{}) error {
	*q = QualityControl{}
	_, err := scanJSON(value, q, "quality control")
	return err
}

// ProcessingBatch is one facility's processing run over harvests of a lot.
type ProcessingBatch struct {
	ID             string             `db:"id" json:"id"`
	LotID          string             `db:"lot_id" json:"lot_id"`
	HarvestIDs     pq.StringArray     `db:"harvest_ids" json:"harvest_ids"`
	Category       ProcessingCategory `db:"category" json:"category"`
	FacilityID     string             `db:"facility_id" json:"facility_id"`
	StartDate      time.Time          `db:"start_date" json:"start_date"`
	EndDate        *time.Time         `db:"end_date" json:"end_date,omitempty"`
	Status         BatchStatus        `db:"status" json:"status"`
	Steps          ProcessingSteps    `db:"steps" json:"steps"`
	OutputQuantity *float64           `db:"output_quantity" json:"output_quantity,omitempty"`
	OutputUnit     *string            `db:"output_unit" json:"output_unit,omitempty"`
	Packaging      *Packaging         `db:"packaging" json:"packaging,omitempty"`
	QualityControl *QualityControl    `db:"quality_control" json:"quality_control,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

// RecentStep is a processing step tagged with its batch.
type RecentStep struct {
	BatchID string `json:"batch_id"`
	ProcessingStep
}

// BatchFilter scopes batch listings.
type BatchFilter struct {
	Status   BatchStatus
	Page     int
	PageSize int
}
