package models

import (
	"database/sql/driver"
	"time"
)

// TestCategory is the kind of lab test performed.
type TestCategory string

const (
	TestPurity        TestCategory = "purity"
	TestPotency       TestCategory = "potency"
	TestContamination TestCategory = "contamination"
	TestMicrobial     TestCategory = "microbial"
	TestHeavyMetals   TestCategory = "heavy_metals"
	TestPesticides    TestCategory = "pesticides"
)

// TestStatus is the record status of a test result.
type TestStatus string

const (
	TestStatusPending   TestStatus = "pending"
	TestStatusCompleted TestStatus = "completed"
	TestStatusFailed    TestStatus = "failed"
)

// Measurements maps a measured quantity to its value.
type Measurements map[string]float64

// Value marshals measurements for the JSONB column.
func (m Measurements) Value() (driver.Value, error) {
	if m == nil {
		m = Measurements{}
	}
	return jsonValue(map[string]float64(m), "measurements")
}

// Scan unmarshals the measurements column.
func (m *Measurements) Scan(value interface{}) error {
	out := Measurements{}
	if _, err := scanJSON(value, &out, "measurements"); err != nil {
		return err
	}
	*m = out
	return nil
}

// Signature is informational signing metadata; it is never verified.
type Signature struct {
	Signer    string     `json:"signer,omitempty"`
	Digest    string     `json:"signature,omitempty"`
	SignedAt  *time.Time `json:"signed_at,omitempty"`
	Verified  bool       `json:"verified"`
	Algorithm string     `json:"algorithm,omitempty"`
}

// Value marshals the signature for the JSONB column.
func (s Signature) Value() (driver.Value, error) { return jsonValue(s, "signature") }

// Scan unmarshals a signature column.
func (s *Signature) Scan(value interface{}) error {
	*s = Signature{}
	_, err := scanJSON(value, s, "signature")
	return err
}

// TestResult is one lab test applied to one harvest of a lot.
type TestResult struct {
	ID             string       `db:"id" json:"id"`
	LotID          string       `db:"lot_id" json:"lot_id"`
	HarvestID      string       `db:"harvest_id" json:"harvest_id"`
	Category       TestCategory `db:"category" json:"category"`
	Measurements   Measurements `db:"measurements" json:"measurements"`
	QualityGrade   QualityGrade `db:"quality_grade" json:"quality_grade"`
	TechnicianID   string       `db:"technician_id" json:"technician_id"`
	TechnicianName string       `db:"technician_name" json:"technician_name"`
	TestDate       time.Time    `db:"test_date" json:"test_date"`
	Status         TestStatus   `db:"status" json:"status"`
	Signature      *Signature   `db:"signature" json:"signature,omitempty"`
	Notes          string       `db:"notes" json:"notes"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

// TestResultFilter scopes test result listings.
type TestResultFilter struct {
	LotID    string
	Page     int
	PageSize int
}
