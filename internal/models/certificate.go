package models

import (
	"database/sql/driver"
	"time"
)

// CertificateCategory is the kind of certificate issued.
type CertificateCategory string

const (
	CertificateQuality CertificateCategory = "quality"
	CertificateOrganic CertificateCategory = "organic"
	CertificatePurity  CertificateCategory = "purity"
	CertificateSafety  CertificateCategory = "safety"
	CertificateOrigin  CertificateCategory = "origin"
)

// CertificateStatus is the validity state of a certificate.
type CertificateStatus string

const (
	CertificateActive  CertificateStatus = "active"
	CertificateExpired CertificateStatus = "expired"
	CertificateRevoked CertificateStatus = "revoked"
)

// CertificateContent is an opaque map rendered by the consumer UI.
type CertificateContent map[string]interface{}

// Value marshals the content, writing an empty object rather than null.
func (c CertificateContent) Value() (driver.Value, error) {
	if c == nil {
		c = CertificateContent{}
	}
	return jsonValue(map[string]interface{}(c), "certificate content")
}

// Scan unmarshals the content column.
func (c *CertificateContent) Scan(value interface{}) error {
	out := CertificateContent{}
	if _, err := scanJSON(value, &out, "certificate content"); err != nil {
		return err
	}
	*c = out
	return nil
}

// Certificate references a lot, one of its harvests and one of its test results.
type Certificate struct {
	ID           string              `db:"id" json:"id"`
	LotID        string              `db:"lot_id" json:"lot_id"`
	HarvestID    string              `db:"harvest_id" json:"harvest_id"`
	TestResultID string              `db:"test_result_id" json:"test_result_id"`
	Category     CertificateCategory `db:"category" json:"category"`
	Number       string              `db:"number" json:"number"`
	IssuerID     string              `db:"issuer_id" json:"issuer_id"`
	IssuedAt     time.Time           `db:"issued_at" json:"issued_at"`
	ExpiresAt    *time.Time          `db:"expires_at" json:"expires_at,omitempty"`
	Status       CertificateStatus   `db:"status" json:"status"`
	Signature    *Signature          `db:"signature" json:"signature,omitempty"`
	Content      CertificateContent  `db:"content" json:"content"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
}
