package models

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/lib/pq"
)

// LotStatus is the lot-level status, distinct from harvest status.
type LotStatus string

const (
	LotStatusHarvested  LotStatus = "harvested"
	LotStatusTested     LotStatus = "tested"
	LotStatusProcessing LotStatus = "processing"
	LotStatusPackaged   LotStatus = "packaged"
	LotStatusShipped    LotStatus = "shipped"
	LotStatusDelivered  LotStatus = "delivered"
)

// QualityGrade ranks a lot or a test outcome from A (best) to D.
type QualityGrade string

const (
	GradeA QualityGrade = "A"
	GradeB QualityGrade = "B"
	GradeC QualityGrade = "C"
	GradeD QualityGrade = "D"
)

// DefaultVariety is stored when a harvest names no variety.
const DefaultVariety = "Unknown"

// Origin records where the lot's first harvest came from.
type Origin struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
}

// Value marshals the origin for the JSONB column.
func (o Origin) Value() (driver.Value, error) { return jsonValue(o, "origin") }

// Scan unmarshals the origin column.
func (o *Origin) Scan(value interface{}) error {
	*o = Origin{}
	_, err := scanJSON(value, o, "origin")
	return err
}

// Lot is the aggregate traceable unit. Its link lists are weak references in insertion order.
type Lot struct {
	ID                 string         `db:"id" json:"id"`
	Species            string         `db:"species" json:"species"`
	Variety            string         `db:"variety" json:"variety"`
	FarmerID           string         `db:"farmer_id" json:"farmer_id"`
	FarmerName         string         `db:"farmer_name" json:"farmer_name"`
	Quantity           float64        `db:"quantity" json:"quantity"`
	Unit               QuantityUnit   `db:"unit" json:"unit"`
	QualityGrade       QualityGrade   `db:"quality_grade" json:"quality_grade"`
	Status             LotStatus      `db:"status" json:"status"`
	LookupCode         string         `db:"lookup_code" json:"lookup_code"`
	BatchID            string         `db:"batch_id" json:"batch_id"`
	Origin             Origin         `db:"origin" json:"origin"`
	HarvestIDs         pq.StringArray `db:"harvest_ids" json:"harvest_ids"`
	TestResultIDs      pq.StringArray `db:"test_result_ids" json:"test_result_ids"`
	ProcessingBatchIDs pq.StringArray `db:"processing_batch_ids" json:"processing_batch_ids"`
	CertificateIDs     pq.StringArray `db:"certificate_ids" json:"certificate_ids"`
	WorkflowStatus     WorkflowStatus `db:"workflow_status" json:"workflow_status"`
	FinalSnapshot      *FinalSnapshot `db:"final_snapshot" json:"final_snapshot,omitempty"`
	UpdatedBy          string         `db:"updated_by" json:"updated_by"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// Key returns the merge key of the lot.
func (l Lot) Key() LotKey {
	return NewLotKey(l.Species, l.Variety, l.FarmerID)
}

// Links counts the lot's linked children.
func (l Lot) Links() LinkCounts {
	return LinkCounts{
		Harvests:          len(l.HarvestIDs),
		TestResults:       len(l.TestResultIDs),
		ProcessingBatches: len(l.ProcessingBatchIDs),
		Certificates:      len(l.CertificateIDs),
	}
}

// HasHarvest reports whether harvestID is linked to the lot.
func (l Lot) HasHarvest(harvestID string) bool {
	for _, id := range l.HarvestIDs {
		if id == harvestID {
			return true
		}
	}
	return false
}

// LotKey identifies the lot a harvest merges into.
type LotKey struct {
	Species  string
	Variety  string
	FarmerID string
}

// NewLotKey normalises whitespace and the variety fallback.
func NewLotKey(species, variety, farmerID string) LotKey {
	variety = strings.TrimSpace(variety)
	if variety == "" {
		variety = DefaultVariety
	}
	return LotKey{
		Species:  strings.TrimSpace(species),
		Variety:  variety,
		FarmerID: strings.TrimSpace(farmerID),
	}
}

// LotLink names one of the lot's child link lists.
type LotLink string

const (
	LinkHarvest         LotLink = "harvest_ids"
	LinkTestResult      LotLink = "test_result_ids"
	LinkProcessingBatch LotLink = "processing_batch_ids"
	LinkCertificate     LotLink = "certificate_ids"
)

// Column returns the lots column backing the link list, or "" when unknown.
func (l LotLink) Column() string {
	switch l {
	case LinkHarvest, LinkTestResult, LinkProcessingBatch, LinkCertificate:
		return string(l)
	}
	return ""
}

// LotFilter scopes lot listings.
type LotFilter struct {
	Status   LotStatus
	Species  string
	FarmerID string
	Page     int
	PageSize int
}

// LotCursor marks the last lot of a page in (created_at, id) order.
type LotCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the cursor positioned at lot.
func CursorOf(lot Lot) *LotCursor {
	return &LotCursor{CreatedAt: lot.CreatedAt, ID: lot.ID}
}

// After reports whether lot sorts after the cursor.
func (c *LotCursor) After(lot Lot) bool {
	if c == nil {
		return true
	}
	if !lot.CreatedAt.Equal(c.CreatedAt) {
		return lot.CreatedAt.After(c.CreatedAt)
	}
	return lot.ID > c.ID
}

// FinalSnapshot is the traceability payload captured when the manager finalizes a lot.
type FinalSnapshot struct {
	LotID              string                 `json:"lot_id"`
	Species            string                 `json:"species"`
	Variety            string                 `json:"variety"`
	BatchID            string                 `json:"batch_id"`
	LookupCode         string                 `json:"lookup_code"`
	HarvestDate        *time.Time             `json:"harvest_date,omitempty"`
	Origin             Origin                 `json:"origin"`
	FarmerName         string                 `json:"farmer_name"`
	Workflow           WorkflowStatus         `json:"workflow"`
	HarvestIDs         []string               `json:"harvest_ids"`
	TestResultIDs      []string               `json:"test_result_ids"`
	ProcessingBatchIDs []string               `json:"processing_batch_ids"`
	CertificateInfo    map[string]interface{} `json:"certificate_info,omitempty"`
	GeneratedAt        time.Time              `json:"generated_at"`
}

// Value marshals the snapshot for the JSONB column.
func (s FinalSnapshot) Value() (driver.Value, error) { return jsonValue(s, "final snapshot") }

// Scan unmarshals the final_snapshot column.
func (s *FinalSnapshot) Scan(value interface{}) error {
	*s = FinalSnapshot{}
	_, err := scanJSON(value, s, "final snapshot")
	return err
}
