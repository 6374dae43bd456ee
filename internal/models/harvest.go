package models

import (
	"database/sql/driver"
	"time"
)

// HarvestStatus is the record-level status of a harvest.
type HarvestStatus string

const (
	HarvestStatusPendingTesting HarvestStatus = "pending_testing"
	HarvestStatusTested         HarvestStatus = "tested"
	HarvestStatusApproved       HarvestStatus = "approved"
	HarvestStatusRejected       HarvestStatus = "rejected"
	HarvestStatusProcessing     HarvestStatus = "processing"
)

// QuantityUnit is the unit a harvest quantity was reported in.
type QuantityUnit string

const (
	UnitKilogram QuantityUnit = "kg"
	UnitGram     QuantityUnit = "g"
	UnitPound    QuantityUnit = "lbs"
	UnitTon      QuantityUnit = "tons"
)

// Kilograms converts qty in unit to kilograms. Lots accumulate in kilograms.
func Kilograms(qty float64, unit QuantityUnit) float64 {
	switch unit {
	case UnitGram:
		return qty / 1000
	case UnitPound:
		return qty * 0.45359237
	case UnitTon:
		return qty * 1000
	}
	return qty
}

// Weather captures optional conditions at harvest time.
type Weather struct {
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	HumidityPct  *float64 `json:"humidity_pct,omitempty"`
	Conditions   string   `json:"conditions,omitempty"`
}

// Value marshals weather for the JSONB column.
func (w Weather) Value() (driver.Value, error) { return jsonValue(w, "weather") }

// Scan unmarshals the weather column.
func (w *Weather) Scan(value interface{}) error {
	*w = Weather{}
	_, err := scanJSON(value, w, "weather")
	return err
}

// Harvest is one farmer submission. Immutable apart from Status.
type Harvest struct {
	ID          string        `db:"id" json:"id"`
	LotID       string        `db:"lot_id" json:"lot_id"`
	FarmerID    string        `db:"farmer_id" json:"farmer_id"`
	FarmerName  string        `db:"farmer_name" json:"farmer_name"`
	Species     string        `db:"species" json:"species"`
	Variety     string        `db:"variety" json:"variety"`
	Quantity    float64       `db:"quantity" json:"quantity"`
	Unit        QuantityUnit  `db:"unit" json:"unit"`
	Latitude    float64       `db:"latitude" json:"latitude"`
	Longitude   float64       `db:"longitude" json:"longitude"`
	Address     string        `db:"address" json:"address"`
	Region      string        `db:"region" json:"region"`
	Country     string        `db:"country" json:"country"`
	HarvestDate time.Time     `db:"harvest_date" json:"harvest_date"`
	PhotoRef    *string       `db:"photo_ref" json:"photo_ref,omitempty"`
	Notes       string        `db:"notes" json:"notes"`
	Weather     *Weather      `db:"weather" json:"weather,omitempty"`
	Status      HarvestStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// Origin projects the harvest location onto a lot origin.
func (h Harvest) Origin() Origin {
	return Origin{
		Latitude:  h.Latitude,
		Longitude: h.Longitude,
		Address:   h.Address,
		Region:    h.Region,
		Country:   h.Country,
	}
}

// HarvestFilter scopes harvest listings.
type HarvestFilter struct {
	FarmerID string
	Status   HarvestStatus
	Page     int
	PageSize int
}
