package dto

import (
	"time"

	"github.com/noah-isme/herbtrace-api/internal/models"
)

// LocationInput is where a harvest was gathered.
type LocationInput struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Address   string  `json:"address" validate:"max=255"`
	Region    string  `json:"region" validate:"max=120"`
	Country   string  `json:"country" validate:"max=120"`
}

// RecordHarvestRequest is a farmer's harvest submission.
type RecordHarvestRequest struct {
	Species     string              `json:"species" validate:"required,max=120"`
	Variety     string              `json:"variety" validate:"max=120"`
	Quantity    float64             `json:"quantity" validate:"required,gt=0"`
	Unit        models.QuantityUnit `json:"unit" validate:"omitempty,oneof=kg g lbs tons"`
	Location    LocationInput       `json:"location"`
	HarvestDate time.Time           `json:"harvest_date" validate:"required"`
	PhotoRef    *string             `json:"photo_ref" validate:"omitempty,max=255"`
	Notes       string              `json:"notes" validate:"max=2000"`
	Weather     *models.Weather     `json:"weather"`
}

// HarvestResult reports the stored harvest and the lot it merged into.
type HarvestResult struct {
	Harvest    *models.Harvest `json:"harvest"`
	Lot        *models.Lot     `json:"lot"`
	LotCreated bool            `json:"lot_created"`
}

// HarvestQuery mirrors harvest listing filters.
type HarvestQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

// PhotoLink is a time-limited URL for a harvest photo.
type PhotoLink struct {
	HarvestID string    `json:"harvest_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
