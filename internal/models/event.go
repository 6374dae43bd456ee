package models

import "time"

// EventType classifies fan-out events.
type EventType string

const (
	EventHarvest         EventType = "harvest"
	EventTestResult      EventType = "test_result"
	EventProcessingBatch EventType = "processing_batch"
	EventProcessingStep  EventType = "processing_step"
	EventBatchFinished   EventType = "batch_finished"
	EventLotFinalized    EventType = "lot_finalized"
	EventCertificate     EventType = "certificate"
)

// Event is one fan-out notification. Delivery is at-most-once.
type Event struct {
	Type      EventType   `json:"type"`
	Action    string      `json:"action"`
	Message   string      `json:"message,omitempty"`
	LotID     string      `json:"lot_id,omitempty"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}
