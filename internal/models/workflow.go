package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Stage is one of the four ordered workflow stages of a lot.
type Stage string

const (
	StageFarmer        Stage = "farmer"
	StageLabTechnician Stage = "labTechnician"
	StageProcessor     Stage = "processor"
	StageManager       Stage = "manager"
)

// Stages lists the workflow stages in their fixed order.
var Stages = []Stage{StageFarmer, StageLabTechnician, StageProcessor, StageManager}

// ParseStage accepts a stage name or the role that owns it.
func ParseStage(raw string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "farmer":
		return StageFarmer, nil
	case "labtechnician", "lab_technician", "lab":
		return StageLabTechnician, nil
	case "processor":
		return StageProcessor, nil
	case "manager", "supply_manager":
		return StageManager, nil
	}
	return "", fmt.Errorf("unknown stage %q", raw)
}

// Index reports the stage position, or -1 for an unknown stage.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the four stages.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// Previous returns the immediately preceding stage.
func (s Stage) Previous() (Stage, bool) {
	i := s.Index()
	if i <= 0 {
		return "", false
	}
	return Stages[i-1], true
}

// Label is the narrative step title.
func (s Stage) Label() string {
	switch s {
	case StageFarmer:
		return "Farmer"
	case StageLabTechnician:
		return "Laboratory Testing"
	case StageProcessor:
		return "Processing"
	case StageManager:
		return "Manager Approval"
	}
	return string(s)
}

// Actor names who completes the stage in the narrative.
func (s Stage) Actor() string {
	switch s {
	case StageFarmer:
		return "Farmer"
	case StageLabTechnician:
		return "Lab Technician"
	case StageProcessor:
		return "Processor"
	case StageManager:
		return "Manager"
	}
	return string(s)
}

// LotStatus is the lot-level status a stage advances to. The farmer stage leaves the
// status alone so that a late harvest merge does not regress a tested lot.
func (s Stage) LotStatus() LotStatus {
	switch s {
	case StageLabTechnician:
		return LotStatusTested
	case StageProcessor:
		return LotStatusProcessing
	case StageManager:
		return LotStatusPackaged
	}
	return ""
}

// StageRecord is one workflow slot.
type StageRecord struct {
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt"`
	Details     *string    `json:"details"`
}

// CompletedRecord builds a completed slot.
func CompletedRecord(at time.Time, details string) StageRecord {
	at = at.UTC()
	return StageRecord{Completed: true, CompletedAt: &at, Details: &details}
}

// Value marshals the slot for a jsonb_set update.
func (r StageRecord) Value() (driver.Value, error) {
	return jsonValue(r, "stage record")
}

// WorkflowStatus is the explicit four-slot completion record stored on a lot.
type WorkflowStatus struct {
	Farmer        StageRecord `json:"farmer"`
	LabTechnician StageRecord `json:"labTechnician"`
	Processor     StageRecord `json:"processor"`
	Manager       StageRecord `json:"manager"`
}

// Slot returns the record for stage s.
func (w WorkflowStatus) Slot(s Stage) StageRecord {
	switch s {
	case StageFarmer:
		return w.Farmer
	case StageLabTechnician:
		return w.LabTechnician
	case StageProcessor:
		return w.Processor
	case StageManager:
		return w.Manager
	}
	return StageRecord{}
}

// Set overwrites the record for stage s.
func (w *WorkflowStatus) Set(s Stage, rec StageRecord) {
	switch s {
	case StageFarmer:
		w.Farmer = rec
	case StageLabTechnician:
		w.LabTechnician = rec
	case StageProcessor:
		w.Processor = rec
	case StageManager:
		w.Manager = rec
	}
}

// Completed reports whether stage s is complete.
func (w WorkflowStatus) Completed(s Stage) bool { return w.Slot(s).Completed }

// CheckPrecursors returns a *PrecursorError naming the first incomplete stage before s.
func (w WorkflowStatus) CheckPrecursors(s Stage) error {
	for _, prior := range Stages[:max(s.Index(), 0)] {
		if !w.Completed(prior) {
			return &PrecursorError{Stage: s, Missing: prior}
		}
	}
	return nil
}

// IsPendingFor reports whether s is the next stage to complete: its predecessor is complete
// and s itself is not.
func (w WorkflowStatus) IsPendingFor(s Stage) bool {
	if w.Completed(s) {
		return false
	}
	prev, ok := s.Previous()
	return !ok || w.Completed(prev)
}

// Value marshals the workflow status to JSON for persistence.
func (w WorkflowStatus) Value() (driver.Value, error) {
	return jsonValue(w, "workflow status")
}

// Scan unmarshals the workflow_status column.
func (w *WorkflowStatus) Scan(value interface{}) error {
	*w = WorkflowStatus{}
	_, err := scanJSON(value, w, "workflow status")
	return err
}

// PrecursorError reports an out-of-order stage transition.
type PrecursorError struct {
	Stage   Stage
	Missing Stage
}

func (e *PrecursorError) Error() string {
	return fmt.Sprintf("cannot complete %s stage: %s stage not completed", e.Stage, e.Missing)
}
