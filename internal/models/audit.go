package models

import "time"

// Audit actions written by workflow mutations.
const (
	AuditActionHarvestRecord    = "HARVEST_RECORD"
	AuditActionTestRecord       = "TEST_RECORD"
	AuditActionBatchCreate      = "BATCH_CREATE"
	AuditActionStepAppend       = "STEP_APPEND"
	AuditActionBatchFinish      = "BATCH_FINISH"
	AuditActionLotFinalize      = "LOT_FINALIZE"
	AuditActionCertificateIssue = "CERTIFICATE_ISSUE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
