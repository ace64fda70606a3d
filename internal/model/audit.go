package model

import (
	"encoding/json"
	"time"
)

// AuditRecord mirrors one row of the change capture log. OldData and NewData
// carry the raw row images: inserts have NewData only, deletes OldData only,
// updates both.
type AuditRecord struct {
	AuditID   int64           `json:"audit_id"`
	TableName string          `json:"table_name"`
	Operation string          `json:"operation"`
	RecordID  *int64          `json:"record_id"`
	OldData   json.RawMessage `json:"old_data,omitempty"`
	NewData   json.RawMessage `json:"new_data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	CreatedBy string          `json:"created_by"`
}

const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// ValidOperation reports whether op is one of the capture operations.
func ValidOperation(op string) bool {
	return op == OpInsert || op == OpUpdate || op == OpDelete
}
