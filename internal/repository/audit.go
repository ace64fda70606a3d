package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tidebase/internal/conn"
	"tidebase/internal/model"
)

// AuditFilter narrows an audit query. Zero values mean no restriction; Limit
// is clamped to a sane page size.
type AuditFilter struct {
	Table     string
	Operation string
	Limit     int
}

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// OperationCount is one row of the per-table capture summary.
type OperationCount struct {
	TableName string    `json:"table_name"`
	Operation string    `json:"operation"`
	Count     int64     `json:"count"`
	LastSeen  time.Time `json:"last_seen"`
}

type AuditInterface interface {
	Query(ctx context.Context, f AuditFilter) ([]model.AuditRecord, error)
	FetchSince(ctx context.Context, lastID int64, limit int) ([]model.AuditRecord, error)
	Summary(ctx context.Context) ([]OperationCount, error)
}

type AuditRepository struct {
	runner Runner
}

func NewAuditRepository(runner Runner) *AuditRepository {
	return &AuditRepository{runner: runner}
}

const auditColumns = "audit_id, table_name, operation, record_id, old_data, new_data, created_at, created_by"

// Query returns matching records newest first.
func (r *AuditRepository) Query(ctx context.Context, f AuditFilter) ([]model.AuditRecord, error) {
	sql, args := buildAuditQuery(f)
	res, err := r.runner.Execute(ctx, conn.Statement{Kind: conn.Read, SQL: sql, Args: args})
	if err != nil {
		return nil, err
	}
	return auditRows(res.Rows), nil
}

// buildAuditQuery assembles the filtered select. Filters always travel as
// bind parameters, never spliced into the text.
func buildAuditQuery(f AuditFilter) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT " + auditColumns + " FROM ecommerce.audit_log")

	var where []string
	var args []any
	if f.Table != "" {
		args = append(args, f.Table)
		where = append(where, fmt.Sprintf("table_name = $%d", len(args)))
	}
	if f.Operation != "" {
		args = append(args, strings.ToUpper(f.Operation))
		where = append(where, fmt.Sprintf("operation = $%d", len(args)))
	}
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	args = append(args, limit)
	b.WriteString(fmt.Sprintf(" ORDER BY audit_id DESC LIMIT $%d", len(args)))
	return b.String(), args
}

// FetchSince returns records strictly after lastID in ascending order, the
// shape the change feed poller consumes.
func (r *AuditRepository) FetchSince(ctx context.Context, lastID int64, limit int) ([]model.AuditRecord, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	res, err := r.runner.Execute(ctx, conn.Statement{
		Kind: conn.Read,
		SQL:  "SELECT " + auditColumns + " FROM ecommerce.audit_log WHERE audit_id > $1 ORDER BY audit_id ASC LIMIT $2",
		Args: []any{lastID, limit},
	})
	if err != nil {
		return nil, err
	}
	return auditRows(res.Rows), nil
}

// Summary groups capture counts by table and operation.
func (r *AuditRepository) Summary(ctx context.Context) ([]OperationCount, error) {
	res, err := r.runner.Execute(ctx, conn.Statement{
		Kind: conn.Read,
		SQL: `SELECT table_name, operation, count(*) AS n, max(created_at) AS last_seen
		        FROM ecommerce.audit_log
		       GROUP BY table_name, operation
		       ORDER BY table_name, operation`,
	})
	if err != nil {
		return nil, err
	}
	out := make([]OperationCount, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, OperationCount{
			TableName: asString(row["table_name"]),
			Operation: asString(row["operation"]),
			Count:     asInt64(row["n"]),
			LastSeen:  asTime(row["last_seen"]),
		})
	}
	return out, nil
}

func auditRows(rows []map[string]any) []model.AuditRecord {
	out := make([]model.AuditRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.AuditRecord{
			AuditID:   asInt64(row["audit_id"]),
			TableName: asString(row["table_name"]),
			Operation: asString(row["operation"]),
			RecordID:  asInt64Ptr(row["record_id"]),
			OldData:   asRawJSON(row["old_data"]),
			NewData:   asRawJSON(row["new_data"]),
			CreatedAt: asTime(row["created_at"]),
			CreatedBy: asString(row["created_by"]),
		})
	}
	return out
}
