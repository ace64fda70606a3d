package capture

import (
	"context"
	"fmt"

	"tidebase/internal/conn"
	"tidebase/pkg/logger"

	"go.uber.org/zap"
)

// Schema is the namespace every capture object lives in.
const Schema = "ecommerce"

// captureFunctionDDL is the single trigger function shared by all monitored
// tables. The key column arrives through TG_ARGV[0] and the record id is
// pulled out of the row image, so the function itself has no per-table
// knowledge. Inserts store the new image only, deletes the old image only,
// updates both.
const captureFunctionDDL = `
CREATE OR REPLACE FUNCTION ` + Schema + `.capture_change()
RETURNS TRIGGER AS $$
DECLARE
    key_column text := TG_ARGV[0];
    rec_id integer;
BEGIN
    IF TG_OP = 'INSERT' THEN
        rec_id := (to_jsonb(NEW) ->> key_column)::integer;
        INSERT INTO ` + Schema + `.audit_log (table_name, operation, record_id, new_data)
        VALUES (TG_TABLE_NAME, TG_OP, rec_id, to_jsonb(NEW));
        RETURN NEW;
    ELSIF TG_OP = 'UPDATE' THEN
        rec_id := (to_jsonb(NEW) ->> key_column)::integer;
        INSERT INTO ` + Schema + `.audit_log (table_name, operation, record_id, old_data, new_data)
        VALUES (TG_TABLE_NAME, TG_OP, rec_id, to_jsonb(OLD), to_jsonb(NEW));
        RETURN NEW;
    ELSE
        rec_id := (to_jsonb(OLD) ->> key_column)::integer;
        INSERT INTO ` + Schema + `.audit_log (table_name, operation, record_id, old_data)
        VALUES (TG_TABLE_NAME, TG_OP, rec_id, to_jsonb(OLD));
        RETURN OLD;
    END IF;
END;
$$ LANGUAGE plpgsql
`

func triggerName(table string) string {
	return "trg_capture_" + table
}

// triggerDDL returns the drop and create statements for one rule. Install is
// idempotent: the drop clears any previous wiring before the trigger is
// recreated against the shared function.
func triggerDDL(r CaptureRule) []string {
	qualified := Schema + "." + r.Table
	return []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", triggerName(r.Table), qualified),
		fmt.Sprintf(
			"CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION %s.capture_change('%s')",
			triggerName(r.Table), qualified, Schema, r.KeyColumn,
		),
	}
}

// Install creates the shared capture function and wires a trigger per rule,
// all in one transaction. Either every table is monitored afterwards or none
// is.
func Install(ctx context.Context, exec *conn.Executor, rules []CaptureRule) error {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	stmts := []conn.Statement{{Kind: conn.Write, SQL: captureFunctionDDL}}
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return err
		}
		for _, ddl := range triggerDDL(r) {
			stmts = append(stmts, conn.Statement{Kind: conn.Write, SQL: ddl})
		}
	}
	if _, err := exec.ExecuteAll(ctx, stmts); err != nil {
		return fmt.Errorf("install capture triggers: %w", err)
	}
	logger.Info("capture triggers installed", zap.Int("tables", len(rules)))
	return nil
}

// Verify confirms every rule has a live trigger. A table writing without a
// trigger would silently skip the audit log, so callers treat a failed
// verification as an audit write fault.
func Verify(ctx context.Context, exec *conn.Executor, rules []CaptureRule) error {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	res, err := exec.Execute(ctx, conn.Statement{
		Kind: conn.Read,
		SQL: `SELECT event_object_table, count(*) AS n
		        FROM information_schema.triggers
		       WHERE trigger_schema = $1 AND trigger_name LIKE 'trg_capture_%'
		       GROUP BY event_object_table`,
		Args: []any{Schema},
	})
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(res.Rows))
	for _, row := range res.Rows {
		if t, ok := row["event_object_table"].(string); ok {
			present[t] = true
		}
	}
	for _, r := range rules {
		if !present[r.Table] {
			return fmt.Errorf("%w: no capture trigger on %s.%s", conn.ErrAuditWrite, Schema, r.Table)
		}
	}
	return nil
}
