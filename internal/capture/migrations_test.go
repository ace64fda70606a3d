package capture

import (
	"strings"
	"testing"
)

func readMigration(t *testing.T, name string) string {
	t.Helper()
	b, err := migrationFS.ReadFile("migrations/" + name)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(b)
}

// The monitored tables must keep the exact shape the dashboard and its
// clients observe: jsonb documents, array tags, the generated subtotal
// and every inventory constraint.
func TestSchemaMigrationColumns(t *testing.T) {
	ddl := readMigration(t, "000001_ecommerce_schema.up.sql")

	wants := map[string][]string{
		"users": {
			"full_name VARCHAR(100)",
			"is_active BOOLEAN DEFAULT true",
			"metadata JSONB",
			"preferences JSONB DEFAULT '{}'::jsonb",
		},
		"products": {
			"CHECK (price >= 0)",
			"CHECK (stock_quantity >= 0)",
			"tags TEXT[]",
		},
		"orders": {
			"shipping_address JSONB",
			"payment_method VARCHAR(50)",
		},
		"order_items": {
			"CHECK (quantity > 0)",
			"GENERATED ALWAYS AS (quantity * unit_price) STORED",
			"ON DELETE CASCADE",
		},
	}
	for table, fragments := range wants {
		for _, want := range fragments {
			if !strings.Contains(ddl, want) {
				t.Errorf("%s: missing %q", table, want)
			}
		}
	}

	// All timestamps carry a zone.
	if strings.Contains(ddl, " TIMESTAMP ") || strings.Contains(ddl, " TIMESTAMP,") {
		t.Error("timestamps must be TIMESTAMPTZ")
	}

	for _, idx := range []string{
		"idx_users_email",
		"idx_products_category",
		"idx_orders_user_id",
		"idx_orders_status",
	} {
		if !strings.Contains(ddl, idx) {
			t.Errorf("missing index %s", idx)
		}
	}
}

func TestAuditLogMigration(t *testing.T) {
	ddl := readMigration(t, "000002_audit_log.up.sql")

	for _, want := range []string{
		"audit_id BIGSERIAL PRIMARY KEY",
		"CHECK (operation IN ('INSERT', 'UPDATE', 'DELETE'))",
		"TIMESTAMPTZ",
		"idx_audit_log_created_at",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("audit_log: missing %q", want)
		}
	}
}

// Seed rows must satisfy the schema they land in.
func TestSeedMatchesSchema(t *testing.T) {
	var parts []string
	for _, stmt := range seedStatements() {
		parts = append(parts, stmt.SQL)
	}
	joined := strings.Join(parts, "\n")
	for _, want := range []string{
		"metadata",
		"shipping_address",
		"ARRAY[",
		"credit_card",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("seed data missing %q", want)
		}
	}
}
