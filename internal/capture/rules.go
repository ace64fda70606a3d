package capture

import (
	"fmt"
	"regexp"
)

// CaptureRule binds one monitored table to the shared capture trigger. The
// key column is handed to the trigger function at install time (TG_ARGV), so
// one parameterized function covers every table instead of a near-identical
// procedure per table.
type CaptureRule struct {
	Table     string
	KeyColumn string
}

// DefaultRules are the monitored tables of the reference domain.
func DefaultRules() []CaptureRule {
	return []CaptureRule{
		{Table: "users", KeyColumn: "user_id"},
		{Table: "products", KeyColumn: "product_id"},
		{Table: "orders", KeyColumn: "order_id"},
		{Table: "order_items", KeyColumn: "order_item_id"},
	}
}

// identRe guards the identifiers spliced into trigger DDL. DDL cannot be
// parameterized, so only plain lowercase identifiers are accepted.
var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func (r CaptureRule) validate() error {
	if !identRe.MatchString(r.Table) {
		return fmt.Errorf("invalid table name %q", r.Table)
	}
	if !identRe.MatchString(r.KeyColumn) {
		return fmt.Errorf("invalid key column %q for table %s", r.KeyColumn, r.Table)
	}
	return nil
}
