package repository

import (
	"context"

	"tidebase/internal/conn"
)

// Stats aggregates the dashboard headline numbers in one transaction so every
// figure reflects the same snapshot.
type Stats struct {
	Users        int64   `json:"users"`
	Products     int64   `json:"products"`
	Orders       int64   `json:"orders"`
	PendingOrder int64   `json:"pending_orders"`
	Revenue      float64 `json:"revenue"`
	AuditRecords int64   `json:"audit_records"`
}

// CategorySales is revenue attributed to one product category.
type CategorySales struct {
	Category string  `json:"category"`
	Units    int64   `json:"units"`
	Revenue  float64 `json:"revenue"`
}

type StatsInterface interface {
	Overview(ctx context.Context) (*Stats, error)
	SalesByCategory(ctx context.Context) ([]CategorySales, error)
}

type StatsRepository struct {
	runner Runner
}

func NewStatsRepository(runner Runner) *StatsRepository {
	return &StatsRepository{runner: runner}
}

func (r *StatsRepository) Overview(ctx context.Context) (*Stats, error) {
	stmts := []conn.Statement{
		{Kind: conn.Read, SQL: "SELECT count(*) AS n FROM ecommerce.users"},
		{Kind: conn.Read, SQL: "SELECT count(*) AS n FROM ecommerce.products"},
		{Kind: conn.Read, SQL: "SELECT count(*) AS n, count(*) FILTER (WHERE status = 'pending') AS pending FROM ecommerce.orders"},
		{Kind: conn.Read, SQL: "SELECT COALESCE(sum(total_amount), 0)::float8 AS revenue FROM ecommerce.orders WHERE status = 'completed'"},
		{Kind: conn.Read, SQL: "SELECT count(*) AS n FROM ecommerce.audit_log"},
	}
	results, err := r.runner.ExecuteAll(ctx, stmts)
	if err != nil {
		return nil, err
	}
	s := &Stats{}
	if rows := results[0].Rows; len(rows) > 0 {
		s.Users = asInt64(rows[0]["n"])
	}
	if rows := results[1].Rows; len(rows) > 0 {
		s.Products = asInt64(rows[0]["n"])
	}
	if rows := results[2].Rows; len(rows) > 0 {
		s.Orders = asInt64(rows[0]["n"])
		s.PendingOrder = asInt64(rows[0]["pending"])
	}
	if rows := results[3].Rows; len(rows) > 0 {
		s.Revenue = asFloat64(rows[0]["revenue"])
	}
	if rows := results[4].Rows; len(rows) > 0 {
		s.AuditRecords = asInt64(rows[0]["n"])
	}
	return s, nil
}

func (r *StatsRepository) SalesByCategory(ctx context.Context) ([]CategorySales, error) {
	res, err := r.runner.Execute(ctx, conn.Statement{
		Kind: conn.Read,
		SQL: `SELECT p.category,
		             COALESCE(sum(oi.quantity), 0) AS units,
		             COALESCE(sum(oi.quantity * oi.unit_price), 0)::float8 AS revenue
		        FROM ecommerce.products p
		        LEFT JOIN ecommerce.order_items oi ON oi.product_id = p.product_id
		       GROUP BY p.category
		       ORDER BY revenue DESC`,
	})
	if err != nil {
		return nil, err
	}
	out := make([]CategorySales, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, CategorySales{
			Category: asString(row["category"]),
			Units:    asInt64(row["units"]),
			Revenue:  asFloat64(row["revenue"]),
		})
	}
	return out, nil
}
