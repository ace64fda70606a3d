package service

import (
	"context"
	"fmt"
	"sort"

	"tidebase/internal/conn"
	"tidebase/internal/repository"
)

// sampleQueries are the read-only queries the dashboard query runner exposes.
// Arbitrary SQL never crosses the API boundary; clients pick one by name.
var sampleQueries = map[string]string{
	"recent_orders": `SELECT o.order_id, u.username, o.status, o.total_amount::float8 AS total_amount, o.order_date
	                    FROM ecommerce.orders o
	                    JOIN ecommerce.users u ON u.user_id = o.user_id
	                   ORDER BY o.order_date DESC LIMIT 20`,
	"top_products": `SELECT p.name, p.category, COALESCE(sum(oi.quantity), 0) AS units_sold
	                   FROM ecommerce.products p
	                   LEFT JOIN ecommerce.order_items oi ON oi.product_id = p.product_id
	                  GROUP BY p.product_id, p.name, p.category
	                  ORDER BY units_sold DESC LIMIT 10`,
	"low_stock": `SELECT product_id, name, category, stock_quantity
	                FROM ecommerce.products
	               WHERE stock_quantity < 20
	               ORDER BY stock_quantity ASC`,
	"user_spend": `SELECT u.username, count(o.order_id) AS orders, COALESCE(sum(o.total_amount), 0)::float8 AS spend
	                 FROM ecommerce.users u
	                 LEFT JOIN ecommerce.orders o ON o.user_id = u.user_id
	                GROUP BY u.user_id, u.username
	                ORDER BY spend DESC`,
}

// QueryService runs named sample queries.
type QueryService struct {
	runner repository.Runner
}

func NewQueryService(runner repository.Runner) *QueryService {
	return &QueryService{runner: runner}
}

// Names lists the available queries in stable order.
func (s *QueryService) Names() []string {
	names := make([]string, 0, len(sampleQueries))
	for name := range sampleQueries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *QueryService) Run(ctx context.Context, name string) ([]map[string]any, error) {
	sql, ok := sampleQueries[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown query %q", ErrValidation, name)
	}
	res, err := s.runner.Execute(ctx, conn.Statement{Kind: conn.Read, SQL: sql})
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}
