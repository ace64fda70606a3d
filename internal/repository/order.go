package repository

import (
	"context"
	"encoding/json"

	"tidebase/internal/conn"
	"tidebase/internal/model"
)

// NewOrderLine is one requested line of a new order.
type NewOrderLine struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// NewOrder is the full creation request: header fields plus lines.
type NewOrder struct {
	UserID          int64
	ShippingAddress json.RawMessage
	PaymentMethod   string
	Lines           []NewOrderLine
}

type OrderInterface interface {
	List(ctx context.Context, status string, limit int) ([]model.Order, error)
	Create(ctx context.Context, o NewOrder) (*model.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status string) (*model.Order, error)
	Items(ctx context.Context, orderID int64) ([]model.OrderItem, error)
}

type OrderRepository struct {
	runner Runner
}

func NewOrderRepository(runner Runner) *OrderRepository {
	return &OrderRepository{runner: runner}
}

const orderColumns = "order_id, user_id, order_date, status, total_amount::float8 AS total_amount, shipping_address, payment_method"

func (r *OrderRepository) List(ctx context.Context, status string, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT " + orderColumns + " FROM ecommerce.orders"
	args := []any{}
	if status != "" {
		sql += " WHERE status = $1"
		args = append(args, status)
	}
	args = append(args, limit)
	if len(args) == 1 {
		sql += " ORDER BY order_id DESC LIMIT $1"
	} else {
		sql += " ORDER BY order_id DESC LIMIT $2"
	}

	res, err := r.runner.Execute(ctx, conn.Statement{Kind: conn.Read, SQL: sql, Args: args})
	if err != nil {
		return nil, err
	}
	return orderRows(res.Rows), nil
}

// Create inserts the order, its lines and the stock decrement in a single
// transaction. The line inserts ride a CTE off the returned order id, so the
// whole order lands or none of it does; the stock_quantity >= 0 check on
// products makes an over-order roll the whole batch back.
func (r *OrderRepository) Create(ctx context.Context, o NewOrder) (*model.Order, error) {
	productIDs := make([]int64, len(o.Lines))
	quantities := make([]int, len(o.Lines))
	prices := make([]float64, len(o.Lines))
	total := 0.0
	for i, l := range o.Lines {
		productIDs[i] = l.ProductID
		quantities[i] = l.Quantity
		prices[i] = l.UnitPrice
		total += float64(l.Quantity) * l.UnitPrice
	}

	stmts := []conn.Statement{
		{
			Kind: conn.WriteReturning,
			SQL: `WITH o AS (
			        INSERT INTO ecommerce.orders (user_id, status, total_amount, shipping_address, payment_method)
			        VALUES ($1, 'pending', $2, $3, $4)
			        RETURNING order_id, user_id, order_date, status, total_amount, shipping_address, payment_method
			      ), items AS (
			        INSERT INTO ecommerce.order_items (order_id, product_id, quantity, unit_price)
			        SELECT o.order_id, t.pid, t.qty, t.price
			          FROM o, unnest($5::bigint[], $6::int[], $7::numeric[]) AS t(pid, qty, price)
			      )
			      SELECT order_id, user_id, order_date, status, total_amount::float8 AS total_amount, shipping_address, payment_method FROM o`,
			Args: []any{o.UserID, total, emptyToNil(o.ShippingAddress), o.PaymentMethod, productIDs, quantities, prices},
		},
		{
			Kind: conn.Write,
			SQL: `UPDATE ecommerce.products p
			         SET stock_quantity = p.stock_quantity - t.qty, updated_at = CURRENT_TIMESTAMP
			        FROM unnest($1::bigint[], $2::int[]) AS t(pid, qty)
			       WHERE p.product_id = t.pid`,
			Args: []any{productIDs, quantities},
		},
	}

	results, err := r.runner.ExecuteAll(ctx, stmts)
	if err != nil {
		return nil, err
	}
	rows := orderRows(results[0].Rows)
	if len(rows) == 0 {
		return nil, conn.ErrNoRows
	}
	return &rows[0], nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID int64, status string) (*model.Order, error) {
	res, err := r.runner.Execute(ctx, conn.Statement{
		Kind: conn.WriteReturning,
		SQL: `UPDATE ecommerce.orders
		         SET status = $2
		       WHERE order_id = $1
		      RETURNING ` + orderColumns,
		Args: []any{orderID, status},
	})
	if err != nil {
		return nil, err
	}
	rows := orderRows(res.Rows)
	if len(rows) == 0 {
		return nil, conn.ErrNoRows
	}
	return &rows[0], nil
}

func (r *OrderRepository) Items(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	res, err := r.runner.Execute(ctx, conn.Statement{
		Kind: conn.Read,
		SQL: `SELECT order_item_id, order_id, product_id, quantity, unit_price::float8 AS unit_price, subtotal::float8 AS subtotal
		        FROM ecommerce.order_items WHERE order_id = $1 ORDER BY order_item_id`,
		Args: []any{orderID},
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.OrderItem, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, model.OrderItem{
			OrderItemID: asInt64(row["order_item_id"]),
			OrderID:     asInt64(row["order_id"]),
			ProductID:   asInt64(row["product_id"]),
			Quantity:    asInt(row["quantity"]),
			UnitPrice:   asFloat64(row["unit_price"]),
			Subtotal:    asFloat64(row["subtotal"]),
		})
	}
	return out, nil
}

func orderRows(rows []map[string]any) []model.Order {
	out := make([]model.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Order{
			OrderID:         asInt64(row["order_id"]),
			UserID:          asInt64(row["user_id"]),
			OrderDate:       asTime(row["order_date"]),
			Status:          asString(row["status"]),
			TotalAmount:     asFloat64(row["total_amount"]),
			ShippingAddress: asRawJSON(row["shipping_address"]),
			PaymentMethod:   asString(row["payment_method"]),
		})
	}
	return out
}
