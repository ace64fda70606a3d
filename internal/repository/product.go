package repository

import (
	"context"
	"fmt"

	"tidebase/internal/conn"
	"tidebase/internal/model"
)

type ProductInterface interface {
	List(ctx context.Context, category string, limit int) ([]model.Product, error)
	Create(ctx context.Context, p *model.Product) (*model.Product, error)
	AdjustStock(ctx context.Context, productID int64, delta int) (*model.Product, error)
	Delete(ctx context.Context, productID int64) (int64, error)
}

type ProductRepository struct {
	runner Runner
}

func NewProductRepository(runner Runner) *ProductRepository {
	return &ProductRepository{runner: runner}
}

const productColumns = "product_id, name, description, price::float8 AS price, stock_quantity, category, tags, created_at, updated_at"

func (r *ProductRepository) List(ctx context.Context, category string, limit int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT " + productColumns + " FROM ecommerce.products"
	args := []any{}
	if category != "" {
		sql += " WHERE category = $1"
		args = append(args, category)
	}
	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY product_id DESC LIMIT $%d", len(args))

	res, err := r.runner.Execute(ctx, conn.Statement{Kind: conn.Read, SQL: sql, Args: args})
	if err != nil {
		return nil, err
	}
	return productRows(res.Rows), nil
}

// Create inserts and returns the stored row, defaults and all, in one round
// trip.
func (r *ProductRepository) Create(ctx context.Context, p *model.Product) (*model.Product, error) {
	res, err := r.runner.Execute(ctx, conn.Statement{
		Kind: conn.WriteReturning,
		SQL: `INSERT INTO ecommerce.products (name, description, price, stock_quantity, category, tags)
		      VALUES ($1, $2, $3, $4, $5, $6)
		      RETURNING ` + productColumns,
		Args: []any{p.Name, p.Description, p.Price, p.StockQuantity, p.Category, p.Tags},
	})
	if err != nil {
		return nil, err
	}
	rows := productRows(res.Rows)
	if len(rows) == 0 {
		return nil, conn.ErrNoRows
	}
	return &rows[0], nil
}

func (r *ProductRepository) AdjustStock(ctx context.Context, productID int64, delta int) (*model.Product, error) {
	res, err := r.runner.Execute(ctx, conn.Statement{
		Kind: conn.WriteReturning,
		SQL: `UPDATE ecommerce.products
		         SET stock_quantity = stock_quantity + $2, updated_at = CURRENT_TIMESTAMP
		       WHERE product_id = $1
		      RETURNING ` + productColumns,
		Args: []any{productID, delta},
	})
	if err != nil {
		return nil, err
	}
	rows := productRows(res.Rows)
	if len(rows) == 0 {
		return nil, conn.ErrNoRows
	}
	return &rows[0], nil
}

func (r *ProductRepository) Delete(ctx context.Context, productID int64) (int64, error) {
	res, err := r.runner.Execute(ctx, conn.Statement{
		Kind: conn.Write,
		SQL:  "DELETE FROM ecommerce.products WHERE product_id = $1",
		Args: []any{productID},
	})
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

func productRows(rows []map[string]any) []model.Product {
	out := make([]model.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Product{
			ProductID:     asInt64(row["product_id"]),
			Name:          asString(row["name"]),
			Description:   asString(row["description"]),
			Price:         asFloat64(row["price"]),
			StockQuantity: asInt(row["stock_quantity"]),
			Category:      asString(row["category"]),
			Tags:          asStringSlice(row["tags"]),
			CreatedAt:     asTime(row["created_at"]),
			UpdatedAt:     asTime(row["updated_at"]),
		})
	}
	return out
}
