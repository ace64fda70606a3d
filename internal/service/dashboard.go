package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tidebase/internal/conn"
	"tidebase/internal/model"
	"tidebase/internal/repository"
	"tidebase/pkg/logger"

	"go.uber.org/zap"
)

var ErrValidation = errors.New("validation failed")

// DashboardService backs the dashboard endpoints: headline stats, entity
// management and bulk loads.
type DashboardService struct {
	stats    repository.StatsInterface
	products repository.ProductInterface
	users    repository.UserInterface
	orders   repository.OrderInterface
	runner   repository.Runner
}

func NewDashboardService(
	stats repository.StatsInterface,
	products repository.ProductInterface,
	users repository.UserInterface,
	orders repository.OrderInterface,
	runner repository.Runner,
) *DashboardService {
	return &DashboardService{
		stats:    stats,
		products: products,
		users:    users,
		orders:   orders,
		runner:   runner,
	}
}

// Overview bundles the headline numbers with category sales.
type Overview struct {
	Stats      *repository.Stats          `json:"stats"`
	Categories []repository.CategorySales `json:"categories"`
}

func (s *DashboardService) Overview(ctx context.Context) (*Overview, error) {
	st, err := s.stats.Overview(ctx)
	if err != nil {
		return nil, err
	}
	cats, err := s.stats.SalesByCategory(ctx)
	if err != nil {
		return nil, err
	}
	return &Overview{Stats: st, Categories: cats}, nil
}

func (s *DashboardService) ListProducts(ctx context.Context, category string, limit int) ([]model.Product, error) {
	return s.products.List(ctx, category, limit)
}

func (s *DashboardService) CreateProduct(ctx context.Context, p *model.Product) (*model.Product, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: product name required", ErrValidation)
	}
	if p.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if p.StockQuantity < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrValidation)
	}
	return s.products.Create(ctx, p)
}

func (s *DashboardService) AdjustStock(ctx context.Context, productID int64, delta int) (*model.Product, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: stock delta must be non-zero", ErrValidation)
	}
	return s.products.AdjustStock(ctx, productID, delta)
}

func (s *DashboardService) DeleteProduct(ctx context.Context, productID int64) error {
	n, err := s.products.Delete(ctx, productID)
	if err != nil {
		return err
	}
	if n == 0 {
		return conn.ErrNoRows
	}
	return nil
}

func (s *DashboardService) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	return s.users.List(ctx, limit)
}

func (s *DashboardService) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	if u.Username == "" || u.Email == "" {
		return nil, fmt.Errorf("%w: username and email required", ErrValidation)
	}
	return s.users.Create(ctx, u)
}

func (s *DashboardService) UpdateUser(ctx context.Context, p repository.UserPatch) (*model.User, error) {
	if p.UserID == 0 {
		return nil, fmt.Errorf("%w: user id required", ErrValidation)
	}
	return s.users.Update(ctx, p)
}

func (s *DashboardService) DeleteUser(ctx context.Context, userID int64) error {
	n, err := s.users.Delete(ctx, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return conn.ErrNoRows
	}
	return nil
}

func (s *DashboardService) ListOrders(ctx context.Context, status string, limit int) ([]model.Order, error) {
	if status != "" && status != model.OrderPending && status != model.OrderCompleted && status != model.OrderCancelled {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, status)
	}
	return s.orders.List(ctx, status, limit)
}

func (s *DashboardService) CreateOrder(ctx context.Context, o repository.NewOrder) (*model.Order, error) {
	if o.UserID == 0 {
		return nil, fmt.Errorf("%w: user id required", ErrValidation)
	}
	if len(o.Lines) == 0 {
		return nil, fmt.Errorf("%w: order needs at least one line", ErrValidation)
	}
	for _, l := range o.Lines {
		if l.ProductID == 0 || l.Quantity <= 0 || l.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: bad order line for product %d", ErrValidation, l.ProductID)
		}
	}
	return s.orders.Create(ctx, o)
}

func (s *DashboardService) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*model.Order, error) {
	if status != model.OrderPending && status != model.OrderCompleted && status != model.OrderCancelled {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, status)
	}
	return s.orders.UpdateStatus(ctx, orderID, status)
}

func (s *DashboardService) OrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return s.orders.Items(ctx, orderID)
}

// ImportProducts loads a CSV of name,description,price,stock,category rows as
// a single transaction. Either the whole file lands or none of it does.
func (s *DashboardService) ImportProducts(ctx context.Context, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.TrimLeadingSpace = true

	var stmts []conn.Statement
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: csv line %d: %v", ErrValidation, line+1, err)
		}
		line++
		if line == 1 && strings.EqualFold(rec[0], "name") {
			continue
		}
		price, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: csv line %d: bad price %q", ErrValidation, line, rec[2])
		}
		stock, err := strconv.Atoi(rec[3])
		if err != nil {
			return 0, fmt.Errorf("%w: csv line %d: bad stock %q", ErrValidation, line, rec[3])
		}
		stmts = append(stmts, conn.Statement{
			Kind: conn.Write,
			SQL: `INSERT INTO ecommerce.products (name, description, price, stock_quantity, category)
			      VALUES ($1, $2, $3, $4, $5)`,
			Args: []any{rec[0], rec[1], price, stock, rec[4]},
		})
	}
	if len(stmts) == 0 {
		return 0, fmt.Errorf("%w: csv contained no rows", ErrValidation)
	}

	if _, err := s.runner.ExecuteAll(ctx, stmts); err != nil {
		return 0, err
	}
	logger.Info("products imported", zap.Int("count", len(stmts)))
	return len(stmts), nil
}
