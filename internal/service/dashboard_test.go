package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tidebase/internal/conn"
	"tidebase/internal/model"
	"tidebase/internal/repository"
)

type fakeRunner struct {
	batches [][]conn.Statement
	err     error
}

func (f *fakeRunner) Execute(ctx context.Context, stmt conn.Statement) (conn.Result, error) {
	res, err := f.ExecuteAll(ctx, []conn.Statement{stmt})
	if err != nil {
		return conn.Result{}, err
	}
	return res[0], nil
}

func (f *fakeRunner) ExecuteAll(_ context.Context, stmts []conn.Statement) ([]conn.Result, error) {
	f.batches = append(f.batches, stmts)
	if f.err != nil {
		return nil, f.err
	}
	return make([]conn.Result, len(stmts)), nil
}

func importService(runner repository.Runner) *DashboardService {
	return NewDashboardService(nil, nil, nil, nil, runner)
}

func TestImportProductsSingleBatch(t *testing.T) {
	runner := &fakeRunner{}
	svc := importService(runner)

	csv := strings.Join([]string{
		"name,description,price,stock,category",
		"Laptop Pro 15,High performance laptop,1299.99,25,Electronics",
		"Office Chair,Mesh back,189.50,40,Furniture",
	}, "\n")

	n, err := svc.ImportProducts(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ImportProducts: %v", err)
	}
	if n != 2 {
		t.Errorf("imported = %d, want 2 (header skipped)", n)
	}
	if len(runner.batches) != 1 {
		t.Fatalf("batches = %d, want one transaction", len(runner.batches))
	}
	if len(runner.batches[0]) != 2 {
		t.Errorf("statements in batch = %d, want 2", len(runner.batches[0]))
	}
	for _, stmt := range runner.batches[0] {
		if stmt.Kind != conn.Write {
			t.Errorf("kind = %v, want Write", stmt.Kind)
		}
	}
}

func TestImportProductsRejectsBadRows(t *testing.T) {
	runner := &fakeRunner{}
	svc := importService(runner)

	cases := map[string]string{
		"bad price":   "Widget,desc,notaprice,5,Misc",
		"bad stock":   "Widget,desc,9.99,lots,Misc",
		"short row":   "Widget,desc,9.99",
		"empty input": "",
	}
	for name, csv := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ImportProducts(context.Background(), strings.NewReader(csv))
			if !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
	if len(runner.batches) != 0 {
		t.Error("rejected files must never reach the database")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	svc := NewDashboardService(nil, nil, nil, &stubOrders{}, &fakeRunner{})
	ctx := context.Background()

	line := repository.NewOrderLine{ProductID: 1, Quantity: 1, UnitPrice: 2.5}

	if _, err := svc.CreateOrder(ctx, repository.NewOrder{Lines: []repository.NewOrderLine{line}}); !errors.Is(err, ErrValidation) {
		t.Error("missing user must be rejected")
	}
	if _, err := svc.CreateOrder(ctx, repository.NewOrder{UserID: 1}); !errors.Is(err, ErrValidation) {
		t.Error("empty order must be rejected")
	}
	bad := repository.NewOrder{UserID: 1, Lines: []repository.NewOrderLine{{ProductID: 1, Quantity: 0, UnitPrice: 1}}}
	if _, err := svc.CreateOrder(ctx, bad); !errors.Is(err, ErrValidation) {
		t.Error("zero quantity must be rejected")
	}
	ok := repository.NewOrder{UserID: 1, PaymentMethod: "paypal", Lines: []repository.NewOrderLine{line}}
	if _, err := svc.CreateOrder(ctx, ok); err != nil {
		t.Errorf("valid order rejected: %v", err)
	}
}

func TestUpdateOrderStatusValidation(t *testing.T) {
	svc := NewDashboardService(nil, nil, nil, &stubOrders{}, &fakeRunner{})

	if _, err := svc.UpdateOrderStatus(context.Background(), 1, "shipped"); !errors.Is(err, ErrValidation) {
		t.Error("unknown status must be rejected")
	}
	if _, err := svc.UpdateOrderStatus(context.Background(), 1, "completed"); err != nil {
		t.Errorf("valid status rejected: %v", err)
	}
}

type stubOrders struct{}

func (stubOrders) List(context.Context, string, int) ([]model.Order, error) { return nil, nil }

func (stubOrders) Create(_ context.Context, o repository.NewOrder) (*model.Order, error) {
	return &model.Order{OrderID: 1, UserID: o.UserID, PaymentMethod: o.PaymentMethod}, nil
}

func (stubOrders) UpdateStatus(_ context.Context, orderID int64, status string) (*model.Order, error) {
	return &model.Order{OrderID: orderID, Status: status}, nil
}

func (stubOrders) Items(context.Context, int64) ([]model.OrderItem, error) { return nil, nil }
