package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"tidebase/internal/conn"
	"tidebase/internal/dto/req"
	"tidebase/internal/dto/resp"
	"tidebase/internal/model"
	"tidebase/internal/repository"
	"tidebase/internal/service"

	"github.com/gin-gonic/gin"
)

type DashboardProvider interface {
	Overview(ctx context.Context) (*service.Overview, error)
	ListProducts(ctx context.Context, category string, limit int) ([]model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) (*model.Product, error)
	AdjustStock(ctx context.Context, productID int64, delta int) (*model.Product, error)
	DeleteProduct(ctx context.Context, productID int64) error
	ListUsers(ctx context.Context, limit int) ([]model.User, error)
	CreateUser(ctx context.Context, u *model.User) (*model.User, error)
	UpdateUser(ctx context.Context, p repository.UserPatch) (*model.User, error)
	DeleteUser(ctx context.Context, userID int64) error
	ListOrders(ctx context.Context, status string, limit int) ([]model.Order, error)
	CreateOrder(ctx context.Context, o repository.NewOrder) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*model.Order, error)
	OrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	ImportProducts(ctx context.Context, r io.Reader) (int, error)
}

type HealthProvider interface {
	Check(ctx context.Context) *service.HealthReport
}

type DashboardHandler struct {
	service DashboardProvider
	health  HealthProvider
}

func NewDashboardHandler(service DashboardProvider, health HealthProvider) *DashboardHandler {
	return &DashboardHandler{service: service, health: health}
}

// writeError maps the service error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, conn.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, conn.ErrEndpointNotFound):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		var exhausted *conn.ExhaustedError
		if errors.As(err, &exhausted) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": exhausted.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func queryInt(c *gin.Context, name string, def int) int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func (h *DashboardHandler) HealthCheck(c *gin.Context) {
	report := h.health.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *DashboardHandler) GetOverview(c *gin.Context) {
	ov, err := h.service.Overview(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

func (h *DashboardHandler) ListProducts(c *gin.Context) {
	products, err := h.service.ListProducts(c.Request.Context(), c.Query("category"), queryInt(c, "limit", 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *DashboardHandler) CreateProduct(c *gin.Context) {
	var r req.CreateProductRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}
	p, err := h.service.CreateProduct(c.Request.Context(), &model.Product{
		Name:          r.Name,
		Description:   r.Description,
		Price:         r.Price,
		StockQuantity: r.StockQuantity,
		Category:      r.Category,
		Tags:          r.Tags,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *DashboardHandler) AdjustStock(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var r req.AdjustStockRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}
	p, err := h.service.AdjustStock(c.Request.Context(), id, r.Delta)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *DashboardHandler) DeleteProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteProduct(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.DeleteResponse{Deleted: true})
}

// ImportTemplate serves the CSV header and an example row for bulk imports.
func (h *DashboardHandler) ImportTemplate(c *gin.Context) {
	const template = "name,description,price,stock_quantity,category\n" +
		"Laptop Pro,15-inch developer laptop,1299.99,25,Electronics\n"
	c.Header("Content-Disposition", `attachment; filename="products_template.csv"`)
	c.Data(http.StatusOK, "text/csv", []byte(template))
}

func (h *DashboardHandler) ImportProducts(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart file field required"})
		return
	}
	defer file.Close()

	n, err := h.service.ImportProducts(c.Request.Context(), file)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.ImportResponse{Imported: n})
}

func (h *DashboardHandler) ListUsers(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *DashboardHandler) CreateUser(c *gin.Context) {
	var r req.CreateUserRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}
	u, err := h.service.CreateUser(c.Request.Context(), &model.User{
		Username:    r.Username,
		Email:       r.Email,
		FullName:    r.FullName,
		Metadata:    r.Metadata,
		Preferences: r.Preferences,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *DashboardHandler) UpdateUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var r req.UpdateUserRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}
	u, err := h.service.UpdateUser(c.Request.Context(), repository.UserPatch{
		UserID:      id,
		Email:       r.Email,
		FullName:    r.FullName,
		IsActive:    r.IsActive,
		Preferences: r.Preferences,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *DashboardHandler) DeleteUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteUser(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.DeleteResponse{Deleted: true})
}

func (h *DashboardHandler) ListOrders(c *gin.Context) {
	orders, err := h.service.ListOrders(c.Request.Context(), c.Query("status"), queryInt(c, "limit", 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *DashboardHandler) CreateOrder(c *gin.Context) {
	var r req.CreateOrderRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}
	lines := make([]repository.NewOrderLine, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = repository.NewOrderLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}
	o, err := h.service.CreateOrder(c.Request.Context(), repository.NewOrder{
		UserID:          r.UserID,
		ShippingAddress: r.ShippingAddress,
		PaymentMethod:   r.PaymentMethod,
		Lines:           lines,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *DashboardHandler) UpdateOrderStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var r req.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}
	o, err := h.service.UpdateOrderStatus(c.Request.Context(), id, r.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *DashboardHandler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, err := h.service.OrderItems(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.OrderDetailResponse{Items: items})
}
