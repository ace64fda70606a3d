package req

import "encoding/json"

type CreateProductRequest struct {
	Name          string   `json:"name" binding:"required"`
	Description   string   `json:"description"`
	Price         float64  `json:"price" binding:"required"`
	StockQuantity int      `json:"stock_quantity"`
	Category      string   `json:"category"`
	Tags          []string `json:"tags"`
}

type AdjustStockRequest struct {
	Delta int `json:"delta" binding:"required"`
}

type CreateUserRequest struct {
	Email       string          `json:"email" binding:"required,email"`
	Username    string          `json:"username" binding:"required"`
	FullName    string          `json:"full_name"`
	Metadata    json.RawMessage `json:"metadata"`
	Preferences json.RawMessage `json:"preferences"`
}

type UpdateUserRequest struct {
	Email       string          `json:"email" binding:"required,email"`
	FullName    string          `json:"full_name"`
	IsActive    *bool           `json:"is_active"`
	Preferences json.RawMessage `json:"preferences"`
}

type OrderLineRequest struct {
	ProductID int64   `json:"product_id" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required"`
	UnitPrice float64 `json:"unit_price" binding:"required"`
}

type CreateOrderRequest struct {
	UserID          int64              `json:"user_id" binding:"required"`
	ShippingAddress json.RawMessage    `json:"shipping_address"`
	PaymentMethod   string             `json:"payment_method"`
	Lines           []OrderLineRequest `json:"lines" binding:"required,dive"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
