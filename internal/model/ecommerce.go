package model

import (
	"encoding/json"
	"time"
)

type User struct {
	UserID      int64           `json:"user_id"`
	Email       string          `json:"email"`
	Username    string          `json:"username"`
	FullName    string          `json:"full_name"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	IsActive    bool            `json:"is_active"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
}

type Product struct {
	ProductID     int64     `json:"product_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Price         float64   `json:"price"`
	StockQuantity int       `json:"stock_quantity"`
	Category      string    `json:"category"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Order struct {
	OrderID         int64           `json:"order_id"`
	UserID          int64           `json:"user_id"`
	OrderDate       time.Time       `json:"order_date"`
	Status          string          `json:"status"`
	TotalAmount     float64         `json:"total_amount"`
	ShippingAddress json.RawMessage `json:"shipping_address,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
}

type OrderItem struct {
	OrderItemID int64   `json:"order_item_id"`
	OrderID     int64   `json:"order_id"`
	ProductID   int64   `json:"product_id"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
}

const (
	OrderPending   = "pending"
	OrderCompleted = "completed"
	OrderCancelled = "cancelled"
)
