package capture

import (
	"context"
	"fmt"

	"tidebase/internal/conn"
	"tidebase/pkg/logger"
)

// Seed loads a small demo dataset in one transaction. It is a no-op when the
// users table already has rows, so reprovisioning an environment never
// duplicates data.
func Seed(ctx context.Context, exec *conn.Executor) error {
	res, err := exec.Execute(ctx, conn.Statement{
		Kind: conn.Read,
		SQL:  "SELECT count(*) AS n FROM " + Schema + ".users",
	})
	if err != nil {
		return err
	}
	if len(res.Rows) > 0 {
		if n, ok := res.Rows[0]["n"].(int64); ok && n > 0 {
			logger.Info("seed skipped, data already present")
			return nil
		}
	}

	if _, err := exec.ExecuteAll(ctx, seedStatements()); err != nil {
		return fmt.Errorf("seed demo data: %w", err)
	}
	logger.Info("demo data seeded")
	return nil
}

func seedStatements() []conn.Statement {
	return []conn.Statement{
		{
			Kind: conn.Write,
			SQL: `INSERT INTO ` + Schema + `.users (email, username, full_name, metadata) VALUES
				('john.doe@example.com', 'johndoe', 'John Doe', '{"role": "customer", "tier": "gold"}'),
				('jane.smith@example.com', 'janesmith', 'Jane Smith', '{"role": "customer", "tier": "silver"}'),
				('admin@company.com', 'admin', 'Admin User', '{"role": "admin", "permissions": ["all"]}'),
				('bob.wilson@example.com', 'bobwilson', 'Bob Wilson', '{"role": "customer", "tier": "bronze"}'),
				('alice.johnson@example.com', 'alicejohnson', 'Alice Johnson', '{"role": "vendor", "store": "TechGadgets"}')`,
		},
		{
			Kind: conn.Write,
			SQL: `INSERT INTO ` + Schema + `.products (name, description, price, stock_quantity, category, tags) VALUES
				('Laptop Pro 2024', 'High-performance laptop with AI capabilities', 1999.99, 50, 'Electronics', ARRAY['laptop', 'ai', 'professional']),
				('Wireless Mouse', 'Ergonomic wireless mouse with precision tracking', 49.99, 200, 'Accessories', ARRAY['mouse', 'wireless', 'ergonomic']),
				('USB-C Hub', '7-in-1 USB-C hub with HDMI and SD card reader', 79.99, 150, 'Accessories', ARRAY['usb', 'hub', 'connectivity']),
				('AI Development Book', 'Complete guide to AI and machine learning', 59.99, 100, 'Books', ARRAY['ai', 'programming', 'education']),
				('Mechanical Keyboard', 'RGB mechanical keyboard with Cherry MX switches', 149.99, 75, 'Accessories', ARRAY['keyboard', 'gaming', 'rgb']),
				('4K Monitor', '32-inch 4K monitor with HDR support', 599.99, 30, 'Electronics', ARRAY['monitor', '4k', 'display']),
				('Webcam HD', '1080p webcam with noise-canceling microphone', 89.99, 120, 'Electronics', ARRAY['webcam', 'video', 'streaming']),
				('Desk Lamp', 'LED desk lamp with adjustable brightness', 39.99, 200, 'Accessories', ARRAY['lamp', 'led', 'office']),
				('Bluetooth Speaker', 'Portable speaker with 20-hour battery life', 79.99, 80, 'Electronics', ARRAY['speaker', 'bluetooth', 'portable']),
				('External SSD 1TB', 'Fast external SSD with USB 3.2 support', 129.99, 60, 'Electronics', ARRAY['storage', 'ssd', 'portable'])`,
		},
		{
			Kind: conn.Write,
			SQL: `INSERT INTO ` + Schema + `.orders (user_id, status, total_amount, shipping_address, payment_method) VALUES
				(1, 'completed', 2149.97, '{"street": "123 Main St", "city": "Denver", "state": "CO", "zip": "80202"}', 'credit_card'),
				(1, 'pending', 229.98, '{"street": "456 Oak Ave", "city": "Boulder", "state": "CO", "zip": "80301"}', 'paypal')`,
		},
		{
			Kind: conn.Write,
			SQL: `INSERT INTO ` + Schema + `.order_items (order_id, product_id, quantity, unit_price) VALUES
				(1, 1, 1, 1999.99),
				(1, 2, 3, 49.99),
				(2, 5, 1, 149.99),
				(2, 3, 1, 79.99)`,
		},
	}
}
