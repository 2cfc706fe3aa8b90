package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/linemk/farm-shop/internal/domain/models"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderStorage описывает методы для работы с заказами и их позициями.
type OrderStorage interface {
	// CreateOrderTx вставляет заказ и его позиции, заполняя идентификаторы.
	CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) error
	// GetOrderByID возвращает заказ со всеми позициями.
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	// LockOrderTx читает заказ с блокировкой строки (FOR UPDATE).
	LockOrderTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error)
	// UpdateOrderStatusTx меняет статус и возвращает новое updated_at.
	UpdateOrderStatusTx(ctx context.Context, tx *sql.Tx, id int64, status models.OrderStatus) (time.Time, error)
	// ListOrdersByCustomer возвращает заказы покупателя, новые первыми.
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]*models.Order, error)
	// ListOrdersByFarmer возвращает заказы с товарами фермера; в Lines только его позиции.
	ListOrdersByFarmer(ctx context.Context, farmerID int64) ([]*models.Order, error)
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

const orderColumns = "order_id, order_number, customer_id, total_amount, shipping_address, status, created_at, updated_at"

const lineColumns = "order_item_id, order_id, product_id, farmer_id, quantity, price_at_purchase"

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	var status string
	if err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &o.TotalAmount, &o.ShippingAddress, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	return o, nil
}

func (r *orderRepository) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	query := `INSERT INTO orders (order_number, customer_id, total_amount, shipping_address, status)
	          VALUES ($1, $2, $3, $4, $5) RETURNING order_id, created_at, updated_at`
	err := tx.QueryRowContext(ctx, query, order.Number, order.CustomerID, order.TotalAmount, order.ShippingAddress, string(order.Status)).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	lineQuery := `INSERT INTO order_items (order_id, product_id, farmer_id, quantity, price_at_purchase)
	              VALUES ($1, $2, $3, $4, $5) RETURNING order_item_id`
	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		if err := tx.QueryRowContext(ctx, lineQuery, order.ID, line.ProductID, line.FarmerID, line.Quantity, line.UnitPrice).
			Scan(&line.ID); err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE order_id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	lines, err := queryLines(ctx, r.db, "SELECT "+lineColumns+" FROM order_items WHERE order_id = $1 ORDER BY order_item_id", id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

func (r *orderRepository) LockOrderTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order, err := scanOrder(tx.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE order_id = $1 FOR UPDATE", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	lines, err := queryLines(ctx, tx, "SELECT "+lineColumns+" FROM order_items WHERE order_id = $1 ORDER BY order_item_id", id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

func (r *orderRepository) UpdateOrderStatusTx(ctx context.Context, tx *sql.Tx, id int64, status models.OrderStatus) (time.Time, error) {
	var updatedAt time.Time
	err := tx.QueryRowContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE order_id = $2 RETURNING updated_at",
		string(status), id,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrOrderNotFound
		}
		return time.Time{}, fmt.Errorf("failed to update order status: %w", err)
	}
	return updatedAt, nil
}

func (r *orderRepository) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]*models.Order, error) {
	orders, err := r.listOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	if err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, orders,
		"SELECT "+lineColumns+" FROM order_items WHERE order_id = ANY($1) ORDER BY order_item_id"); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListOrdersByFarmer(ctx context.Context, farmerID int64) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE order_id IN (SELECT order_id FROM order_items WHERE farmer_id = $1)
		ORDER BY created_at DESC`
	orders, err := r.listOrders(ctx, query, farmerID)
	if err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, orders,
		"SELECT "+lineColumns+" FROM order_items WHERE order_id = ANY($1) AND farmer_id = $2 ORDER BY order_item_id", farmerID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) listOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachLines одним запросом подтягивает позиции для списка заказов
func (r *orderRepository) attachLines(ctx context.Context, orders []*models.Order, query string, extra ...any) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	args := append([]any{pq.Array(ids)}, extra...)
	lines, err := queryLines(ctx, r.db, query, args...)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if o, ok := byID[l.OrderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryLines(ctx context.Context, q queryer, query string, args ...any) ([]models.OrderLine, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var l models.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.FarmerID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
