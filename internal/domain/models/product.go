package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LowStockThreshold: остаток, начиная с которого товар считается заканчивающимся
const LowStockThreshold = 10

// StockStatus: производный статус остатка товара
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockLow        StockStatus = "low_stock"
	StockOutOfStock StockStatus = "out_of_stock"
)

// Valid сообщает, известен ли статус
func (s StockStatus) Valid() bool {
	return s == StockInStock || s == StockLow || s == StockOutOfStock
}

// StockStatusOf вычисляет статус по количеству на складе
func StockStatusOf(quantity int) StockStatus {
	switch {
	case quantity <= 0:
		return StockOutOfStock
	case quantity <= LowStockThreshold:
		return StockLow
	default:
		return StockInStock
	}
}

// Product представляет товар фермера
type Product struct {
	ID            int64           `json:"product_id"`
	FarmerID      int64           `json:"farmer_id"`
	Name          string          `json:"product_name"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// StockStatus возвращает статус остатка, в БД он не хранится
func (p *Product) StockStatus() StockStatus {
	return StockStatusOf(p.StockQuantity)
}
