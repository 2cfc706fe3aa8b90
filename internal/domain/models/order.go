package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order представляет заказ, созданный из корзины при оформлении.
// После создания меняется только Status.
type Order struct {
	ID              int64           `json:"order_id"`
	Number          string          `json:"order_number"`
	CustomerID      int64           `json:"customer_id"`
	Lines           []OrderLine     `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"` // фиксируется при создании и больше не пересчитывается
	ShippingAddress string          `json:"shipping_address"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"order_date"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderLine: позиция заказа. FarmerID денормализован, чтобы выборки
// по фермеру не зависели от (возможно уже удалённого) товара.
type OrderLine struct {
	ID        int64           `json:"order_item_id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	FarmerID  int64           `json:"farmer_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
}

// Subtotal возвращает стоимость позиции
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// HasFarmer сообщает, продаёт ли фермер хотя бы одну позицию заказа
func (o *Order) HasFarmer(farmerID int64) bool {
	for _, l := range o.Lines {
		if l.FarmerID == farmerID {
			return true
		}
	}
	return false
}

// SumLines считает сумму позиций
func SumLines(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
