// Package cart: корзина покупателя. Живёт в памяти одного сеанса и
// на сервере не сохраняется до оформления заказа.
package cart

import "github.com/shopspring/decimal"

// Line: позиция корзины
type Line struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal // цена на момент добавления, только для отображения
}

// Subtotal возвращает стоимость позиции
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart хранит позиции в порядке добавления. Повторное добавление товара
// увеличивает количество, ошибок корзина не возвращает.
// Не потокобезопасна: принадлежит одному сеансу.
type Cart struct {
	lines []Line
	index map[int64]int // productID -> позиция в lines
}

func New() *Cart {
	return &Cart{index: make(map[int64]int)}
}

// Add добавляет qty единиц товара. qty < 1 считается за 1.
func (c *Cart) Add(productID int64, unitPrice decimal.Decimal, qty int) {
	if qty < 1 {
		qty = 1
	}
	if c.index == nil {
		c.index = make(map[int64]int)
	}
	if i, ok := c.index[productID]; ok {
		c.lines[i].Quantity += qty
		return
	}
	c.index[productID] = len(c.lines)
	c.lines = append(c.lines, Line{ProductID: productID, Quantity: qty, UnitPrice: unitPrice})
}

// Remove удаляет позицию, отсутствие товара не ошибка
func (c *Cart) Remove(productID int64) {
	i, ok := c.index[productID]
	if !ok {
		return
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	delete(c.index, productID)
	for j := i; j < len(c.lines); j++ {
		c.index[c.lines[j].ProductID] = j
	}
}

// SetQuantity задаёт количество; qty <= 0 равносильно Remove
func (c *Cart) SetQuantity(productID int64, qty int) {
	if qty <= 0 {
		c.Remove(productID)
		return
	}
	if i, ok := c.index[productID]; ok {
		c.lines[i].Quantity = qty
	}
}

// Clear очищает корзину
func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[int64]int)
}

// Total: ориентировочная сумма. При оформлении цены берутся с сервера.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (c *Cart) Len() int {
	return len(c.lines)
}

// Lines возвращает копию позиций
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Snapshot: неизменяемый снимок корзины, передаётся в оформление по значению
type Snapshot struct {
	Lines []Line
}

func (c *Cart) Snapshot() Snapshot {
	return Snapshot{Lines: c.Lines()}
}

func (s Snapshot) Empty() bool {
	return len(s.Lines) == 0
}
