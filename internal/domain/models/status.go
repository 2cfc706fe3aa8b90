package models

import "fmt"

// OrderStatus: закрытое перечисление статусов заказа
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// transitions: таблица допустимых переходов. Терминальные статусы переходов не имеют.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  nil,
	StatusCancelled:  nil,
}

// ParseOrderStatus преобразует строку в статус
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// Valid сообщает, известен ли статус
func (s OrderStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo проверяет переход по таблице. Переход в тот же статус сюда не входит.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal: delivered и cancelled
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Next возвращает следующий статус по основной линейной цепочке
// pending → processing → shipped → delivered
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case StatusPending:
		return StatusProcessing, true
	case StatusProcessing:
		return StatusShipped, true
	case StatusShipped:
		return StatusDelivered, true
	}
	return "", false
}

// RestoresStock: при переходе в этот статус остатки возвращаются на склад
func (s OrderStatus) RestoresStock() bool {
	return s == StatusCancelled
}
