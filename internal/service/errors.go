package service

import (
	"errors"
	"fmt"

	"github.com/linemk/farm-shop/internal/domain/models"
)

// Ошибки клиентского ввода. Сообщение отдаётся вызывающему как есть.

var (
	ErrEmptyCart       = &EmptyCartError{}
	ErrInvalidAddress  = &InvalidAddressError{}
	ErrInvalidCreds    = errors.New("invalid credentials")
	ErrInvalidQuantity = errors.New("quantity must be non-negative")
	ErrInvalidPrice    = errors.New("price must be positive")
)

type EmptyCartError struct{}

func (e *EmptyCartError) Error() string { return "order must contain items" }

type InvalidAddressError struct{}

func (e *InvalidAddressError) Error() string { return "shipping address is required" }

// ProductUnavailableError: товар не найден, неактивен или его недостаточно.
// При нехватке остатка оборачивает InsufficientStockError.
type ProductUnavailableError struct {
	ProductID int64
	Reason    string
	Err       error
}

func (e *ProductUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("product %d is unavailable: %v", e.ProductID, e.Err)
	}
	return fmt.Sprintf("product %d is unavailable: %s", e.ProductID, e.Reason)
}

func (e *ProductUnavailableError) Unwrap() error { return e.Err }

type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int // -1, если остаток неизвестен (условное списание не прошло)
}

func (e *InsufficientStockError) Error() string {
	if e.Available < 0 {
		return fmt.Sprintf("insufficient stock for product %d, requested: %d", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for product %d. Available: %d, Requested: %d", e.ProductID, e.Available, e.Requested)
}

type IllegalTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

type InvalidStatusError struct {
	Status string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q", e.Status)
}

type UnauthorizedActorError struct {
	ActorID int64
	Action  string
}

func (e *UnauthorizedActorError) Error() string {
	return fmt.Sprintf("user %d is not allowed to %s", e.ActorID, e.Action)
}
