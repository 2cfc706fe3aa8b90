package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/linemk/farm-shop/internal/storage"
)

type OrderQueryService interface {
	GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error)
	ListCustomerOrders(ctx context.Context, actor models.Actor) ([]*models.Order, error)
	ListFarmerOrders(ctx context.Context, actor models.Actor) ([]*models.Order, error)
}

type orderQueryService struct {
	log    *slog.Logger
	orders storage.OrderStorage
}

func NewOrderQueryService(log *slog.Logger, orders storage.OrderStorage) OrderQueryService {
	return &orderQueryService{log: log, orders: orders}
}

// GetOrder отдаёт заказ покупателю-владельцу или фермеру, чьи товары в нём есть.
// Фермер видит только свои позиции.
func (s *orderQueryService) GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	const op = "service.OrderQueryService.GetOrder"

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case actor.IsCustomer() && order.CustomerID == actor.ID:
		return order, nil
	case actor.IsFarmer() && order.HasFarmer(actor.ID):
		own := make([]models.OrderLine, 0, len(order.Lines))
		for _, l := range order.Lines {
			if l.FarmerID == actor.ID {
				own = append(own, l)
			}
		}
		order.Lines = own
		return order, nil
	}

	s.log.Warn("order access denied",
		slog.String("op", op),
		slog.Int64("orderID", orderID),
		slog.Int64("actorID", actor.ID),
	)
	return nil, &UnauthorizedActorError{ActorID: actor.ID, Action: fmt.Sprintf("view order %d", orderID)}
}

func (s *orderQueryService) ListCustomerOrders(ctx context.Context, actor models.Actor) ([]*models.Order, error) {
	const op = "service.OrderQueryService.ListCustomerOrders"

	if !actor.IsCustomer() {
		return nil, &UnauthorizedActorError{ActorID: actor.ID, Action: "list customer orders"}
	}
	orders, err := s.orders.ListOrdersByCustomer(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

func (s *orderQueryService) ListFarmerOrders(ctx context.Context, actor models.Actor) ([]*models.Order, error) {
	const op = "service.OrderQueryService.ListFarmerOrders"

	if !actor.IsFarmer() {
		return nil, &UnauthorizedActorError{ActorID: actor.ID, Action: "list farmer orders"}
	}
	orders, err := s.orders.ListOrdersByFarmer(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}
