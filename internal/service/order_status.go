package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/linemk/farm-shop/internal/events"
	"github.com/linemk/farm-shop/internal/metrics"
	"github.com/linemk/farm-shop/internal/storage"
)

// OrderStatusService ведёт заказ по жизненному циклу
type OrderStatusService interface {
	Transition(ctx context.Context, actor models.Actor, orderID int64, newStatus string) (*models.Order, error)
}

type orderStatusService struct {
	log       *slog.Logger
	db        *sql.DB
	orders    storage.OrderStorage
	stock     *StockReconciler
	publisher events.Publisher
	metrics   *metrics.OrderMetrics
}

func NewOrderStatusService(
	log *slog.Logger,
	db *sql.DB,
	orders storage.OrderStorage,
	stock *StockReconciler,
	publisher events.Publisher,
	m *metrics.OrderMetrics,
) OrderStatusService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &orderStatusService{
		log:       log,
		db:        db,
		orders:    orders,
		stock:     stock,
		publisher: publisher,
		metrics:   m,
	}
}

// ValidateTransition проверяет, может ли actor перевести order в статус to.
// changed == false означает повторную установку текущего статуса: это не ошибка, но и не изменение.
func ValidateTransition(order *models.Order, to models.OrderStatus, actor models.Actor) (changed bool, err error) {
	if !to.Valid() {
		return false, &InvalidStatusError{Status: string(to)}
	}
	if !actor.IsFarmer() || !order.HasFarmer(actor.ID) {
		return false, &UnauthorizedActorError{ActorID: actor.ID, Action: fmt.Sprintf("update order %d", order.ID)}
	}
	if order.Status == to {
		return false, nil
	}
	if !order.Status.CanTransitionTo(to) {
		return false, &IllegalTransitionError{From: order.Status, To: to}
	}
	return true, nil
}

// Transition меняет статус заказа.
// Переход в cancelled возвращает на склад все позиции заказа в той же транзакции.
func (s *orderStatusService) Transition(ctx context.Context, actor models.Actor, orderID int64, newStatus string) (*models.Order, error) {
	const op = "service.OrderStatusService.Transition"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("orderID", orderID),
		slog.Int64("actorID", actor.ID),
		slog.String("newStatus", newStatus),
	)

	to, err := models.ParseOrderStatus(newStatus)
	if err != nil {
		return nil, &InvalidStatusError{Status: newStatus}
	}
	if !actor.IsFarmer() {
		return nil, &UnauthorizedActorError{ActorID: actor.ID, Action: "update order status"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	order, err := s.orders.LockOrderTx(ctx, tx, orderID)
	if err != nil {
		rollback(tx, logger)
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Error("failed to load order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to load order: %w", op, err)
	}

	changed, err := ValidateTransition(order, to, actor)
	if err != nil {
		rollback(tx, logger)
		logger.Warn("transition rejected", slog.String("from", string(order.Status)), slog.Any("error", err))
		return nil, err
	}
	if !changed {
		rollback(tx, logger)
		logger.Info("status unchanged")
		return order, nil
	}

	updatedAt, err := s.orders.UpdateOrderStatusTx(ctx, tx, order.ID, to)
	if err != nil {
		rollback(tx, logger)
		logger.Error("failed to update order status", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update order status: %w", op, err)
	}

	restored := 0
	if to.RestoresStock() {
		restored, err = s.stock.RestoreLines(ctx, tx, order.Lines)
		if err != nil {
			rollback(tx, logger)
			logger.Error("failed to restore stock", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to restore stock: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	previous := order.Status
	order.Status = to
	order.UpdatedAt = updatedAt

	s.metrics.IncTransition(previous, to)
	s.metrics.AddRestoredUnits(restored)

	if err := s.publisher.PublishOrderStatusChanged(ctx, order, previous); err != nil {
		logger.Warn("status changed but event not published", slog.Any("error", err))
	}

	logger.Info("order status changed", slog.String("from", string(previous)), slog.Int("restoredUnits", restored))
	return order, nil
}
