package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linemk/farm-shop/internal/cart"
	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/linemk/farm-shop/internal/events"
	"github.com/linemk/farm-shop/internal/metrics"
	"github.com/linemk/farm-shop/internal/storage"
)

// CheckoutService превращает корзину в заказ
type CheckoutService interface {
	Checkout(ctx context.Context, actor models.Actor, c *cart.Cart, shippingAddress string) (*models.Order, error)
}

type checkoutService struct {
	log       *slog.Logger
	db        *sql.DB
	products  storage.ProductStorage
	orders    storage.OrderStorage
	stock     *StockReconciler
	publisher events.Publisher
	metrics   *metrics.OrderMetrics
	now       func() time.Time
}

func NewCheckoutService(
	log *slog.Logger,
	db *sql.DB,
	products storage.ProductStorage,
	orders storage.OrderStorage,
	stock *StockReconciler,
	publisher events.Publisher,
	m *metrics.OrderMetrics,
) CheckoutService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &checkoutService{
		log:       log,
		db:        db,
		products:  products,
		orders:    orders,
		stock:     stock,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
	}
}

// Checkout оформляет заказ из снимка корзины.
// Проверка наличия, создание заказа и списание остатков идут одной транзакцией:
// при любой ошибке ничего не сохраняется и корзина не меняется.
// После коммита корзина очищается.
func (s *checkoutService) Checkout(ctx context.Context, actor models.Actor, c *cart.Cart, shippingAddress string) (*models.Order, error) {
	const op = "service.CheckoutService.Checkout"
	logger := s.log.With(slog.String("op", op), slog.Int64("customerID", actor.ID))

	if !actor.IsCustomer() {
		s.metrics.IncCheckoutFailure("unauthorized")
		return nil, &UnauthorizedActorError{ActorID: actor.ID, Action: "place orders"}
	}

	snap := c.Snapshot()
	if snap.Empty() {
		s.metrics.IncCheckoutFailure("empty_cart")
		return nil, ErrEmptyCart
	}
	address := strings.TrimSpace(shippingAddress)
	if address == "" {
		s.metrics.IncCheckoutFailure("invalid_address")
		return nil, ErrInvalidAddress
	}

	logger.Info("starting checkout transaction", slog.Int("lines", len(snap.Lines)))

	order, err := s.placeOrder(ctx, logger, actor.ID, snap, address)
	if err != nil {
		s.metrics.IncCheckoutFailure(failureReason(err))
		return nil, err
	}

	c.Clear()
	s.metrics.IncOrderCreated()

	if err := s.publisher.PublishOrderCreated(ctx, order); err != nil {
		logger.Warn("order created but event not published", slog.Int64("orderID", order.ID), slog.Any("error", err))
	}

	logger.Info("checkout completed successfully",
		slog.Int64("orderID", order.ID),
		slog.String("orderNumber", order.Number),
		slog.String("total", order.TotalAmount.StringFixed(2)),
	)
	return order, nil
}

func (s *checkoutService) placeOrder(ctx context.Context, logger *slog.Logger, customerID int64, snap cart.Snapshot, address string) (*models.Order, error) {
	const op = "service.CheckoutService.Checkout"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	ids := make([]int64, len(snap.Lines))
	for i, l := range snap.Lines {
		ids[i] = l.ProductID
	}

	// Блокируем строки товаров до конца транзакции
	products, err := s.products.LockProductsTx(ctx, tx, ids)
	if err != nil {
		rollback(tx, logger)
		logger.Error("failed to lock products", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock products: %w", op, err)
	}

	// Сначала проверяем все позиции, и только потом что-то пишем
	lines := make([]models.OrderLine, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		p, ok := products[l.ProductID]
		switch {
		case !ok:
			rollback(tx, logger)
			return nil, &ProductUnavailableError{ProductID: l.ProductID, Reason: "not found"}
		case !p.IsActive:
			rollback(tx, logger)
			return nil, &ProductUnavailableError{ProductID: l.ProductID, Reason: "inactive"}
		case p.StockQuantity < l.Quantity:
			rollback(tx, logger)
			logger.Warn("insufficient stock",
				slog.Int64("productID", p.ID),
				slog.Int("available", p.StockQuantity),
				slog.Int("requested", l.Quantity),
			)
			return nil, &ProductUnavailableError{
				ProductID: l.ProductID,
				Err:       &InsufficientStockError{ProductID: p.ID, Requested: l.Quantity, Available: p.StockQuantity},
			}
		}
		// цена берётся из каталога, цена из корзины не используется
		lines = append(lines, models.OrderLine{
			ProductID: p.ID,
			FarmerID:  p.FarmerID,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
		})
	}

	order := &models.Order{
		Number:          newOrderNumber(s.now()),
		CustomerID:      customerID,
		Lines:           lines,
		TotalAmount:     models.SumLines(lines),
		ShippingAddress: address,
		Status:          models.StatusPending,
	}

	if err := s.orders.CreateOrderTx(ctx, tx, order); err != nil {
		rollback(tx, logger)
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create order: %w", op, err)
	}

	for _, l := range order.Lines {
		if err := s.stock.Decrement(ctx, tx, l.ProductID, l.Quantity); err != nil {
			rollback(tx, logger)
			logger.Error("failed to decrement stock", slog.Int64("productID", l.ProductID), slog.Any("error", err))
			var insufficient *InsufficientStockError
			if errors.As(err, &insufficient) {
				return nil, err
			}
			return nil, fmt.Errorf("%s: failed to decrement stock: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}
	return order, nil
}

// newOrderNumber формирует номер вида ORD-YYMMDD-XXXXXX
func newOrderNumber(now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("060102"), random)
}

func failureReason(err error) string {
	var (
		insufficient *InsufficientStockError
		unavailable  *ProductUnavailableError
	)
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_stock"
	case errors.As(err, &unavailable):
		return "product_unavailable"
	default:
		return "internal"
	}
}
