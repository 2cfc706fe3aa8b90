package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/linemk/farm-shop/internal/storage"
)

// StockReconciler: единственное место, где меняется stock_quantity.
// Все методы работают внутри транзакции вызывающего: блокировки строк
// товаров сериализуют конкурентные списания и возвраты.
type StockReconciler struct {
	log      *slog.Logger
	products storage.ProductStorage
}

func NewStockReconciler(log *slog.Logger, products storage.ProductStorage) *StockReconciler {
	return &StockReconciler{log: log, products: products}
}

// Decrement списывает qty; если остатка не хватает: InsufficientStockError
func (s *StockReconciler) Decrement(ctx context.Context, tx *sql.Tx, productID int64, qty int) error {
	const op = "service.StockReconciler.Decrement"

	ok, err := s.products.DecrementStockTx(ctx, tx, productID, qty)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return &InsufficientStockError{ProductID: productID, Requested: qty, Available: -1}
	}
	return nil
}

// Restore возвращает qty на склад без верхней границы и без проверки активности.
// Если товара уже нет, возврат пропускается: отмена заказа не должна из-за этого падать.
func (s *StockReconciler) Restore(ctx context.Context, tx *sql.Tx, productID int64, qty int) error {
	const op = "service.StockReconciler.Restore"

	ok, err := s.products.IncrementStockTx(ctx, tx, productID, qty)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		s.log.Warn("product missing, stock not restored",
			slog.String("op", op),
			slog.Int64("productID", productID),
			slog.Int("quantity", qty),
		)
	}
	return nil
}

// RestoreLines возвращает на склад все позиции заказа и отдаёт число возвращённых единиц.
// Товары обходятся по возрастанию id, в том же порядке, в каком их блокирует оформление,
// иначе отмена и оформление могут заблокировать друг друга.
func (s *StockReconciler) RestoreLines(ctx context.Context, tx *sql.Tx, lines []models.OrderLine) (int, error) {
	qty := make(map[int64]int, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := qty[l.ProductID]; !ok {
			ids = append(ids, l.ProductID)
		}
		qty[l.ProductID] += l.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	restored := 0
	for _, id := range ids {
		if err := s.Restore(ctx, tx, id, qty[id]); err != nil {
			return restored, err
		}
		restored += qty[id]
	}
	return restored, nil
}

// Adjust прибавляет delta (может быть отрицательной), остаток не уходит ниже нуля
func (s *StockReconciler) Adjust(ctx context.Context, tx *sql.Tx, productID int64, delta int) (int, error) {
	return s.products.AddStockTx(ctx, tx, productID, delta)
}

// Set задаёт остаток напрямую
func (s *StockReconciler) Set(ctx context.Context, tx *sql.Tx, productID int64, qty int) (int, error) {
	if qty < 0 {
		return 0, ErrInvalidQuantity
	}
	return s.products.SetStockTx(ctx, tx, productID, qty)
}

// rollback откатывает транзакцию, ошибку отката только логируем
func rollback(tx *sql.Tx, logger *slog.Logger) {
	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Error("transaction rollback failed", slog.Any("error", rbErr))
	}
}
