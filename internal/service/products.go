package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/linemk/farm-shop/internal/storage"
	"github.com/shopspring/decimal"
)

// Действия над остатком из кабинета фермера
const (
	StockActionAdd = "add"
	StockActionSet = "set"
)

var (
	ErrInvalidStockAction   = errors.New("action must be add or set")
	ErrInvalidProductFilter = errors.New("unknown sort or stock_status")
)

// filterAll в category и stock_status означает отсутствие фильтра
const filterAll = "all"

type CreateProductInput struct {
	Name          string
	Description   string
	Category      string
	Price         decimal.Decimal
	StockQuantity int
}

// UpdateProductInput: редактируемые поля товара. Остаток меняется только через UpdateStock.
type UpdateProductInput struct {
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
}

type ProductService interface {
	CreateProduct(ctx context.Context, actor models.Actor, in CreateProductInput) (*models.Product, error)
	ListActive(ctx context.Context, filter storage.ProductFilter) ([]*models.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	ListFarmerProducts(ctx context.Context, actor models.Actor) ([]*models.Product, error)
	UpdateProduct(ctx context.Context, actor models.Actor, productID int64, in UpdateProductInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, actor models.Actor, productID int64) error
	UpdateStock(ctx context.Context, actor models.Actor, productID int64, quantity int, action string) (int, error)
	SetActive(ctx context.Context, actor models.Actor, productID int64, active bool) error
}

type productService struct {
	log      *slog.Logger
	db       *sql.DB
	products storage.ProductStorage
	stock    *StockReconciler
}

func NewProductService(log *slog.Logger, db *sql.DB, products storage.ProductStorage, stock *StockReconciler) ProductService {
	return &productService{log: log, db: db, products: products, stock: stock}
}

func (s *productService) CreateProduct(ctx context.Context, actor models.Actor, in CreateProductInput) (*models.Product, error) {
	const op = "service.ProductService.CreateProduct"

	if !actor.IsFarmer() {
		return nil, &UnauthorizedActorError{ActorID: actor.ID, Action: "create products"}
	}
	if in.StockQuantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if !in.Price.IsPositive() {
		return nil, ErrInvalidPrice
	}

	p, err := s.products.CreateProduct(ctx, &models.Product{
		FarmerID:      actor.ID,
		Name:          in.Name,
		Description:   in.Description,
		Category:      in.Category,
		Price:         in.Price,
		StockQuantity: in.StockQuantity,
		IsActive:      true,
	})
	if err != nil {
		s.log.Error("failed to create product", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("product created", slog.String("op", op), slog.Int64("productID", p.ID), slog.Int64("farmerID", actor.ID))
	return p, nil
}

// ListActive отдаёт витрину. "all" в категории и статусе остатка равносильно пустому значению.
func (s *productService) ListActive(ctx context.Context, filter storage.ProductFilter) ([]*models.Product, error) {
	const op = "service.ProductService.ListActive"

	if filter.Category == filterAll {
		filter.Category = ""
	}
	if filter.StockStatus == filterAll {
		filter.StockStatus = ""
	}
	if filter.StockStatus != "" && !filter.StockStatus.Valid() {
		return nil, ErrInvalidProductFilter
	}
	if !storage.ValidProductSort(filter.Sort) {
		return nil, ErrInvalidProductFilter
	}

	products, err := s.products.ListActiveProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return products, nil
}

func (s *productService) ListCategories(ctx context.Context) ([]string, error) {
	const op = "service.ProductService.ListCategories"

	categories, err := s.products.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return categories, nil
}

func (s *productService) ListFarmerProducts(ctx context.Context, actor models.Actor) ([]*models.Product, error) {
	const op = "service.ProductService.ListFarmerProducts"

	if !actor.IsFarmer() {
		return nil, &UnauthorizedActorError{ActorID: actor.ID, Action: "list farmer products"}
	}
	products, err := s.products.ListProductsByFarmer(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return products, nil
}

// UpdateProduct меняет название, описание, категорию и цену своего товара.
// Цена в уже оформленных заказах не меняется: там хранится price_at_purchase.
func (s *productService) UpdateProduct(ctx context.Context, actor models.Actor, productID int64, in UpdateProductInput) (*models.Product, error) {
	const op = "service.ProductService.UpdateProduct"

	if !in.Price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if err := s.checkOwner(ctx, actor, productID); err != nil {
		return nil, err
	}

	p, err := s.products.UpdateProduct(ctx, &models.Product{
		ID:          productID,
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Price:       in.Price,
	})
	if err != nil {
		if !errors.Is(err, storage.ErrProductNotFound) {
			s.log.Error("failed to update product", slog.String("op", op), slog.Any("error", err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("product updated", slog.String("op", op), slog.Int64("productID", productID))
	return p, nil
}

// DeleteProduct удаляет свой товар. Оформленные заказы сохраняют позиции с ним,
// а при отмене такого заказа возврат на склад пропускается.
func (s *productService) DeleteProduct(ctx context.Context, actor models.Actor, productID int64) error {
	const op = "service.ProductService.DeleteProduct"

	if err := s.checkOwner(ctx, actor, productID); err != nil {
		return err
	}
	if err := s.products.DeleteProduct(ctx, productID); err != nil {
		if !errors.Is(err, storage.ErrProductNotFound) {
			s.log.Error("failed to delete product", slog.String("op", op), slog.Any("error", err))
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("product deleted", slog.String("op", op), slog.Int64("productID", productID), slog.Int64("farmerID", actor.ID))
	return nil
}

// UpdateStock меняет остаток своего товара: add прибавляет (отрицательное значение списывает до нуля), set задаёт.
func (s *productService) UpdateStock(ctx context.Context, actor models.Actor, productID int64, quantity int, action string) (int, error) {
	const op = "service.ProductService.UpdateStock"
	logger := s.log.With(slog.String("op", op), slog.Int64("productID", productID), slog.String("action", action))

	if action != StockActionAdd && action != StockActionSet {
		return 0, ErrInvalidStockAction
	}
	if err := s.checkOwner(ctx, actor, productID); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	var stock int
	if action == StockActionSet {
		stock, err = s.stock.Set(ctx, tx, productID, quantity)
	} else {
		stock, err = s.stock.Adjust(ctx, tx, productID, quantity)
	}
	if err != nil {
		rollback(tx, logger)
		if errors.Is(err, ErrInvalidQuantity) {
			return 0, err
		}
		logger.Error("failed to update stock", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to update stock: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("stock updated", slog.Int("stock", stock))
	return stock, nil
}

func (s *productService) SetActive(ctx context.Context, actor models.Actor, productID int64, active bool) error {
	const op = "service.ProductService.SetActive"

	if err := s.checkOwner(ctx, actor, productID); err != nil {
		return err
	}
	if err := s.products.SetProductActive(ctx, productID, active); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("product status changed", slog.String("op", op), slog.Int64("productID", productID), slog.Bool("active", active))
	return nil
}

// checkOwner пропускает только фермера, которому принадлежит товар
func (s *productService) checkOwner(ctx context.Context, actor models.Actor, productID int64) error {
	const op = "service.ProductService.checkOwner"

	if !actor.IsFarmer() {
		return &UnauthorizedActorError{ActorID: actor.ID, Action: "manage products"}
	}
	p, err := s.products.GetProductByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if p.FarmerID != actor.ID {
		return &UnauthorizedActorError{ActorID: actor.ID, Action: fmt.Sprintf("manage product %d", productID)}
	}
	return nil
}
