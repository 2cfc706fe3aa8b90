package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/linemk/farm-shop/internal/domain/models"
)

var ErrProductNotFound = errors.New("product not found")

// Варианты сортировки витрины
const (
	SortNewest    = "newest"
	SortPriceLow  = "price_low"
	SortPriceHigh = "price_high"
	SortName      = "name"
	SortStockLow  = "stock_low"
)

var productOrderBy = map[string]string{
	SortNewest:    "created_at DESC",
	SortPriceLow:  "price ASC",
	SortPriceHigh: "price DESC",
	SortName:      "product_name ASC",
	SortStockLow:  "stock_quantity ASC",
}

// ValidProductSort сообщает, известен ли вариант сортировки; пустая строка означает newest
func ValidProductSort(sort string) bool {
	if sort == "" {
		return true
	}
	_, ok := productOrderBy[sort]
	return ok
}

// ProductFilter: параметры витрины. Пустое поле не ограничивает выборку.
type ProductFilter struct {
	Category    string
	Search      string
	StockStatus models.StockStatus
	Sort        string
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ProductStorage описывает методы для работы с товарами.
// Методы с tx выполняются внутри транзакции вызывающего.
type ProductStorage interface {
	CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListActiveProducts(ctx context.Context, filter ProductFilter) ([]*models.Product, error)
	ListProductsByFarmer(ctx context.Context, farmerID int64) ([]*models.Product, error)
	// ListCategories возвращает непустые категории активных товаров по алфавиту.
	ListCategories(ctx context.Context) ([]string, error)
	SetProductActive(ctx context.Context, id int64, active bool) error
	// UpdateProduct меняет описательные поля и цену; остаток и активность не трогает.
	UpdateProduct(ctx context.Context, p *models.Product) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	// LockProductsTx блокирует строки товаров (FOR UPDATE) в порядке возрастания id.
	// Отсутствующие товары в результат не попадают.
	LockProductsTx(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*models.Product, error)
	// DecrementStockTx списывает qty, только если остатка хватает. Возвращает false, если не хватило.
	DecrementStockTx(ctx context.Context, tx *sql.Tx, id int64, qty int) (bool, error)
	// IncrementStockTx возвращает qty на склад без проверки активности товара.
	IncrementStockTx(ctx context.Context, tx *sql.Tx, id int64, qty int) (bool, error)
	// SetStockTx задаёт остаток, возвращает новое значение.
	SetStockTx(ctx context.Context, tx *sql.Tx, id int64, qty int) (int, error)
	// AddStockTx прибавляет delta с отсечкой по нулю, возвращает новое значение.
	AddStockTx(ctx context.Context, tx *sql.Tx, id int64, delta int) (int, error)
}

type productRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

const productColumns = "product_id, farmer_id, product_name, description, category, price, stock_quantity, is_active, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	if err := row.Scan(&p.ID, &p.FarmerID, &p.Name, &p.Description, &p.Category, &p.Price, &p.StockQuantity, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *productRepository) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	query := `INSERT INTO products (farmer_id, product_name, description, category, price, stock_quantity, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING product_id, created_at`
	err := r.db.QueryRowContext(ctx, query, p.FarmerID, p.Name, p.Description, p.Category, p.Price, p.StockQuantity, p.IsActive).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return p, nil
}

func (r *productRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE product_id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *productRepository) ListActiveProducts(ctx context.Context, filter ProductFilter) ([]*models.Product, error) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	query := "SELECT " + productColumns + " FROM products WHERE is_active = TRUE"
	if filter.Category != "" {
		query += " AND category = " + arg(filter.Category)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		p := arg("%" + likeEscaper.Replace(search) + "%")
		query += " AND (product_name ILIKE " + p + " OR description ILIKE " + p + ")"
	}
	// статус остатка в БД не хранится, условия повторяют models.StockStatusOf
	switch filter.StockStatus {
	case models.StockOutOfStock:
		query += " AND stock_quantity <= 0"
	case models.StockLow:
		query += " AND stock_quantity > 0 AND stock_quantity <= " + arg(models.LowStockThreshold)
	case models.StockInStock:
		query += " AND stock_quantity > " + arg(models.LowStockThreshold)
	}

	orderBy, ok := productOrderBy[filter.Sort]
	if !ok {
		orderBy = productOrderBy[SortNewest]
	}
	query += " ORDER BY " + orderBy + ", product_id"

	return r.list(ctx, query, args...)
}

func (r *productRepository) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT category FROM products WHERE is_active = TRUE AND category <> '' ORDER BY category")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *productRepository) ListProductsByFarmer(ctx context.Context, farmerID int64) ([]*models.Product, error) {
	return r.list(ctx, "SELECT "+productColumns+" FROM products WHERE farmer_id = $1 ORDER BY created_at DESC", farmerID)
}

func (r *productRepository) list(ctx context.Context, query string, args ...any) ([]*models.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *productRepository) SetProductActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx, "UPDATE products SET is_active = $1 WHERE product_id = $2", active, id)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrProductNotFound)
}

func (r *productRepository) UpdateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	query := `UPDATE products SET product_name = $1, description = $2, category = $3, price = $4
	          WHERE product_id = $5 RETURNING ` + productColumns
	updated, err := scanProduct(r.db.QueryRowContext(ctx, query, p.Name, p.Description, p.Category, p.Price, p.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return updated, nil
}

// DeleteProduct удаляет товар. Позиции заказов на него не ссылаются внешним ключом и остаются.
func (r *productRepository) DeleteProduct(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE product_id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return expectAffected(res, ErrProductNotFound)
}

func (r *productRepository) LockProductsTx(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*models.Product, error) {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	// единый порядок блокировок исключает взаимоблокировку двух оформлений
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	query := "SELECT " + productColumns + " FROM products WHERE product_id = ANY($1) ORDER BY product_id FOR UPDATE"
	rows, err := tx.QueryContext(ctx, query, pq.Array(sorted))
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]*models.Product, len(sorted))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *productRepository) DecrementStockTx(ctx context.Context, tx *sql.Tx, id int64, qty int) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE products SET stock_quantity = stock_quantity - $1 WHERE product_id = $2 AND stock_quantity >= $1",
		qty, id)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *productRepository) IncrementStockTx(ctx context.Context, tx *sql.Tx, id int64, qty int) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE products SET stock_quantity = stock_quantity + $1 WHERE product_id = $2",
		qty, id)
	if err != nil {
		return false, fmt.Errorf("failed to restore stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *productRepository) SetStockTx(ctx context.Context, tx *sql.Tx, id int64, qty int) (int, error) {
	return r.returningStock(ctx, tx,
		"UPDATE products SET stock_quantity = $1 WHERE product_id = $2 RETURNING stock_quantity", qty, id)
}

func (r *productRepository) AddStockTx(ctx context.Context, tx *sql.Tx, id int64, delta int) (int, error) {
	return r.returningStock(ctx, tx,
		"UPDATE products SET stock_quantity = GREATEST(stock_quantity + $1, 0) WHERE product_id = $2 RETURNING stock_quantity", delta, id)
}

func (r *productRepository) returningStock(ctx context.Context, tx *sql.Tx, query string, args ...any) (int, error) {
	var stock int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&stock); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("failed to update stock: %w", err)
	}
	return stock, nil
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

