package storage_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/linemk/farm-shop/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var (
	userCols    = []string{"user_id", "email", "pass_hash", "first_name", "last_name", "address", "role", "created_at"}
	productCols = []string{"product_id", "farmer_id", "product_name", "description", "category", "price", "stock_quantity", "is_active", "created_at"}
	orderCols   = []string{"order_id", "order_number", "customer_id", "total_amount", "shipping_address", "status", "created_at", "updated_at"}
	lineCols    = []string{"order_item_id", "order_id", "product_id", "farmer_id", "quantity", "price_at_purchase"}
)

func TestGetUserByEmail_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	email := "farmer@example.com"
	now := time.Now()

	rows := sqlmock.NewRows(userCols).AddRow(1, email, []byte("hashed"), "Ivan", "Petrov", "", "farmer", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).WithArgs(email).WillReturnRows(rows)

	user, err := repo.GetUserByEmail(context.Background(), email)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, models.RoleFarmer, user.Role)
	assert.Equal(t, []byte("hashed"), user.PassHash)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE user_id = $1")).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(userCols))

	user, err := repo.GetUserByID(context.Background(), 5)
	assert.Nil(t, user)
	assert.True(t, errors.Is(err, storage.ErrUserNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	now := time.Now()
	query := regexp.QuoteMeta("INSERT INTO users (email, pass_hash, first_name, last_name, role) VALUES ($1, $2, $3, $4, $5) RETURNING user_id, created_at")
	mock.ExpectQuery(query).WithArgs("c@example.com", []byte("h"), "Anna", "K", "customer").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "created_at"}).AddRow(7, now))

	user, err := repo.CreateUser(context.Background(), &models.User{
		Email: "c@example.com", PassHash: []byte("h"), FirstName: "Anna", LastName: "K", Role: models.RoleCustomer,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505"})

	user, err := repo.CreateUser(context.Background(), &models.User{Email: "dup@example.com", Role: models.RoleCustomer})
	assert.Nil(t, user)
	assert.True(t, errors.Is(err, storage.ErrUserExists))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE product_id = $1")).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(productCols))

	p, err := repo.GetProductByID(context.Background(), 3)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, storage.ErrProductNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveProducts(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows(productCols).
		AddRow(1, 10, "Tomatoes", "red", "vegetables", "2.50", 40, true, now).
		AddRow(2, 11, "Honey", "", "other", "9.99", 3, true, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE is_active = TRUE")).WillReturnRows(rows)

	products, err := repo.ListActiveProducts(context.Background(), storage.ProductFilter{})
	assert.NoError(t, err)
	assert.Len(t, products, 2)
	assert.True(t, decimal.RequireFromString("2.50").Equal(products[0].Price))
	assert.Equal(t, models.StockLow, products[1].StockStatus())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockProductsTx_SortsIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	// Ожидаем блокировку строк в порядке возрастания id
	mock.ExpectQuery(regexp.QuoteMeta("WHERE product_id = ANY($1) ORDER BY product_id FOR UPDATE")).
		WithArgs(pq.Array([]int64{2, 5})).
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow(2, 10, "Milk", "", "dairy", "1.20", 5, true, now).
			AddRow(5, 10, "Eggs", "", "dairy", "3.00", 0, false, now))

	products, err := repo.LockProductsTx(ctx, tx, []int64{5, 2})
	assert.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, 5, products[2].StockQuantity)
	assert.False(t, products[5].IsActive)

	mock.ExpectCommit()
	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStockTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	ctx := context.Background()
	query := regexp.QuoteMeta("UPDATE products SET stock_quantity = stock_quantity - $1 WHERE product_id = $2 AND stock_quantity >= $1")

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	mock.ExpectExec(query).WithArgs(3, int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.DecrementStockTx(ctx, tx, 1, 3)
	assert.NoError(t, err)
	assert.True(t, ok)

	// остатка не хватает: строка не обновлена
	mock.ExpectExec(query).WithArgs(3, int64(1)).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.DecrementStockTx(ctx, tx, 1, 3)
	assert.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectRollback()
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementStockTx_MissingProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock_quantity = stock_quantity + $1 WHERE product_id = $2")).
		WithArgs(2, int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.IncrementStockTx(context.Background(), tx, 9, 2)
	assert.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectCommit()
	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddStockTx_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("GREATEST(stock_quantity + $1, 0)")).
		WithArgs(-5, int64(4)).WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}))

	_, err = repo.AddStockTx(context.Background(), tx, 4, -5)
	assert.True(t, errors.Is(err, storage.ErrProductNotFound))

	mock.ExpectRollback()
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderTx_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	order := &models.Order{
		Number:          "ORD-250101-ABC123",
		CustomerID:      3,
		TotalAmount:     decimal.RequireFromString("7.50"),
		ShippingAddress: "Main st 1",
		Status:          models.StatusPending,
		Lines: []models.OrderLine{
			{ProductID: 1, FarmerID: 10, Quantity: 3, UnitPrice: decimal.RequireFromString("2.50")},
		},
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders (order_number, customer_id, total_amount, shipping_address, status)")).
		WithArgs(order.Number, int64(3), order.TotalAmount, "Main st 1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "created_at", "updated_at"}).AddRow(42, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items (order_id, product_id, farmer_id, quantity, price_at_purchase)")).
		WithArgs(int64(42), int64(1), int64(10), 3, order.Lines[0].UnitPrice).
		WillReturnRows(sqlmock.NewRows([]string{"order_item_id"}).AddRow(100))

	err = repo.CreateOrderTx(context.Background(), tx, order)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), order.ID)
	assert.Equal(t, int64(42), order.Lines[0].OrderID)
	assert.Equal(t, int64(100), order.Lines[0].ID)

	mock.ExpectCommit()
	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByID_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE order_id = $1")).WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(42, "ORD-1", 3, "7.50", "Main st 1", "processing", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items WHERE order_id = $1")).WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(lineCols).AddRow(100, 42, 1, 10, 3, "2.50"))

	order, err := repo.GetOrderByID(context.Background(), 42)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, order.Status)
	assert.Len(t, order.Lines, 1)
	assert.True(t, order.HasFarmer(10))
	assert.True(t, order.TotalAmount.Equal(models.SumLines(order.Lines)))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockOrderTx_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE order_id = $1 FOR UPDATE")).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(orderCols))

	order, err := repo.LockOrderTx(context.Background(), tx, 1)
	assert.Nil(t, order)
	assert.True(t, errors.Is(err, storage.ErrOrderNotFound))

	mock.ExpectRollback()
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE orders SET status = $1, updated_at = NOW() WHERE order_id = $2 RETURNING updated_at")).
		WithArgs("shipped", int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	updatedAt, err := repo.UpdateOrderStatusTx(context.Background(), tx, 42, models.StatusShipped)
	assert.NoError(t, err)
	assert.Equal(t, now, updatedAt)

	mock.ExpectCommit()
	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersByFarmer_OnlyOwnLines(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()
	farmerID := int64(10)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE order_id IN (SELECT order_id FROM order_items WHERE farmer_id = $1)")).
		WithArgs(farmerID).
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(2, "ORD-2", 4, "5.00", "B st", "pending", now, now).
			AddRow(1, "ORD-1", 3, "7.50", "A st", "shipped", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE order_id = ANY($1) AND farmer_id = $2")).
		WithArgs(pq.Array([]int64{2, 1}), farmerID).
		WillReturnRows(sqlmock.NewRows(lineCols).
			AddRow(10, 1, 1, farmerID, 3, "2.50").
			AddRow(11, 2, 5, farmerID, 1, "5.00"))

	orders, err := repo.ListOrdersByFarmer(context.Background(), farmerID)
	assert.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.Equal(t, int64(2), orders[0].ID)
	assert.Len(t, orders[0].Lines, 1)
	assert.Equal(t, int64(5), orders[0].Lines[0].ProductID)
	assert.Len(t, orders[1].Lines, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersByCustomer_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE customer_id = $1")).WithArgs(int64(3)).
		WillReturnError(errors.New("db error"))

	orders, err := repo.ListOrdersByCustomer(context.Background(), 3)
	assert.Error(t, err)
	assert.Nil(t, orders)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveProducts_Filters(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	query := regexp.QuoteMeta("FROM products WHERE is_active = TRUE AND category = $1" +
		" AND (product_name ILIKE $2 OR description ILIKE $2)" +
		" AND stock_quantity > 0 AND stock_quantity <= $3 ORDER BY price DESC, product_id")
	mock.ExpectQuery(query).WithArgs("fruit", `%100\%\_ap%`, models.LowStockThreshold).
		WillReturnRows(sqlmock.NewRows(productCols))

	products, err := repo.ListActiveProducts(context.Background(), storage.ProductFilter{
		Category:    "fruit",
		Search:      " 100%_ap ",
		StockStatus: models.StockLow,
		Sort:        storage.SortPriceHigh,
	})
	assert.NoError(t, err)
	assert.Empty(t, products)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_active = TRUE AND stock_quantity <= 0 ORDER BY created_at DESC, product_id")).
		WillReturnRows(sqlmock.NewRows(productCols))
	_, err = repo.ListActiveProducts(context.Background(), storage.ProductFilter{StockStatus: models.StockOutOfStock, Sort: "unknown"})
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidProductSort(t *testing.T) {
	for _, s := range []string{"", storage.SortNewest, storage.SortPriceLow, storage.SortPriceHigh, storage.SortName, storage.SortStockLow} {
		assert.True(t, storage.ValidProductSort(s), s)
	}
	assert.False(t, storage.ValidProductSort("price; DROP TABLE products"))
}

func TestListCategories(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT category FROM products WHERE is_active = TRUE AND category <> ''")).
		WillReturnRows(sqlmock.NewRows([]string{"category"}).AddRow("dairy").AddRow("fruit"))

	categories, err := repo.ListCategories(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"dairy", "fruit"}, categories)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	now := time.Now()
	price := decimal.RequireFromString("4.20")
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE products SET product_name = $1, description = $2, category = $3, price = $4")).
		WithArgs("Cheese", "goat", "dairy", price, int64(3)).
		WillReturnRows(sqlmock.NewRows(productCols).AddRow(3, 10, "Cheese", "goat", "dairy", "4.20", 7, true, now))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE products SET product_name")).
		WithArgs("Cheese", "goat", "dairy", price, int64(4)).
		WillReturnRows(sqlmock.NewRows(productCols))

	p, err := repo.UpdateProduct(context.Background(), &models.Product{ID: 3, Name: "Cheese", Description: "goat", Category: "dairy", Price: price})
	assert.NoError(t, err)
	assert.Equal(t, 7, p.StockQuantity, "stock comes back untouched")

	_, err = repo.UpdateProduct(context.Background(), &models.Product{ID: 4, Name: "Cheese", Description: "goat", Category: "dairy", Price: price})
	assert.True(t, errors.Is(err, storage.ErrProductNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM products WHERE product_id = $1")).WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM products WHERE product_id = $1")).WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.DeleteProduct(context.Background(), 3))
	assert.True(t, errors.Is(repo.DeleteProduct(context.Background(), 4), storage.ErrProductNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfile(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET first_name = $1, last_name = $2, address = $3 WHERE user_id = $4")).
		WithArgs("Anna", "K", "Farm road 5", int64(7)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(7, "c@example.com", []byte("h"), "Anna", "K", "Farm road 5", "customer", now))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET")).WithArgs("Anna", "K", "", int64(8)).
		WillReturnRows(sqlmock.NewRows(userCols))

	user, err := repo.UpdateProfile(context.Background(), 7, "Anna", "K", "Farm road 5")
	assert.NoError(t, err)
	assert.Equal(t, "Farm road 5", user.Address)
	assert.Equal(t, models.RoleCustomer, user.Role)

	_, err = repo.UpdateProfile(context.Background(), 8, "Anna", "K", "")
	assert.True(t, errors.Is(err, storage.ErrUserNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}
