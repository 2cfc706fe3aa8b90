package service_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/linemk/farm-shop/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeUserRepo struct {
	users map[string]*models.User // ключ: email
}

var _ storage.UserStorage = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if _, ok := f.users[user.Email]; ok {
		return nil, storage.ErrUserExists
	}
	user.ID = int64(len(f.users) + 1)
	f.users[user.Email] = user
	return user, nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (f *fakeUserRepo) UpdateProfile(ctx context.Context, id int64, firstName, lastName, address string) (*models.User, error) {
	u, err := f.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.FirstName, u.LastName, u.Address = firstName, lastName, address
	return u, nil
}

// fakeProductRepo хранит товары в памяти; транзакцию не использует
type fakeProductRepo struct {
	mu         sync.Mutex
	products   map[int64]*models.Product
	decrements int
	increments int
}

var _ storage.ProductStorage = (*fakeProductRepo)(nil)

func newFakeProductRepo(products ...*models.Product) *fakeProductRepo {
	f := &fakeProductRepo{products: make(map[int64]*models.Product)}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeProductRepo) stock(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].StockQuantity
}

func (f *fakeProductRepo) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = int64(len(f.products) + 1)
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeProductRepo) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

// ListActiveProducts фильтрует как репозиторий, но всегда сортирует по id
func (f *fakeProductRepo) ListActiveProducts(ctx context.Context, filter storage.ProductFilter) ([]*models.Product, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	return f.filter(func(p *models.Product) bool {
		switch {
		case !p.IsActive:
			return false
		case filter.Category != "" && p.Category != filter.Category:
			return false
		case filter.StockStatus != "" && p.StockStatus() != filter.StockStatus:
			return false
		case search != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Description), search):
			return false
		}
		return true
	}), nil
}

func (f *fakeProductRepo) ListCategories(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	categories := []string{}
	for _, p := range f.filter(func(p *models.Product) bool { return p.IsActive && p.Category != "" }) {
		if !seen[p.Category] {
			seen[p.Category] = true
			categories = append(categories, p.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (f *fakeProductRepo) UpdateProduct(ctx context.Context, upd *models.Product) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[upd.ID]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	p.Name, p.Description, p.Category, p.Price = upd.Name, upd.Description, upd.Category, upd.Price
	cp := *p
	return &cp, nil
}

func (f *fakeProductRepo) DeleteProduct(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.products[id]; !ok {
		return storage.ErrProductNotFound
	}
	delete(f.products, id)
	return nil
}

func (f *fakeProductRepo) ListProductsByFarmer(ctx context.Context, farmerID int64) ([]*models.Product, error) {
	return f.filter(func(p *models.Product) bool { return p.FarmerID == farmerID }), nil
}

func (f *fakeProductRepo) filter(keep func(*models.Product) bool) []*models.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.Product
	for _, p := range f.products {
		if keep(p) {
			cp := *p
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (f *fakeProductRepo) SetProductActive(ctx context.Context, id int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return storage.ErrProductNotFound
	}
	p.IsActive = active
	return nil
}

func (f *fakeProductRepo) LockProductsTx(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := make(map[int64]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			cp := *p
			res[id] = &cp
		}
	}
	return res, nil
}

func (f *fakeProductRepo) DecrementStockTx(ctx context.Context, tx *sql.Tx, id int64, qty int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.StockQuantity < qty {
		return false, nil
	}
	p.StockQuantity -= qty
	f.decrements++
	return true, nil
}

func (f *fakeProductRepo) IncrementStockTx(ctx context.Context, tx *sql.Tx, id int64, qty int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return false, nil
	}
	p.StockQuantity += qty
	f.increments++
	return true, nil
}

func (f *fakeProductRepo) SetStockTx(ctx context.Context, tx *sql.Tx, id int64, qty int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return 0, storage.ErrProductNotFound
	}
	p.StockQuantity = qty
	return qty, nil
}

func (f *fakeProductRepo) AddStockTx(ctx context.Context, tx *sql.Tx, id int64, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return 0, storage.ErrProductNotFound
	}
	p.StockQuantity = max(p.StockQuantity+delta, 0)
	return p.StockQuantity, nil
}

type fakeOrderRepo struct {
	mu      sync.Mutex
	orders  map[int64]*models.Order
	creates int
	updates int
}

var _ storage.OrderStorage = (*fakeOrderRepo)(nil)

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[int64]*models.Order)}
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Lines = append([]models.OrderLine(nil), o.Lines...)
	return &cp
}

func (f *fakeOrderRepo) put(o *models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = copyOrder(o)
}

func (f *fakeOrderRepo) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	order.ID = int64(len(f.orders) + 1)
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Lines {
		order.Lines[i].ID = int64(i + 1)
		order.Lines[i].OrderID = order.ID
	}
	f.orders[order.ID] = copyOrder(order)
	return nil
}

func (f *fakeOrderRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (f *fakeOrderRepo) LockOrderTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return f.GetOrderByID(ctx, id)
}

func (f *fakeOrderRepo) UpdateOrderStatusTx(ctx context.Context, tx *sql.Tx, id int64, status models.OrderStatus) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return time.Time{}, storage.ErrOrderNotFound
	}
	f.updates++
	o.Status = status
	o.UpdatedAt = time.Now()
	return o.UpdatedAt, nil
}

func (f *fakeOrderRepo) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.Order
	for _, o := range f.orders {
		if o.CustomerID == customerID {
			res = append(res, copyOrder(o))
		}
	}
	return res, nil
}

func (f *fakeOrderRepo) ListOrdersByFarmer(ctx context.Context, farmerID int64) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.Order
	for _, o := range f.orders {
		if o.HasFarmer(farmerID) {
			res = append(res, copyOrder(o))
		}
	}
	return res, nil
}

// fakePublisher запоминает опубликованные события
type fakePublisher struct {
	mu      sync.Mutex
	created []int64
	changed []models.OrderStatus
}

func (p *fakePublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, order.ID)
	return nil
}

func (p *fakePublisher) PublishOrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, order.Status)
	return nil
}
