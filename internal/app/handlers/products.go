package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/linemk/farm-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/farm-shop/internal/service"
	"github.com/linemk/farm-shop/internal/storage"
	"github.com/shopspring/decimal"
)

// ProductResponse: товар вместе с вычисляемым статусом остатка
type ProductResponse struct {
	*models.Product
	StockStatus models.StockStatus `json:"stock_status"`
}

func toProductResponses(products []*models.Product) []ProductResponse {
	res := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		res = append(res, ProductResponse{Product: p, StockStatus: p.StockStatus()})
	}
	return res
}

// ListProductsHandler обрабатывает GET /api/products: активные товары всех фермеров.
// Параметры запроса: category, search, stock_status, sort.
func ListProductsHandler(log *slog.Logger, products service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListProductsHandler"
		logger := log.With(slog.String("op", op))

		q := r.URL.Query()
		list, err := products.ListActive(r.Context(), storage.ProductFilter{
			Category:    q.Get("category"),
			Search:      q.Get("search"),
			StockStatus: models.StockStatus(q.Get("stock_status")),
			Sort:        q.Get("sort"),
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, toProductResponses(list))
	}
}

// CategoriesHandler обрабатывает GET /api/categories
func CategoriesHandler(log *slog.Logger, products service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CategoriesHandler"
		logger := log.With(slog.String("op", op))

		categories, err := products.ListCategories(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, nonNil(categories))
	}
}

// FarmerProductsHandler обрабатывает GET /api/farmer/products
func FarmerProductsHandler(log *slog.Logger, products service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.FarmerProductsHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}

		list, err := products.ListFarmerProducts(r.Context(), actor)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, toProductResponses(list))
	}
}

type CreateProductRequest struct {
	Name          string          `json:"product_name" validate:"required,max=255"`
	Description   string          `json:"description"`
	Category      string          `json:"category" validate:"max=100"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity" validate:"gte=0"`
}

// CreateProductHandler обрабатывает POST /api/farmer/products
func CreateProductHandler(log *slog.Logger, products service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateProductHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req CreateProductRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			writeError(w, logger, http.StatusBadRequest, "validation error")
			return
		}
		p, err := products.CreateProduct(r.Context(), actor, service.CreateProductInput{
			Name:          req.Name,
			Description:   req.Description,
			Category:      req.Category,
			Price:         req.Price,
			StockQuantity: req.StockQuantity,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, ProductResponse{Product: p, StockStatus: p.StockStatus()})
	}
}

type UpdateProductRequest struct {
	Name        string          `json:"product_name" validate:"required,max=255"`
	Description string          `json:"description"`
	Category    string          `json:"category" validate:"max=100"`
	Price       decimal.Decimal `json:"price"`
}

// UpdateProductHandler обрабатывает PUT /api/farmer/products/{id}
func UpdateProductHandler(log *slog.Logger, products service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateProductHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, ok := idParam(r, "id")
		if !ok {
			writeError(w, logger, http.StatusBadRequest, "invalid product id")
			return
		}

		var req UpdateProductRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			writeError(w, logger, http.StatusBadRequest, "validation error")
			return
		}

		p, err := products.UpdateProduct(r.Context(), actor, id, service.UpdateProductInput{
			Name:        req.Name,
			Description: req.Description,
			Category:    req.Category,
			Price:       req.Price,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, ProductResponse{Product: p, StockStatus: p.StockStatus()})
	}
}

// DeleteProductHandler обрабатывает DELETE /api/farmer/products/{id}
func DeleteProductHandler(log *slog.Logger, products service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteProductHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, ok := idParam(r, "id")
		if !ok {
			writeError(w, logger, http.StatusBadRequest, "invalid product id")
			return
		}

		if err := products.DeleteProduct(r.Context(), actor, id); err != nil {
			writeServiceError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type UpdateStockRequest struct {
	Quantity int    `json:"quantity"`
	Action   string `json:"action" validate:"required,oneof=add set"`
}

type StockResponse struct {
	ProductID     int64              `json:"product_id"`
	StockQuantity int                `json:"stock_quantity"`
	StockStatus   models.StockStatus `json:"stock_status"`
}

// UpdateStockHandler обрабатывает PATCH /api/farmer/products/{id}/stock
func UpdateStockHandler(log *slog.Logger, products service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateStockHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, ok := idParam(r, "id")
		if !ok {
			writeError(w, logger, http.StatusBadRequest, "invalid product id")
			return
		}

		var req UpdateStockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "validation error")
			return
		}

		stock, err := products.UpdateStock(r.Context(), actor, id, req.Quantity, req.Action)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, StockResponse{
			ProductID:     id,
			StockQuantity: stock,
			StockStatus:   models.StockStatusOf(stock),
		})
	}
}

type UpdateProductStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// UpdateProductStatusHandler обрабатывает PATCH /api/farmer/products/{id}/status
func UpdateProductStatusHandler(log *slog.Logger, products service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateProductStatusHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, ok := idParam(r, "id")
		if !ok {
			writeError(w, logger, http.StatusBadRequest, "invalid product id")
			return
		}

		var req UpdateProductStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "validation error")
			return
		}

		if err := products.SetActive(r.Context(), actor, id, *req.IsActive); err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]any{"product_id": id, "is_active": *req.IsActive})
	}
}
