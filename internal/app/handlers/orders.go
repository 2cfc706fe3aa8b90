package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/linemk/farm-shop/internal/cart"
	"github.com/linemk/farm-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/farm-shop/internal/service"
	"github.com/shopspring/decimal"
)

// CheckoutItem: позиция корзины в запросе на оформление
type CheckoutItem struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity" validate:"required,gte=1"`
	Price     decimal.Decimal `json:"price"`
}

// CheckoutRequest: тело POST /api/orders.
// total_amount с клиента не используется, итог всегда считается по ценам каталога.
type CheckoutRequest struct {
	Items           []CheckoutItem   `json:"items" validate:"dive"`
	TotalAmount     *decimal.Decimal `json:"total_amount"`
	ShippingAddress string           `json:"shipping_address" validate:"max=1000"`
}

// CheckoutHandler обрабатывает POST /api/orders
func CheckoutHandler(log *slog.Logger, checkoutService service.CheckoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CheckoutHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req CheckoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			writeError(w, logger, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			writeError(w, logger, http.StatusBadRequest, "validation error")
			return
		}

		c := cart.New()
		for _, item := range req.Items {
			c.Add(item.ProductID, item.Price, item.Quantity)
		}

		order, err := checkoutService.Checkout(r.Context(), actor, c, req.ShippingAddress)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		if req.TotalAmount != nil && !req.TotalAmount.Equal(order.TotalAmount) {
			logger.Warn("client total differs from order total",
				slog.String("client", req.TotalAmount.String()),
				slog.String("order", order.TotalAmount.String()),
				slog.Int64("orderID", order.ID),
			)
		}

		writeJSON(w, logger, http.StatusCreated, order)
	}
}

// ListOrdersHandler обрабатывает GET /api/orders: заказы текущего покупателя
func ListOrdersHandler(log *slog.Logger, orders service.OrderQueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}

		list, err := orders.ListCustomerOrders(r.Context(), actor)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, nonNil(list))
	}
}

// GetOrderHandler обрабатывает GET /api/orders/{id}
func GetOrderHandler(log *slog.Logger, orders service.OrderQueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, ok := idParam(r, "id")
		if !ok {
			writeError(w, logger, http.StatusBadRequest, "invalid order id")
			return
		}

		order, err := orders.GetOrder(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}

// FarmerOrdersHandler обрабатывает GET /api/farmer/orders
func FarmerOrdersHandler(log *slog.Logger, orders service.OrderQueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.FarmerOrdersHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}

		list, err := orders.ListFarmerOrders(r.Context(), actor)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, nonNil(list))
	}
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateOrderStatusHandler обрабатывает PATCH /api/farmer/orders/{id}/status
func UpdateOrderStatusHandler(log *slog.Logger, statusService service.OrderStatusService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateOrderStatusHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, ok := idParam(r, "id")
		if !ok {
			writeError(w, logger, http.StatusBadRequest, "invalid order id")
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "validation error")
			return
		}

		order, err := statusService.Transition(r.Context(), actor, id, req.Status)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}

// nonNil: пустой список отдаём как [], а не null
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
