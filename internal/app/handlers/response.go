package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/farm-shop/internal/service"
	"github.com/linemk/farm-shop/internal/storage"
)

// ErrorResponse: тело любого ответа с ошибкой
type ErrorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, ErrorResponse{Message: msg})
}

// writeServiceError переводит ошибку сервиса в HTTP-статус.
// Для внутренних ошибок клиент получает общее сообщение, подробности только в логе.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.Any("error", err))
	} else {
		logger.Warn("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	writeError(w, logger, status, msg)
}

func classify(err error) (int, string) {
	var (
		emptyCart    *service.EmptyCartError
		badAddress   *service.InvalidAddressError
		badStatus    *service.InvalidStatusError
		unauthorized *service.UnauthorizedActorError
		unavailable  *service.ProductUnavailableError
		insufficient *service.InsufficientStockError
		illegal      *service.IllegalTransitionError
	)

	switch {
	case errors.As(err, &emptyCart):
		return http.StatusBadRequest, emptyCart.Error()
	case errors.As(err, &badAddress):
		return http.StatusBadRequest, badAddress.Error()
	case errors.As(err, &badStatus):
		return http.StatusBadRequest, badStatus.Error()
	case errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest, service.ErrInvalidQuantity.Error()
	case errors.Is(err, service.ErrInvalidStockAction):
		return http.StatusBadRequest, service.ErrInvalidStockAction.Error()
	case errors.Is(err, service.ErrInvalidRole):
		return http.StatusBadRequest, service.ErrInvalidRole.Error()
	case errors.Is(err, service.ErrInvalidPrice):
		return http.StatusBadRequest, service.ErrInvalidPrice.Error()
	case errors.Is(err, service.ErrInvalidProductFilter):
		return http.StatusBadRequest, service.ErrInvalidProductFilter.Error()
	case errors.Is(err, service.ErrInvalidProfile):
		return http.StatusBadRequest, service.ErrInvalidProfile.Error()
	case errors.Is(err, service.ErrInvalidCreds):
		return http.StatusUnauthorized, service.ErrInvalidCreds.Error()
	case errors.As(err, &unauthorized):
		return http.StatusForbidden, unauthorized.Error()
	case errors.Is(err, storage.ErrOrderNotFound):
		return http.StatusNotFound, storage.ErrOrderNotFound.Error()
	case errors.Is(err, storage.ErrProductNotFound):
		return http.StatusNotFound, storage.ErrProductNotFound.Error()
	case errors.Is(err, storage.ErrUserNotFound):
		return http.StatusNotFound, storage.ErrUserNotFound.Error()
	case errors.Is(err, storage.ErrUserExists):
		return http.StatusConflict, storage.ErrUserExists.Error()
	case errors.As(err, &unavailable):
		return http.StatusConflict, unavailable.Error()
	case errors.As(err, &insufficient):
		return http.StatusConflict, insufficient.Error()
	case errors.As(err, &illegal):
		return http.StatusConflict, illegal.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

// idParam читает числовой параметр пути
func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
