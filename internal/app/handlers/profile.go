package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/linemk/farm-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/farm-shop/internal/service"
)

type UpdateProfileRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Address   string `json:"address" validate:"max=1000"`
}

// ProfileHandler обрабатывает GET /api/profile
func ProfileHandler(log *slog.Logger, profiles service.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ProfileHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, err := profiles.GetProfile(r.Context(), actor)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, toUserResponse(user))
	}
}

// UpdateProfileHandler обрабатывает PUT /api/profile
func UpdateProfileHandler(log *slog.Logger, profiles service.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateProfileHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req UpdateProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			writeError(w, logger, http.StatusBadRequest, "validation error")
			return
		}

		user, err := profiles.UpdateProfile(r.Context(), actor, service.ProfileInput{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Address:   req.Address,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, toUserResponse(user))
	}
}
